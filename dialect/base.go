package dialect

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"

	"github.com/vlbitools/dbbc3/board"
	"github.com/vlbitools/dbbc3/internal/verdate"
)

// newBase builds the operation set common to all DBBC3 modes and
// versions. Mode dialects extend the returned value.
func newBase(mode string, version int) *Dialect {
	return &Dialect{
		Mode:    mode,
		Version: version,
		Ops: OpSet{
			Version:      opVersion,
			Time:         opTime,
			IFLevel:      opIFLevel,
			SamplerPower: opSamplerPower,
			SamplerStats: opSamplerStats,
			SamplerCorr:  opSamplerCorr,
			SynthLock:    opSynthLock,
			SynthFreq:    opSynthFreq,
			RegRead:      opRegRead,
			RegReadDec:   opRegReadDec,
			RegWrite:     opRegWrite,
			EnableLoop:   opEnableLoop,
			DisableLoop:  opDisableLoop,
			EnableCal:    opEnableCal,
			CheckPhase:   opCheckPhase,
			TimeSync:     opTimeSync,
		},
	}
}

// Default is the degraded-capability fallback used when no dialect is
// registered for a device's mode.
func Default() *Dialect { return newBase("", 0) }

// version/ DDC_V,124,October 01 2019;
// version/ OCT_D,110,July 03 2019
// version/ DDC_V,124,February 18th 2020;
var versionRe = regexp.MustCompile(`version/\s+(.+),(\d+),(.+?\s+.+?\s+\d{4});?`)

func opVersion(t Transactor) (*VersionInfo, error) {
	raw, err := t.SendCommand("version")
	if err != nil {
		return nil, errors.Trace(err)
	}
	m := versionRe.FindStringSubmatch(raw)
	if m == nil {
		return nil, ParseError{Op: OpVersion, Raw: raw}
	}
	major, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, ParseError{Op: OpVersion, Reason: "bad major version", Raw: raw}
	}
	minorStr := strings.TrimSpace(m[3])
	minor, err := verdate.Parse(minorStr)
	if err != nil {
		return nil, ParseError{Op: OpVersion, Reason: "bad minor version date", Raw: raw}
	}
	return &VersionInfo{Mode: m[1], Major: major, Minor: minor, MinorString: minorStr}, nil
}

func opTime(t Transactor) ([]BoardTime, error) {
	raw, err := t.SendCommand("time")
	if err != nil {
		return nil, errors.Trace(err)
	}

	var resp []BoardTime
	var entry BoardTime
	var seen bool
	flush := func() {
		if seen {
			resp = append(resp, entry)
			entry = BoardTime{}
			seen = false
		}
	}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "FiLa10G") {
			// board separator
			flush()
			continue
		}
		if k, v, ok := splitKeyValue(line, "="); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				continue
			}
			switch k {
			case "seconds":
				entry.Seconds = n
			case "halfYearsSince2000":
				entry.HalfYearsSince2000 = n
			case "daysSince2000":
				entry.DaysSince2000 = n
			}
			seen = true
			continue
		}
		// 2019-01-30T13:32:08
		if ts, err := time.Parse("2006-01-02T15:04:05", line); err == nil {
			entry.Timestamp = ts
			entry.HasTimestamp = true
			seen = true
		}
	}
	flush()
	if len(resp) == 0 {
		return nil, ParseError{Op: OpTime, Reason: "no time information for any board", Raw: raw}
	}
	return resp, nil
}

func opIFLevel(t Transactor, b board.ID) (*IFLevel, error) {
	letter := strings.ToLower(b.Label())
	raw, err := t.SendCommand("dbbcif" + letter)
	if err != nil {
		return nil, errors.Trace(err)
	}
	// dbbcifa/ 2,20,agc,1,32031,32000
	re := regexp.MustCompile(`dbbcif` + letter + `/\s(\d),(\d+),(.+),(\d),(\d+),(\d+)`)
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return nil, ParseError{Op: OpIFLevel, Raw: raw}
	}
	lvl := &IFLevel{Mode: m[3]}
	lvl.InputType, _ = strconv.Atoi(m[1])
	lvl.Attenuation, _ = strconv.Atoi(m[2])
	lvl.Count, _ = strconv.Atoi(m[5])
	lvl.Target, _ = strconv.Atoi(m[6])
	return lvl, nil
}

// Power at sampler 0 = 65053929
var samplerPowerRe = regexp.MustCompile(`\s*Power\s+at\s+sampler\s+(\d)\s+=\s+(\d+)`)

func opSamplerPower(t Transactor, b board.ID) ([]int64, error) {
	raw, err := t.SendCommand(fmt.Sprintf("core3h=%d,core3_power", b.WireNumber()))
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := checkConnected(OpSamplerPower, raw); err != nil {
		return nil, err
	}
	var pow []int64
	for _, m := range samplerPowerRe.FindAllStringSubmatch(raw, -1) {
		v, _ := strconv.ParseInt(m[2], 10, 64)
		pow = append(pow, v)
	}
	if len(pow) == 0 {
		return nil, ParseError{Op: OpSamplerPower, Raw: raw}
	}
	return pow, nil
}

// P("11") = 9.64% (6171370)
var samplerStatsRe = regexp.MustCompile(`\s*P\("(\d\d)"\)\s*=\s*(\d+\.\d+)%\s+\((\d+)\)`)

func opSamplerStats(t Transactor, b board.ID, sampler int) ([]int64, error) {
	if err := validSampler(OpSamplerStats, sampler); err != nil {
		return nil, err
	}
	raw, err := t.SendCommand(fmt.Sprintf("core3h=%d,core3_bstat %d", b.WireNumber(), sampler))
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := checkConnected(OpSamplerStats, raw); err != nil {
		return nil, err
	}
	var stats []int64
	for _, m := range samplerStatsRe.FindAllStringSubmatch(raw, -1) {
		v, _ := strconv.ParseInt(m[3], 10, 64)
		stats = append(stats, v)
	}
	if len(stats) != 4 {
		return nil, ParseError{Op: OpSamplerStats, Raw: raw}
	}
	return stats, nil
}

func opSamplerCorr(t Transactor, b board.ID) ([]int64, error) {
	raw, err := t.SendCommand(fmt.Sprintf("core3h=%d,core3_corr", b.WireNumber()))
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := checkConnected(OpSamplerCorr, raw); err != nil {
		return nil, err
	}
	return parseCorrTriple(OpSamplerCorr, raw)
}

func opSynthLock(t Transactor, b board.ID) (bool, error) {
	synth, source := b.Synthesizer()
	raw, err := t.SendCommand(fmt.Sprintf("synth=%d,lock", synth))
	if err != nil {
		return false, errors.Trace(err)
	}
	// S1 locked / S2 not locked, one line per synthesizer source
	locked := [4]int{-1, -1, -1, -1}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		for i := 0; i < 4; i++ {
			prefix := fmt.Sprintf("S%d ", i+1)
			if !strings.HasPrefix(line, prefix) {
				continue
			}
			if strings.HasPrefix(line, prefix+"not locked") {
				locked[i] = 0
			} else if strings.HasPrefix(line, prefix+"locked") {
				locked[i] = 1
			}
		}
	}
	if locked[source-1] == -1 {
		return false, ParseError{Op: OpSynthLock,
			Reason: fmt.Sprintf("no lock state for board %s", b), Raw: raw}
	}
	return locked[source-1] == 1, nil
}

func opSynthFreq(t Transactor, b board.ID) (*SynthFreq, error) {
	synth, source := b.Synthesizer()
	if _, err := t.SendCommand(fmt.Sprintf("synth=%d,source %d", synth, source)); err != nil {
		return nil, errors.Trace(err)
	}
	raw, err := t.SendCommand(fmt.Sprintf("synth=%d,cw", synth))
	if err != nil {
		return nil, errors.Trace(err)
	}
	// F 4524 MHz; // Act 4524 MHz
	// Frequencies are doubled: the synthesizer reports half the
	// effective LO frequency.
	for _, line := range strings.Split(raw, "\n") {
		if !strings.Contains(line, "MHz") {
			continue
		}
		tok := strings.Split(strings.TrimSpace(line), " ")
		if len(tok) < 6 {
			continue
		}
		target, err1 := strconv.Atoi(tok[1])
		actual, err2 := strconv.Atoi(tok[5])
		if err1 != nil || err2 != nil {
			continue
		}
		return &SynthFreq{TargetMHz: target * 2, ActualMHz: actual * 2}, nil
	}
	return nil, ParseError{Op: OpSynthFreq,
		Reason: fmt.Sprintf("no frequency for board %s", b), Raw: raw}
}

// 0xBFBFBFBF / 0b10111111101111111011111110111111 / -1077952577
var regReadRe = regexp.MustCompile(`(0x[0-9a-fA-F]+)\s*/\s*(0b[01]+)\s*/\s*(-?\d+)`)

func opRegRead(t Transactor, b board.ID, device string, reg int) (*RegValue, error) {
	raw, err := t.SendCommand(fmt.Sprintf("core3h=%d,regread %s %d", b.WireNumber(), device, reg))
	if err != nil {
		return nil, errors.Trace(err)
	}
	m := regReadRe.FindStringSubmatch(raw)
	if m == nil {
		return nil, ParseError{Op: OpRegRead, Raw: raw}
	}
	dec, _ := strconv.ParseInt(m[3], 10, 64)
	return &RegValue{Hex: m[1], Bin: m[2], Dec: dec}, nil
}

func opRegReadDec(t Transactor, b board.ID, device string, reg int) (int64, error) {
	raw, err := t.SendCommand(fmt.Sprintf("core3h=%d,regread_dec %s %d", b.WireNumber(), device, reg))
	if err != nil {
		return 0, errors.Trace(err)
	}
	for _, line := range strings.Split(raw, "\n") {
		if v, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64); err == nil {
			return v, nil
		}
	}
	return 0, ParseError{Op: OpRegReadDec, Raw: raw}
}

func opRegWrite(t Transactor, b board.ID, device string, reg int, value uint32) (bool, error) {
	raw, err := t.SendCommand(fmt.Sprintf("core3h=%d,regwrite %s %d 0x%08x",
		b.WireNumber(), device, reg, value))
	if err != nil {
		return false, errors.Trace(err)
	}
	return !strings.Contains(raw, "unmodified"), nil
}

func opEnableLoop(t Transactor) (string, error) {
	return t.SendCommand("enableloop")
}

func opDisableLoop(t Transactor) (string, error) {
	return t.SendCommand("disableloop")
}

func opEnableCal(t Transactor, threshold, gain, offset string) (*CalSettings, error) {
	threshold = strings.ToLower(threshold)
	gain = strings.ToLower(gain)
	offset = strings.ToLower(offset)
	for _, v := range []string{threshold, gain, offset} {
		if v != "on" && v != "off" {
			return nil, errors.NotValidf("enablecal switch %q", v)
		}
	}
	raw, err := t.SendCommand(fmt.Sprintf("enablecal=%s,%s,%s", threshold, gain, offset))
	if err != nil {
		return nil, errors.Trace(err)
	}
	// Calibration enabled:
	// threshold=ON
	// gain=OFF
	// offset=OFF
	got := map[string]string{}
	for _, line := range strings.Split(raw, "\n") {
		if k, v, ok := splitKeyValue(line, "="); ok {
			got[k] = strings.ToLower(v)
		}
	}
	if len(got) == 0 {
		return nil, ParseError{Op: OpEnableCal, Raw: raw}
	}
	cs := &CalSettings{Threshold: got["threshold"], Gain: got["gain"], Offset: got["offset"]}
	if cs.Threshold != threshold || cs.Gain != gain || cs.Offset != offset {
		return nil, ParseError{Op: OpEnableCal,
			Reason: fmt.Sprintf("device reports %v, requested %s,%s,%s", got, threshold, gain, offset),
			Raw:    raw}
	}
	return cs, nil
}

func opCheckPhase(t Transactor) (bool, error) {
	raw, err := t.SendCommand("checkphase")
	if err != nil {
		return false, errors.Trace(err)
	}
	return !strings.Contains(raw, "out of sync"), nil
}

func opTimeSync(t Transactor, b board.ID) (*TimeSync, error) {
	raw, err := t.SendCommand(fmt.Sprintf("core3h=%d,timesync", b.WireNumber()))
	if err != nil {
		return nil, errors.Trace(err)
	}
	ts := &TimeSync{}
	if !strings.Contains(raw, "succeeded") {
		return ts, nil
	}
	ts.Success = true
	ts.Timestamp = parseSyncTimestamp(raw)
	return ts, nil
}

// parseSyncTimestamp reconstructs the UTC timestamp from the
// halfYearsSince2000/seconds counters in a timesync reply. Zero time
// when the counters are absent.
func parseSyncTimestamp(raw string) time.Time {
	var year, seconds int
	for _, line := range strings.Split(raw, "\n") {
		if k, v, ok := splitKeyValue(line, "="); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				continue
			}
			switch k {
			case "halfYearsSince2000":
				year = n/2 + 2000
			case "seconds":
				seconds = n
			}
		}
	}
	if year == 0 {
		return time.Time{}
	}
	return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).
		Add(time.Duration(seconds) * time.Second)
}

func parseCorrTriple(op Op, raw string) ([]int64, error) {
	// Correlation board 1:
	// [0-1]: 157322344
	// [1-2]: 155710069
	// [2-3]: 158944035;
	corr := make([]int64, 3)
	found := false
	for _, line := range strings.Split(raw, "\n") {
		var idx int
		switch {
		case strings.Contains(line, "0-1"):
			idx = 0
		case strings.Contains(line, "1-2"):
			idx = 1
		case strings.Contains(line, "2-3"):
			idx = 2
		default:
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		v, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimSpace(parts[1]), ";"), 10, 64)
		if err != nil {
			continue
		}
		corr[idx] = v
		found = true
	}
	if !found {
		return nil, ParseError{Op: op, Raw: raw}
	}
	return corr, nil
}

func checkConnected(op Op, raw string) error {
	if strings.Contains(raw, "not connected") {
		return ParseError{Op: op, Reason: "board not connected", Raw: raw}
	}
	return nil
}

func validSampler(op Op, sampler int) error {
	if sampler < 0 || sampler > 3 {
		return errors.NotValidf("%s: sampler %d", string(op), sampler)
	}
	return nil
}

func splitKeyValue(line, sep string) (key, value string, ok bool) {
	tok := strings.SplitN(strings.TrimSpace(line), sep, 2)
	if len(tok) != 2 {
		return "", "", false
	}
	key = strings.TrimSpace(tok[0])
	value = strings.TrimSuffix(strings.TrimSpace(tok[1]), ";")
	if key == "" || value == "" {
		return "", "", false
	}
	return key, value, true
}
