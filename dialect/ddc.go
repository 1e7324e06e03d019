package dialect

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/juju/errors"

	"github.com/vlbitools/dbbc3/board"
)

func init() {
	builtin.Register(newDDC("DDC_V", 123, opPPSDelayGlobal))
	builtin.Register(newDDC("DDC_V", 124, opPPSDelay124))
	// DDC_U currently shares the DDC_V 124 command set
	builtin.Register(newDDC("DDC_U", 125, opPPSDelay124))
	builtin.Register(newDDC("DDC_U", 126, opPPSDelay124))
}

// newDDC extends the base set with the operations common to all DDC
// (digital downconversion) modes.
func newDDC(mode string, version int, ppsDelay PPSDelayFunc) *Dialect {
	d := newBase(mode, version)
	d.Ops.DSCPower = opDSCPower
	d.Ops.DSCStats = opDSCStats
	d.Ops.DSCCorr = opDSCCorr
	d.Ops.PPSDelay = ppsDelay
	return d
}

// TP[1][0] = 69948
var dscPowerRe = regexp.MustCompile(`TP\[\d+\]\[[0-3]\]\s+=\s+(\d+)`)

func opDSCPower(t Transactor, b board.ID) ([]int64, error) {
	raw, err := t.SendCommand(fmt.Sprintf("dsc_tp=%d", b.WireNumber()))
	if err != nil {
		return nil, errors.Trace(err)
	}
	var values []int64
	for _, m := range dscPowerRe.FindAllStringSubmatch(raw, -1) {
		v, _ := strconv.ParseInt(m[1], 10, 64)
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, ParseError{Op: OpDSCPower, Raw: raw}
	}
	return values, nil
}

// [11] =   1454,   9%
var dscStatsRe = regexp.MustCompile(`\[(\d\d)\]\s*=\s*(\d+),\s*(\d+)%`)

func opDSCStats(t Transactor, b board.ID, sampler int) ([]DSCStat, error) {
	if err := validSampler(OpDSCStats, sampler); err != nil {
		return nil, err
	}
	raw, err := t.SendCommand(fmt.Sprintf("dsc_bstat=%d, %d", b.WireNumber(), sampler))
	if err != nil {
		return nil, errors.Trace(err)
	}
	// index 0 is the ++ state (11), 3 is the -- state (00)
	order := map[string]int{"11": 0, "10": 1, "01": 2, "00": 3}
	stats := make([]DSCStat, 4)
	found := 0
	for _, line := range strings.Split(raw, "\n") {
		m := dscStatsRe.FindStringSubmatch(strings.ReplaceAll(line, ";", ""))
		if m == nil {
			continue
		}
		idx, ok := order[m[1]]
		if !ok {
			continue
		}
		stats[idx].Count, _ = strconv.ParseInt(m[2], 10, 64)
		stats[idx].Percent, _ = strconv.Atoi(m[3])
		found++
	}
	if found != 4 {
		return nil, ParseError{Op: OpDSCStats, Raw: raw}
	}
	return stats, nil
}

func opDSCCorr(t Transactor, b board.ID) ([]int64, error) {
	raw, err := t.SendCommand(fmt.Sprintf("dsc_corr=%d", b.WireNumber()))
	if err != nil {
		return nil, errors.Trace(err)
	}
	return parseCorrTriple(OpDSCCorr, raw)
}

// pps_delay/ [1]: 39 ns, [2] 39 ns, [3] 0 ns, ... [8] 0 ns;
var ppsDelayRe = regexp.MustCompile(`\[(\d+)\]:?\s+(\d+)\s+ns`)

func parsePPSDelays(op Op, raw string) ([]int, error) {
	var delays []int
	for _, line := range strings.Split(raw, "\n") {
		if !strings.Contains(line, "pps_delay") {
			continue
		}
		for _, m := range ppsDelayRe.FindAllStringSubmatch(line, -1) {
			v, _ := strconv.Atoi(m[2])
			delays = append(delays, v)
		}
	}
	if len(delays) == 0 {
		return nil, ParseError{Op: op, Raw: raw}
	}
	return delays, nil
}

// opPPSDelayGlobal reports the internal vs external PPS delay of every
// board; the command has no per-board form before version 124.
func opPPSDelayGlobal(t Transactor, b board.ID) ([]int, error) {
	if b != board.All {
		return nil, errors.NotSupportedf("per-board pps_delay before version 124")
	}
	raw, err := t.SendCommand("pps_delay")
	if err != nil {
		return nil, errors.Trace(err)
	}
	return parsePPSDelays(OpPPSDelay, raw)
}

// opPPSDelay124 adds the per-board form: pps_delay=N reports the PPS
// groups of one core3h board.
func opPPSDelay124(t Transactor, b board.ID) ([]int, error) {
	cmd := "pps_delay"
	if b != board.All {
		cmd = fmt.Sprintf("pps_delay=%d", b.WireNumber())
	}
	raw, err := t.SendCommand(cmd)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return parsePPSDelays(OpPPSDelay, raw)
}
