package mcast

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/juju/errors"

	"github.com/vlbitools/dbbc3/internal/verdate"
)

const (
	headerSize = 32

	// MaxDatagramSize is the largest observed broadcast message.
	MaxDatagramSize = 16384
)

// VersionError reports a header that could not be parsed into a mode
// and version.
type VersionError struct {
	Reason string
}

func (self VersionError) Error() string {
	return "telemetry version header: " + self.Reason
}

func IsVersion(err error) bool {
	_, ok := errors.Cause(err).(VersionError)
	return ok
}

// TruncatedError reports a datagram too short for a section of its
// layout. The message is discarded; no partial data is decoded.
type TruncatedError struct {
	Section string
	Need    int
	Have    int
}

func (self TruncatedError) Error() string {
	return fmt.Sprintf("telemetry message truncated in %s section: need %d bytes, have %d", self.Section, self.Need, self.Have)
}

func IsTruncated(err error) bool {
	_, ok := errors.Cause(err).(TruncatedError)
	return ok
}

// Multicast integers are little-endian: the on-wire layout is the
// native byte order of the x86 control computer that emits it.
var wire = binary.LittleEndian

type reader struct {
	buf []byte
	off int
}

// need checks that n more bytes exist before a section is decoded, so a
// truncated datagram fails cleanly instead of faulting mid-field.
func (self *reader) need(section string, n int) error {
	if self.off+n > len(self.buf) {
		return TruncatedError{Section: section, Need: self.off + n, Have: len(self.buf)}
	}
	return nil
}

func (self *reader) u8() uint8 {
	v := self.buf[self.off]
	self.off++
	return v
}

func (self *reader) u16() uint16 {
	v := wire.Uint16(self.buf[self.off:])
	self.off += 2
	return v
}

func (self *reader) u32() uint32 {
	v := wire.Uint32(self.buf[self.off:])
	self.off += 4
	return v
}

func (self *reader) skip(n int) { self.off += n }

// Decode parses one broadcast datagram into a Snapshot. Pure function:
// no state is carried between messages.
func Decode(buf []byte) (*Snapshot, error) {
	r := &reader{buf: buf}
	snap := &Snapshot{}
	if err := decodeHeader(r, snap); err != nil {
		return nil, errors.Trace(err)
	}
	if dec := resolveLayout(snap.Mode, snap.MajorVersion); dec != nil {
		if err := dec(r, snap); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return snap, nil
}

// decodeHeader parses the fixed 32-byte header:
// "DDC_V,124,November 07 2019" padded with NUL.
func decodeHeader(r *reader, snap *Snapshot) error {
	if len(r.buf) < headerSize {
		return VersionError{Reason: fmt.Sprintf("message of %d bytes shorter than %d byte header", len(r.buf), headerSize)}
	}
	head := string(bytes.TrimRight(r.buf[:headerSize], "\x00"))
	parts := strings.SplitN(head, ",", 3)
	if len(parts) != 3 {
		return VersionError{Reason: fmt.Sprintf("expected mode,major,date got %q", head)}
	}
	major, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return VersionError{Reason: fmt.Sprintf("bad major version in %q", head)}
	}
	minorStr := strings.TrimSpace(strings.ReplaceAll(parts[2], "\x00", ""))
	minor, err := verdate.Parse(minorStr)
	if err != nil {
		return VersionError{Reason: fmt.Sprintf("bad minor version date in %q", head)}
	}
	snap.Mode = parts[0]
	snap.MajorVersion = major
	snap.MinorVersion = minor
	snap.MinorVersionString = minorStr
	r.off = headerSize
	return nil
}

type layoutFunc func(r *reader, snap *Snapshot) error

type layout struct {
	mode    string
	version int
	decode  layoutFunc
}

// Body layouts by mode and major version. Resolution follows the same
// rule as the command dialect registry: highest version <= reported,
// else the lowest for the mode; unknown mode decodes the header only.
var layouts = []layout{
	{"DDC_U", 125, decodeBodyDDCU},
	{"DDC_U", 126, decodeBodyDDCU},
	{"OCT_D", 120, decodeBodyOCTD},
}

func resolveLayout(mode string, major int) layoutFunc {
	var pick layoutFunc
	var lowest layoutFunc
	lowestVer := 0
	for _, l := range layouts {
		if l.mode != mode {
			continue
		}
		if lowest == nil || l.version < lowestVer {
			lowest, lowestVer = l.decode, l.version
		}
		if l.version <= major {
			pick = l.decode
		}
	}
	if pick == nil {
		pick = lowest
	}
	return pick
}

func decodeBodyDDCU(r *reader, snap *Snapshot) error {
	if err := decodeGcomo(r, snap); err != nil {
		return err
	}
	if err := decodeDownconverter(r, snap); err != nil {
		return err
	}
	if err := decodeSamplersDDC(r, snap); err != nil {
		return err
	}
	if err := decodeCore3hDDC(r, snap); err != nil {
		return err
	}
	return decodeBBC(r, snap)
}

func decodeBodyOCTD(r *reader, snap *Snapshot) error {
	if err := decodeIFMask(r, snap); err != nil {
		return err
	}
	if err := decodeGcomo(r, snap); err != nil {
		return err
	}
	if err := decodeDownconverter(r, snap); err != nil {
		return err
	}
	if err := decodeSamplersOCT(r, snap); err != nil {
		return err
	}
	return decodeCore3hOCT(r, snap)
}

// decodeIFMask reads the board present/active bitmaps, bit 0 = board A.
func decodeIFMask(r *reader, snap *Snapshot) error {
	if err := r.need("if mask", 2); err != nil {
		return err
	}
	present, active := r.u8(), r.u8()
	for bit := 0; bit < NumIF; bit++ {
		snap.BoardPresent[bit] = present>>bit&1 == 1
		snap.BoardActive[bit] = active>>bit&1 == 1
	}
	return nil
}

// decodeGcomo reads 8 bytes per IF: mode flag, pad, and three shorts
// (attenuation, count, target).
func decodeGcomo(r *reader, snap *Snapshot) error {
	if err := r.need("gcomo", NumIF*8); err != nil {
		return err
	}
	for i := 0; i < NumIF; i++ {
		g := &snap.ifs[i].Gcomo
		g.AGC = r.u8() != 0
		r.skip(1)
		g.Attenuation = int(r.u16())
		g.Count = int(r.u16())
		g.Target = int(r.u16())
	}
	return nil
}

// decodeDownconverter reads 8 bytes per IF: status, lock, attenuation
// and frequency shorts. The frequency is doubled to undo the halved
// broadcast encoding.
func decodeDownconverter(r *reader, snap *Snapshot) error {
	if err := r.need("downconverter", NumIF*8); err != nil {
		return err
	}
	for i := 0; i < NumIF; i++ {
		sy := &snap.ifs[i].Synth
		sy.Status = r.u16() != 0
		sy.Lock = r.u16() != 0
		sy.Attenuation = int(r.u16())
		sy.FrequencyMHz = float64(r.u16()) * 2
	}
	return nil
}

// decodeSamplersDDC reads 92 bytes per IF: four sampler powers, four
// 4-level statistics blocks and three sampler correlations.
func decodeSamplersDDC(r *reader, snap *Snapshot) error {
	if err := r.need("sampler", NumIF*92); err != nil {
		return err
	}
	for i := 0; i < NumIF; i++ {
		ifs := &snap.ifs[i]
		for s := 0; s < 4; s++ {
			ifs.Samplers[s].Power = r.u32()
		}
		for s := 0; s < 4; s++ {
			for l := 0; l < 4; l++ {
				ifs.Samplers[s].Stats[l] = r.u32()
			}
			ifs.Samplers[s].StatsPct = Occupancy(ifs.Samplers[s].Stats)
		}
		for c := 0; c < 3; c++ {
			ifs.DelayCorr[c] = r.u32()
		}
	}
	return nil
}

// decodeSamplersOCT reads 48 bytes per IF: four powers, four offsets,
// three correlations and four bytes of padding.
func decodeSamplersOCT(r *reader, snap *Snapshot) error {
	if err := r.need("sampler", NumIF*48); err != nil {
		return err
	}
	for i := 0; i < NumIF; i++ {
		ifs := &snap.ifs[i]
		for s := 0; s < 4; s++ {
			ifs.Samplers[s].Power = r.u32()
		}
		for s := 0; s < 4; s++ {
			ifs.Samplers[s].Offset = r.u32()
		}
		for c := 0; c < 3; c++ {
			ifs.DelayCorr[c] = r.u32()
		}
		r.skip(4)
	}
	return nil
}

// decodeCore3hDDC reads 24 bytes per IF: time, PPS delay, the two
// threshold power readings, system temperature and SEFD.
func decodeCore3hDDC(r *reader, snap *Snapshot) error {
	if err := r.need("core3h", NumIF*24); err != nil {
		return err
	}
	for i := 0; i < NumIF; i++ {
		ifs := &snap.ifs[i]
		ifs.Time = r.u32()
		ifs.PPSDelay = r.u32()
		ifs.TpOn = r.u32()
		ifs.TpOff = r.u32()
		ifs.Tsys = r.u32()
		ifs.Sefd = r.u32()
	}
	return nil
}

// decodeCore3hOCT reads 52 bytes per IF: VDIF seconds and epoch, PPS
// delay, and power plus 4-level statistics for both tap filters.
func decodeCore3hOCT(r *reader, snap *Snapshot) error {
	if err := r.need("core3h", NumIF*52); err != nil {
		return err
	}
	for i := 0; i < NumIF; i++ {
		ifs := &snap.ifs[i]
		ifs.Time = r.u32()
		ifs.Epoch = r.u32()
		ifs.PPSDelay = r.u32()
		ifs.Filters[0].Power = r.u32()
		ifs.Filters[1].Power = r.u32()
		for f := 0; f < 2; f++ {
			for l := 0; l < 4; l++ {
				ifs.Filters[f].Stats[l] = r.u32()
			}
			ifs.Filters[f].StatsPct = Occupancy(ifs.Filters[f].Stats)
		}
	}
	return nil
}

// bbcScale converts the 32-bit tuning word to MHz.
const bbcScale = 524288

// decodeBBC reads the 128 per-channel records of 40 bytes each and
// groups them onto IFs: channels 1-8 belong to IF 1 and so on, with the
// second half of the channel space restarting at IF 1.
func decodeBBC(r *reader, snap *Snapshot) error {
	if err := r.need("bbc", 128*40); err != nil {
		return err
	}
	for i := 0; i < 128; i++ {
		ifNum := i/8 + 1
		if i >= 64 {
			ifNum = (i-64)/8 + 1
		}
		b := BBC{Number: i + 1}
		b.FrequencyMHz = float64(r.u32()) / bbcScale
		b.Bandwidth = r.u8()
		b.AGCStatus = r.u8()
		b.GainUSB = r.u8()
		b.GainLSB = r.u8()
		b.PowerOnUSB = r.u32()
		b.PowerOnLSB = r.u32()
		b.PowerOffUSB = r.u32()
		b.PowerOffLSB = r.u32()
		b.Stat00 = r.u16()
		b.Stat01 = r.u16()
		b.Stat10 = r.u16()
		b.Stat11 = r.u16()
		b.TsysUSB = r.u16()
		b.TsysLSB = r.u16()
		b.SefdUSB = r.u16()
		b.SefdLSB = r.u16()
		ifs := snap.IF(ifNum)
		ifs.BBCs = append(ifs.BBCs, b)
	}
	return nil
}
