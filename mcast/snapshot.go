// Package mcast receives and decodes the periodic binary multicast
// telemetry broadcast by the DBBC3 control software.
package mcast

// NumIF is the number of independent signal chains reported per
// broadcast message.
const NumIF = 8

// Gcomo is the input attenuator/gain block of one IF.
type Gcomo struct {
	AGC         bool // true = automatic gain control, false = manual
	Attenuation int
	Count       int
	Target      int
}

// Synth is the downconverter synthesizer block of one IF.
type Synth struct {
	Status       bool
	Lock         bool
	Attenuation  int
	FrequencyMHz float64 // doubled from the halved wire encoding
}

// Sampler is one of the four ADB3L samplers of an IF.
type Sampler struct {
	Power    uint32
	Offset   uint32 // OCT modes only
	Stats    [4]uint32
	StatsPct [4]float64
}

// Filter is a core3h tap filter block (OCT modes).
type Filter struct {
	Power    uint32
	Stats    [4]uint32
	StatsPct [4]float64
}

// BBC is one baseband converter channel record (DDC_U extended modes).
type BBC struct {
	Number       int // 1..128
	FrequencyMHz float64
	Bandwidth    uint8
	AGCStatus    uint8
	GainUSB      uint8
	GainLSB      uint8
	PowerOnUSB   uint32
	PowerOnLSB   uint32
	PowerOffUSB  uint32
	PowerOffLSB  uint32
	Stat00       uint16
	Stat01       uint16
	Stat10       uint16
	Stat11       uint16
	TsysUSB      uint16
	TsysLSB      uint16
	SefdUSB      uint16
	SefdLSB      uint16
}

// IFStatus is the decoded state of one IF.
type IFStatus struct {
	Gcomo     Gcomo
	Synth     Synth
	Samplers  [4]Sampler
	DelayCorr [3]uint32

	// core3h timing block
	Time     uint32 // DDC: seconds; OCT: VDIF seconds
	Epoch    uint32 // OCT: VDIF epoch
	PPSDelay uint32
	TpOn     uint32 // threshold power, cal signal on
	TpOff    uint32 // threshold power, cal signal off
	Tsys     uint32
	Sefd     uint32

	Filters [2]Filter // OCT modes
	BBCs    []BBC     // extended (DDC_U) modes, grouped onto this IF
}

// Snapshot is the immutable decoded form of exactly one broadcast
// datagram. A new datagram produces a new Snapshot.
type Snapshot struct {
	Mode               string
	MajorVersion       int
	MinorVersion       int // YYMMDD
	MinorVersionString string

	// Board population bitmaps; OCT_D 120 and later only.
	BoardPresent [NumIF]bool
	BoardActive  [NumIF]bool

	ifs [NumIF]IFStatus
}

// IF returns the block for IF n in 1..NumIF, nil outside that range.
func (self *Snapshot) IF(n int) *IFStatus {
	if n < 1 || n > NumIF {
		return nil
	}
	return &self.ifs[n-1]
}

// Occupancy converts raw level counts to percentages of the total. A
// zero total yields 0 for every level rather than a division failure.
func Occupancy(stats [4]uint32) [4]float64 {
	var pct [4]float64
	var total float64
	for _, v := range stats {
		total += float64(v)
	}
	if total == 0 {
		return pct
	}
	for i, v := range stats {
		pct[i] = float64(v) / total * 100
	}
	return pct
}
