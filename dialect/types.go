package dialect

import "time"

// VersionInfo is the parsed reply of the "version" command.
type VersionInfo struct {
	Mode        string // e.g. DDC_V
	Major       int    // e.g. 124
	Minor       int    // YYMMDD, e.g. 191001
	MinorString string // e.g. "October 01 2019"
}

// BoardTime is one board's entry from the "time" command.
type BoardTime struct {
	Timestamp          time.Time
	HasTimestamp       bool
	Seconds            int // seconds since start of current year (OCT modes)
	HalfYearsSince2000 int
	DaysSince2000      int
}

// IFLevel is the GCoMo IF module state from "dbbcif<x>".
type IFLevel struct {
	InputType   int    // 1 = bypass downconversion, 2 = downconverted
	Attenuation int    // 0-63 in 0.5 dB steps
	Mode        string // "agc" or "man"
	Count       int    // current IF level
	Target      int    // target IF level in agc mode
}

// SynthFreq is the downconverter synthesizer frequency. Values are in
// MHz, already doubled to compensate the halved wire encoding.
type SynthFreq struct {
	TargetMHz int
	ActualMHz int
}

// RegValue is one device register in the three representations reported
// by core3h regread.
type RegValue struct {
	Hex string
	Bin string
	Dec int64 // signed 32-bit
}

// CalSettings is the automatic calibration loop switch state.
type CalSettings struct {
	Threshold string // "on"/"off"
	Gain      string
	Offset    string
}

// TimeSync is the outcome of a core3h timesync.
type TimeSync struct {
	Success   bool
	Timestamp time.Time // UTC, valid when Success
}

// DSCStat is one quantization level of the DSC sampler statistics.
type DSCStat struct {
	Count   int64
	Percent int
}
