// Package dialect holds the DBBC3 command dialects: the wire-command
// templates and response parsers valid for one (mode, firmware version)
// combination. A session resolves exactly one Dialect at handshake time
// and never rebinds it.
package dialect

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/vlbitools/dbbc3/board"
)

// Op names a logical operation of the control protocol.
type Op string

const (
	OpVersion      Op = "version"
	OpTime         Op = "time"
	OpIFLevel      Op = "if level"
	OpSamplerPower Op = "power"
	OpSamplerStats Op = "bit statistics"
	OpSamplerCorr  Op = "sampler correlation"
	OpSynthLock    Op = "synthesizer lock"
	OpSynthFreq    Op = "synthesizer frequency"
	OpRegRead      Op = "register read"
	OpRegReadDec   Op = "register read decimal"
	OpRegWrite     Op = "register write"
	OpEnableLoop   Op = "enable calibration loop"
	OpDisableLoop  Op = "disable calibration loop"
	OpEnableCal    Op = "calibration settings"
	OpCheckPhase   Op = "check phase"
	OpTimeSync     Op = "time sync"
	OpPPSDelay     Op = "pps delay"
	OpDSCPower     Op = "dsc power"
	OpDSCStats     Op = "dsc bit statistics"
	OpDSCCorr      Op = "dsc correlation"
	OpTapFilter    Op = "tap filter load"
	OpTapFilter2   Op = "tap filter 2 load"
)

// allOps is the fixed enumeration order used by SupportedOps.
var allOps = []Op{
	OpVersion, OpTime, OpIFLevel,
	OpSamplerPower, OpSamplerStats, OpSamplerCorr,
	OpSynthLock, OpSynthFreq,
	OpRegRead, OpRegReadDec, OpRegWrite,
	OpEnableLoop, OpDisableLoop, OpEnableCal,
	OpCheckPhase, OpTimeSync, OpPPSDelay,
	OpDSCPower, OpDSCStats, OpDSCCorr,
	OpTapFilter, OpTapFilter2,
}

// Transactor performs one serialized command/response exchange.
// Implemented by control.Session; tests substitute canned responses.
type Transactor interface {
	SendCommand(cmd string) (string, error)
}

// Operation implementations. A nil field means the dialect does not
// support the operation.
type (
	VersionFunc      func(t Transactor) (*VersionInfo, error)
	TimeFunc         func(t Transactor) ([]BoardTime, error)
	IFLevelFunc      func(t Transactor, b board.ID) (*IFLevel, error)
	SamplerPowerFunc func(t Transactor, b board.ID) ([]int64, error)
	SamplerStatsFunc func(t Transactor, b board.ID, sampler int) ([]int64, error)
	SamplerCorrFunc  func(t Transactor, b board.ID) ([]int64, error)
	SynthLockFunc    func(t Transactor, b board.ID) (bool, error)
	SynthFreqFunc    func(t Transactor, b board.ID) (*SynthFreq, error)
	RegReadFunc      func(t Transactor, b board.ID, device string, reg int) (*RegValue, error)
	RegReadDecFunc   func(t Transactor, b board.ID, device string, reg int) (int64, error)
	RegWriteFunc     func(t Transactor, b board.ID, device string, reg int, value uint32) (bool, error)
	LoopFunc         func(t Transactor) (string, error)
	EnableCalFunc    func(t Transactor, threshold, gain, offset string) (*CalSettings, error)
	CheckPhaseFunc   func(t Transactor) (bool, error)
	TimeSyncFunc     func(t Transactor, b board.ID) (*TimeSync, error)
	PPSDelayFunc     func(t Transactor, b board.ID) ([]int, error)
	DSCPowerFunc     func(t Transactor, b board.ID) ([]int64, error)
	DSCStatsFunc     func(t Transactor, b board.ID, sampler int) ([]DSCStat, error)
	DSCCorrFunc      func(t Transactor, b board.ID) ([]int64, error)
	TapFilterFunc    func(t Transactor, b board.ID, filterFile string, scaling int) (string, error)
)

// OpSet is the capability set of one dialect.
type OpSet struct {
	Version      VersionFunc
	Time         TimeFunc
	IFLevel      IFLevelFunc
	SamplerPower SamplerPowerFunc
	SamplerStats SamplerStatsFunc
	SamplerCorr  SamplerCorrFunc
	SynthLock    SynthLockFunc
	SynthFreq    SynthFreqFunc
	RegRead      RegReadFunc
	RegReadDec   RegReadDecFunc
	RegWrite     RegWriteFunc
	EnableLoop   LoopFunc
	DisableLoop  LoopFunc
	EnableCal    EnableCalFunc
	CheckPhase   CheckPhaseFunc
	TimeSync     TimeSyncFunc
	PPSDelay     PPSDelayFunc
	DSCPower     DSCPowerFunc
	DSCStats     DSCStatsFunc
	DSCCorr      DSCCorrFunc
	TapFilter    TapFilterFunc
	TapFilter2   TapFilterFunc
}

// Dialect is an immutable named bundle of operation implementations for
// one (mode, version) pair. Extended dialects are additive over the base
// set; they never remove base operations.
type Dialect struct {
	Mode    string
	Version int
	Ops     OpSet
}

func (self *Dialect) String() string {
	if self.Mode == "" {
		return "default"
	}
	return fmt.Sprintf("%s_%d", self.Mode, self.Version)
}

func (self *Dialect) Supports(op Op) bool {
	switch op {
	case OpVersion:
		return self.Ops.Version != nil
	case OpTime:
		return self.Ops.Time != nil
	case OpIFLevel:
		return self.Ops.IFLevel != nil
	case OpSamplerPower:
		return self.Ops.SamplerPower != nil
	case OpSamplerStats:
		return self.Ops.SamplerStats != nil
	case OpSamplerCorr:
		return self.Ops.SamplerCorr != nil
	case OpSynthLock:
		return self.Ops.SynthLock != nil
	case OpSynthFreq:
		return self.Ops.SynthFreq != nil
	case OpRegRead:
		return self.Ops.RegRead != nil
	case OpRegReadDec:
		return self.Ops.RegReadDec != nil
	case OpRegWrite:
		return self.Ops.RegWrite != nil
	case OpEnableLoop:
		return self.Ops.EnableLoop != nil
	case OpDisableLoop:
		return self.Ops.DisableLoop != nil
	case OpEnableCal:
		return self.Ops.EnableCal != nil
	case OpCheckPhase:
		return self.Ops.CheckPhase != nil
	case OpTimeSync:
		return self.Ops.TimeSync != nil
	case OpPPSDelay:
		return self.Ops.PPSDelay != nil
	case OpDSCPower:
		return self.Ops.DSCPower != nil
	case OpDSCStats:
		return self.Ops.DSCStats != nil
	case OpDSCCorr:
		return self.Ops.DSCCorr != nil
	case OpTapFilter:
		return self.Ops.TapFilter != nil
	case OpTapFilter2:
		return self.Ops.TapFilter2 != nil
	}
	return false
}

// SupportedOps lists the capability set. Callers that received the
// default fallback dialect must consult this before relying on
// mode-specific operations.
func (self *Dialect) SupportedOps() []Op {
	ops := make([]Op, 0, len(allOps))
	for _, op := range allOps {
		if self.Supports(op) {
			ops = append(ops, op)
		}
	}
	return ops
}

// UnsupportedOpError reports an operation absent from the resolved
// dialect. It is returned before any I/O is attempted.
type UnsupportedOpError struct {
	Op      Op
	Dialect string
}

func (self UnsupportedOpError) Error() string {
	return fmt.Sprintf("operation %q not supported by dialect %s", string(self.Op), self.Dialect)
}

func IsUnsupportedOp(err error) bool {
	_, ok := errors.Cause(err).(UnsupportedOpError)
	return ok
}

// ParseError reports a response that did not match the operation's
// expected pattern, or a board the device reports as not connected.
type ParseError struct {
	Op     Op
	Reason string
	Raw    string
}

func (self ParseError) Error() string {
	raw := self.Raw
	if len(raw) > 120 {
		raw = raw[:120] + "..."
	}
	if self.Reason != "" {
		return fmt.Sprintf("%s: %s in response %q", string(self.Op), self.Reason, raw)
	}
	return fmt.Sprintf("%s: unexpected response %q", string(self.Op), raw)
}

func IsParse(err error) bool {
	_, ok := errors.Cause(err).(ParseError)
	return ok
}
