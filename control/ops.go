package control

import (
	"github.com/vlbitools/dbbc3/board"
	"github.com/vlbitools/dbbc3/dialect"
)

// Version queries the control software mode and version.
func (self *Session) Version() (v *dialect.VersionInfo, err error) {
	err = self.withDialect(dialect.OpVersion, func(d *dialect.Dialect, t dialect.Transactor) error {
		v, err = d.Ops.Version(t)
		return err
	})
	return v, err
}

// Time reads the time information of all boards.
func (self *Session) Time() (bt []dialect.BoardTime, err error) {
	err = self.withDialect(dialect.OpTime, func(d *dialect.Dialect, t dialect.Transactor) error {
		bt, err = d.Ops.Time(t)
		return err
	})
	return bt, err
}

// IFLevel reads the GCoMo IF module state of one board.
func (self *Session) IFLevel(b board.ID) (lvl *dialect.IFLevel, err error) {
	if err = self.checkBoard(b); err != nil {
		return nil, err
	}
	err = self.withDialect(dialect.OpIFLevel, func(d *dialect.Dialect, t dialect.Transactor) error {
		lvl, err = d.Ops.IFLevel(t, b)
		return err
	})
	return lvl, err
}

// SamplerPower reads the power of all four samplers of one board.
func (self *Session) SamplerPower(b board.ID) (pow []int64, err error) {
	if err = self.checkBoard(b); err != nil {
		return nil, err
	}
	err = self.withDialect(dialect.OpSamplerPower, func(d *dialect.Dialect, t dialect.Transactor) error {
		pow, err = d.Ops.SamplerPower(t, b)
		return err
	})
	return pow, err
}

// SamplerStats reads the 2-bit level counts of one sampler.
func (self *Session) SamplerStats(b board.ID, sampler int) (stats []int64, err error) {
	if err = self.checkBoard(b); err != nil {
		return nil, err
	}
	err = self.withDialect(dialect.OpSamplerStats, func(d *dialect.Dialect, t dialect.Transactor) error {
		stats, err = d.Ops.SamplerStats(t, b, sampler)
		return err
	})
	return stats, err
}

// SamplerCorr reads the cross-correlations between adjacent samplers of
// one board (pairs 0-1, 1-2, 2-3).
func (self *Session) SamplerCorr(b board.ID) (corr []int64, err error) {
	if err = self.checkBoard(b); err != nil {
		return nil, err
	}
	err = self.withDialect(dialect.OpSamplerCorr, func(d *dialect.Dialect, t dialect.Transactor) error {
		corr, err = d.Ops.SamplerCorr(t, b)
		return err
	})
	return corr, err
}

// SynthLock reads the lock state of the synthesizer source serving one
// board.
func (self *Session) SynthLock(b board.ID) (locked bool, err error) {
	if err = self.checkBoard(b); err != nil {
		return false, err
	}
	err = self.withDialect(dialect.OpSynthLock, func(d *dialect.Dialect, t dialect.Transactor) error {
		locked, err = d.Ops.SynthLock(t, b)
		return err
	})
	return locked, err
}

// SynthFreq reads the frequency of the synthesizer serving one board.
func (self *Session) SynthFreq(b board.ID) (f *dialect.SynthFreq, err error) {
	if err = self.checkBoard(b); err != nil {
		return nil, err
	}
	err = self.withDialect(dialect.OpSynthFreq, func(d *dialect.Dialect, t dialect.Transactor) error {
		f, err = d.Ops.SynthFreq(t, b)
		return err
	})
	return f, err
}

// RegRead reads a device register in hex, binary and decimal form.
func (self *Session) RegRead(b board.ID, device string, reg int) (v *dialect.RegValue, err error) {
	if err = self.checkBoard(b); err != nil {
		return nil, err
	}
	err = self.withDialect(dialect.OpRegRead, func(d *dialect.Dialect, t dialect.Transactor) error {
		v, err = d.Ops.RegRead(t, b, device, reg)
		return err
	})
	return v, err
}

// RegReadDec reads the decimal value of a device register.
func (self *Session) RegReadDec(b board.ID, device string, reg int) (v int64, err error) {
	if err = self.checkBoard(b); err != nil {
		return 0, err
	}
	err = self.withDialect(dialect.OpRegReadDec, func(d *dialect.Dialect, t dialect.Transactor) error {
		v, err = d.Ops.RegReadDec(t, b, device, reg)
		return err
	})
	return v, err
}

// RegWrite writes a device register; reports whether the value changed.
func (self *Session) RegWrite(b board.ID, device string, reg int, value uint32) (changed bool, err error) {
	if err = self.checkBoard(b); err != nil {
		return false, err
	}
	err = self.withDialect(dialect.OpRegWrite, func(d *dialect.Dialect, t dialect.Transactor) error {
		changed, err = d.Ops.RegWrite(t, b, device, reg, value)
		return err
	})
	return changed, err
}

// EnableLoop starts the automatic calibration loop.
func (self *Session) EnableLoop() (resp string, err error) {
	err = self.withDialect(dialect.OpEnableLoop, func(d *dialect.Dialect, t dialect.Transactor) error {
		resp, err = d.Ops.EnableLoop(t)
		return err
	})
	return resp, err
}

// DisableLoop stops the automatic calibration loop.
func (self *Session) DisableLoop() (resp string, err error) {
	err = self.withDialect(dialect.OpDisableLoop, func(d *dialect.Dialect, t dialect.Transactor) error {
		resp, err = d.Ops.DisableLoop(t)
		return err
	})
	return resp, err
}

// EnableCal switches threshold/gain/offset calibration for the loop.
func (self *Session) EnableCal(threshold, gain, offset string) (cs *dialect.CalSettings, err error) {
	err = self.withDialect(dialect.OpEnableCal, func(d *dialect.Dialect, t dialect.Transactor) error {
		cs, err = d.Ops.EnableCal(t, threshold, gain, offset)
		return err
	})
	return cs, err
}

// CheckPhase reports whether all samplers of all boards are in sync.
func (self *Session) CheckPhase() (ok bool, err error) {
	err = self.withDialect(dialect.OpCheckPhase, func(d *dialect.Dialect, t dialect.Transactor) error {
		ok, err = d.Ops.CheckPhase(t)
		return err
	})
	return ok, err
}

// TimeSync synchronizes the timer of one board to the 1PPS source.
func (self *Session) TimeSync(b board.ID) (ts *dialect.TimeSync, err error) {
	if err = self.checkBoard(b); err != nil {
		return nil, err
	}
	err = self.withDialect(dialect.OpTimeSync, func(d *dialect.Dialect, t dialect.Transactor) error {
		ts, err = d.Ops.TimeSync(t, b)
		return err
	})
	return ts, err
}

// PPSDelay reads internal vs external PPS delays in nanoseconds.
// Pass board.All for every board.
func (self *Session) PPSDelay(b board.ID) (delays []int, err error) {
	if b != board.All {
		if err = self.checkBoard(b); err != nil {
			return nil, err
		}
	}
	err = self.withDialect(dialect.OpPPSDelay, func(d *dialect.Dialect, t dialect.Transactor) error {
		delays, err = d.Ops.PPSDelay(t, b)
		return err
	})
	return delays, err
}

// DSCPower reads the DSC total power of all four samplers of one board.
func (self *Session) DSCPower(b board.ID) (values []int64, err error) {
	if err = self.checkBoard(b); err != nil {
		return nil, err
	}
	err = self.withDialect(dialect.OpDSCPower, func(d *dialect.Dialect, t dialect.Transactor) error {
		values, err = d.Ops.DSCPower(t, b)
		return err
	})
	return values, err
}

// DSCStats reads the DSC statistics of one board and sampler.
func (self *Session) DSCStats(b board.ID, sampler int) (stats []dialect.DSCStat, err error) {
	if err = self.checkBoard(b); err != nil {
		return nil, err
	}
	err = self.withDialect(dialect.OpDSCStats, func(d *dialect.Dialect, t dialect.Transactor) error {
		stats, err = d.Ops.DSCStats(t, b, sampler)
		return err
	})
	return stats, err
}

// DSCCorr reads the DSC sampler cross-correlations of one board.
func (self *Session) DSCCorr(b board.ID) (corr []int64, err error) {
	if err = self.checkBoard(b); err != nil {
		return nil, err
	}
	err = self.withDialect(dialect.OpDSCCorr, func(d *dialect.Dialect, t dialect.Transactor) error {
		corr, err = d.Ops.DSCCorr(t, b)
		return err
	})
	return corr, err
}

// TapFilter loads the first tap filter file (OCT modes).
func (self *Session) TapFilter(b board.ID, filterFile string, scaling int) (resp string, err error) {
	if err = self.checkBoard(b); err != nil {
		return "", err
	}
	err = self.withDialect(dialect.OpTapFilter, func(d *dialect.Dialect, t dialect.Transactor) error {
		resp, err = d.Ops.TapFilter(t, b, filterFile, scaling)
		return err
	})
	return resp, err
}

// TapFilter2 loads the second tap filter file (OCT modes).
func (self *Session) TapFilter2(b board.ID, filterFile string, scaling int) (resp string, err error) {
	if err = self.checkBoard(b); err != nil {
		return "", err
	}
	err = self.withDialect(dialect.OpTapFilter2, func(d *dialect.Dialect, t dialect.Transactor) error {
		resp, err = d.Ops.TapFilter2(t, b, filterFile, scaling)
		return err
	})
	return resp, err
}
