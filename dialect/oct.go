package dialect

import (
	"fmt"

	"github.com/juju/errors"

	"github.com/vlbitools/dbbc3/board"
)

func init() {
	builtin.Register(newOCT("OCT_D", 110))
}

// newOCT extends the base set with the tap filter loading specific to
// the OCT (direct octave sampling) modes.
func newOCT(mode string, version int) *Dialect {
	d := newBase(mode, version)
	d.Ops.TapFilter = tapOp("tap")
	d.Ops.TapFilter2 = tapOp("tap2")
	return d
}

func tapOp(cmd string) TapFilterFunc {
	return func(t Transactor, b board.ID, filterFile string, scaling int) (string, error) {
		if filterFile == "" {
			return "", errors.NotValidf("empty filter file")
		}
		raw, err := t.SendCommand(fmt.Sprintf("%s=%d,%s,%d", cmd, b.WireNumber(), filterFile, scaling))
		if err != nil {
			return "", errors.Trace(err)
		}
		return raw, nil
	}
}
