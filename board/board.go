// Package board maps between the DBBC3 core board forms: the numeric
// index starting at 0, the letter label starting at A, and the
// GCoMo synthesizer/source pair serving the board.
package board

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// ID is the canonical board identity: 0 for board A, 1 for B and so on.
// Valid range is [0, numBoards) where numBoards is fixed per session.
type ID int

// All selects every board in operations that accept an optional board.
const All ID = -1

type OutOfRangeError struct {
	Input     string
	NumBoards int
}

func (self OutOfRangeError) Error() string {
	return fmt.Sprintf("board %q out of range 0-%d (A-%s)",
		self.Input, self.NumBoards-1, ID(self.NumBoards-1).Label())
}

func IsOutOfRange(err error) bool {
	_, ok := errors.Cause(err).(OutOfRangeError)
	return ok
}

// Parse accepts a board given as digits ("0", "3") or a single letter
// ("A", "d"), case-insensitive. The result is checked against numBoards
// before anything touches the wire.
func Parse(input string, numBoards int) (ID, error) {
	s := strings.ToUpper(strings.TrimSpace(input))
	oor := OutOfRangeError{Input: input, NumBoards: numBoards}

	var b ID
	switch {
	case s == "":
		return 0, oor
	case isDigits(s):
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, oor
		}
		b = ID(n)
	case len(s) == 1 && s[0] >= 'A' && s[0] <= 'Z':
		b = ID(s[0] - 'A')
	default:
		return 0, oor
	}
	if !b.Valid(numBoards) {
		return 0, oor
	}
	return b, nil
}

// ParseAny accepts a board as int or string, the two forms callers
// supply in practice.
func ParseAny(v interface{}, numBoards int) (ID, error) {
	switch x := v.(type) {
	case int:
		return Parse(strconv.Itoa(x), numBoards)
	case ID:
		return Parse(strconv.Itoa(int(x)), numBoards)
	case string:
		return Parse(x, numBoards)
	}
	return 0, errors.NotValidf("board type %T", v)
}

// MustParse is Parse for compile-time constants in tests and examples.
func MustParse(input string, numBoards int) ID {
	b, err := Parse(input, numBoards)
	if err != nil {
		panic(err)
	}
	return b
}

func (self ID) Valid(numBoards int) bool { return self >= 0 && int(self) < numBoards }

// Label returns the board letter, "A" for 0. Total for any valid ID.
func (self ID) Label() string { return string(rune('A' + self)) }

// WireNumber is the 1-based board index expected by the device in
// core3h/adb3l command addressing.
func (self ID) WireNumber() int { return int(self) + 1 }

// Synthesizer returns the GCoMo synthesizer serving this board and
// which of its two output sources. Boards A,B share synthesizer 1
// (sources 1,2), boards C,D share synthesizer 2, and so on.
func (self ID) Synthesizer() (synth, source int) {
	return int(self)/2 + 1, int(self)%2 + 1
}

func (self ID) String() string {
	if self == All {
		return "all"
	}
	return self.Label()
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
