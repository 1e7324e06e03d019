// Package verdate parses the DBBC3 firmware minor-version date string.
// Both the command channel ("version" reply) and the multicast header
// carry it in the same human-readable form, e.g. "February 18th 2020".
package verdate

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
)

var ordinalRe = regexp.MustCompile(`(\d+)(st|nd|rd|th)`)

// Normalize strips English ordinal suffixes and zero-pads the day:
// "October 19th 2021" -> "October 19 2021", "July 7th 2019" -> "July 07 2019".
func Normalize(s string) string {
	return ordinalRe.ReplaceAllStringFunc(s, func(m string) string {
		digits := strings.TrimRight(m, "sthndrd")
		if len(digits) < 2 {
			digits = "0" + digits
		}
		return digits
	})
}

// Parse converts the minor-version date string to its numeric YYMMDD
// form, e.g. "October 19th 2021" -> 211019.
func Parse(s string) (int, error) {
	amended := strings.TrimSpace(Normalize(s))
	t, err := time.Parse("January 02 2006", amended)
	if err != nil {
		// day without zero padding, e.g. "July 3 2019"
		t, err = time.Parse("January 2 2006", amended)
	}
	if err != nil {
		return 0, errors.Annotatef(err, "minor version date %q", s)
	}
	n, err := strconv.Atoi(t.Format("060102"))
	if err != nil {
		return 0, errors.Trace(err)
	}
	return n, nil
}
