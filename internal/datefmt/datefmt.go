// Package datefmt builds the fixed-width date boundaries used to select
// source objects by last-modified time.
//
// A boundary is "YYYY-MM-DD HH:MM:SS". Every component is zero-padded and the
// width never changes, so comparing two boundaries as strings gives the same
// answer as comparing the instants they name. Range relies on that.
package datefmt

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the boundary format.
const Layout = "2006-01-02 15:04:05"

// Default is the parameter value that asks for the today/tomorrow window.
const Default = "Default"

// ErrInvalidInput reports a zero timestamp or a malformed boundary.
var ErrInvalidInput = errors.New("datefmt: invalid input")

// Formatter formats timestamps in a fixed location.
type Formatter struct {
	loc *time.Location
}

// New returns a Formatter for loc. A nil loc means UTC.
func New(loc *time.Location) Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return Formatter{loc: loc}
}

// Location reports the zone boundaries are expressed in.
func (f Formatter) Location() *time.Location {
	if f.loc == nil {
		return time.UTC
	}
	return f.loc
}

// Format renders t as a boundary. With truncate set, the time of day is
// dropped and dayOffset calendar days are added; without it, t is rendered
// as-is and dayOffset is ignored.
func (f Formatter) Format(t time.Time, dayOffset int, truncate bool) (string, error) {
	if t.IsZero() {
		return "", fmt.Errorf("%w: zero timestamp", ErrInvalidInput)
	}
	t = t.In(f.Location())
	if truncate {
		y, m, d := t.Date()
		t = time.Date(y, m, d+dayOffset, 0, 0, 0, 0, t.Location())
	}
	return t.Format(Layout), nil
}

// Format is Formatter.Format in UTC.
func Format(t time.Time, dayOffset int, truncate bool) (string, error) {
	return New(time.UTC).Format(t, dayOffset, truncate)
}

// ParseBoundary checks that s is a well-formed boundary and returns it
// unchanged. Anything else would break string ordering.
func ParseBoundary(s string) (string, error) {
	if len(s) != len(Layout) {
		return "", fmt.Errorf("%w: boundary %q is not %q", ErrInvalidInput, s, Layout)
	}
	if _, err := time.Parse(Layout, s); err != nil {
		return "", fmt.Errorf("%w: boundary %q: %v", ErrInvalidInput, s, err)
	}
	return s, nil
}

// Range is the half-open interval [Begin, End).
type Range struct {
	Begin string
	End   string
}

// Contains reports whether boundary b lies in the range.
func (r Range) Contains(b string) bool {
	return b >= r.Begin && b < r.End
}

func (r Range) String() string {
	return "[" + r.Begin + ", " + r.End + ")"
}

// ResolveRange turns job parameters into a Range. Default for begin means
// today at midnight and Default for end means tomorrow at midnight, both
// relative to now.
func (f Formatter) ResolveRange(begin, end string, now time.Time) (Range, error) {
	var err error
	if begin == Default {
		begin, err = f.Format(now, 0, true)
	} else {
		begin, err = ParseBoundary(begin)
	}
	if err != nil {
		return Range{}, err
	}

	if end == Default {
		end, err = f.Format(now, 1, true)
	} else {
		end, err = ParseBoundary(end)
	}
	if err != nil {
		return Range{}, err
	}

	if begin > end {
		return Range{}, fmt.Errorf("%w: begin %q is after end %q", ErrInvalidInput, begin, end)
	}
	return Range{Begin: begin, End: end}, nil
}
