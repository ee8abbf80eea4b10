package resolve

import (
	"time"

	"github.com/harrisonrobin/agmd/pkg/fragment"
)

// Role selects which boundary of the period implied by a literal to compute.
type Role int

const (
	// RangeStart is the inclusive lower bound: the first instant of the period.
	RangeStart Role = iota
	// RangeEnd is the exclusive upper bound: the first instant of the
	// following period at the same precision.
	RangeEnd
)

func (r Role) String() string {
	if r == RangeEnd {
		return "end"
	}
	return "start"
}

// Resolve builds the instant for role in loc. It is false when no year is
// known or when a field is outside the calendar (month 13, April 31, hour 24,
// a wall time skipped by a DST change).
//
// A second precise literal has no range: both roles give the same instant.
func Resolve(fs Fields, role Role, loc *time.Location) (time.Time, bool) {
	prec, ok := fs.Precision()
	if !ok {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}

	v := fs.values
	year, month, day := v[fragment.Year], 1, 1
	if prec >= fragment.Month {
		month = v[fragment.Month]
	}
	if prec >= fragment.Day {
		day = v[fragment.Day]
	}
	start, ok := instant(loc, year, month, day, v[fragment.Hour], v[fragment.Minute], v[fragment.Second])
	if !ok {
		return time.Time{}, false
	}
	if role == RangeStart {
		return start, true
	}

	switch prec {
	case fragment.Year:
		return instant(loc, year+1, 1, 1, 0, 0, 0)
	case fragment.Month:
		if month == 12 {
			return instant(loc, year+1, 1, 1, 0, 0, 0)
		}
		return instant(loc, year, month+1, 1, 0, 0, 0)
	case fragment.Day:
		next := time.Date(year, time.Month(month), day+1, 0, 0, 0, 0, time.UTC)
		return instant(loc, next.Year(), int(next.Month()), next.Day(), 0, 0, 0)
	case fragment.Hour:
		return start.Add(time.Hour), true
	case fragment.Minute:
		return start.Add(time.Minute), true
	}
	return start, true
}

// instant builds a wall clock time in loc. It refuses any value time.Date
// would have to normalize, and a wall time that occurs twice in loc.
func instant(loc *time.Location, year, month, day, hour, minute, second int) (time.Time, bool) {
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day ||
		t.Hour() != hour || t.Minute() != minute || t.Second() != second {
		return time.Time{}, false
	}
	if repeated(t) {
		return time.Time{}, false
	}
	return t, true
}

// repeated reports whether the wall clock of t also names another instant,
// as it does in the hour a zone turns its clocks back. Offsets in force half
// a day either side are the only candidates.
func repeated(t time.Time) bool {
	_, offset := t.Zone()
	for _, near := range []time.Time{t.Add(-12 * time.Hour), t.Add(12 * time.Hour)} {
		_, other := near.Zone()
		if other == offset {
			continue
		}
		if u := t.Add(time.Duration(offset-other) * time.Second); sameWall(t, u) {
			return true
		}
	}
	return false
}

func sameWall(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ah, amin, as := a.Clock()
	bh, bmin, bs := b.Clock()
	return ay == by && am == bm && ad == bd && ah == bh && amin == bmin && as == bs
}

// Completion is the resolution policy of the completed attribute. It
// depends on the checkbox state and falls back to the already resolved due
// and start instants.
type Completion struct {
	Done  bool
	Due   *time.Time
	Start *time.Time
}

// Resolve returns the completion instant. An undone item is never
// completed, whatever its literal says. A done item without a usable literal
// completes at its due instant, or else at its start.
func (c Completion) Resolve(fs Fields, loc *time.Location) (time.Time, bool) {
	if !c.Done {
		return time.Time{}, false
	}
	if fs.IsEmpty() {
		switch {
		case c.Due != nil:
			return *c.Due, true
		case c.Start != nil:
			return *c.Start, true
		}
		return time.Time{}, false
	}
	return Resolve(fs, RangeEnd, loc)
}
