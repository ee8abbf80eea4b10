// Package fragment parses the compact, possibly truncated date-time literals
// carried by agmd markers, such as "2025-03-01", "03-01T10:30" or a bare "04".
//
// A Fragment keeps only the precision present in the text. No calendar
// validation happens here; see package resolve.
package fragment

import (
	"fmt"
	"strings"
)

// Level is one field of a date-time, from the coarsest to the finest.
type Level int

const (
	Year Level = iota
	Month
	Day
	Hour
	Minute
	Second
)

// NumLevels is the number of levels from Year to Second.
const NumLevels = 6

func (l Level) String() string {
	switch l {
	case Year:
		return "year"
	case Month:
		return "month"
	case Day:
		return "day"
	case Hour:
		return "hour"
	case Minute:
		return "minute"
	case Second:
		return "second"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Kind tells which level a fragment is rooted at.
type Kind uint8

const (
	// KindYear is rooted at the year: yyyy, yyyy-mm, yyyy-mm-dd[Thh[:mm[:ss]]].
	KindYear Kind = iota + 1
	// KindMonth is rooted at the month: mm-dd[Thh[:mm[:ss]]].
	KindMonth
	// KindDay is rooted at the day: ddT[hh[:mm[:ss]]].
	KindDay
	// KindTime only carries a time of day: T[hh[:mm[:ss]]]. It may be empty.
	KindTime
	// KindMonthOrDay is a bare two digit value. Whether it is a month or a day
	// is only known once it is merged with another fragment.
	KindMonthOrDay
)

func (k Kind) String() string {
	switch k {
	case KindYear:
		return "year"
	case KindMonth:
		return "month"
	case KindDay:
		return "day"
	case KindTime:
		return "time"
	case KindMonthOrDay:
		return "month-or-day"
	}
	return "none"
}

func (k Kind) root() Level {
	switch k {
	case KindMonth:
		return Month
	case KindDay:
		return Day
	case KindTime:
		return Hour
	}
	return Year
}

// Fragment is a parsed date-time literal. values[0:n] hold the fields from
// the kind's root level downward, without gaps.
//
// The zero Fragment is "no fragment": every accessor reports unset.
type Fragment struct {
	kind   Kind
	n      int
	values [NumLevels]int
}

// FromYear builds a year-rooted fragment. rest continues with month, day,
// hour, minute and second.
func FromYear(year int, rest ...int) Fragment {
	return build(KindYear, append([]int{year}, rest...))
}

// FromMonth builds a month-rooted fragment: month, then day, hour, minute, second.
func FromMonth(month int, rest ...int) Fragment {
	return build(KindMonth, append([]int{month}, rest...))
}

// FromDay builds a day-rooted fragment: day, then hour, minute, second.
func FromDay(day int, rest ...int) Fragment {
	return build(KindDay, append([]int{day}, rest...))
}

// FromTime builds a time-only fragment. With no values it is the empty "T".
func FromTime(rest ...int) Fragment {
	return build(KindTime, rest)
}

// FromMonthOrDay builds the ambiguous bare two digit fragment.
func FromMonthOrDay(v int) Fragment {
	f := Fragment{kind: KindMonthOrDay, n: 1}
	f.values[0] = v
	return f
}

func build(kind Kind, vals []int) Fragment {
	if max := NumLevels - int(kind.root()); len(vals) > max {
		panic(fmt.Sprintf("fragment: %d values overflow a %s fragment", len(vals), kind))
	}
	f := Fragment{kind: kind, n: len(vals)}
	copy(f.values[:], vals)
	return f
}

// Kind returns the fragment's kind, or 0 for the zero Fragment.
func (f Fragment) Kind() Kind {
	return f.kind
}

// IsZero reports whether f is the zero Fragment.
func (f Fragment) IsZero() bool {
	return f.kind == 0
}

// Field returns the value at level l, or false when the literal did not
// specify it.
func (f Fragment) Field(l Level) (int, bool) {
	if f.kind == 0 || f.kind == KindMonthOrDay {
		return 0, false
	}
	i := int(l) - int(f.kind.root())
	if i < 0 || i >= f.n {
		return 0, false
	}
	return f.values[i], true
}

func (f Fragment) Year() (int, bool)   { return f.Field(Year) }
func (f Fragment) Month() (int, bool)  { return f.Field(Month) }
func (f Fragment) Day() (int, bool)    { return f.Field(Day) }
func (f Fragment) Hour() (int, bool)   { return f.Field(Hour) }
func (f Fragment) Minute() (int, bool) { return f.Field(Minute) }
func (f Fragment) Second() (int, bool) { return f.Field(Second) }

// MonthOrDay returns the value of a KindMonthOrDay fragment.
func (f Fragment) MonthOrDay() (int, bool) {
	if f.kind != KindMonthOrDay {
		return 0, false
	}
	return f.values[0], true
}

// String renders the fragment in its canonical literal form.
func (f Fragment) String() string {
	switch f.kind {
	case 0:
		return ""
	case KindMonthOrDay:
		return fmt.Sprintf("%02d", f.values[0])
	}

	var b strings.Builder
	root := f.kind.root()
	if root == Hour {
		b.WriteByte('T')
	}
	for i := 0; i < f.n; i++ {
		l := root + Level(i)
		switch {
		case l == Year:
			fmt.Fprintf(&b, "%04d", f.values[i])
			continue
		case l == Hour && root != Hour:
			b.WriteByte('T')
		case l == Month || l == Day:
			if i > 0 {
				b.WriteByte('-')
			}
		case l > Hour:
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%02d", f.values[i])
	}
	// "ddT" needs its separator even when no time follows.
	if f.kind == KindDay && f.n == 1 {
		b.WriteByte('T')
	}
	return b.String()
}
