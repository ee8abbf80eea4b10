// Package resolve merges agmd fragments and turns them into concrete instants.
package resolve

import (
	"github.com/harrisonrobin/agmd/pkg/fragment"
)

// Fields are the effective field values of a merged fragment pair.
//
// Levels are filled from Year downward and a level is only set when every
// coarser level is set: "no day without a month". The only way to add a
// level is extend, so a gap cannot be represented.
type Fields struct {
	values [fragment.NumLevels]int
	depth  int
}

// Get returns the value at level l.
func (fs Fields) Get(l fragment.Level) (int, bool) {
	if l < fragment.Year || int(l) >= fs.depth {
		return 0, false
	}
	return fs.values[l], true
}

// Precision returns the finest level set. It is false when no year is known.
func (fs Fields) Precision() (fragment.Level, bool) {
	if fs.depth == 0 {
		return 0, false
	}
	return fragment.Level(fs.depth - 1), true
}

// IsEmpty reports whether no level is set.
func (fs Fields) IsEmpty() bool {
	return fs.depth == 0
}

func (fs *Fields) extend(v int) {
	fs.values[fs.depth] = v
	fs.depth++
}

// Of returns the fields of a single fragment, as if it were merged with
// nothing.
func Of(f fragment.Fragment) Fields {
	return collect(f, fragment.Fragment{})
}

// Merge combines an explicit per-attribute fragment with the marker's
// shared base. For each level relative wins over base.
//
// A bare two digit value on either side is read as a day when the other
// side has a year and a month, and as a month when it only has a year.
// Without a year on the other side it stays ambiguous and the pair has no
// anchor, so nothing resolves.
func Merge(relative, base *fragment.Fragment) Fields {
	switch {
	case relative == nil && base == nil:
		return Fields{}
	case base == nil:
		return Of(*relative)
	case relative == nil:
		return Of(*base)
	}
	return collect(disambiguate(*relative, *base), disambiguate(*base, *relative))
}

func disambiguate(f, other fragment.Fragment) fragment.Fragment {
	v, ok := f.MonthOrDay()
	if !ok {
		return f
	}
	if _, ok := other.Year(); !ok {
		return f
	}
	if _, ok := other.Month(); ok {
		return fragment.FromDay(v)
	}
	return fragment.FromMonth(v)
}

func collect(primary, fallback fragment.Fragment) Fields {
	var fs Fields
	for l := fragment.Year; l <= fragment.Second; l++ {
		v, ok := primary.Field(l)
		if !ok {
			v, ok = fallback.Field(l)
		}
		if !ok {
			break
		}
		fs.extend(v)
	}
	return fs
}
