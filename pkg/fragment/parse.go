package fragment

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrSyntax is wrapped by every parse failure.
var ErrSyntax = errors.New("fragment syntax error")

// Patterns are anchored and tried in order; the first match wins.
var (
	yearMonthDayPattern = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)
	yearMonthPattern    = regexp.MustCompile(`^(\d{4})-(\d{2})`)
	monthDayPattern     = regexp.MustCompile(`^(\d{2})-(\d{2})`)
	yearPattern         = regexp.MustCompile(`^(\d{4})`)
	twoDigitPattern     = regexp.MustCompile(`^(\d{2})`)
	// T, T21, T21:, T21:00, T21:00:, T21:00:05
	timePattern = regexp.MustCompile(`^T(?:(\d{2})(?::(?:(\d{2})(?::(\d{2})?)?)?)?)?`)
)

// Parse reads one fragment from the head of s and returns it together with
// the unconsumed remainder.
func Parse(s string) (Fragment, string, error) {
	if m := yearMonthDayPattern.FindStringSubmatch(s); m != nil {
		f, rest := withTime(KindYear, atoi(m[1:]), s[len(m[0]):])
		return f, rest, nil
	}
	if m := yearMonthPattern.FindStringSubmatch(s); m != nil {
		return build(KindYear, atoi(m[1:])), s[len(m[0]):], nil
	}
	if m := monthDayPattern.FindStringSubmatch(s); m != nil {
		f, rest := withTime(KindMonth, atoi(m[1:]), s[len(m[0]):])
		return f, rest, nil
	}
	if m := yearPattern.FindStringSubmatch(s); m != nil {
		return build(KindYear, atoi(m[1:])), s[len(m[0]):], nil
	}
	if m := twoDigitPattern.FindStringSubmatch(s); m != nil {
		rest := s[len(m[0]):]
		// A time can only follow a day, so "21T10" is day 21 at 10 o'clock.
		if strings.HasPrefix(rest, "T") {
			f, rest := withTime(KindDay, atoi(m[1:]), rest)
			return f, rest, nil
		}
		return FromMonthOrDay(atoi(m[1:])[0]), rest, nil
	}
	if vals, rest, ok := parseTime(s); ok {
		return build(KindTime, vals), rest, nil
	}
	return Fragment{}, s, errors.Wrapf(ErrSyntax, "no fragment at %q", s)
}

// ParseComplete parses s as exactly one fragment.
func ParseComplete(s string) (Fragment, error) {
	f, rest, err := Parse(s)
	if err != nil {
		return Fragment{}, err
	}
	if rest != "" {
		return Fragment{}, errors.Wrapf(ErrSyntax, "unexpected %q after %q", rest, s[:len(s)-len(rest)])
	}
	return f, nil
}

func withTime(kind Kind, vals []int, s string) (Fragment, string) {
	if t, rest, ok := parseTime(s); ok {
		return build(kind, append(vals, t...)), rest
	}
	return build(kind, vals), s
}

func parseTime(s string) ([]int, string, bool) {
	m := timePattern.FindStringSubmatch(s)
	if m == nil {
		return nil, s, false
	}
	var vals []int
	for _, g := range m[1:] {
		if g == "" {
			break
		}
		vals = append(vals, atoi([]string{g})[0])
	}
	return vals, s[len(m[0]):], true
}

// atoi converts digit groups already validated by a pattern.
func atoi(groups []string) []int {
	vals := make([]int, len(groups))
	for i, g := range groups {
		vals[i], _ = strconv.Atoi(g)
	}
	return vals
}
