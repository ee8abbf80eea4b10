// Package marker parses the body of an agmd marker, the text between
// "<agmd:" and ">":
//
//	2025-03-01;start=02;due=04
//	start=2025-01-01;due=2025-03-01
//
// An optional leading base fragment supplies the defaults each keyed
// fragment is merged with.
package marker

import (
	"fmt"
	"regexp"
	"time"

	"github.com/pkg/errors"

	"github.com/harrisonrobin/agmd/pkg/fragment"
	"github.com/harrisonrobin/agmd/pkg/model"
	"github.com/harrisonrobin/agmd/pkg/resolve"
)

// Scheme prefixes a marker link destination.
const Scheme = "agmd:"

const (
	KeyStart     = "start"
	KeyDue       = "due"
	KeyCompleted = "completed"
)

var keyPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_-]*)=`)

// ParseError reports a marker body that does not follow the grammar. Raw is
// the body exactly as written.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed marker %q: %v", e.Raw, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Body is the syntactic content of a marker. Nil fields were not given.
type Body struct {
	Base      *fragment.Fragment
	Start     *fragment.Fragment
	Due       *fragment.Fragment
	Completed *fragment.Fragment
}

// ParseBody parses a full marker body. Unknown keys must still carry a valid
// fragment but are dropped. A repeated key keeps its last value.
func ParseBody(raw string) (Body, error) {
	if base, rest, err := fragment.Parse(raw); err == nil && (rest == "" || rest[0] == ';') {
		body := Body{Base: &base}
		if err := body.parsePairs(rest, true); err != nil {
			return Body{}, &ParseError{Raw: raw, Err: err}
		}
		return body, nil
	}

	// A key such as "Tag" starts like a time fragment, so the key-value form
	// is tried whenever the base form did not fit.
	var body Body
	if err := body.parsePairs(raw, false); err != nil {
		return Body{}, &ParseError{Raw: raw, Err: err}
	}
	return body, nil
}

// parsePairs reads `key=fragment` groups separated by ';'. With leading set
// every group, including the first, is preceded by ';'.
func (b *Body) parsePairs(s string, leading bool) error {
	for first := true; s != ""; first = false {
		if leading || !first {
			if s[0] != ';' {
				return errors.Wrapf(fragment.ErrSyntax, "expected ';' at %q", s)
			}
			s = s[1:]
		}
		m := keyPattern.FindStringSubmatch(s)
		if m == nil {
			return errors.Wrapf(fragment.ErrSyntax, "expected key=value at %q", s)
		}
		key := m[1]
		f, rest, err := fragment.Parse(s[len(m[0]):])
		if err != nil {
			return errors.Wrapf(err, "value of %q", key)
		}
		b.assign(key, f)
		s = rest
	}
	return nil
}

func (b *Body) assign(key string, f fragment.Fragment) {
	switch key {
	case KeyStart:
		b.Start = &f
	case KeyDue:
		b.Due = &f
	case KeyCompleted:
		b.Completed = &f
	}
}

// Attributes resolves the body. start is a range start, due a range end and
// completed follows the completion policy for the checkbox state.
func (b Body) Attributes(done bool, loc *time.Location) model.Attributes {
	var attrs model.Attributes
	if t, ok := resolve.Resolve(resolve.Merge(b.Start, b.Base), resolve.RangeStart, loc); ok {
		attrs.Start = &t
	}
	if t, ok := resolve.Resolve(resolve.Merge(b.Due, b.Base), resolve.RangeEnd, loc); ok {
		attrs.Due = &t
	}
	// A done item without a completed key completes at its due or start.
	var completed resolve.Fields
	if b.Completed != nil {
		completed = resolve.Merge(b.Completed, b.Base)
	}
	completion := resolve.Completion{Done: done, Due: attrs.Due, Start: attrs.Start}
	if t, ok := completion.Resolve(completed, loc); ok {
		attrs.Completed = &t
	}
	return attrs
}

// Parse parses and resolves a marker body for an item with the given
// checkbox state. A syntax failure is a *ParseError and yields no attributes;
// values that do not resolve are simply left nil.
func Parse(raw string, done bool, loc *time.Location) (model.Attributes, error) {
	body, err := ParseBody(raw)
	if err != nil {
		return model.Attributes{}, err
	}
	return body.Attributes(done, loc), nil
}
