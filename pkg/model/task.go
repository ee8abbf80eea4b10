package model

import (
	"time"

	"github.com/pkg/errors"
)

// ErrStartAfterDue flags attributes that parse and resolve but contradict
// each other.
var ErrStartAfterDue = errors.New("start is after due")

// Attributes are the instants resolved from one agmd marker. A nil field is
// unspecified.
type Attributes struct {
	Start     *time.Time `json:"start,omitempty" yaml:"start,omitempty"`
	Due       *time.Time `json:"due,omitempty" yaml:"due,omitempty"`
	Completed *time.Time `json:"completed,omitempty" yaml:"completed,omitempty"`
}

// IsCompleted reports whether a completion instant was resolved.
func (a Attributes) IsCompleted() bool {
	return a.Completed != nil
}

// Validate checks the attributes against each other.
func (a Attributes) Validate() error {
	if a.Start != nil && a.Due != nil && a.Start.After(*a.Due) {
		return errors.Wrapf(ErrStartAfterDue, "start %s, due %s",
			a.Start.Format(time.RFC3339), a.Due.Format(time.RFC3339))
	}
	return nil
}

// Source locates a todo in the scanned tree.
type Source struct {
	Path string `json:"path" yaml:"path"`
	Line int    `json:"line" yaml:"line"`
}

// Todo is a checklist item carrying an agmd marker.
type Todo struct {
	ID      string `json:"id" yaml:"id"`
	Summary string `json:"summary" yaml:"summary"`
	Done    bool   `json:"done" yaml:"done"`
	// Raw is the marker body as written, kept for diagnostics.
	Raw string `json:"raw" yaml:"raw"`
	// Attributes is nil when Raw failed to parse.
	Attributes *Attributes `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Source     Source      `json:"source" yaml:"source"`
}

// Malformed reports whether the marker failed to parse.
func (t Todo) Malformed() bool {
	return t.Attributes == nil
}
