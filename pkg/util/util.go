package util

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/agmd/pkg/agenda"
	"github.com/harrisonrobin/agmd/pkg/model"
)

const (
	// PropertyTodoID is the private extended property tying an event to its
	// todo.
	PropertyTodoID = "agmd_id"

	PrefixCompleted = "✓"
	PrefixOverdue   = "!"
	PrefixActive    = "‣"

	// DefaultDuration is the length given to a timed event with a single
	// bound.
	DefaultDuration = 30 * time.Minute

	dateLayout = "2006-01-02"
)

var (
	ErrNoDates = errors.New("todo has no dates")

	todoIDPattern = regexp.MustCompile(`ID: ([a-f0-9\-]+)`)
)

// EventOptions carry what a conversion needs besides the todo itself.
type EventOptions struct {
	Now      time.Time
	Location *time.Location
	ColorID  string
}

// Span returns the event interval for attrs. Start and due are used as is.
// A lone bound at local midnight spans a whole day, any other lone bound
// DefaultDuration. A done todo without either falls back to its completion.
// allDay is set when both ends are local midnights.
func Span(attrs model.Attributes, loc *time.Location) (start, end time.Time, allDay bool, err error) {
	if loc == nil {
		loc = time.Local
	}
	if err := attrs.Validate(); err != nil {
		return time.Time{}, time.Time{}, false, err
	}

	switch {
	case attrs.Start != nil && attrs.Due != nil:
		start, end = attrs.Start.In(loc), attrs.Due.In(loc)
	case attrs.Start != nil:
		start = attrs.Start.In(loc)
		if isMidnight(start) {
			end = start.AddDate(0, 0, 1)
		} else {
			end = start.Add(DefaultDuration)
		}
	case attrs.Due != nil || attrs.Completed != nil:
		bound := attrs.Due
		if bound == nil {
			bound = attrs.Completed
		}
		end = bound.In(loc)
		if isMidnight(end) {
			start = end.AddDate(0, 0, -1)
		} else {
			start = end.Add(-DefaultDuration)
		}
	default:
		return time.Time{}, time.Time{}, false, ErrNoDates
	}

	// A second precise marker resolves to a single instant.
	if !end.After(start) {
		end = start.Add(DefaultDuration)
	}
	return start, end, isMidnight(start) && isMidnight(end), nil
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

// Prefix returns the summary marker for a todo's status.
func Prefix(status agenda.Status) string {
	switch status {
	case agenda.Completed:
		return PrefixCompleted
	case agenda.Overdue:
		return PrefixOverdue
	case agenda.Active, agenda.DueToday:
		return PrefixActive
	}
	return ""
}

// ConvertTodoToCalendarEvent builds the calendar event mirroring todo.
func ConvertTodoToCalendarEvent(todo *model.Todo, opts EventOptions) (*calendar.Event, error) {
	if todo == nil {
		return nil, errors.New("could not convert nil todo")
	}
	if todo.Malformed() {
		return nil, errors.Errorf("todo %s has a malformed marker %q", todo.ID, todo.Raw)
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	start, end, allDay, err := Span(*todo.Attributes, opts.Location)
	if err != nil {
		return nil, errors.Wrapf(err, "todo %s", todo.ID)
	}

	status := agenda.Classify(*todo, opts.Now, opts.Location)
	summary := todo.Summary
	if prefix := Prefix(status); prefix != "" {
		summary = prefix + " " + todo.Summary
	}

	var desc strings.Builder
	fmt.Fprintf(&desc, "Status: %s\n", status)
	fmt.Fprintf(&desc, "File: %s:%d\n", todo.Source.Path, todo.Source.Line)
	fmt.Fprintf(&desc, "Marker: <agmd:%s>\n", todo.Raw)
	fmt.Fprintf(&desc, "ID: %s\n", todo.ID)

	event := &calendar.Event{
		Summary:     summary,
		Description: desc.String(),
		ColorId:     opts.ColorID,
		Start:       eventDateTime(start, allDay),
		End:         eventDateTime(end, allDay),
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				PropertyTodoID: todo.ID,
			},
		},
	}
	return event, nil
}

func eventDateTime(t time.Time, allDay bool) *calendar.EventDateTime {
	if allDay {
		return &calendar.EventDateTime{Date: t.Format(dateLayout)}
	}
	return &calendar.EventDateTime{DateTime: t.UTC().Format(time.RFC3339)}
}

// EventNeedsUpdate returns a patch holding the fields of target that differ
// from existing, or nil when they already agree.
func EventNeedsUpdate(existing, target *calendar.Event) (*calendar.Event, error) {
	patch := &calendar.Event{}
	needsUpdate := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		needsUpdate = true
	}
	if existing.Description != target.Description {
		patch.Description = target.Description
		needsUpdate = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		needsUpdate = true
	}

	sameStart, err := sameTime(existing.Start, target.Start)
	if err != nil {
		return nil, err
	}
	sameEnd, err := sameTime(existing.End, target.End)
	if err != nil {
		return nil, err
	}
	if !sameStart || !sameEnd {
		patch.Start = target.Start
		patch.End = target.End
		needsUpdate = true
	}

	if needsUpdate {
		return patch, nil
	}
	return nil, nil
}

func sameTime(a, b *calendar.EventDateTime) (bool, error) {
	if a == nil || b == nil {
		return a == b, nil
	}
	if a.Date != "" || b.Date != "" {
		return a.Date == b.Date, nil
	}
	at, err := time.Parse(time.RFC3339, a.DateTime)
	if err != nil {
		return false, errors.Wrap(err, "existing event time")
	}
	bt, err := time.Parse(time.RFC3339, b.DateTime)
	if err != nil {
		return false, errors.Wrap(err, "target event time")
	}
	return at.Equal(bt), nil
}

// GetTodoIDFromEventDescription parses the todo ID from an event description.
func GetTodoIDFromEventDescription(description string) (string, bool) {
	matches := todoIDPattern.FindStringSubmatch(description)
	if len(matches) > 1 {
		return matches[1], true
	}
	return "", false
}
