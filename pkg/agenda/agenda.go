// Package agenda classifies todos against the current time.
package agenda

import (
	"sort"
	"time"

	"github.com/harrisonrobin/agmd/pkg/model"
)

// Status is the scheduling state of a todo at a given instant.
type Status int

const (
	Malformed Status = iota
	Overdue
	DueToday
	Active
	Upcoming
	Unscheduled
	Completed
)

var statusNames = [...]string{
	Malformed:   "malformed",
	Overdue:     "overdue",
	DueToday:    "due today",
	Active:      "active",
	Upcoming:    "upcoming",
	Unscheduled: "unscheduled",
	Completed:   "completed",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// Statuses lists every status in display order.
func Statuses() []Status {
	return []Status{Malformed, Overdue, DueToday, Active, Upcoming, Unscheduled, Completed}
}

// Range returns the local calendar day holding t as a half-open interval.
func Range(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc), time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// Classify decides the status of todo at now. Due instants are exclusive
// ends, so a todo due at tomorrow's midnight is due today and one due at
// now is already overdue.
func Classify(todo model.Todo, now time.Time, loc *time.Location) Status {
	if todo.Malformed() {
		return Malformed
	}
	attrs := todo.Attributes
	if todo.Done {
		return Completed
	}
	if attrs.Due != nil {
		if !attrs.Due.After(now) {
			return Overdue
		}
		_, tomorrow := Range(now, loc)
		if !attrs.Due.After(tomorrow) {
			return DueToday
		}
	}
	if attrs.Start != nil {
		if attrs.Start.After(now) {
			return Upcoming
		}
		return Active
	}
	if attrs.Due != nil {
		return Active
	}
	return Unscheduled
}

// Overlaps reports whether the span [start, due) of attrs meets [from, to).
// A missing bound is open ended. Todos with neither bound never overlap.
func Overlaps(attrs model.Attributes, from, to time.Time) bool {
	if attrs.Start == nil && attrs.Due == nil {
		return false
	}
	if attrs.Start != nil && !attrs.Start.Before(to) {
		return false
	}
	if attrs.Due != nil && !attrs.Due.After(from) {
		return false
	}
	return true
}

// Agenda groups todos by status.
type Agenda struct {
	Now     time.Time
	Buckets map[Status][]model.Todo
}

// Build classifies every todo and sorts each bucket by due then start, with
// unset instants last.
func Build(todos []model.Todo, now time.Time, loc *time.Location) Agenda {
	a := Agenda{Now: now, Buckets: make(map[Status][]model.Todo)}
	for _, todo := range todos {
		s := Classify(todo, now, loc)
		a.Buckets[s] = append(a.Buckets[s], todo)
	}
	for _, bucket := range a.Buckets {
		sort.SliceStable(bucket, func(i, j int) bool {
			return less(bucket[i], bucket[j])
		})
	}
	return a
}

// Get returns the todos with status s.
func (a Agenda) Get(s Status) []model.Todo {
	return a.Buckets[s]
}

func less(a, b model.Todo) bool {
	var ad, bd, as, bs *time.Time
	if a.Attributes != nil {
		ad, as = a.Attributes.Due, a.Attributes.Start
	}
	if b.Attributes != nil {
		bd, bs = b.Attributes.Due, b.Attributes.Start
	}
	if c := compare(ad, bd); c != 0 {
		return c < 0
	}
	return compare(as, bs) < 0
}

func compare(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}
