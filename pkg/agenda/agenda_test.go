package agenda

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harrisonrobin/agmd/pkg/model"
)

func at(day, hour int) *time.Time {
	t := time.Date(2025, 3, day, hour, 0, 0, 0, time.UTC)
	return &t
}

func todo(done bool, start, due *time.Time) model.Todo {
	return model.Todo{Done: done, Attributes: &model.Attributes{Start: start, Due: due}}
}

func TestClassify(t *testing.T) {
	now := *at(10, 12)
	tests := []struct {
		name string
		todo model.Todo
		want Status
	}{
		{"malformed", model.Todo{Raw: "x"}, Malformed},
		{"done", todo(true, nil, at(1, 0)), Completed},
		{"due in the past", todo(false, nil, at(9, 0)), Overdue},
		{"due right now", todo(false, nil, at(10, 12)), Overdue},
		{"due later today", todo(false, nil, at(10, 18)), DueToday},
		{"due at midnight ending today", todo(false, at(10, 0), at(11, 0)), DueToday},
		{"due tomorrow", todo(false, nil, at(12, 0)), Active},
		{"started", todo(false, at(9, 0), at(20, 0)), Active},
		{"starts later", todo(false, at(15, 0), at(20, 0)), Upcoming},
		{"starts later today", todo(false, at(10, 13), nil), Upcoming},
		{"no dates", todo(false, nil, nil), Unscheduled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.todo, now, time.UTC))
		})
	}
}

func TestOverlaps(t *testing.T) {
	from, to := Range(*at(10, 12), time.UTC)
	assert.Equal(t, *at(10, 0), from)
	assert.Equal(t, *at(11, 0), to)

	tests := []struct {
		name  string
		attrs model.Attributes
		want  bool
	}{
		{"inside", model.Attributes{Start: at(10, 9), Due: at(10, 10)}, true},
		{"covers", model.Attributes{Start: at(1, 0), Due: at(20, 0)}, true},
		{"ends at from", model.Attributes{Start: at(9, 0), Due: at(10, 0)}, false},
		{"starts at to", model.Attributes{Start: at(11, 0), Due: at(12, 0)}, false},
		{"open start", model.Attributes{Due: at(10, 1)}, true},
		{"open start before", model.Attributes{Due: at(9, 1)}, false},
		{"open end", model.Attributes{Start: at(10, 23)}, true},
		{"open end after", model.Attributes{Start: at(11, 1)}, false},
		{"no bounds", model.Attributes{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.attrs, from, to))
		})
	}
}

func TestRangeLocal(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	from, to := Range(time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC), loc)
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, loc), from)
	assert.Equal(t, time.Date(2025, 3, 12, 0, 0, 0, 0, loc), to)
}

func TestBuild(t *testing.T) {
	now := *at(10, 12)
	a := todo(false, nil, at(5, 0))
	a.Summary = "a"
	b := todo(false, at(1, 0), at(3, 0))
	b.Summary = "b"
	c := todo(false, nil, nil)
	c.Summary = "c"
	d := todo(false, at(2, 0), at(3, 0))
	d.Summary = "d"

	agenda := Build([]model.Todo{a, b, c, d}, now, time.UTC)
	var overdue []string
	for _, todo := range agenda.Get(Overdue) {
		overdue = append(overdue, todo.Summary)
	}
	assert.Equal(t, []string{"b", "d", "a"}, overdue)
	assert.Len(t, agenda.Get(Unscheduled), 1)
	assert.Empty(t, agenda.Get(Completed))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "due today", DueToday.String())
	assert.Equal(t, "unknown", Status(42).String())
	assert.Len(t, Statuses(), len(statusNames))
}
