package taskwarrior

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/harrisonrobin/agmd/pkg/model"
)

const (
	PENDING   = "pending"
	COMPLETED = "completed"
	WAITING   = "waiting"
	DELETED   = "deleted"
)

type CustomTime struct {
	time.Time
}

const taskwarriorTimeLayout = "20060102T150405Z" // YYYYMMDDTHHMMSSZ, always UTC

func NewTime(t *time.Time) *CustomTime {
	if t == nil {
		return nil
	}
	return &CustomTime{Time: t.UTC()}
}

// UnmarshalJSON implements the json.Unmarshaler interface for CustomTime.
func (ct *CustomTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "0" {
		ct.Time = time.Time{}
		return nil
	}

	t, err := time.Parse(taskwarriorTimeLayout, s)
	if err != nil {
		return errors.Wrapf(err, "failed to parse Taskwarrior time string '%s'", s)
	}
	ct.Time = t
	return nil
}

// MarshalJSON implements the json.Marshaler interface for CustomTime.
func (ct CustomTime) MarshalJSON() ([]byte, error) {
	if ct.Time.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + ct.Time.UTC().Format(taskwarriorTimeLayout) + `"`), nil
}

type Annotation struct {
	Description string      `json:"description"`
	Entry       *CustomTime `json:"entry,omitempty"`
}

type Task struct {
	UUID        string       `json:"uuid"`
	Description string       `json:"description"`
	Due         *CustomTime  `json:"due,omitempty"`
	Scheduled   *CustomTime  `json:"scheduled,omitempty"`
	Status      string       `json:"status"`
	Project     string       `json:"project,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
	Start       *CustomTime  `json:"start,omitempty"`
	End         *CustomTime  `json:"end,omitempty"`
}

// FromTodo maps a todo onto a Taskwarrior task. The todo ID is already a
// UUID, so re-importing a tree updates the same tasks. Malformed todos are
// rejected.
func FromTodo(todo model.Todo) (Task, error) {
	if todo.Malformed() {
		return Task{}, errors.Errorf("todo %s has a malformed marker %q", todo.ID, todo.Raw)
	}

	task := Task{
		UUID:        todo.ID,
		Description: todo.Summary,
		Status:      PENDING,
		Project:     project(todo.Source.Path),
		Scheduled:   NewTime(todo.Attributes.Start),
		Due:         NewTime(todo.Attributes.Due),
		Annotations: []Annotation{{Description: "agmd:" + todo.Raw}},
	}
	if todo.Done {
		task.Status = COMPLETED
		task.End = NewTime(todo.Attributes.Completed)
	}
	return task, nil
}

// project names a task after its file: "notes/work.md" becomes "notes.work".
func project(path string) string {
	if path == "" {
		return ""
	}
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	return strings.ReplaceAll(filepath.ToSlash(stem), "/", ".")
}
