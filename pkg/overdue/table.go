package overdue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/harrisonrobin/agmd/pkg/config"
)

const tableFile = "pending_todos.json"

// Entry is an undone todo whose event still has to be marked overdue.
type Entry struct {
	TodoID  string    `json:"todo_id"`
	EventID string    `json:"event_id"`
	Summary string    `json:"summary"`
	Due     time.Time `json:"due"`
}

// Table tracks undone todos with a due instant between sync runs, so their
// events can be flagged once the due instant passes.
type Table struct {
	Entries map[string]Entry `json:"entries"`
	Path    string           `json:"-"`
	dirty   bool
}

func NewTable() (*Table, error) {
	dir, err := config.GetConfigDir()
	if err != nil {
		return nil, err
	}
	return NewTableAt(filepath.Join(dir, tableFile))
}

// NewTableAt loads the table stored at path, if any.
func NewTableAt(path string) (*Table, error) {
	t := &Table{
		Path:    path,
		Entries: make(map[string]Entry),
	}
	if _, err := os.Stat(path); err == nil {
		if err := t.Load(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Table) Load() error {
	f, err := os.Open(t.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(t); err != nil {
		return errors.Wrapf(err, "failed to decode overdue table %s", t.Path)
	}
	if t.Entries == nil {
		t.Entries = make(map[string]Entry)
	}
	return nil
}

func (t *Table) Save() error {
	if !t.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(t.Path), 0700); err != nil {
		return err
	}
	f, err := os.Create(t.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(t); err != nil {
		return err
	}
	t.dirty = false
	return nil
}

// Update tracks a todo whose due instant is still ahead of now. Anything
// else, a nil due included, drops it from the table.
func (t *Table) Update(todoID, eventID, summary string, due *time.Time, now time.Time) {
	if due == nil || !due.After(now) {
		t.Remove(todoID)
		return
	}
	entry := Entry{TodoID: todoID, EventID: eventID, Summary: summary, Due: *due}
	if old, exists := t.Entries[todoID]; !exists || old.EventID != eventID ||
		old.Summary != summary || !old.Due.Equal(*due) {
		t.Entries[todoID] = entry
		t.dirty = true
	}
}

func (t *Table) Remove(todoID string) {
	if _, exists := t.Entries[todoID]; exists {
		delete(t.Entries, todoID)
		t.dirty = true
	}
}

// Sweep removes and returns the entries that are overdue at now. Due
// instants are exclusive, so an entry is overdue from its due instant on.
func (t *Table) Sweep(now time.Time) []Entry {
	var swept []Entry
	for id, entry := range t.Entries {
		if !entry.Due.After(now) {
			swept = append(swept, entry)
			delete(t.Entries, id)
			t.dirty = true
		}
	}
	sort.Slice(swept, func(i, j int) bool {
		return swept[i].Due.Before(swept[j].Due)
	})
	return swept
}
