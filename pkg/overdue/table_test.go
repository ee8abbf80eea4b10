package overdue

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(day int) time.Time {
	return time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time {
	return &t
}

func TestUpdate(t *testing.T) {
	table, err := NewTableAt(filepath.Join(t.TempDir(), "pending.json"))
	require.NoError(t, err)
	now := at(10)

	table.Update("a", "ev-a", "a", ptr(at(12)), now)
	table.Update("b", "ev-b", "b", ptr(at(9)), now)
	table.Update("c", "ev-c", "c", nil, now)
	assert.Len(t, table.Entries, 1)
	assert.Equal(t, Entry{TodoID: "a", EventID: "ev-a", Summary: "a", Due: at(12)}, table.Entries["a"])

	table.Update("a", "ev-a", "a", nil, now)
	assert.Empty(t, table.Entries)
}

func TestSweep(t *testing.T) {
	table, err := NewTableAt(filepath.Join(t.TempDir(), "pending.json"))
	require.NoError(t, err)
	now := at(1)
	table.Update("late", "ev-1", "late", ptr(at(5)), now)
	table.Update("later", "ev-2", "later", ptr(at(4)), now)
	table.Update("future", "ev-3", "future", ptr(at(20)), now)

	swept := table.Sweep(at(5))
	require.Len(t, swept, 2)
	assert.Equal(t, "later", swept[0].TodoID)
	assert.Equal(t, "late", swept[1].TodoID)
	assert.Len(t, table.Entries, 1)
	assert.Empty(t, table.Sweep(at(5)))
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pending.json")
	table, err := NewTableAt(path)
	require.NoError(t, err)

	require.NoError(t, table.Save())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	table.Update("a", "ev-a", "a", ptr(at(12)), at(1))
	require.NoError(t, table.Save())

	loaded, err := NewTableAt(path)
	require.NoError(t, err)
	require.Contains(t, loaded.Entries, "a")
	assert.True(t, loaded.Entries["a"].Due.Equal(at(12)))
	assert.Equal(t, "ev-a", loaded.Entries["a"].EventID)
}
