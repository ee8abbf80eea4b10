package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harrisonrobin/agmd/pkg/agenda"
	"github.com/harrisonrobin/agmd/pkg/cache"
	"github.com/harrisonrobin/agmd/pkg/config"
	"github.com/harrisonrobin/agmd/pkg/model"
	"github.com/harrisonrobin/agmd/pkg/util"
)

func TestMain(m *testing.M) {
	logger = zap.NewNop()
	cfg = &config.Config{
		Calendar:    config.DefaultCalendar,
		Root:        ".",
		IgnoreFile:  config.DefaultIgnoreFile,
		Concurrency: 2,
	}
	os.Exit(m.Run())
}

func local(year, month, day, hour int) *time.Time {
	t := time.Date(year, time.Month(month), day, hour, 0, 0, 0, time.Local)
	return &t
}

func sampleTodos() []model.Todo {
	return []model.Todo{
		{
			ID:         "a",
			Summary:    "ship it",
			Raw:        "2025-03-01;start=02;due=04",
			Attributes: &model.Attributes{Start: local(2025, 3, 2, 0), Due: local(2025, 3, 5, 0)},
			Source:     model.Source{Path: "plan.md", Line: 3},
		},
		{
			ID:      "b",
			Summary: "broken",
			Raw:     "2025-03-01;",
			Source:  model.Source{Path: "plan.md", Line: 7},
		},
		{
			ID:         "c",
			Summary:    "backwards",
			Raw:        "2025-03-01;start=09;due=04",
			Attributes: &model.Attributes{Start: local(2025, 3, 9, 0), Due: local(2025, 3, 5, 0)},
			Source:     model.Source{Path: "notes/work.md", Line: 1},
		},
	}
}

func TestWriteTodos(t *testing.T) {
	now := *local(2025, 3, 1, 12)
	todos := sampleTodos()[:1]

	var buf bytes.Buffer
	require.NoError(t, writeTodos(&buf, todos, "table", now))
	assert.Contains(t, buf.String(), "STATUS")
	assert.Contains(t, buf.String(), "upcoming")
	assert.Contains(t, buf.String(), "[ ] ship it")
	assert.Contains(t, buf.String(), "plan.md:3")
	assert.Contains(t, buf.String(), "2025-03-05 00:00")

	buf.Reset()
	require.NoError(t, writeTodos(&buf, todos, "json", now))
	assert.Contains(t, buf.String(), `"summary": "ship it"`)
	assert.Contains(t, buf.String(), `"raw": "2025-03-01;start=02;due=04"`)

	buf.Reset()
	require.NoError(t, writeTodos(&buf, todos, "yaml", now))
	assert.Contains(t, buf.String(), "summary: ship it")
	assert.Contains(t, buf.String(), "path: plan.md")

	buf.Reset()
	require.NoError(t, writeTodos(&buf, nil, "json", now))
	assert.Equal(t, "[]\n", buf.String())

	assert.Error(t, writeTodos(&buf, todos, "xml", now))
}

func TestParseDay(t *testing.T) {
	got, err := parseDay("2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, *local(2025, 3, 1, 0), got)

	got, err = parseDay("2025-03-01T09")
	require.NoError(t, err)
	assert.Equal(t, *local(2025, 3, 1, 9), got)

	for _, input := range []string{"x", "03-01", "2025-13-01", "2025-03-01;due=02"} {
		_, err := parseDay(input)
		assert.Error(t, err, input)
	}
}

func TestCheck(t *testing.T) {
	var buf bytes.Buffer
	problems := check(&buf, sampleTodos())
	assert.Equal(t, 2, problems)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "plan.md:7: broken: "), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "notes/work.md:1: backwards: "), lines[1])
	assert.Contains(t, lines[1], model.ErrStartAfterDue.Error())

	buf.Reset()
	assert.Zero(t, check(&buf, sampleTodos()[:1]))
	assert.Empty(t, buf.String())
}

func TestWriteAgenda(t *testing.T) {
	now := *local(2025, 3, 4, 12)
	todos := append(sampleTodos(),
		model.Todo{
			ID:         "d",
			Summary:    "pay rent",
			Raw:        "2025-03-01",
			Attributes: &model.Attributes{Due: local(2025, 3, 2, 0)},
			Source:     model.Source{Path: "home.md", Line: 2},
		},
		model.Todo{
			ID:         "e",
			Summary:    "far away",
			Raw:        "2025-06-01",
			Attributes: &model.Attributes{Start: local(2025, 6, 1, 0)},
			Source:     model.Source{Path: "home.md", Line: 3},
		},
	)

	a := agenda.Build(todos, now, time.Local)
	from, _ := agenda.Range(now, time.Local)
	var buf bytes.Buffer
	require.NoError(t, writeAgenda(&buf, a, from, from.AddDate(0, 0, 7), false))
	out := buf.String()

	assert.Contains(t, out, "OVERDUE")
	assert.Contains(t, out, "[ ] pay rent")
	assert.Contains(t, out, "DUE TODAY")
	assert.Contains(t, out, "[ ] ship it")
	assert.NotContains(t, out, "far away")
	assert.NotContains(t, out, "MALFORMED")

	buf.Reset()
	require.NoError(t, writeAgenda(&buf, a, from, from.AddDate(0, 0, 7), true))
	assert.Contains(t, buf.String(), "MALFORMED")
	assert.Contains(t, buf.String(), "[ ] broken")
}

func TestReindex(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	write := func(name, content string) {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("a.md", "- [ ] one <agmd:2025-03-01>\n- [x] two <agmd:2025-03-02>\n")
	write("notes/b.md", "- [ ] three <agmd:due=2025-03-04>\n")
	write("notes/skip.txt", "- [ ] ignored <agmd:2025-03-04>\n")

	store, err := cache.Open(ctx, filepath.Join(t.TempDir(), "index.db"), time.Local)
	require.NoError(t, err)
	defer store.Close()

	loader := newLoader(root)
	n, err := reindex(ctx, loader, store)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	paths, err := store.Paths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "notes/b.md"}, paths)

	require.NoError(t, os.Remove(filepath.Join(root, "notes", "b.md")))
	n, err = reindex(ctx, loader, store)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	paths, err = store.Paths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md"}, paths)

	done := true
	list, err := store.ListTodos(ctx, cache.FindTodo{Done: &done})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "two", list[0].Summary)
}

func TestSyncable(t *testing.T) {
	todos := sampleTodos()
	assert.NoError(t, syncable(todos[0]))
	assert.Error(t, syncable(todos[1]))
	assert.True(t, errors.Is(syncable(todos[2]), model.ErrStartAfterDue))

	undated := model.Todo{ID: "u", Raw: "", Attributes: &model.Attributes{}}
	assert.True(t, errors.Is(syncable(undated), util.ErrNoDates))
}

func TestTodosCachedRejectsRoot(t *testing.T) {
	list, err := todos(context.Background(), []string{t.TempDir()}, true, cache.FindTodo{})
	assert.True(t, errors.Is(err, errCachedRoot))
	assert.Nil(t, list)
}

func TestTodosFromCache(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("- [ ] one <agmd:2025-03-01>\n"), 0o644))

	saved := cfg.Cache
	cfg.Cache = filepath.Join(t.TempDir(), "index.db")
	t.Cleanup(func() { cfg.Cache = saved })

	store, err := cache.Open(ctx, cfg.Cache, time.Local)
	require.NoError(t, err)
	_, err = reindex(ctx, newLoader(root), store)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	list, err := todos(ctx, nil, true, cache.FindTodo{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "one", list[0].Summary)

	list, err = todos(ctx, []string{root}, false, cache.FindTodo{})
	require.NoError(t, err)
	require.Len(t, list, 1)
}
