package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/agmd/pkg/model"
)

func at(day int) *time.Time {
	t := time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "index.db"), time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func fixtures() (work, home []model.Todo) {
	work = []model.Todo{
		{
			ID: "w1", Summary: "report", Raw: "2025-03-05",
			Attributes: &model.Attributes{Start: at(5), Due: at(6)},
			Source:     model.Source{Path: "work.md", Line: 1},
		},
		{
			ID: "w2", Summary: "bad", Raw: "2025-03-05;",
			Source: model.Source{Path: "work.md", Line: 3},
		},
		{
			ID: "w3", Summary: "shipped", Done: true, Raw: "2025-03-01",
			Attributes: &model.Attributes{Start: at(1), Due: at(2), Completed: at(2)},
			Source:     model.Source{Path: "work.md", Line: 2},
		},
	}
	home = []model.Todo{
		{
			ID: "h1", Summary: "someday", Raw: "",
			Attributes: &model.Attributes{},
			Source:     model.Source{Path: "home.md", Line: 1},
		},
		{
			ID: "h2", Summary: "taxes", Raw: "due=2025-03-20",
			Attributes: &model.Attributes{Due: at(21)},
			Source:     model.Source{Path: "home.md", Line: 2},
		},
	}
	return work, home
}

func ids(todos []model.Todo) []string {
	var out []string
	for _, t := range todos {
		out = append(out, t.ID)
	}
	return out
}

func TestReplaceAndList(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	work, home := fixtures()
	require.NoError(t, s.ReplaceFile(ctx, "work.md", work))
	require.NoError(t, s.ReplaceFile(ctx, "home.md", home))

	all, err := s.ListTodos(ctx, FindTodo{})
	require.NoError(t, err)
	assert.Equal(t, []string{"h1", "h2", "w1", "w3", "w2"}, ids(all))

	got, err := s.ListTodos(ctx, FindTodo{Path: &work[0].Source.Path})
	require.NoError(t, err)
	want := []model.Todo{work[0], work[2], work[1]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListTodos mismatch (-want +got):\n%s", diff)
	}

	paths, err := s.Paths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"home.md", "work.md"}, paths)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	work, home := fixtures()
	require.NoError(t, s.ReplaceFile(ctx, "work.md", work))
	require.NoError(t, s.ReplaceFile(ctx, "home.md", home))

	yes, no := true, false
	tests := []struct {
		name string
		find FindTodo
		want []string
	}{
		{"done", FindTodo{Done: &yes}, []string{"w3"}},
		{"undone", FindTodo{Done: &no}, []string{"h1", "h2", "w1", "w2"}},
		{"malformed", FindTodo{Malformed: &yes}, []string{"w2"}},
		{"day five", FindTodo{From: at(5), To: at(6)}, []string{"h2", "w1"}},
		{"first day", FindTodo{From: at(1), To: at(2)}, []string{"h2", "w3"}},
		{"ends before from", FindTodo{From: at(2), To: at(3)}, []string{"h2"}},
		{"open from", FindTodo{To: at(2)}, []string{"h2", "w3"}},
		{"open to", FindTodo{From: at(21)}, nil},
		{"undone in range", FindTodo{Done: &no, From: at(1), To: at(10)}, []string{"h2", "w1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListTodos(ctx, tt.find)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestReplaceAndDeleteFile(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	work, home := fixtures()
	require.NoError(t, s.ReplaceFile(ctx, "work.md", work))
	require.NoError(t, s.ReplaceFile(ctx, "home.md", home))

	require.NoError(t, s.ReplaceFile(ctx, "work.md", work[:1]))
	all, err := s.ListTodos(ctx, FindTodo{})
	require.NoError(t, err)
	assert.Equal(t, []string{"h1", "h2", "w1"}, ids(all))

	require.NoError(t, s.DeleteFile(ctx, "home.md"))
	all, err = s.ListTodos(ctx, FindTodo{})
	require.NoError(t, err)
	assert.Equal(t, []string{"w1"}, ids(all))

	require.NoError(t, s.ReplaceFile(ctx, "work.md", nil))
	paths, err := s.Paths(ctx)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(ctx, path, time.UTC)
	require.NoError(t, err)
	work, _ := fixtures()
	require.NoError(t, s.ReplaceFile(ctx, "work.md", work))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, time.UTC)
	require.NoError(t, err)
	defer s.Close()
	all, err := s.ListTodos(ctx, FindTodo{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
