package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/harrisonrobin/agmd/pkg/load"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	changed chan string
	removed chan string
}

func newRecorder() *recorder {
	return &recorder{changed: make(chan string, 16), removed: make(chan string, 16)}
}

func (r *recorder) handler() Handler {
	return Handler{
		OnChange: func(rel string) { r.changed <- rel },
		OnRemove: func(rel string) { r.removed <- rel },
	}
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch event")
		return ""
	}
}

func startWatcher(t *testing.T, root string, ignore *load.Ignore, r *recorder) *Watcher {
	t.Helper()
	w := New(root, ignore, r.handler(), nil)
	w.SetDebounce(30 * time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func TestWatchChangeAndRemove(t *testing.T) {
	root := t.TempDir()
	r := newRecorder()
	startWatcher(t, root, nil, r)

	path := filepath.Join(root, "todo.md")
	require.NoError(t, os.WriteFile(path, []byte("- [ ] a <agmd:2025>\n"), 0o600))
	assert.Equal(t, "todo.md", receive(t, r.changed))

	require.NoError(t, os.Remove(path))
	assert.Equal(t, "todo.md", receive(t, r.removed))
}

func TestWatchNewDirectory(t *testing.T) {
	root := t.TempDir()
	r := newRecorder()
	startWatcher(t, root, nil, r)

	dir := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.md"), []byte("x"), 0o600))
	assert.Equal(t, "sub/x.md", receive(t, r.changed))
}

func TestWatchSkipsOtherFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "archive"), 0o755))
	ignore, err := load.ParseIgnore(strings.NewReader("archive/\n"))
	require.NoError(t, err)
	r := newRecorder()
	startWatcher(t, root, ignore, r)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden.md"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "archive", "old.md"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "kept.md"), []byte("x"), 0o600))

	assert.Equal(t, "kept.md", receive(t, r.changed))
	select {
	case rel := <-r.changed:
		t.Fatalf("unexpected change for %s", rel)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStopWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := New(t.TempDir(), nil, Handler{}, nil)
	require.NoError(t, w.Start(ctx))
	require.NoError(t, w.Start(ctx))
	cancel()
	w.Stop()
	w.Stop()
}

func TestTinyDebounce(t *testing.T) {
	root := t.TempDir()
	r := newRecorder()
	w := New(root, nil, r.handler(), nil)
	w.SetDebounce(time.Nanosecond)
	require.NoError(t, w.Start(context.Background()))

	path := filepath.Join(root, "todo.md")
	require.NoError(t, os.WriteFile(path, []byte("- [ ] x <agmd:2025>\n"), 0o644))
	assert.Equal(t, "todo.md", receive(t, r.changed))
	w.Stop()
}
