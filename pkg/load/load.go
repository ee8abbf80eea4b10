// Package load collects the todos of every Markdown file under a root.
package load

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harrisonrobin/agmd/pkg/markdown"
	"github.com/harrisonrobin/agmd/pkg/model"
)

const defaultConcurrency = 8

// Options tune a Loader. Zero values select the defaults.
type Options struct {
	IgnoreFile  string
	Concurrency int
	Location    *time.Location
	Logger      *zap.Logger
}

// Loader walks a tree of Markdown files.
type Loader struct {
	root        string
	ignoreFile  string
	concurrency int
	parser      *markdown.Parser
	logger      *zap.Logger
}

// New returns a loader for the tree at root.
func New(root string, opts Options) *Loader {
	if opts.IgnoreFile == "" {
		opts.IgnoreFile = DefaultIgnoreFile
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Loader{
		root:        root,
		ignoreFile:  opts.IgnoreFile,
		concurrency: opts.Concurrency,
		parser:      markdown.NewParser(opts.Location, opts.Logger),
		logger:      opts.Logger,
	}
}

// Root returns the scanned directory.
func (l *Loader) Root() string {
	return l.root
}

// Ignore reads the ignore file at the root. A missing file ignores nothing.
func (l *Loader) Ignore() (*Ignore, error) {
	f, err := os.Open(filepath.Join(l.root, l.ignoreFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &Ignore{}, nil
		}
		return nil, err
	}
	defer f.Close()
	return ParseIgnore(f)
}

// Files lists the Markdown files under the root as slash separated paths
// relative to it, in lexical order. Hidden files and directories are
// skipped, as is everything the ignore file matches.
func (l *Loader) Files(ctx context.Context) ([]string, error) {
	ignore, err := l.Ignore()
	if err != nil {
		return nil, errors.Wrap(err, "read ignore file")
	}

	var files []string
	err = filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == l.root {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if Skip(rel, d.IsDir(), ignore) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", l.root)
	}
	return files, nil
}

// Skip reports whether the walk leaves rel out. Files other than Markdown
// are always skipped.
func Skip(rel string, dir bool, ignore *Ignore) bool {
	if strings.HasPrefix(filepath.Base(rel), ".") {
		return true
	}
	if ignore.Match(rel, dir) {
		return true
	}
	return !dir && !IsMarkdown(rel)
}

// IsMarkdown reports whether name has a Markdown extension.
func IsMarkdown(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".md")
}

// LoadFile parses one file given relative to the root. The todos carry rel
// as their source path.
func (l *Loader) LoadFile(rel string) ([]model.Todo, error) {
	f, err := os.Open(filepath.Join(l.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return l.parser.Parse(f, rel)
}

// Load parses every file under the root in parallel. Todos are ordered by
// path then line.
func (l *Loader) Load(ctx context.Context) ([]model.Todo, error) {
	files, err := l.Files(ctx)
	if err != nil {
		return nil, err
	}

	results := make([][]model.Todo, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			todos, err := l.LoadFile(rel)
			if err != nil {
				return errors.Wrapf(err, "parse %s", rel)
			}
			results[i] = todos
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var todos []model.Todo
	for _, r := range results {
		todos = append(todos, r...)
	}
	sort.SliceStable(todos, func(i, j int) bool {
		a, b := todos[i].Source, todos[j].Source
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Line < b.Line
	})
	l.logger.Debug("loaded tree",
		zap.String("root", l.root), zap.Int("files", len(files)), zap.Int("todos", len(todos)))
	return todos, nil
}
