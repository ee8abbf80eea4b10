// Package cache keeps resolved todos in a local SQLite index so agenda
// queries do not have to rescan the tree.
package cache

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/harrisonrobin/agmd/pkg/model"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS todo (
	id           TEXT PRIMARY KEY,
	path         TEXT NOT NULL,
	line         INTEGER NOT NULL,
	summary      TEXT NOT NULL,
	done         INTEGER NOT NULL,
	raw          TEXT NOT NULL,
	malformed    INTEGER NOT NULL,
	start_ts     INTEGER,
	due_ts       INTEGER,
	completed_ts INTEGER
);
CREATE INDEX IF NOT EXISTS idx_todo_schedule ON todo (done, path, start_ts, due_ts);
CREATE INDEX IF NOT EXISTS idx_todo_malformed ON todo (malformed);
`

// Store is a todo index backed by SQLite.
type Store struct {
	db  *sql.DB
	loc *time.Location
}

// Open opens or creates the index at path. Instants read back are expressed
// in loc.
func Open(ctx context.Context, path string, loc *time.Location) (*Store, error) {
	if loc == nil {
		loc = time.Local
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.Wrap(err, "failed to create cache directory")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open cache %s", path)
	}
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create cache schema")
	}
	return &Store{db: db, loc: loc}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceFile swaps every todo stored for path with todos in one
// transaction.
func (s *Store) ReplaceFile(ctx context.Context, path string, todos []model.Todo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM todo WHERE path = ?`, path); err != nil {
		return errors.Wrapf(err, "failed to clear %s", path)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO todo (
			id, path, line, summary, done, raw, malformed, start_ts, due_ts, completed_ts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare insert")
	}
	defer stmt.Close()

	for _, todo := range todos {
		var start, due, completed sql.NullInt64
		if a := todo.Attributes; a != nil {
			start, due, completed = unix(a.Start), unix(a.Due), unix(a.Completed)
		}
		if _, err := stmt.ExecContext(ctx,
			todo.ID, path, todo.Source.Line, todo.Summary, todo.Done, todo.Raw, todo.Malformed(),
			start, due, completed,
		); err != nil {
			return errors.Wrapf(err, "failed to store todo %s", todo.ID)
		}
	}
	return tx.Commit()
}

// DeleteFile forgets every todo stored for path.
func (s *Store) DeleteFile(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM todo WHERE path = ?`, path); err != nil {
		return errors.Wrapf(err, "failed to delete %s", path)
	}
	return nil
}

// Paths lists the files that have stored todos.
func (s *Store) Paths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT path FROM todo ORDER BY path`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query paths")
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, errors.Wrap(err, "failed to scan path")
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// FindTodo filters ListTodos. Nil fields do not filter. From and To select
// todos whose span overlaps [From, To).
type FindTodo struct {
	Done      *bool
	Path      *string
	Malformed *bool
	From      *time.Time
	To        *time.Time
}

// ListTodos returns the stored todos matching find, ordered by path and line.
func (s *Store) ListTodos(ctx context.Context, find FindTodo) ([]model.Todo, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.Done; v != nil {
		where, args = append(where, "done = ?"), append(args, *v)
	}
	if v := find.Path; v != nil {
		where, args = append(where, "path = ?"), append(args, *v)
	}
	if v := find.Malformed; v != nil {
		where, args = append(where, "malformed = ?"), append(args, *v)
	}
	if find.From != nil || find.To != nil {
		where = append(where, "(start_ts IS NOT NULL OR due_ts IS NOT NULL)")
	}
	if v := find.To; v != nil {
		where, args = append(where, "(start_ts IS NULL OR start_ts < ?)"), append(args, v.Unix())
	}
	if v := find.From; v != nil {
		where, args = append(where, "(due_ts IS NULL OR due_ts > ?)"), append(args, v.Unix())
	}

	query := `
		SELECT id, path, line, summary, done, raw, malformed, start_ts, due_ts, completed_ts
		FROM todo
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY path, line`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query todos")
	}
	defer rows.Close()

	var todos []model.Todo
	for rows.Next() {
		var todo model.Todo
		var malformed bool
		var start, due, completed sql.NullInt64
		if err := rows.Scan(
			&todo.ID,
			&todo.Source.Path,
			&todo.Source.Line,
			&todo.Summary,
			&todo.Done,
			&todo.Raw,
			&malformed,
			&start,
			&due,
			&completed,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan todo")
		}
		if !malformed {
			todo.Attributes = &model.Attributes{
				Start:     s.instant(start),
				Due:       s.instant(due),
				Completed: s.instant(completed),
			}
		}
		todos = append(todos, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate todos")
	}
	return todos, nil
}

func unix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func (s *Store) instant(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).In(s.loc)
	return &t
}
