package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/harrisonrobin/agmd/pkg/agenda"
	"github.com/harrisonrobin/agmd/pkg/cache"
	"github.com/harrisonrobin/agmd/pkg/config"
	"github.com/harrisonrobin/agmd/pkg/fragment"
	"github.com/harrisonrobin/agmd/pkg/load"
	"github.com/harrisonrobin/agmd/pkg/markdown"
	"github.com/harrisonrobin/agmd/pkg/marker"
	"github.com/harrisonrobin/agmd/pkg/model"
	"github.com/harrisonrobin/agmd/pkg/resolve"
	"github.com/harrisonrobin/agmd/pkg/taskwarrior"
	"github.com/harrisonrobin/agmd/pkg/watch"
)

const timeLayout = "2006-01-02 15:04"

func rootArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.Root
}

func newLoader(root string) *load.Loader {
	return load.New(root, load.Options{
		IgnoreFile:  cfg.IgnoreFile,
		Concurrency: cfg.Concurrency,
		Location:    time.Local,
		Logger:      logger,
	})
}

func openCache(ctx context.Context) (*cache.Store, error) {
	store, err := cache.Open(ctx, cfg.Cache, time.Local)
	if err != nil {
		return nil, err
	}
	logger.Debug("opened cache", zap.String("path", cfg.Cache))
	return store, nil
}

// errCachedRoot rejects a root together with --cached: the cache holds the
// tree last given to "agmd index" and knows no other.
var errCachedRoot = errors.New("--cached reads the index of the last indexed tree and takes no root")

// todos reads the todos of the tree named by args, from the files or from
// the cache.
func todos(ctx context.Context, args []string, cached bool, find cache.FindTodo) ([]model.Todo, error) {
	if !cached {
		return newLoader(rootArg(args)).Load(ctx)
	}
	if len(args) > 0 {
		return nil, errCachedRoot
	}
	store, err := openCache(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.ListTodos(ctx, find)
}

func newListCmd() *cobra.Command {
	var (
		state  string
		format string
		cached bool
	)
	cmd := &cobra.Command{
		Use:   "list [root]",
		Short: "List the todos of a Markdown tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := markdown.ParseState(state)
			if err != nil {
				return err
			}
			var find cache.FindTodo
			switch st {
			case markdown.StateDone, markdown.StateUndone:
				done := st == markdown.StateDone
				find.Done = &done
			case markdown.StateMalformed:
				malformed := true
				find.Malformed = &malformed
			}

			list, err := todos(cmd.Context(), args, cached, find)
			if err != nil {
				return err
			}
			list = markdown.Filter(list, st)
			return writeTodos(cmd.OutOrStdout(), list, format, time.Now())
		},
	}
	cmd.Flags().StringVar(&state, "state", string(markdown.StateAll), "all, done, undone or malformed")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "table, json or yaml")
	cmd.Flags().BoolVar(&cached, "cached", false, "read the index of the last indexed tree instead of the files")
	return cmd
}

func writeTodos(w io.Writer, todos []model.Todo, format string, now time.Time) error {
	if todos == nil {
		todos = []model.Todo{}
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(todos)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(todos); err != nil {
			return errors.Wrap(err, "failed to encode todos")
		}
		return enc.Close()
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STATUS\tSTART\tDUE\tCOMPLETED\tSUMMARY\tSOURCE")
		for _, todo := range todos {
			var start, due, completed *time.Time
			if todo.Attributes != nil {
				start, due, completed = todo.Attributes.Start, todo.Attributes.Due, todo.Attributes.Completed
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s %s\t%s:%d\n",
				agenda.Classify(todo, now, time.Local),
				formatTime(start), formatTime(due), formatTime(completed),
				checkbox(todo.Done), todo.Summary,
				todo.Source.Path, todo.Source.Line)
		}
		return tw.Flush()
	}
	return errors.Errorf("unknown format %q", format)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.In(time.Local).Format(timeLayout)
}

func checkbox(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

// parseDay reads an agmd literal and returns the start of the period it
// names, so "2025-03-01" and "2025-03-01T09" both work.
func parseDay(s string) (time.Time, error) {
	f, err := fragment.ParseComplete(s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid date %q", s)
	}
	t, ok := resolve.Resolve(resolve.Of(f), resolve.RangeStart, time.Local)
	if !ok {
		return time.Time{}, errors.Errorf("date %q does not name a calendar period", s)
	}
	return t, nil
}

func newAgendaCmd() *cobra.Command {
	var (
		date   string
		days   int
		all    bool
		cached bool
	)
	cmd := &cobra.Command{
		Use:   "agenda [root]",
		Short: "Show what is overdue, due and coming up",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if date != "" {
				var err error
				if now, err = parseDay(date); err != nil {
					return err
				}
			}

			var find cache.FindTodo
			if !all {
				undone := false
				find.Done = &undone
			}
			list, err := todos(cmd.Context(), args, cached, find)
			if err != nil {
				return err
			}

			from, _ := agenda.Range(now, time.Local)
			to := from.AddDate(0, 0, days)
			a := agenda.Build(list, now, time.Local)
			return writeAgenda(cmd.OutOrStdout(), a, from, to, all)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "show the agenda as of this date (e.g. 2025-03-01)")
	cmd.Flags().IntVar(&days, "days", 7, "how many days of upcoming todos to show")
	cmd.Flags().BoolVar(&all, "all", false, "also show unscheduled, completed and malformed todos")
	cmd.Flags().BoolVar(&cached, "cached", false, "read the index of the last indexed tree instead of the files")
	return cmd
}

func writeAgenda(w io.Writer, a agenda.Agenda, from, to time.Time, all bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, status := range agenda.Statuses() {
		switch status {
		case agenda.Unscheduled, agenda.Completed, agenda.Malformed:
			if !all {
				continue
			}
		}
		var items []model.Todo
		for _, todo := range a.Get(status) {
			if status == agenda.Upcoming && !agenda.Overlaps(*todo.Attributes, from, to) {
				continue
			}
			items = append(items, todo)
		}
		if len(items) == 0 {
			continue
		}

		fmt.Fprintf(tw, "%s\n", strings.ToUpper(status.String()))
		for _, todo := range items {
			var when string
			if attrs := todo.Attributes; attrs != nil {
				switch {
				case attrs.Due != nil:
					when = "due " + formatTime(attrs.Due)
				case attrs.Start != nil:
					when = "from " + formatTime(attrs.Start)
				}
			}
			fmt.Fprintf(tw, "  %s %s\t%s\t%s:%d\n",
				checkbox(todo.Done), todo.Summary, when, todo.Source.Path, todo.Source.Line)
		}
	}
	return tw.Flush()
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [root]",
		Short: "Report malformed markers and contradictory dates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := newLoader(rootArg(args)).Load(cmd.Context())
			if err != nil {
				return err
			}
			problems := check(cmd.OutOrStdout(), list)
			if problems > 0 {
				return errors.Errorf("%d problem(s) found", problems)
			}
			return nil
		},
	}
}

// check prints one line per todo with a broken marker and returns how many
// there were.
func check(w io.Writer, todos []model.Todo) int {
	problems := 0
	for _, todo := range todos {
		var err error
		if todo.Malformed() {
			if _, err = marker.Parse(todo.Raw, todo.Done, time.Local); err == nil {
				err = errors.New("malformed marker")
			}
		} else {
			err = todo.Attributes.Validate()
		}
		if err != nil {
			problems++
			fmt.Fprintf(w, "%s:%d: %s: %v\n", todo.Source.Path, todo.Source.Line, todo.Summary, err)
		}
	}
	return problems
}

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index [root]",
		Short: "Rebuild the todo index of a Markdown tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openCache(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := reindex(ctx, newLoader(rootArg(args)), store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d todos\n", n)
			return nil
		},
	}
}

// reindex stores every file of the tree and drops the paths that no longer
// exist. It returns the number of todos stored.
func reindex(ctx context.Context, loader *load.Loader, store *cache.Store) (int, error) {
	files, err := loader.Files(ctx)
	if err != nil {
		return 0, err
	}
	list, err := loader.Load(ctx)
	if err != nil {
		return 0, err
	}

	byPath := make(map[string][]model.Todo, len(files))
	for _, todo := range list {
		byPath[todo.Source.Path] = append(byPath[todo.Source.Path], todo)
	}
	for _, rel := range files {
		if err := store.ReplaceFile(ctx, rel, byPath[rel]); err != nil {
			return 0, err
		}
	}

	stored, err := store.Paths(ctx)
	if err != nil {
		return 0, err
	}
	present := make(map[string]bool, len(files))
	for _, rel := range files {
		present[rel] = true
	}
	for _, rel := range stored {
		if !present[rel] {
			logger.Debug("dropping vanished file", zap.String("path", rel))
			if err := store.DeleteFile(ctx, rel); err != nil {
				return 0, err
			}
		}
	}
	return len(list), nil
}

func newWatchCmd() *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch [root]",
		Short: "Keep the todo index up to date as files change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := openCache(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			loader := newLoader(rootArg(args))
			n, err := reindex(ctx, loader, store)
			if err != nil {
				return err
			}
			logger.Info("indexed tree", zap.String("root", loader.Root()), zap.Int("todos", n))

			ignore, err := loader.Ignore()
			if err != nil {
				return err
			}
			w := watch.New(loader.Root(), ignore, watch.Handler{
				OnChange: func(rel string) {
					list, err := loader.LoadFile(rel)
					if err != nil {
						logger.Warn("failed to parse file", zap.String("path", rel), zap.Error(err))
						return
					}
					if err := store.ReplaceFile(ctx, rel, list); err != nil {
						logger.Warn("failed to index file", zap.String("path", rel), zap.Error(err))
						return
					}
					logger.Info("indexed file", zap.String("path", rel), zap.Int("todos", len(list)))
				},
				OnRemove: func(rel string) {
					if err := store.DeleteFile(ctx, rel); err != nil {
						logger.Warn("failed to drop file", zap.String("path", rel), zap.Error(err))
						return
					}
					logger.Info("dropped file", zap.String("path", rel))
				},
			}, logger)
			w.SetDebounce(debounce)
			if err := w.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			w.Stop()
			return nil
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "how long a file must stay quiet before it is indexed")
	return cmd
}

func newExportCmd() *cobra.Command {
	var doImport bool
	cmd := &cobra.Command{
		Use:   "export [root]",
		Short: "Export todos as Taskwarrior tasks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := newLoader(rootArg(args)).Load(cmd.Context())
			if err != nil {
				return err
			}

			var tasks []taskwarrior.Task
			for _, todo := range list {
				task, err := taskwarrior.FromTodo(todo)
				if err != nil {
					logger.Warn("skipping todo", zap.String("path", todo.Source.Path),
						zap.Int("line", todo.Source.Line), zap.Error(err))
					continue
				}
				tasks = append(tasks, task)
			}

			if !doImport {
				return taskwarrior.WriteTasks(cmd.OutOrStdout(), tasks)
			}
			if err := taskwarrior.NewClient().Import(cmd.Context(), tasks); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d tasks\n", len(tasks))
			return nil
		},
	}
	cmd.Flags().BoolVar(&doImport, "import", false, "run task import instead of printing the JSON")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(map[string]any{
				"calendar":    cfg.Calendar,
				"root":        cfg.Root,
				"ignore_file": cfg.IgnoreFile,
				"cache":       cfg.Cache,
				"concurrency": cfg.Concurrency,
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set-calendar NAME",
		Short: "Set the default Google calendar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Calendar = args[0]
			if err := config.Save(cfg); err != nil {
				return errors.Wrap(err, "error saving config")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default calendar set to: %s\n", args[0])
			return nil
		},
	})
	return cmd
}
