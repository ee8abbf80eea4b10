package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/agmd/pkg/auth"
	"github.com/harrisonrobin/agmd/pkg/colors"
	"github.com/harrisonrobin/agmd/pkg/google"
	"github.com/harrisonrobin/agmd/pkg/index"
	"github.com/harrisonrobin/agmd/pkg/model"
	"github.com/harrisonrobin/agmd/pkg/overdue"
	"github.com/harrisonrobin/agmd/pkg/util"
)

func newAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with Google Calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := auth.NewFlow(logger)
			if err != nil {
				return errors.Wrap(err, "could not find path to configuration file")
			}
			flow.Out = cmd.OutOrStdout()
			if err := flow.Reset(); err != nil {
				return err
			}
			if _, err := flow.CalendarService(cmd.Context()); err != nil {
				return errors.Wrap(err, "authentication failed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Authentication successful! Token saved to %s\n",
				filepath.Join(flow.Dir, auth.TokenFile))
			return nil
		},
	}
}

func newSyncCmd() *cobra.Command {
	var calendarName string
	cmd := &cobra.Command{
		Use:   "sync [root]",
		Short: "Mirror scheduled todos into a Google calendar",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if calendarName == "" {
				calendarName = cfg.Calendar
			}
			ctx := cmd.Context()

			list, err := newLoader(rootArg(args)).Load(ctx)
			if err != nil {
				return err
			}

			s, err := newSyncer(ctx, calendarName)
			if err != nil {
				return err
			}
			stats := s.run(ctx, list, time.Now())
			if err := s.save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d, skipped %d, deleted %d, marked overdue %d\n",
				stats.synced, stats.skipped, stats.deleted, stats.overdue)
			return nil
		},
	}
	cmd.Flags().StringVarP(&calendarName, "calendar", "c", "", "Google calendar to sync with (overrides config)")
	return cmd
}

// syncer holds the state of one sync run.
type syncer struct {
	client *google.CalendarClient
	index  *index.EventIndex
	table  *overdue.Table
	colors *colors.ColorCache
}

type syncStats struct {
	synced, skipped, deleted, overdue int
}

func newSyncer(ctx context.Context, calendarName string) (*syncer, error) {
	idx, err := index.NewEventIndex()
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize event index")
	}
	table, err := overdue.NewTable()
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize overdue sweep table")
	}
	colorCache, err := colors.NewColorCache()
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize color cache")
	}
	flow, err := auth.NewFlow(logger)
	if err != nil {
		return nil, err
	}
	client, err := google.NewClient(ctx, flow, calendarName, idx)
	if err != nil {
		return nil, errors.Wrap(err, "error creating Google Calendar client")
	}
	return &syncer{client: client, index: idx, table: table, colors: colorCache}, nil
}

// run sweeps the overdue table, mirrors every scheduled todo and deletes the
// events of todos that left the tree. Failures on single todos are logged
// and do not stop the run.
func (s *syncer) run(ctx context.Context, todos []model.Todo, now time.Time) syncStats {
	var stats syncStats

	for _, e := range s.table.Sweep(now) {
		patch := &calendar.Event{Summary: util.PrefixOverdue + " " + e.Summary}
		if _, err := s.client.PatchEvent(ctx, e.EventID, patch); err != nil {
			logger.Warn("sweep: error patching event", zap.String("event", e.EventID), zap.Error(err))
			continue
		}
		stats.overdue++
	}

	// A todo that is still in the tree keeps its event while its marker is
	// broken. One that lost its dates does not.
	seen := make(map[string]bool, len(todos))
	for _, todo := range todos {
		if err := syncable(todo); err != nil {
			logger.Debug("skipping todo", zap.String("path", todo.Source.Path),
				zap.Int("line", todo.Source.Line), zap.Error(err))
			if !errors.Is(err, util.ErrNoDates) {
				seen[todo.ID] = true
			}
			stats.skipped++
			continue
		}
		seen[todo.ID] = true

		opts := util.EventOptions{
			Now:      now,
			Location: time.Local,
			ColorID:  s.colors.ColorID(todo.Source.Path),
		}
		event, err := s.client.SyncTodo(ctx, todo, opts)
		if err != nil {
			logger.Warn("error syncing todo", zap.String("todo", todo.ID),
				zap.String("path", todo.Source.Path), zap.Int("line", todo.Source.Line), zap.Error(err))
			stats.skipped++
			continue
		}
		stats.synced++

		if todo.Done {
			s.table.Remove(todo.ID)
		} else {
			s.table.Update(todo.ID, event.Id, todo.Summary, todo.Attributes.Due, now)
		}
	}

	for _, id := range s.index.IDs() {
		if seen[id] {
			continue
		}
		if err := s.client.DeleteTodo(ctx, id); err != nil {
			logger.Warn("error deleting event", zap.String("todo", id), zap.Error(err))
			continue
		}
		s.table.Remove(id)
		stats.deleted++
	}
	return stats
}

// syncable reports why todo cannot become an event, if it cannot.
func syncable(todo model.Todo) error {
	if todo.Malformed() {
		return errors.Errorf("malformed marker %q", todo.Raw)
	}
	a := todo.Attributes
	if a.Start == nil && a.Due == nil && a.Completed == nil {
		return util.ErrNoDates
	}
	return a.Validate()
}

func (s *syncer) save() error {
	if err := s.index.Save(); err != nil {
		return errors.Wrap(err, "failed to save event index")
	}
	if err := s.table.Save(); err != nil {
		return errors.Wrap(err, "failed to save overdue sweep table")
	}
	if err := s.colors.Save(); err != nil {
		return errors.Wrap(err, "failed to save color cache")
	}
	return nil
}
