package google

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/harrisonrobin/agmd/pkg/index"
	"github.com/harrisonrobin/agmd/pkg/model"
	"github.com/harrisonrobin/agmd/pkg/util"
)

// CalendarClient mirrors todos into one Google calendar.
type CalendarClient struct {
	srv        *calendar.Service
	calendarID string
	index      *index.EventIndex
	logger     *zap.Logger
}

// NewCalendarClient creates a client for calendarID. idx may be nil.
func NewCalendarClient(srv *calendar.Service, calendarID string, idx *index.EventIndex, logger *zap.Logger) *CalendarClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarClient{srv: srv, calendarID: calendarID, index: idx, logger: logger}
}

// SyncTodo creates the event for todo or patches the existing one.
func (c *CalendarClient) SyncTodo(ctx context.Context, todo model.Todo, opts util.EventOptions) (*calendar.Event, error) {
	event, err := util.ConvertTodoToCalendarEvent(&todo, opts)
	if err != nil {
		return nil, err
	}

	var existing *calendar.Event
	if c.index != nil {
		if eventID := c.index.Get(todo.ID); eventID != "" {
			existing, err = c.srv.Events.Get(c.calendarID, eventID).Context(ctx).Do()
			if err != nil || existing.Status == "cancelled" {
				c.logger.Debug("indexed event is gone", zap.String("todo", todo.ID), zap.String("event", eventID))
				existing = nil
			}
		}
	}
	if existing == nil {
		existing, err = c.GetEventByTodoID(ctx, todo.ID)
		if err != nil {
			return nil, errors.Wrap(err, "error searching for event")
		}
	}

	if existing != nil {
		patch, err := util.EventNeedsUpdate(existing, event)
		if err != nil {
			return nil, errors.Wrapf(err, "could not compare todo %s with its event", todo.ID)
		}
		if patch == nil {
			c.setIndex(todo.ID, existing.Id)
			return existing, nil
		}
		updated, err := c.PatchEvent(ctx, existing.Id, patch)
		if err != nil {
			return nil, err
		}
		c.setIndex(todo.ID, updated.Id)
		return updated, nil
	}

	created, err := c.srv.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create event for todo %s", todo.ID)
	}
	c.logger.Info("created event", zap.String("todo", todo.ID), zap.String("event", created.Id))
	c.setIndex(todo.ID, created.Id)
	return created, nil
}

func (c *CalendarClient) setIndex(todoID, eventID string) {
	if c.index != nil {
		c.index.Set(todoID, eventID)
	}
}

// PatchEvent performs a partial update on an event.
func (c *CalendarClient) PatchEvent(ctx context.Context, eventID string, patch *calendar.Event) (*calendar.Event, error) {
	event, err := c.srv.Events.Patch(c.calendarID, eventID, patch).Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to patch event %s", eventID)
	}
	return event, nil
}

// DeleteEvent deletes an event. An event that is already gone is not an
// error.
func (c *CalendarClient) DeleteEvent(ctx context.Context, eventID string) error {
	err := c.srv.Events.Delete(c.calendarID, eventID).Context(ctx).Do()
	if googleapi.IsCode(err, http.StatusNotFound) || googleapi.IsCode(err, http.StatusGone) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to delete event %s", eventID)
	}
	return nil
}

// DeleteTodo removes the event of todoID, found through the index or the
// extended property, and forgets the mapping.
func (c *CalendarClient) DeleteTodo(ctx context.Context, todoID string) error {
	eventID := ""
	if c.index != nil {
		eventID = c.index.Get(todoID)
	}
	if eventID == "" {
		event, err := c.GetEventByTodoID(ctx, todoID)
		if err != nil {
			return err
		}
		if event != nil {
			eventID = event.Id
		}
	}
	if eventID != "" {
		if err := c.DeleteEvent(ctx, eventID); err != nil {
			return err
		}
	}
	if c.index != nil {
		c.index.Remove(todoID)
	}
	return nil
}

// ListEvents fetches the events starting from timeMin on.
func (c *CalendarClient) ListEvents(ctx context.Context, timeMin time.Time) ([]*calendar.Event, error) {
	events, err := c.srv.Events.List(c.calendarID).TimeMin(timeMin.Format(time.RFC3339)).Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrap(err, "unable to retrieve events from calendar")
	}
	return events.Items, nil
}

// GetEventByTodoID finds the event carrying todoID in its private extended
// properties. It returns nil when there is none.
func (c *CalendarClient) GetEventByTodoID(ctx context.Context, todoID string) (*calendar.Event, error) {
	events, err := c.srv.Events.List(c.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", util.PropertyTodoID, todoID)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	for _, event := range events.Items {
		if event.Status != "cancelled" {
			return event, nil
		}
	}
	return nil, nil
}
