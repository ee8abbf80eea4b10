package google

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/agmd/pkg/auth"
	"github.com/harrisonrobin/agmd/pkg/index"
)

// NewClient authorizes through flow and opens the calendar named
// calendarName.
func NewClient(ctx context.Context, flow *auth.Flow, calendarName string, idx *index.EventIndex) (*CalendarClient, error) {
	srv, err := flow.CalendarService(ctx)
	if err != nil {
		return nil, err
	}
	calendarID, err := FindCalendarID(ctx, srv, calendarName)
	if err != nil {
		return nil, err
	}
	return NewCalendarClient(srv, calendarID, idx, flow.Logger), nil
}

// FindCalendarID returns the ID of the calendar whose summary is name.
func FindCalendarID(ctx context.Context, srv *calendar.Service, name string) (string, error) {
	list, err := srv.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return "", errors.Wrap(err, "unable to retrieve calendar list")
	}
	for _, item := range list.Items {
		if item.Summary == name {
			return item.Id, nil
		}
	}
	return "", errors.Errorf("calendar %q not found", name)
}
