// Package calendar holds the calendar service clients the event sync writes to.
package calendar

import (
	"context"

	"google.golang.org/api/calendar/v3"
)

// CalendarClient is the narrow calendar interface the event sync uses.
// Both the Google Calendar and the CalDAV clients implement it; events are
// exchanged as Google Calendar events, with shared extended properties as the
// metadata bag.
type CalendarClient interface {
	ListEvents(ctx context.Context, calendarID string) ([]*calendar.Event, error)
	InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, event *calendar.Event) error
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}
