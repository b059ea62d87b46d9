package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gcal "google.golang.org/api/calendar/v3"
)

// GoogleCalendar writes events through the Google Calendar API.
type GoogleCalendar struct {
	svc *gcal.Service
}

// NewGoogleCalendar creates a Google Calendar collaborator from an
// authenticated service.
func NewGoogleCalendar(svc *gcal.Service) *GoogleCalendar {
	return &GoogleCalendar{svc: svc}
}

// EnsureCalendar returns the ID of the calendar whose summary is name,
// creating it if none exists.
func (g *GoogleCalendar) EnsureCalendar(ctx context.Context, name string, loc *time.Location) (string, error) {
	// The API has no lookup by name, so scan the calendar list.
	pageToken := ""
	for {
		call := g.svc.CalendarList.List().Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		list, err := call.Do()
		if err != nil {
			return "", fmt.Errorf("list calendars: %w", err)
		}

		for _, c := range list.Items {
			if c.Summary == name {
				slog.Info("calendar already exists", "name", name, "id", c.Id)
				return c.Id, nil
			}
		}

		if list.NextPageToken == "" {
			break
		}
		pageToken = list.NextPageToken
	}

	created, err := g.svc.Calendars.Insert(&gcal.Calendar{
		Summary:  name,
		TimeZone: loc.String(),
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create calendar %q: %w", name, err)
	}

	slog.Info("created calendar", "name", name, "id", created.Id)
	return created.Id, nil
}

// InsertEvent creates ev in the given calendar.
func (g *GoogleCalendar) InsertEvent(ctx context.Context, calendarID string, ev Event) (EventRef, error) {
	event := &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start: &gcal.EventDateTime{
			DateTime: ev.Start.Format(time.RFC3339),
			TimeZone: ev.TimeZone,
		},
		End: &gcal.EventDateTime{
			DateTime: ev.End.Format(time.RFC3339),
			TimeZone: ev.TimeZone,
		},
	}

	created, err := g.svc.Events.Insert(calendarID, event).Context(ctx).Do()
	if err != nil {
		return EventRef{}, fmt.Errorf("insert event: %w", err)
	}

	return EventRef{ID: created.Id, URL: created.HtmlLink}, nil
}

// Ensure GoogleCalendar implements Collaborator interface.
var _ Collaborator = (*GoogleCalendar)(nil)
