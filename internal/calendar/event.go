// Package calendar provides the calendar collaborator interface and its backends.
package calendar

import (
	"context"
	"time"

	ics "github.com/emersion/go-ical"
	"github.com/google/uuid"
)

// productID identifies sleeptrack in generated iCalendar data.
const productID = "-//SleepTrack//SleepTrack//EN"

// Event is a calendar event to be written.
type Event struct {
	// UID is the unique identifier for this event. Backends that need one
	// generate it when empty.
	UID string

	// Summary is the event title.
	Summary string

	// Description is the event body.
	Description string

	// Start is when the event begins.
	Start time.Time

	// End is when the event ends.
	End time.Time

	// TimeZone is the IANA zone name the event is displayed in.
	TimeZone string
}

// NewEvent creates an event whose time zone is taken from start. Zones
// without an IANA name are recorded as UTC.
func NewEvent(summary string, start, end time.Time) Event {
	zone := "UTC"
	if tzidLocation(start.Location()) {
		zone = start.Location().String()
	}
	return Event{
		Summary:  summary,
		Start:    start,
		End:      end,
		TimeZone: zone,
	}
}

// ensureUID assigns a random UID when none is set.
func (e *Event) ensureUID() {
	if e.UID == "" {
		e.UID = uuid.NewString() + "@sleeptrack"
	}
}

// EventRef identifies an event created by a collaborator.
type EventRef struct {
	// ID is the backend's identifier for the event.
	ID string

	// URL is a link suitable for display.
	URL string
}

// Collaborator is the interface calendar backends must implement.
type Collaborator interface {
	// EnsureCalendar returns the ID of the calendar with the given name,
	// creating it in loc when it does not exist. Calling it again with the
	// same name returns the same ID.
	EnsureCalendar(ctx context.Context, name string, loc *time.Location) (string, error)

	// InsertEvent adds ev to the calendar and returns a reference to it.
	InsertEvent(ctx context.Context, calendarID string, ev Event) (EventRef, error)
}

// newVCalendar creates an empty VCALENDAR with the required properties.
func newVCalendar() *ics.Calendar {
	cal := ics.NewCalendar()
	cal.Props.SetText(ics.PropVersion, "2.0")
	cal.Props.SetText(ics.PropProductID, productID)
	return cal
}

// newVEvent converts an Event to an ICS VEVENT component. Callers go
// through addEvent so that a TZID always has a matching VTIMEZONE.
func newVEvent(ev Event) *ics.Component {
	comp := ics.NewComponent(ics.CompEvent)

	comp.Props.SetText(ics.PropUID, ev.UID)
	comp.Props.SetText(ics.PropSummary, ev.Summary)

	// DTSTAMP is required by RFC 5545
	comp.Props.SetDateTime(ics.PropDateTimeStamp, time.Now().UTC())

	if ev.Description != "" {
		comp.Props.SetText(ics.PropDescription, ev.Description)
	}

	comp.Props.SetDateTime(ics.PropDateTimeStart, ev.Start)
	comp.Props.SetDateTime(ics.PropDateTimeEnd, ev.End)

	return comp
}
