// Package record writes resolved sleep intervals to the configured calendar.
package record

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/cpuguy83/sleeptrack/internal/auth"
	"github.com/cpuguy83/sleeptrack/internal/calendar"
	"github.com/cpuguy83/sleeptrack/internal/config"
	"github.com/cpuguy83/sleeptrack/internal/interval"
	"github.com/cpuguy83/sleeptrack/internal/report"
)

const (
	// SleepPrefix titles the recorded interval.
	SleepPrefix = "Sleep"

	// PredictedPrefix titles the predicted interval.
	PredictedPrefix = "Predicted Sleep"
)

// ErrUnknownBackend is returned for an unrecognized calendar backend.
var ErrUnknownBackend = errors.New("unknown calendar backend")

// Result holds the events created by a Record call.
type Result struct {
	CalendarID string
	Current    calendar.EventRef

	// Next is nil when no next interval was recorded.
	Next *calendar.EventRef
}

// Recorder writes sleep intervals to one calendar.
type Recorder struct {
	cal  calendar.Collaborator
	name string
	loc  *time.Location
}

// New creates a Recorder for the calendar described by cfg.
func New(ctx context.Context, cfg *config.Config) (*Recorder, error) {
	loc, err := cfg.Calendar.Location()
	if err != nil {
		return nil, err
	}

	cal, err := createCollaborator(ctx, cfg.Calendar)
	if err != nil {
		return nil, err
	}

	return NewWithCollaborator(cal, cfg.Calendar.Name, loc), nil
}

// NewWithCollaborator creates a Recorder that writes to the named calendar
// through cal.
func NewWithCollaborator(cal calendar.Collaborator, name string, loc *time.Location) *Recorder {
	return &Recorder{cal: cal, name: name, loc: loc}
}

// Record ensures the calendar exists and inserts the current interval and,
// when next is non-nil, the predicted one.
func (r *Recorder) Record(ctx context.Context, current interval.Interval, next *interval.Interval) (Result, error) {
	id, err := r.cal.EnsureCalendar(ctx, r.name, r.loc)
	if err != nil {
		return Result{}, fmt.Errorf("ensure calendar %q: %w", r.name, err)
	}
	slog.Info("using calendar", "name", r.name, "id", id)

	res := Result{CalendarID: id}

	res.Current, err = r.insert(ctx, id, SleepPrefix, current)
	if err != nil {
		return res, err
	}

	if next != nil {
		ref, err := r.insert(ctx, id, PredictedPrefix, *next)
		if err != nil {
			return res, err
		}
		res.Next = &ref
	}

	return res, nil
}

func (r *Recorder) insert(ctx context.Context, calendarID, prefix string, iv interval.Interval) (calendar.EventRef, error) {
	ev := calendar.NewEvent(report.Title(prefix, iv), iv.Start.In(r.loc), iv.End.In(r.loc))
	ev.Description = report.FormatInterval(iv)

	ref, err := r.cal.InsertEvent(ctx, calendarID, ev)
	if err != nil {
		return calendar.EventRef{}, fmt.Errorf("insert %q: %w", ev.Summary, err)
	}

	slog.Info("created event", "summary", ev.Summary, "id", ref.ID, "url", ref.URL)
	return ref, nil
}

// Close releases resources held by the collaborator.
func (r *Recorder) Close() error {
	if c, ok := r.cal.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// createCollaborator creates the calendar backend selected in configuration.
func createCollaborator(ctx context.Context, cfg config.CalendarConfig) (calendar.Collaborator, error) {
	switch cfg.Backend {
	case "google":
		ts, err := auth.NewGoogleAuth(cfg.SecurityDir).TokenSource(ctx)
		if err != nil {
			return nil, fmt.Errorf("google auth: %w", err)
		}
		svc, err := gcal.NewService(ctx, option.WithTokenSource(ts))
		if err != nil {
			return nil, fmt.Errorf("create calendar service: %w", err)
		}
		return calendar.NewGoogleCalendar(svc), nil

	case "caldav":
		if cfg.URL == "" {
			return nil, errors.New("caldav backend requires a url")
		}
		password, err := cfg.GetPassword()
		if err != nil {
			return nil, err
		}
		return calendar.NewCalDAVCalendar(cfg.URL, cfg.Username, password), nil

	case "icloud":
		password, err := cfg.GetPassword()
		if err != nil {
			return nil, err
		}
		return calendar.NewICloudCalendar(cfg.Username, password), nil

	case "ms365":
		return calendar.NewMS365Calendar(), nil

	case "ics":
		return calendar.NewICSFile(cfg.Path), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
