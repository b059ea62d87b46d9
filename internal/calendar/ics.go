package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	ics "github.com/emersion/go-ical"
)

const (
	// propCalName holds the calendar's display name.
	propCalName = "X-WR-CALNAME"

	// propCalTimeZone holds the calendar's default time zone.
	propCalTimeZone = "X-WR-TIMEZONE"
)

// ICSFile writes events to a local ICS file. The file holds a single
// calendar whose name is stored in X-WR-CALNAME. It is created by the
// first insert.
type ICSFile struct {
	path string
}

// NewICSFile creates a collaborator backed by the file at path.
func NewICSFile(path string) *ICSFile {
	return &ICSFile{path: path}
}

// EnsureCalendar returns the calendar name as its ID. An existing file
// holding a different calendar is an error.
func (f *ICSFile) EnsureCalendar(ctx context.Context, name string, loc *time.Location) (string, error) {
	cal, err := f.read()
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("calendar file will be created", "name", name, "path", f.path, "timezone", loc.String())
		return name, nil
	}
	if err != nil {
		return "", err
	}

	if err := checkName(cal, name); err != nil {
		return "", fmt.Errorf("%s: %w", f.path, err)
	}

	slog.Info("calendar already exists", "name", name, "path", f.path)
	return name, nil
}

// InsertEvent appends ev to the calendar file, creating the file if needed.
func (f *ICSFile) InsertEvent(ctx context.Context, calendarID string, ev Event) (EventRef, error) {
	cal, err := f.read()
	switch {
	case errors.Is(err, os.ErrNotExist):
		cal = newVCalendar()
		cal.Props.SetText(propCalName, calendarID)
		if tzidLocation(ev.Start.Location()) {
			cal.Props.SetText(propCalTimeZone, ev.Start.Location().String())
		}
	case err != nil:
		return EventRef{}, err
	default:
		if err := checkName(cal, calendarID); err != nil {
			return EventRef{}, fmt.Errorf("%s: %w", f.path, err)
		}
		if cal.Props.Get(propCalName) == nil {
			cal.Props.SetText(propCalName, calendarID)
		}
	}

	ev.ensureUID()
	addEvent(cal, ev)

	if err := f.write(cal); err != nil {
		return EventRef{}, err
	}

	u := url.URL{Scheme: "file", Path: f.path, Fragment: ev.UID}
	return EventRef{ID: ev.UID, URL: u.String()}, nil
}

// checkName reports an error when cal is named something other than name.
// Unnamed calendars are accepted.
func checkName(cal *ics.Calendar, name string) error {
	prop := cal.Props.Get(propCalName)
	if prop != nil && prop.Value != name {
		return fmt.Errorf("holds calendar %q, not %q", prop.Value, name)
	}
	return nil
}

// read decodes the calendar file.
func (f *ICSFile) read() (*ics.Calendar, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open ICS file: %w", err)
	}
	defer file.Close()

	cal, err := ics.NewDecoder(file).Decode()
	if err == io.EOF {
		return nil, fmt.Errorf("decode ICS %s: empty file", f.path)
	}
	if err != nil {
		return nil, fmt.Errorf("decode ICS: %w", err)
	}
	return cal, nil
}

// write encodes cal to the file atomically.
// It writes to a temp file first, then renames to the final path.
func (f *ICSFile) write(cal *ics.Calendar) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	var buf bytes.Buffer
	if err := ics.NewEncoder(&buf).Encode(cal); err != nil {
		return fmt.Errorf("encode ICS: %w", err)
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath) // Clean up temp file on error
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// Ensure ICSFile implements Collaborator interface.
var _ Collaborator = (*ICSFile)(nil)
