package calendar

import (
	"strings"
	"testing"
	"time"

	ics "github.com/emersion/go-ical"
)

func TestFormatOffset(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "+0000"},
		{-7 * 3600, "-0700"},
		{5*3600 + 30*60, "+0530"},
		{-(9*3600 + 30*60), "-0930"},
		{-(17*60 + 30), "-001730"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := formatOffset(tt.seconds); got != tt.want {
				t.Errorf("formatOffset(%d) = %q, want %q", tt.seconds, got, tt.want)
			}
		})
	}
}

func TestTZIDLocation(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		loc  *time.Location
		want bool
	}{
		{"iana", la, true},
		{"utc", time.UTC, false},
		{"local", time.Local, false},
		{"fixed", time.FixedZone("PDT", -7*3600), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tzidLocation(tt.loc); got != tt.want {
				t.Errorf("tzidLocation = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransitions(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}

	got := transitions(la, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
	want := []time.Time{
		time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC),
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("transition %d = %v, want %v", i, got[i].UTC(), want[i])
		}
	}

	if got := transitions(time.UTC, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)); len(got) != 0 {
		t.Errorf("UTC transitions = %v", got)
	}
}

func encodeCalendar(t *testing.T, cal *ics.Calendar) string {
	t.Helper()
	var b strings.Builder
	if err := ics.NewEncoder(&b).Encode(cal); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b.String()
}

func TestAddEvent_VTimezone(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2026, 10, 14, 19, 30, 0, 0, la)
	ev := NewEvent("Sleep: 6.0 hours", start, start.Add(6*time.Hour))
	ev.UID = "abc@sleeptrack"

	cal := newVCalendar()
	addEvent(cal, ev)
	out := encodeCalendar(t, cal)

	for _, want := range []string{
		"BEGIN:VTIMEZONE",
		"TZID:America/Los_Angeles",
		"BEGIN:STANDARD",
		"BEGIN:DAYLIGHT",
		"TZOFFSETFROM:-0700",
		"TZOFFSETTO:-0800",
		"TZNAME:PST",
		"DTSTART:20261101T020000",
		"DTSTART:20260308T020000",
		"DTSTART;TZID=America/Los_Angeles:20261014T193000",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, "BEGIN:VTIMEZONE") > strings.Index(out, "BEGIN:VEVENT") {
		t.Errorf("VTIMEZONE after VEVENT in:\n%s", out)
	}
}

func TestAddEvent_UnnamedZone(t *testing.T) {
	tests := []struct {
		name string
		loc  *time.Location
	}{
		{"fixed", time.FixedZone("PDT", -7*3600)},
		{"local", time.Local},
		{"utc", time.UTC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Date(2026, 10, 14, 19, 30, 0, 0, tt.loc)
			ev := NewEvent("Sleep: 6.0 hours", start, start.Add(6*time.Hour))
			if ev.TimeZone != "UTC" {
				t.Errorf("TimeZone = %q, want UTC", ev.TimeZone)
			}

			cal := newVCalendar()
			addEvent(cal, ev)
			out := encodeCalendar(t, cal)

			if strings.Contains(out, "VTIMEZONE") || strings.Contains(out, "TZID") {
				t.Errorf("unexpected zone reference in:\n%s", out)
			}
			if want := "DTSTART:" + start.UTC().Format(localDateTimeLayout) + "Z"; !strings.Contains(out, want) {
				t.Errorf("missing %q in:\n%s", want, out)
			}
		})
	}
}

func TestMergeTimezone(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}

	cal := newVCalendar()
	first := time.Date(2026, 10, 14, 19, 30, 0, 0, la)
	second := time.Date(2027, 6, 1, 22, 0, 0, 0, la)
	for _, start := range []time.Time{first, first, second} {
		addEvent(cal, NewEvent("Sleep", start, start.Add(8*time.Hour)))
	}

	var zones []*ics.Component
	for _, child := range cal.Children {
		if child.Name == ics.CompTimezone {
			zones = append(zones, child)
		}
	}
	if len(zones) != 1 {
		t.Fatalf("got %d VTIMEZONE components, want 1", len(zones))
	}

	seen := make(map[string]bool)
	for _, obs := range zones[0].Children {
		key := observanceKey(obs)
		if seen[key] {
			t.Errorf("duplicate observance %s", key)
		}
		seen[key] = true
	}
	// The second event extends the range to the 2028 spring change.
	if !seen[ics.CompTimezoneDaylight+"/20280312T020000"] {
		t.Errorf("observances = %v", seen)
	}
	if got := len(cal.Events()); got != 3 {
		t.Errorf("got %d events, want 3", got)
	}
}
