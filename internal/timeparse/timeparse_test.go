package timeparse

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var pdt = time.FixedZone("PDT", -7*60*60)

func testParser() *Parser {
	return New(pdt, time.Date(2026, 10, 15, 9, 0, 0, 0, pdt))
}

func TestParseTime(t *testing.T) {
	p := testParser()

	tests := []struct {
		input    string
		expected time.Time
	}{
		{"now", time.Date(2026, 10, 15, 9, 0, 0, 0, pdt)},
		{"  NOW ", time.Date(2026, 10, 15, 9, 0, 0, 0, pdt)},
		{"2026-10-14 22:30", time.Date(2026, 10, 14, 22, 30, 0, 0, pdt)},
		{"2026-10-14T22:30:00", time.Date(2026, 10, 14, 22, 30, 0, 0, pdt)},
		{"22:30", time.Date(2026, 10, 15, 22, 30, 0, 0, pdt)},
		{"10 PM yesterday", time.Date(2026, 10, 14, 22, 0, 0, 0, pdt)},
		{"7:30pm yesterday", time.Date(2026, 10, 14, 19, 30, 0, 0, pdt)},
		{"1:30 am", time.Date(2026, 10, 15, 1, 30, 0, 0, pdt)},
		{"October 14, 2026 10:00 PM", time.Date(2026, 10, 14, 22, 0, 0, 0, pdt)},
		{"Oct 14, 2026 22:15", time.Date(2026, 10, 14, 22, 15, 0, 0, pdt)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := p.ParseTime(tt.input)
			if err != nil {
				t.Fatalf("ParseTime(%q) error = %v", tt.input, err)
			}
			if !got.Equal(tt.expected) {
				t.Errorf("ParseTime(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseTime_Errors(t *testing.T) {
	p := testParser()

	for _, input := range []string{
		"",
		"   ",
		"zzqx",
		"xyz",
		"sleep well",
		"tomorow",
		"10pm yesterdy",
		"10pm and then some",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := p.ParseTime(input)
			if !errors.Is(err, ErrParse) {
				t.Errorf("ParseTime(%q) error = %v, want ErrParse", input, err)
			}
		})
	}
}

func TestParseTime_SleepScenario(t *testing.T) {
	p := testParser()

	start, err := p.ParseTime("7:30pm yesterday")
	if err != nil {
		t.Fatal(err)
	}
	end, err := p.ParseTime("1:30am")
	if err != nil {
		t.Fatal(err)
	}

	if !start.Before(end) {
		t.Fatalf("expected start %v before end %v", start, end)
	}
	if got := end.Sub(start); got != 6*time.Hour {
		t.Errorf("interval = %v, want 6h", got)
	}
}

func TestParseDuration(t *testing.T) {
	p := testParser()

	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		// Bare hours
		{"8", 8 * time.Hour, false},
		{"16", 16 * time.Hour, false},
		{"7.5", 7*time.Hour + 30*time.Minute, false},
		{"0", 0, false},
		{" 21 ", 21 * time.Hour, false},

		// Go syntax
		{"2h", 2 * time.Hour, false},
		{"8h30m", 8*time.Hour + 30*time.Minute, false},
		{"8h 30m", 8*time.Hour + 30*time.Minute, false},

		// Unit phrases
		{"8 hours", 8 * time.Hour, false},
		{"8 hours 30 minutes", 8*time.Hour + 30*time.Minute, false},
		{"8 hours, 15 minutes", 8*time.Hour + 15*time.Minute, false},
		{"1 hour and 5 mins", time.Hour + 5*time.Minute, false},
		{"1 day", 24 * time.Hour, false},
		{"90 Minutes", 90 * time.Minute, false},

		// Errors
		{"", 0, true},
		{"-3", 0, true},
		{"-2h", 0, true},
		{"NaN", 0, true},
		{"zzqx", 0, true},
		{"8 parsecs", 0, true},
		{"99999999999 weeks", 0, true},
		{"2562047 hours 48 minutes", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := p.ParseDuration(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if tt.wantErr && !errors.Is(err, ErrParse) {
				t.Errorf("ParseDuration(%q) error = %v, want ErrParse", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNew_PinsNow(t *testing.T) {
	utcNow := time.Date(2026, 10, 15, 16, 0, 0, 0, time.UTC)
	p := New(pdt, utcNow)

	if p.Now().Location() != pdt {
		t.Errorf("Now() location = %v, want %v", p.Now().Location(), pdt)
	}
	if !p.Now().Equal(utcNow) {
		t.Errorf("Now() = %v, want %v", p.Now(), utcNow)
	}

	got, err := p.ParseTime("now")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(p.Now()) {
		t.Errorf("ParseTime(now) = %v, want %v", got, p.Now())
	}
}

func TestCovers(t *testing.T) {
	p := testParser()

	tests := []struct {
		input string
		want  bool
	}{
		{"10 PM yesterday", true},
		{"  last friday ", true},
		{"10pm yesterdy", false},
		{"sleep at 10pm", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			s := strings.TrimSpace(tt.input)
			r, err := p.nlp.Parse(s, p.now)
			if err != nil {
				t.Fatal(err)
			}
			if got := covers(r, s); got != tt.want {
				t.Errorf("covers(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNaturalVocabulary(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"last friday", true},
		{"3 days ago", true},
		{"10:30 pm", true},
		{"tomorow", false},
		{"friday night", false},
	}

	for _, tt := range tests {
		if got := naturalVocabulary(tt.input); got != tt.want {
			t.Errorf("naturalVocabulary(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
