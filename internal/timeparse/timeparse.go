// Package timeparse resolves free-form time and duration expressions.
//
// Times are parsed in layers: the "now" keyword, absolute layouts, and then
// two natural language parsers. Durations accept bare hour counts, Go
// duration syntax, unit phrases ("8 hours 30 minutes"), and finally any
// expression that can be read as an offset from now.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	jnow "github.com/jinzhu/now"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/tj/go-naturaldate"
)

// ErrParse is returned when text cannot be resolved to a time or duration.
var ErrParse = errors.New("parse error")

// absoluteLayouts are tried before any natural language parsing so that
// explicit timestamps are never reinterpreted.
var absoluteLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"1/2/2006 15:04",
	"1/2/2006",
	"January 2, 2006 3:04 PM",
	"Jan 2, 2006 3:04 PM",
	"January 2, 2006 15:04",
	"Jan 2, 2006 15:04",
	"January 2, 2006",
	"Jan 2, 2006",
	"15:04:05",
	"15:04",
}

// Parser parses expressions relative to a fixed instant in a fixed location.
// A Parser samples "now" once so that every default resolved during a run
// refers to the same instant.
type Parser struct {
	now time.Time
	nlp *when.Parser
	abs *jnow.Config
}

// New creates a parser that interprets wall-clock expressions in loc,
// relative to now.
func New(loc *time.Location, now time.Time) *Parser {
	if loc == nil {
		loc = time.Local
	}

	nlp := when.New(nil)
	nlp.Add(en.All...)
	nlp.Add(common.All...)

	return &Parser{
		now: now.In(loc),
		nlp: nlp,
		abs: &jnow.Config{
			WeekStartDay: time.Monday,
			TimeLocation: loc,
			TimeFormats:  absoluteLayouts,
		},
	}
}

// Now returns the instant the parser resolves relative expressions against.
func (p *Parser) Now() time.Time {
	return p.now
}

// ParseTime parses an absolute or relative time expression such as
// "now", "2026-10-14 22:30", "10 PM yesterday" or "last friday".
func (p *Parser) ParseTime(text string) (time.Time, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty time", ErrParse)
	}

	if strings.EqualFold(s, "now") {
		return p.now, nil
	}

	if t, err := p.abs.With(p.now).Parse(s); err == nil {
		return t, nil
	}

	if r, err := p.nlp.Parse(s, p.now); err == nil && covers(r, s) {
		return r.Time, nil
	}

	if naturalVocabulary(s) {
		t, err := naturaldate.Parse(s, p.now, naturaldate.WithDirection(naturaldate.Past))
		if err == nil && !t.Equal(p.now) {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: unable to parse time %q", ErrParse, text)
}

// covers reports whether r matched all of s rather than a fragment of it.
// when picks the first cluster of matches and drops the rest of the text.
func covers(r *when.Result, s string) bool {
	if r == nil || r.Index < 0 {
		return false
	}
	end := r.Index + len(r.Text)
	if end > len(s) {
		return false
	}
	return strings.TrimSpace(s[:r.Index]) == "" && strings.TrimSpace(s[end:]) == ""
}

// naturalWords is every word go-naturaldate's grammar knows. The grammar
// skips anything else, so "tomorow" would otherwise parse as now.
var naturalWords = map[string]bool{
	"now": true, "today": true, "yesterday": true, "tomorrow": true,
	"ago": true, "from": true, "in": true, "a": true, "an": true,
	"last": true, "past": true, "previous": true, "next": true,
	"am": true, "pm": true, "st": true, "nd": true, "rd": true, "th": true,
	"minute": true, "minutes": true, "hour": true, "hours": true,
	"day": true, "days": true, "week": true, "weeks": true,
	"month": true, "months": true, "year": true, "years": true,
	"one": true, "two": true, "three": true, "four": true, "five": true,
	"six": true, "seven": true, "eight": true, "nine": true, "ten": true,
	"sunday": true, "monday": true, "tuesday": true, "wednesday": true,
	"thursday": true, "friday": true, "saturday": true,
	"january": true, "february": true, "march": true, "april": true,
	"may": true, "june": true, "july": true, "august": true,
	"september": true, "october": true, "november": true, "december": true,
}

var wordRe = regexp.MustCompile(`[a-z]+`)

// naturalVocabulary reports whether every word in s is one naturaldate understands.
func naturalVocabulary(s string) bool {
	for _, w := range wordRe.FindAllString(strings.ToLower(s), -1) {
		if !naturalWords[w] {
			return false
		}
	}
	return true
}
