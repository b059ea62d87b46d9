package timeparse

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationUnits = map[string]time.Duration{
	"s":       time.Second,
	"sec":     time.Second,
	"secs":    time.Second,
	"second":  time.Second,
	"seconds": time.Second,
	"m":       time.Minute,
	"min":     time.Minute,
	"mins":    time.Minute,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"h":       time.Hour,
	"hr":      time.Hour,
	"hrs":     time.Hour,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"d":       24 * time.Hour,
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
	"w":       7 * 24 * time.Hour,
	"week":    7 * 24 * time.Hour,
	"weeks":   7 * 24 * time.Hour,
}

var (
	// durationTermRe matches a single "<number> <unit>" term, e.g. "8 hours" or "30m".
	durationTermRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([a-zA-Z]+)`)

	// durationSepRe matches what may appear between terms.
	durationSepRe = regexp.MustCompile(`^(?i:[\s,]|and)*$`)
)

// maxHours bounds bare hour counts so the conversion cannot overflow.
const maxHours = float64(math.MaxInt64 / int64(time.Hour))

// maxDuration is the largest value a time.Duration can hold, as a float.
const maxDuration = float64(math.MaxInt64)

var errDurationRange = errors.New("duration out of range")

// ParseDuration parses a duration expression.
//
// A bare number is a count of hours ("8", "7.5"). Otherwise the text may be
// Go duration syntax ("2h", "8h 30m"), a sequence of unit terms
// ("8 hours 30 minutes", "1 day"), or any natural language offset that can
// be resolved against now ("half an hour").
func (p *Parser) ParseDuration(text string) (time.Duration, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, fmt.Errorf("%w: empty duration", ErrParse)
	}

	if hours, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(hours) || hours < 0 || hours > maxHours {
			return 0, fmt.Errorf("%w: invalid number of hours %q", ErrParse, text)
		}
		return time.Duration(hours * float64(time.Hour)), nil
	}

	if d, err := time.ParseDuration(strings.ReplaceAll(s, " ", "")); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative duration %q", ErrParse, text)
		}
		return d, nil
	}

	d, ok, err := parseUnitTerms(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v: %q", ErrParse, err, text)
	}
	if ok {
		return d, nil
	}

	if d, ok := p.parseOffset(s); ok {
		return d, nil
	}

	return 0, fmt.Errorf("%w: unable to parse duration %q", ErrParse, text)
}

// parseUnitTerms sums every "<number> <unit>" term in s. It reports false
// if anything other than separators appears between or around the terms,
// and errDurationRange if the sum does not fit in a time.Duration.
func parseUnitTerms(s string) (time.Duration, bool, error) {
	matches := durationTermRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return 0, false, nil
	}

	var total time.Duration
	prev := 0
	for _, m := range matches {
		if !durationSepRe.MatchString(s[prev:m[0]]) {
			return 0, false, nil
		}

		n, err := strconv.ParseFloat(s[m[2]:m[3]], 64)
		if err != nil {
			return 0, false, nil
		}
		unit, ok := durationUnits[strings.ToLower(s[m[4]:m[5]])]
		if !ok {
			return 0, false, nil
		}

		term := n * float64(unit)
		if term >= maxDuration-float64(total) {
			return 0, false, errDurationRange
		}
		total += time.Duration(term)
		prev = m[1]
	}

	if !durationSepRe.MatchString(s[prev:]) {
		return 0, false, nil
	}
	return total, true, nil
}

// parseOffset reads s as "in <s>" relative to now and returns the delta.
func (p *Parser) parseOffset(s string) (time.Duration, bool) {
	text := "in " + s
	r, err := p.nlp.Parse(text, p.now)
	if err != nil || !covers(r, text) {
		return 0, false
	}

	d := r.Time.Sub(p.now)
	if d <= 0 {
		return 0, false
	}
	return d, true
}
