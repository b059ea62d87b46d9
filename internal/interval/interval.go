// Package interval resolves a sleep interval from partial start, end and
// duration inputs.
package interval

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Defaults used when a Config leaves a field unset.
const (
	DefaultTolerance = 5 * time.Minute
	DefaultEnd       = "now"
	DefaultDuration  = "8"
	DefaultOffset    = "16"
)

// displayLayout is used when naming times in error messages.
const displayLayout = "2006-01-02 15:04 MST"

// ErrUnreachable reports an input combination the resolver has no case for.
// Seeing it means the case table is incomplete, not that the input was bad.
var ErrUnreachable = errors.New("unreachable input combination")

// ValidationError reports an interval that is inconsistent or inverted.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Parser turns text into times and durations.
type Parser interface {
	ParseTime(text string) (time.Time, error)
	ParseDuration(text string) (time.Duration, error)
}

// Config holds the resolver's location, tolerance and default expressions.
type Config struct {
	// Location is the zone every resolved time is expressed in.
	Location *time.Location

	// Tolerance is the largest allowed difference between a supplied
	// duration and the one implied by start and end. Zero means
	// DefaultTolerance.
	Tolerance time.Duration

	// DefaultEnd is parsed as the end time when no end can be derived.
	DefaultEnd string

	// DefaultDuration is parsed as the duration when no duration can be derived.
	DefaultDuration string

	// DefaultOffset is the gap between the end of one interval and the
	// predicted start of the next.
	DefaultOffset string
}

func (c *Config) applyDefaults() {
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Tolerance == 0 {
		c.Tolerance = DefaultTolerance
	}
	if c.DefaultEnd == "" {
		c.DefaultEnd = DefaultEnd
	}
	if c.DefaultDuration == "" {
		c.DefaultDuration = DefaultDuration
	}
	if c.DefaultOffset == "" {
		c.DefaultOffset = DefaultOffset
	}
}

// Interval is a resolved sleep interval.
type Interval struct {
	Start    time.Time
	End      time.Time
	Duration time.Duration
}

// Inputs are the raw, unparsed values for one interval.
// Empty or whitespace-only fields are treated as absent.
type Inputs struct {
	Start    string
	End      string
	Duration string
}

// Empty reports whether no field is present.
func (in Inputs) Empty() bool {
	return present(in.Start) == "" && present(in.End) == "" && present(in.Duration) == ""
}

// present returns the trimmed value, or "" for an absent field.
func present(s string) string {
	return strings.TrimSpace(s)
}

// presence records which of start, end and duration were supplied.
type presence uint8

const (
	hasStart presence = 1 << iota
	hasEnd
	hasDuration
)

// Every valid combination of supplied fields.
const (
	onlyNone          presence = 0
	onlyStart                  = hasStart
	onlyEnd                    = hasEnd
	onlyDuration               = hasDuration
	startAndEnd                = hasStart | hasEnd
	startAndDuration           = hasStart | hasDuration
	endAndDuration             = hasEnd | hasDuration
	startEndDuration           = hasStart | hasEnd | hasDuration
)

// Resolver derives complete intervals from partial inputs.
type Resolver struct {
	parser Parser
	cfg    Config
}

// New creates a resolver. Zero fields of cfg take the package defaults.
func New(p Parser, cfg Config) *Resolver {
	cfg.applyDefaults()
	return &Resolver{
		parser: p,
		cfg:    cfg,
	}
}

// Resolve parses whichever inputs are present and derives the rest.
//
// Parse failures are returned as-is. Inconsistent or inverted intervals
// are returned as *ValidationError.
func (r *Resolver) Resolve(in Inputs) (Interval, error) {
	var (
		start, end time.Time
		dur        time.Duration
		mask       presence
		err        error
	)

	if s := present(in.Start); s != "" {
		if start, err = r.parser.ParseTime(s); err != nil {
			return Interval{}, fmt.Errorf("start: %w", err)
		}
		mask |= hasStart
	}
	if s := present(in.End); s != "" {
		if end, err = r.parser.ParseTime(s); err != nil {
			return Interval{}, fmt.Errorf("end: %w", err)
		}
		mask |= hasEnd
	}
	if s := present(in.Duration); s != "" {
		if dur, err = r.parser.ParseDuration(s); err != nil {
			return Interval{}, fmt.Errorf("duration: %w", err)
		}
		mask |= hasDuration
	}

	iv, err := r.derive(mask, start, end, dur)
	if err != nil {
		return Interval{}, err
	}

	iv.Start = iv.Start.In(r.cfg.Location)
	iv.End = iv.End.In(r.cfg.Location)

	if iv.Start.After(iv.End) {
		return Interval{}, &ValidationError{
			Reason: fmt.Sprintf("start time %s is after end time %s",
				iv.Start.Format(displayLayout), iv.End.Format(displayLayout)),
		}
	}

	return iv, nil
}

// derive fills in whatever mask says is missing.
func (r *Resolver) derive(mask presence, start, end time.Time, dur time.Duration) (Interval, error) {
	var err error

	switch mask {
	case startEndDuration:
		dur, err = r.checkDuration(start, end, dur)
		if err != nil {
			return Interval{}, err
		}

	case startAndEnd:
		dur = end.Sub(start)

	case startAndDuration:
		end = start.Add(dur)

	case endAndDuration:
		start = end.Add(-dur)

	case onlyDuration:
		if end, err = r.defaultEnd(); err != nil {
			return Interval{}, err
		}
		start = end.Add(-dur)

	case onlyStart:
		if dur, err = r.defaultDuration(); err != nil {
			return Interval{}, err
		}
		end = start.Add(dur)

	case onlyEnd:
		if dur, err = r.defaultDuration(); err != nil {
			return Interval{}, err
		}
		start = end.Add(-dur)

	case onlyNone:
		if end, err = r.defaultEnd(); err != nil {
			return Interval{}, err
		}
		if dur, err = r.defaultDuration(); err != nil {
			return Interval{}, err
		}
		start = end.Add(-dur)

	default:
		return Interval{}, &ValidationError{
			Reason: fmt.Sprintf("invalid combination of start, end and duration (mask %03b)", mask),
			Err:    ErrUnreachable,
		}
	}

	return Interval{Start: start, End: end, Duration: dur}, nil
}

// checkDuration compares a supplied duration to end-start. Within
// tolerance it returns the longer of the two.
func (r *Resolver) checkDuration(start, end time.Time, supplied time.Duration) (time.Duration, error) {
	calculated := end.Sub(start)

	diff := calculated - supplied
	if diff < 0 {
		diff = -diff
	}
	if diff > r.cfg.Tolerance {
		return 0, &ValidationError{
			Reason: fmt.Sprintf("input duration %s inconsistent with start %s and end %s (using tolerance of %s)",
				supplied, start.Format(displayLayout), end.Format(displayLayout), r.cfg.Tolerance),
		}
	}

	return max(supplied, calculated), nil
}

func (r *Resolver) defaultEnd() (time.Time, error) {
	t, err := r.parser.ParseTime(r.cfg.DefaultEnd)
	if err != nil {
		return time.Time{}, fmt.Errorf("default end: %w", err)
	}
	return t, nil
}

func (r *Resolver) defaultDuration() (time.Duration, error) {
	d, err := r.parser.ParseDuration(r.cfg.DefaultDuration)
	if err != nil {
		return 0, fmt.Errorf("default duration: %w", err)
	}
	return d, nil
}
