// Package report formats sleep intervals and recorded events for the console.
package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cpuguy83/sleeptrack/internal/interval"
	"github.com/mattn/go-isatty"
)

// ANSI escape sequences
const (
	ansiRed   = "\033[91m"
	ansiGreen = "\033[92m"
	ansiBlue  = "\033[94m"
	ansiBold  = "\033[1m"
	ansiReset = "\033[0m"
)

// TimeLayout is how interval endpoints are displayed.
const TimeLayout = "2006-01-02 15:04 MST"

// Printer writes human-readable output, coloured when the destination is a terminal.
type Printer struct {
	w     io.Writer
	color bool
}

// New creates a printer for w. Colour is enabled only when w is a terminal
// and NO_COLOR is unset.
func New(w io.Writer) *Printer {
	return &Printer{
		w:     w,
		color: wantColor(w),
	}
}

// NewPlain creates a printer that never emits escape sequences.
func NewPlain(w io.Writer) *Printer {
	return &Printer{w: w}
}

func wantColor(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *Printer) paint(code, text string) string {
	if !p.color {
		return text
	}
	return ansiBold + code + text + ansiReset
}

// Green returns text in bold green.
func (p *Printer) Green(text string) string { return p.paint(ansiGreen, text) }

// Red returns text in bold red.
func (p *Printer) Red(text string) string { return p.paint(ansiRed, text) }

// Blue returns text in bold blue.
func (p *Printer) Blue(text string) string { return p.paint(ansiBlue, text) }

// Bold returns text in bold.
func (p *Printer) Bold(text string) string { return p.paint("", text) }

// Interval prints a header line followed by the interval.
func (p *Printer) Interval(header string, iv interval.Interval) {
	fmt.Fprintln(p.w, p.Bold(header))
	fmt.Fprintln(p.w, formatInterval(iv, p.Green))
}

// FormatInterval renders the interval on one line without colour.
func FormatInterval(iv interval.Interval) string {
	return formatInterval(iv, func(s string) string { return s })
}

func formatInterval(iv interval.Interval, value func(string) string) string {
	return fmt.Sprintf("start_time: %s, end_time: %s, duration: %s",
		value(iv.Start.Format(TimeLayout)),
		value(iv.End.Format(TimeLayout)),
		value(FormatHours(iv.Duration)),
	)
}

// Calendar prints the calendar events were recorded in.
func (p *Printer) Calendar(name, id string) {
	fmt.Fprintf(p.w, "%s '%s' ID: %s\n", p.Bold("Calendar"), p.Blue(name), p.Blue(id))
}

// Event prints a labelled link to a recorded event.
func (p *Printer) Event(label, url string) {
	fmt.Fprintf(p.w, "%s %s\n", p.Bold(label), p.Green(url))
}

// Error prints err in red.
func (p *Printer) Error(err error) {
	fmt.Fprintln(p.w, p.Red("error: "+err.Error()))
}

// FormatHours renders d as fractional hours, e.g. "6.0 hours".
func FormatHours(d time.Duration) string {
	return fmt.Sprintf("%.1f hours", d.Hours())
}

// Title returns the calendar event title for an interval, e.g. "Sleep: 6.0 hours".
func Title(prefix string, iv interval.Interval) string {
	return fmt.Sprintf("%s: %s", prefix, FormatHours(iv.Duration))
}
