// sleeptrack resolves sleep intervals from loose time expressions and
// records them in a calendar.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/cpuguy83/sleeptrack/internal/config"
	"github.com/cpuguy83/sleeptrack/internal/interval"
	"github.com/cpuguy83/sleeptrack/internal/notify"
	"github.com/cpuguy83/sleeptrack/internal/record"
	"github.com/cpuguy83/sleeptrack/internal/report"
	"github.com/cpuguy83/sleeptrack/internal/timeparse"
)

// options holds the command-line flags.
type options struct {
	start    string
	end      string
	duration string

	predictNext  bool
	nextStart    string
	nextEnd      string
	nextDuration string
	offset       string

	update     bool
	configPath string
	verbose    bool
}

// recorder is the part of record.Recorder the command uses.
type recorder interface {
	Record(ctx context.Context, current interval.Interval, next *interval.Interval) (record.Result, error)
	Close() error
}

// app wires the command to its collaborators. Tests replace the
// constructors.
type app struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time

	newRecorder func(ctx context.Context, cfg *config.Config) (recorder, error)
	notify      func(cfg *config.Config, current interval.Interval, next *interval.Interval)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
		newRecorder: func(ctx context.Context, cfg *config.Config) (recorder, error) {
			return record.New(ctx, cfg)
		},
		notify: sendNotification,
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := newApp(os.Stdout, os.Stderr)
	if err := a.command().ExecuteContext(ctx); err != nil {
		report.New(os.Stderr).Error(err)
		cancel()
		os.Exit(1)
	}
}

func (a *app) command() *cobra.Command {
	o := &options{}

	cmd := &cobra.Command{
		Use:   "sleeptrack",
		Short: "Track sleep and predict the next sleep event",
		Long: `sleeptrack works out a sleep interval from any combination of start,
end and duration, and can predict the next interval from how long you
plan to stay awake. Nothing is written to the calendar unless -u is given.`,
		Example: `  # Slept from 7:30pm yesterday until 1:30am
  sleeptrack -s '7:30pm yesterday' -e '1:30 am'

  # Also predict the next sleep, 21 hours after waking
  sleeptrack -s '7:30pm yesterday' -e '1:30 am' -p -o 21

  # Write both events to the calendar
  sleeptrack -s '7:30pm yesterday' -e '1:30 am' -p -o 21 -u`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), o)
		},
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	flags := cmd.Flags()
	flags.StringVarP(&o.start, "start", "s", "", `start time of sleep (e.g. "10 PM yesterday")`)
	flags.StringVarP(&o.end, "end", "e", "", `end time of sleep (e.g. "6 AM today")`)
	flags.StringVarP(&o.duration, "duration", "d", "", `duration of sleep (e.g. "8 hours")`)

	flags.BoolVarP(&o.predictNext, "predict-next", "p", false, "predict the next sleep event")
	flags.StringVar(&o.nextStart, "next-start", "", `start time of next sleep event (e.g. "10 PM tomorrow")`)
	flags.StringVar(&o.nextEnd, "next-end", "", `end time of next sleep event (e.g. "6 AM tomorrow")`)
	flags.StringVar(&o.nextDuration, "next-duration", "", `duration of next sleep event (e.g. "8 hours")`)
	flags.StringVarP(&o.offset, "default-offset", "o", "", `offset from waking to the next sleep event (default from config, "16")`)

	// Short aliases for the next-interval flags.
	flags.StringVar(&o.nextStart, "ns", "", "alias for --next-start")
	flags.StringVar(&o.nextEnd, "ne", "", "alias for --next-end")
	flags.StringVar(&o.nextDuration, "nd", "", "alias for --next-duration")
	for _, name := range []string{"ns", "ne", "nd"} {
		_ = flags.MarkHidden(name)
	}

	flags.BoolVarP(&o.update, "update-calendar", "u", false, "write the sleep events to the calendar")
	flags.StringVar(&o.configPath, "config", "", "path to config file (default: ~/.config/sleeptrack/config.yaml)")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "verbose logging")

	return cmd
}

func (a *app) run(ctx context.Context, o *options) error {
	setupLogging(a.stderr, o.verbose)

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return err
	}

	loc, err := cfg.Calendar.Location()
	if err != nil {
		return err
	}

	// One "now" for the whole run.
	parser := timeparse.New(loc, a.now())
	resolver := interval.New(parser, interval.Config{
		Location:        loc,
		Tolerance:       cfg.Resolve.Tolerance,
		DefaultEnd:      cfg.Resolve.DefaultEnd,
		DefaultDuration: cfg.Resolve.DefaultDuration,
		DefaultOffset:   cfg.Resolve.DefaultOffset,
	})

	current, err := resolver.Resolve(interval.Inputs{
		Start:    o.start,
		End:      o.end,
		Duration: o.duration,
	})
	if err != nil {
		return fmt.Errorf("current interval: %w", err)
	}

	nextIv, ok, err := resolver.PredictNext(interval.NextInputs{
		Requested: o.predictNext,
		Start:     o.nextStart,
		End:       o.nextEnd,
		Duration:  o.nextDuration,
		Offset:    o.offset,
	}, current)
	if err != nil {
		return fmt.Errorf("next interval: %w", err)
	}
	var next *interval.Interval
	if ok {
		next = &nextIv
	}

	p := report.New(a.stdout)
	p.Interval("Current sleep interval:", current)
	if next != nil {
		p.Interval("Next sleep interval:", *next)
	}

	if !o.update {
		return nil
	}

	rec, err := a.newRecorder(ctx, cfg)
	if err != nil {
		return err
	}
	defer rec.Close()

	res, err := rec.Record(ctx, current, next)
	if err != nil {
		return err
	}

	p.Calendar(cfg.Calendar.Name, res.CalendarID)
	p.Event("Current sleep event:  ", res.Current.URL)
	if res.Next != nil {
		p.Event("Predicted sleep event:", res.Next.URL)
	}

	if cfg.Notifications.Enabled {
		a.notify(cfg, current, next)
	}
	return nil
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// sendNotification announces recorded events on the desktop. Failures are
// logged and otherwise ignored.
func sendNotification(cfg *config.Config, current interval.Interval, next *interval.Interval) {
	n, err := notify.New("sleeptrack")
	if err != nil {
		slog.Warn("failed to create notifier", "error", err)
		return
	}
	defer n.Close()

	body := report.Title(record.SleepPrefix, current)
	if next != nil {
		body += "\n" + report.Title(record.PredictedPrefix, *next)
	}

	if _, err := n.Send(notify.Notification{
		Summary: fmt.Sprintf("Recorded in %s", cfg.Calendar.Name),
		Body:    body,
		Urgency: notify.UrgencyLow,
	}); err != nil {
		slog.Warn("failed to send notification", "error", err)
	}
}
