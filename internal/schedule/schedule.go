package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultPollInterval is how often the loop wakes to look for due triggers.
	DefaultPollInterval = 60 * time.Second

	DefaultTimes = "09:00,12:00,15:00,18:00"
)

// TimeOfDay is a trigger point in the clock's local time zone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// on returns the instant of t on the calendar day of day.
func (t TimeOfDay) on(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

// ParseTimes parses a comma separated list of HH:MM entries. Duplicates are
// dropped and the result is sorted.
func ParseTimes(s string) ([]TimeOfDay, error) {
	seen := make(map[TimeOfDay]bool)
	var out []TimeOfDay
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		hh, mm, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid time %q (want HH:MM)", part)
		}
		h, err := strconv.Atoi(hh)
		if err != nil || h < 0 || h > 23 {
			return nil, fmt.Errorf("invalid hour in %q", part)
		}
		m, err := strconv.Atoi(mm)
		if err != nil || m < 0 || m > 59 {
			return nil, fmt.Errorf("invalid minute in %q", part)
		}
		t := TimeOfDay{Hour: h, Minute: m}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no schedule times in %q", s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hour != out[j].Hour {
			return out[i].Hour < out[j].Hour
		}
		return out[i].Minute < out[j].Minute
	})
	return out, nil
}

type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in that case.
	Sleep(ctx context.Context, d time.Duration) error
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Job is run synchronously by the scheduler loop.
type Job func(ctx context.Context, trigger TimeOfDay)

type Scheduler struct {
	times    []TimeOfDay
	interval time.Duration
	clock    Clock
	logger   *slog.Logger
}

func New(times []TimeOfDay, interval time.Duration, clock Clock, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		times:    times,
		interval: interval,
		clock:    clock,
		logger:   logger,
	}
}

// Due returns the configured times that had an occurrence in (prev, now],
// ordered by when that occurrence happened. Each time is reported at most
// once, so a long stall runs a missed trigger once rather than once per
// missed day.
func (s *Scheduler) Due(prev, now time.Time) []TimeOfDay {
	if !now.After(prev) {
		return nil
	}
	prev = prev.In(now.Location())

	type occurrence struct {
		at time.Time
		t  TimeOfDay
	}
	var due []occurrence
	for _, t := range s.times {
		for day := prev; ; day = day.AddDate(0, 0, 1) {
			at := t.on(day)
			if at.After(now) {
				break
			}
			if at.After(prev) {
				due = append(due, occurrence{at: at, t: t})
				break
			}
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })

	out := make([]TimeOfDay, len(due))
	for i, o := range due {
		out[i] = o.t
	}
	return out
}

// Next returns the first trigger strictly after now.
func (s *Scheduler) Next(now time.Time) time.Time {
	var next time.Time
	for _, t := range s.times {
		at := t.on(now)
		if !at.After(now) {
			at = t.on(now.AddDate(0, 0, 1))
		}
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	return next
}

// Run polls every interval and runs job once for each due trigger, in order.
// It returns ctx.Err() when ctx is canceled.
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	return s.RunSince(ctx, s.clock.Now(), job)
}

// RunSince is Run with the first window starting at since instead of now, so
// triggers that elapsed while the caller was busy run at the first poll.
func (s *Scheduler) RunSince(ctx context.Context, since time.Time, job Job) error {
	last := since
	s.logger.Info("scheduler started",
		"times", s.times,
		"poll_interval", s.interval,
		"next_run", s.Next(last).Format(time.DateTime),
	)

	for {
		if err := s.clock.Sleep(ctx, s.interval); err != nil {
			return err
		}

		now := s.clock.Now()
		for _, t := range s.Due(last, now) {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.logger.Info("running scheduled job", "trigger", t.String())
			job(ctx, t)
		}
		// A clock stepping backwards must not reopen a window that already ran.
		if now.After(last) {
			last = now
		}
	}
}
