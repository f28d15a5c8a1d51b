package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cloudpico-notifier/internal/notifier"
	"cloudpico-notifier/internal/schedule"
	"cloudpico-notifier/internal/sensor"
)

const (
	StateWarmingUp = "WARMING_UP"
	StateRunning   = "RUNNING"
)

type Reader interface {
	Read(ctx context.Context) (*sensor.Reading, error)
	Warmup(ctx context.Context, n int, interval time.Duration, onErr func(i int, err error)) (int, error)
}

type Notifier interface {
	Notify(ctx context.Context, r *sensor.Reading) error
}

// Mirror receives a copy of every reading and the outcome of every job.
type Mirror interface {
	PublishReading(r *sensor.Reading, at time.Time) error
	PublishHealth(healthy bool, at time.Time) error
}

type Service struct {
	reader    Reader
	notifier  Notifier
	mirror    Mirror
	scheduler *schedule.Scheduler
	clock     schedule.Clock
	logger    *slog.Logger

	warmupReads    int
	warmupInterval time.Duration
}

type ServiceOptions struct {
	Reader    Reader
	Notifier  Notifier
	Mirror    Mirror // optional
	Scheduler *schedule.Scheduler
	Clock     schedule.Clock
	Logger    *slog.Logger

	WarmupReads    int
	WarmupInterval time.Duration
}

func NewService(opts ServiceOptions) *Service {
	if opts.Clock == nil {
		opts.Clock = schedule.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		reader:         opts.Reader,
		notifier:       opts.Notifier,
		mirror:         opts.Mirror,
		scheduler:      opts.Scheduler,
		clock:          opts.Clock,
		logger:         opts.Logger,
		warmupReads:    opts.WarmupReads,
		warmupInterval: opts.WarmupInterval,
	}
}

// Start warms the sensor up, runs the job once unconditionally and then
// hands over to the scheduler until ctx is canceled.
func (s *Service) Start(ctx context.Context) error {
	// Triggers that pass during warm-up and the startup job still run.
	since := s.clock.Now()
	s.logger.Info("state changed", "state", StateWarmingUp, "warmup_reads", s.warmupReads)

	failed, err := s.reader.Warmup(ctx, s.warmupReads, s.warmupInterval, func(i int, err error) {
		s.logger.Warn("warm-up read failed", "cycle", i, "error", err)
	})
	if err != nil {
		return err
	}
	s.logger.Info("warm-up complete", "cycles", s.warmupReads, "failed", failed)

	s.logger.Info("running startup job")
	s.RunJob(ctx)

	s.logger.Info("state changed", "state", StateRunning)
	return s.scheduler.RunSince(ctx, since, func(ctx context.Context, _ schedule.TimeOfDay) {
		s.RunJob(ctx)
	})
}

// RunJob reads the sensor and delivers a notification. Failures are logged
// and reported through the return value; they never abort the caller.
func (s *Service) RunJob(ctx context.Context) bool {
	ok := s.runJob(ctx)
	if s.mirror != nil && ctx.Err() == nil {
		if err := s.mirror.PublishHealth(ok, s.clock.Now()); err != nil {
			s.logger.Warn("mqtt health publish failed", "error", err)
		}
	}
	return ok
}

func (s *Service) runJob(ctx context.Context) bool {
	s.logger.Info("job started")

	r, err := s.reader.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.logger.Info("job interrupted", "error", err)
			return false
		}
		s.logger.Error("sensor read failed, skipping notification", "error", err)
		return false
	}

	s.logger.Info("sensor reading",
		"temperature_c", r.TemperatureCorrected,
		"temperature_raw_c", r.TemperatureRaw,
		"humidity_pct", r.Humidity,
		"pressure_hpa", r.Pressure,
	)

	if s.mirror != nil {
		if err := s.mirror.PublishReading(r, s.clock.Now()); err != nil {
			s.logger.Warn("mqtt telemetry publish failed", "error", err)
		}
	}

	if err := s.notifier.Notify(ctx, r); err != nil {
		if ctx.Err() != nil {
			s.logger.Info("job interrupted", "error", err)
			return false
		}
		var de *notifier.DeliveryError
		switch {
		case errors.As(err, &de) && de.Cause != nil:
			s.logger.Error("notification delivery failed", "error", de.Cause)
		case errors.As(err, &de):
			s.logger.Error("notification delivery failed", "status", de.StatusCode, "body", de.Body)
		default:
			s.logger.Error("notification delivery failed", "error", err)
		}
		return false
	}

	s.logger.Info("notification sent")
	return true
}
