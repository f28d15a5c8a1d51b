package sensor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"periph.io/x/conn/v3/physic"
)

const (
	// DefaultSettleDelay is the pause between the discard read and the kept read.
	DefaultSettleDelay = 2 * time.Second

	DefaultWarmupReads    = 3
	DefaultWarmupInterval = time.Second
)

// ErrSensorRead wraps every peripheral communication failure.
var ErrSensorRead = errors.New("sensor read failed")

// Device is the part of a periph environmental sensor the reader needs.
type Device interface {
	Sense(e *physic.Env) error
}

// Reading is one calibrated sample. All values are rounded to two decimals.
type Reading struct {
	TemperatureCorrected float64 // °C
	TemperatureRaw       float64 // °C
	Humidity             float64 // %RH
	Pressure             float64 // hPa
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Reader struct {
	dev         Device
	offset      float64
	settleDelay time.Duration
	sleep       SleepFunc
}

type Option func(*Reader)

// WithOffset sets the additive temperature calibration in °C.
func WithOffset(offset float64) Option {
	return func(r *Reader) { r.offset = offset }
}

func WithSettleDelay(d time.Duration) Option {
	return func(r *Reader) { r.settleDelay = d }
}

func WithSleep(fn SleepFunc) Option {
	return func(r *Reader) { r.sleep = fn }
}

func NewReader(dev Device, opts ...Option) *Reader {
	r := &Reader{
		dev:         dev,
		settleDelay: DefaultSettleDelay,
		sleep:       Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read performs a discard cycle, waits for the sensor to settle and returns
// the calibrated result of a second cycle.
func (r *Reader) Read(ctx context.Context) (*Reading, error) {
	var discard physic.Env
	if err := r.dev.Sense(&discard); err != nil {
		return nil, fmt.Errorf("%w: discard cycle: %w", ErrSensorRead, err)
	}

	if err := r.sleep(ctx, r.settleDelay); err != nil {
		return nil, err
	}

	var env physic.Env
	if err := r.dev.Sense(&env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSensorRead, err)
	}
	return NewReading(env, r.offset), nil
}

// Warmup runs n discarded sense cycles, interval apart, and returns how many
// of them failed. Failures are not fatal: the point is to exercise the sensor.
func (r *Reader) Warmup(ctx context.Context, n int, interval time.Duration, onErr func(i int, err error)) (int, error) {
	failed := 0
	for i := 0; i < n; i++ {
		var env physic.Env
		if err := r.dev.Sense(&env); err != nil {
			failed++
			if onErr != nil {
				onErr(i+1, fmt.Errorf("%w: %w", ErrSensorRead, err))
			}
		}
		if err := r.sleep(ctx, interval); err != nil {
			return failed, err
		}
	}
	return failed, nil
}

// NewReading converts a raw periph measurement and applies the offset to the
// temperature channel only.
func NewReading(env physic.Env, offset float64) *Reading {
	raw := round2(env.Temperature.Celsius())

	// env.Humidity is stored at a precision of 0.00001%rH.
	humidity := float64(env.Humidity) / float64(physic.PercentRH)

	// env.Pressure is stored in nano Pascal; 1 hPa = 100 Pa.
	pressure := float64(env.Pressure) / float64(physic.Pascal) / 100.0

	return &Reading{
		TemperatureCorrected: round2(raw + offset),
		TemperatureRaw:       raw,
		Humidity:             round2(humidity),
		Pressure:             round2(pressure),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Sleep waits for d, returning early with ctx.Err() on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
