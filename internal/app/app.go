package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"cloudpico-notifier/internal/config"
	"cloudpico-notifier/internal/mqtt"
	"cloudpico-notifier/internal/notifier"
	"cloudpico-notifier/internal/schedule"
	"cloudpico-notifier/internal/sensor"
)

// sensorBus is the open sensor as Run uses it; *sensor.Bus in production.
type sensorBus interface {
	sensor.Device
	io.Closer
	String() string
}

// openBus is replaced in tests.
var openBus = func(name string, addr uint16) (sensorBus, error) {
	b, err := sensor.Open(name, addr)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("initializing notifier",
		"i2c_bus", cfg.I2CBus,
		"bme280_address", cfg.BME280Address,
		"calibration_offset", cfg.CalibrationOffset,
		"schedule", cfg.ScheduleTimes,
		"channel", cfg.WebhookChannel,
		"mqtt_enabled", cfg.MQTTEnabled(),
	)

	times, err := schedule.ParseTimes(cfg.ScheduleTimes)
	if err != nil {
		return err
	}

	bus, err := openBus(cfg.I2CBus, cfg.BME280Address)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Error("sensor bus close", "error", err)
			return
		}
		logger.Info("sensor bus released")
	}()
	logger.Info("sensor opened", "device", bus.String())

	clock := schedule.SystemClock{}

	svcOpts := ServiceOptions{
		Reader: sensor.NewReader(bus,
			sensor.WithOffset(cfg.CalibrationOffset),
			sensor.WithSettleDelay(cfg.SettleDelay),
			sensor.WithSleep(clock.Sleep),
		),
		Notifier: notifier.New(notifier.Options{
			WebhookURL: cfg.WebhookURL,
			Channel:    cfg.WebhookChannel,
			Username:   cfg.WebhookUsername,
			IconEmoji:  cfg.WebhookIcon,
			Location:   cfg.LocationLabel,
			Timeout:    cfg.WebhookTimeout,
			Logger:     logger,
			Now:        clock.Now,
		}),
		Scheduler:      schedule.New(times, cfg.PollInterval, clock, logger),
		Clock:          clock,
		Logger:         logger,
		WarmupReads:    cfg.WarmupReads,
		WarmupInterval: cfg.WarmupInterval,
	}

	if cfg.MQTTEnabled() {
		mqttClient := mqtt.NewClient(cfg, logger)
		defer mqttClient.Disconnect()

		// Short initial connect so a missing broker does not delay the first reading.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err := mqttClient.Connect(connectCtx)
		connectCancel()
		if err != nil {
			logger.Warn("mqtt connection failed (continuing without mirror until reconnect)", "error", err)
		}
		svcOpts.Mirror = mqttClient
	}

	return NewService(svcOpts).Start(ctx)
}
