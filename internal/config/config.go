package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cloudpico-notifier/internal/schedule"
	"cloudpico-notifier/internal/sensor"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	LogFile  string

	WebhookURL      string
	WebhookChannel  string
	WebhookUsername string
	WebhookIcon     string
	WebhookTimeout  time.Duration
	LocationLabel   string

	I2CBus            string
	BME280Address     uint16
	CalibrationOffset float64
	SettleDelay       time.Duration
	WarmupReads       int
	WarmupInterval    time.Duration

	ScheduleTimes string
	PollInterval  time.Duration

	// MQTTBroker empty disables the telemetry mirror.
	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	DeviceStationID string
}

// MQTTEnabled reports whether readings are mirrored to an MQTT broker.
func (c Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

// LoadDotEnv loads variables from path (or ./.env when empty) without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	var err error
	if path == "" {
		err = godotenv.Load()
	} else {
		err = godotenv.Load(path)
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load dotenv: %w", err)
	}
	return nil
}

func LoadFromEnv() (Config, error) {
	appEnv := envOr("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	webhookURL := strings.TrimSpace(os.Getenv("WEBHOOK_URL"))
	if webhookURL == "" {
		return Config{}, errors.New("WEBHOOK_URL is required")
	}
	u, err := url.Parse(webhookURL)
	if err != nil {
		return Config{}, fmt.Errorf("invalid WEBHOOK_URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Config{}, fmt.Errorf("invalid WEBHOOK_URL: must be an absolute http(s) URL")
	}

	webhookTimeout, err := parseDuration("WEBHOOK_TIMEOUT", "0s", true)
	if err != nil {
		return Config{}, err
	}

	bme280AddressStr := envOr("BME280_ADDRESS", "0x76")
	bme280Address, err := strconv.ParseUint(bme280AddressStr, 0, 16)
	if err != nil {
		return Config{}, fmt.Errorf("invalid BME280_ADDRESS %q: %w", bme280AddressStr, err)
	}

	offsetStr := envOr("CALIBRATION_OFFSET", "-3.70")
	offset, err := strconv.ParseFloat(offsetStr, 64)
	if err != nil {
		return Config{}, fmt.Errorf("invalid CALIBRATION_OFFSET %q: %w", offsetStr, err)
	}

	settleDelay, err := parseDuration("SETTLE_DELAY", sensor.DefaultSettleDelay.String(), true)
	if err != nil {
		return Config{}, err
	}

	warmupReadsStr := envOr("WARMUP_READS", strconv.Itoa(sensor.DefaultWarmupReads))
	warmupReads, err := strconv.Atoi(warmupReadsStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid WARMUP_READS %q: %w", warmupReadsStr, err)
	}
	if warmupReads < 0 {
		return Config{}, fmt.Errorf("WARMUP_READS must not be negative, got %d", warmupReads)
	}

	warmupInterval, err := parseDuration("WARMUP_INTERVAL", sensor.DefaultWarmupInterval.String(), true)
	if err != nil {
		return Config{}, err
	}

	pollInterval, err := parseDuration("POLL_INTERVAL", schedule.DefaultPollInterval.String(), false)
	if err != nil {
		return Config{}, err
	}

	mqttPortStr := envOr("MQTT_PORT", "1883")
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}

	return Config{
		AppEnv:            appEnv,
		LogLevel:          level,
		LogFile:           envOr("LOG_FILE", "sensor_notifier.log"),
		WebhookURL:        webhookURL,
		WebhookChannel:    envOr("WEBHOOK_CHANNEL", "#general"),
		WebhookUsername:   envOr("WEBHOOK_USERNAME", "Sensor Bot"),
		WebhookIcon:       envOr("WEBHOOK_ICON", ":thermometer:"),
		WebhookTimeout:    webhookTimeout,
		LocationLabel:     envOr("LOCATION_LABEL", "Office"),
		I2CBus:            strings.TrimSpace(os.Getenv("I2C_BUS")),
		BME280Address:     uint16(bme280Address),
		CalibrationOffset: offset,
		SettleDelay:       settleDelay,
		WarmupReads:       warmupReads,
		WarmupInterval:    warmupInterval,
		ScheduleTimes:     envOr("SCHEDULE_TIMES", schedule.DefaultTimes),
		PollInterval:      pollInterval,
		MQTTBroker:        strings.TrimSpace(os.Getenv("MQTT_BROKER")),
		MQTTPort:          mqttPort,
		MQTTClientID:      envOr("MQTT_CLIENT_ID", "cloudpico-notifier"),
		DeviceStationID:   envOr("DEVICE_STATION_ID", "home"),
	}, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func parseDuration(key, def string, allowZero bool) (time.Duration, error) {
	s := envOr(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
