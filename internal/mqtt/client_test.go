package mqtt

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"cloudpico-notifier/internal/config"
	"cloudpico-notifier/internal/sensor"
)

func TestTopics(t *testing.T) {
	if got := TelemetryTopic("home"); got != "stations/home/telemetry" {
		t.Errorf("TelemetryTopic() = %q", got)
	}
	if got := HealthTopic("home"); got != "stations/home/health" {
		t.Errorf("HealthTopic() = %q", got)
	}
}

func TestNewTelemetry_JSON(t *testing.T) {
	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	r := &sensor.Reading{TemperatureCorrected: 21.6, TemperatureRaw: 25.3, Humidity: 45.12, Pressure: 1013.25}

	b, err := json.Marshal(NewTelemetry("home", r, at))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{
		"station_id":        "home",
		"timestamp":         "2026-10-18T12:00:00Z",
		"temperature_c":     21.6,
		"temperature_raw_c": 25.3,
		"humidity_pct":      45.12,
		"pressure_hpa":      1013.25,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestPublish_NotConnected(t *testing.T) {
	cfg := config.Config{MQTTBroker: "127.0.0.1", MQTTPort: 1, MQTTClientID: "test", DeviceStationID: "home"}
	c := NewClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := c.PublishReading(&sensor.Reading{}, time.Now())
	if err == nil || !strings.Contains(err.Error(), "not connected") {
		t.Errorf("PublishReading() = %v, want not connected error", err)
	}
	if err := c.PublishHealth(true, time.Now()); err == nil {
		t.Error("PublishHealth() = nil, want error")
	}

	c.Disconnect()
	c.Disconnect()
}
