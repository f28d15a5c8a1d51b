//go:build e2e

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"cloudpico-notifier/internal/config"
	"cloudpico-notifier/internal/sensor"
)

const mosquittoPort = nat.Port("1883/tcp")

func TestClient_PublishReading_Mosquitto(t *testing.T) {
	host, port := startMosquitto(t)

	cfg := config.Config{
		MQTTBroker:      host,
		MQTTPort:        port,
		MQTTClientID:    "notifier-e2e",
		DeviceStationID: "e2e",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	received := make(chan []byte, 1)
	sub := paho.NewClient(paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", host, port)).
		SetClientID("notifier-e2e-sub"))
	if tok := sub.Connect(); tok.Wait() && tok.Error() != nil {
		t.Fatalf("subscriber connect: %v", tok.Error())
	}
	t.Cleanup(func() { sub.Disconnect(250) })
	if tok := sub.Subscribe(TelemetryTopic("e2e"), 1, func(_ paho.Client, m paho.Message) {
		received <- m.Payload()
	}); tok.Wait() && tok.Error() != nil {
		t.Fatalf("subscribe: %v", tok.Error())
	}

	c := NewClient(cfg, logger)
	t.Cleanup(c.Disconnect)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() = %v", err)
	}
	waitConnected(t, c, 5*time.Second)

	r := &sensor.Reading{TemperatureCorrected: 21.6, TemperatureRaw: 25.3, Humidity: 45.12, Pressure: 1013.25}
	if err := c.PublishReading(r, time.Now()); err != nil {
		t.Fatalf("PublishReading() = %v", err)
	}

	select {
	case payload := <-received:
		var got Telemetry
		if err := json.Unmarshal(payload, &got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if got.StationID != "e2e" || got.Temperature != 21.6 || got.Pressure != 1013.25 {
			t.Errorf("telemetry = %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no telemetry received")
	}

	if err := c.PublishHealth(true, time.Now()); err != nil {
		t.Fatalf("PublishHealth() = %v", err)
	}
}

func startMosquitto(t *testing.T) (string, int) {
	t.Helper()

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2",
		ExposedPorts: []string{string(mosquittoPort)},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort(mosquittoPort).WithStartupTimeout(30 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start mosquitto container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, mosquittoPort)
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	port, err := strconv.Atoi(mapped.Port())
	if err != nil {
		t.Fatalf("parse port %q: %v", mapped.Port(), err)
	}
	return host, port
}

func waitConnected(t *testing.T, c *Client, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.IsConnected() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("mqtt client not connected after %s", timeout)
}
