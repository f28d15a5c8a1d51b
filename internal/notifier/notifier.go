package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"cloudpico-notifier/internal/sensor"
)

// ErrDelivery is wrapped by every *DeliveryError.
var ErrDelivery = errors.New("webhook delivery failed")

// DeliveryError describes a failed POST: either a non-200 status with the
// response body, or a transport error in Cause.
type DeliveryError struct {
	StatusCode int
	Body       string
	Cause      error
}

func (e *DeliveryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: %v", ErrDelivery, e.Cause)
	}
	return fmt.Sprintf("%v: status %d: %s", ErrDelivery, e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrDelivery, e.Cause}
	}
	return []error{ErrDelivery}
}

type Options struct {
	WebhookURL string
	Channel    string
	Username   string
	IconEmoji  string
	Location   string
	// Timeout of zero leaves the request unbounded.
	Timeout time.Duration
	Logger  *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Notifier struct {
	client     *resty.Client
	webhookURL string
	channel    string
	username   string
	iconEmoji  string
	location   string
	now        func() time.Time
	logger     *slog.Logger
}

func New(opts Options) *Notifier {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	client := resty.New().
		SetLogger(restyLogger{logger: logger}).
		SetHeader("Content-Type", "application/json")
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	return &Notifier{
		client:     client,
		webhookURL: opts.WebhookURL,
		channel:    opts.Channel,
		username:   opts.Username,
		iconEmoji:  opts.IconEmoji,
		location:   opts.Location,
		now:        now,
		logger:     logger,
	}
}

// Notify posts r to the webhook. A nil reading is a no-op.
func (n *Notifier) Notify(ctx context.Context, r *sensor.Reading) error {
	if r == nil {
		return nil
	}

	msg := n.BuildMessage(r, n.now())

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(msg).
		Post(n.webhookURL)
	if err != nil {
		return &DeliveryError{Cause: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return &DeliveryError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	n.logger.Debug("webhook accepted",
		"channel", n.channel,
		"status", resp.StatusCode(),
		"duration", resp.Time(),
	)
	return nil
}

// restyLogger routes resty's internal warnings into slog.
type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...), "component", "resty")
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.logger.Warn(fmt.Sprintf(format, v...), "component", "resty")
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "resty")
}
