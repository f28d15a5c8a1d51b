package notifier

import (
	"fmt"
	"time"

	"cloudpico-notifier/internal/sensor"
)

// TimestampFormat is how the send time is rendered in the message.
const TimestampFormat = "2006-01-02 15:04:05"

const headerText = "Environmental Sensor Report"

// Message is a Slack incoming-webhook payload using Block Kit.
type Message struct {
	Channel   string  `json:"channel"`
	Username  string  `json:"username"`
	IconEmoji string  `json:"icon_emoji"`
	Blocks    []Block `json:"blocks"`
}

type Block struct {
	Type   string  `json:"type"`
	Text   *Text   `json:"text,omitempty"`
	Fields []*Text `json:"fields,omitempty"`
}

type Text struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func field(label, value string) *Text {
	return &Text{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%s", label, value)}
}

func section(fields ...*Text) Block {
	return Block{Type: "section", Fields: fields}
}

// BuildMessage renders r into the webhook payload, stamped with now.
func (n *Notifier) BuildMessage(r *sensor.Reading, now time.Time) Message {
	return Message{
		Channel:   n.channel,
		Username:  n.username,
		IconEmoji: n.iconEmoji,
		Blocks: []Block{
			{Type: "header", Text: &Text{Type: "plain_text", Text: headerText, Emoji: true}},
			section(
				field("Timestamp", now.Format(TimestampFormat)),
				field("Location", n.location),
			),
			section(
				field("Temperature", fmt.Sprintf("%.2f°C", r.TemperatureCorrected)),
				field("Humidity", fmt.Sprintf("%.2f%%", r.Humidity)),
			),
			section(
				field("Pressure", fmt.Sprintf("%.2f hPa", r.Pressure)),
				field("Raw temperature", fmt.Sprintf("%.2f°C", r.TemperatureRaw)),
			),
		},
	}
}
