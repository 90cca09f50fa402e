package mqttbus

import (
	"encoding/json"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"i4.energy/across/atbridge/modem"
)

// Publisher is a modem.Observer that publishes each Interaction as JSON to
// <base>/interactions. Publish failures are logged and otherwise ignored.
type Publisher struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
	logger  *slog.Logger
}

var _ modem.Observer = (*Publisher)(nil)

// NewPublisher returns a Publisher for the base topic. A nil logger discards.
func NewPublisher(client mqtt.Client, base string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{
		client:  client,
		topic:   Topic(base, "interactions"),
		timeout: DefaultPublishTimeout,
		logger:  logger,
	}
}

func (p *Publisher) Observe(ia modem.Interaction) {
	payload, err := json.Marshal(ia)
	if err != nil {
		p.logger.Warn("Failed to encode interaction", "run_id", ia.RunID, "error", err)
		return
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(p.timeout) {
		p.logger.Warn("Timed out publishing interaction", "topic", p.topic, "run_id", ia.RunID)
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Warn("Failed to publish interaction", "topic", p.topic, "run_id", ia.RunID, "error", err)
	}
}
