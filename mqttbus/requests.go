package mqttbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"i4.energy/across/atbridge/modem"
)

// RunFunc executes one AT chain.
type RunFunc func(ctx context.Context, raw string, timeout time.Duration) (modem.ChainResult, error)

// Request is the payload expected on <base>/request.
type Request struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	// Timeout is the per-command timeout in seconds; zero uses the default.
	Timeout float64 `json:"timeout,omitempty"`
}

// Response is published on <base>/response for every Request.
type Response struct {
	ID      string `json:"id,omitempty"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	modem.ChainResult
}

// Requests serves chain requests received over MQTT.
type Requests struct {
	ctx     context.Context
	base    string
	run     RunFunc
	timeout time.Duration
	logger  *slog.Logger
}

// NewRequests returns a handler running chains with run. ctx bounds every
// chain it starts.
func NewRequests(ctx context.Context, base string, run RunFunc, logger *slog.Logger) *Requests {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Requests{
		ctx:     ctx,
		base:    base,
		run:     run,
		timeout: DefaultPublishTimeout,
		logger:  logger,
	}
}

// Subscribe registers the request handler on client. Use it as
// Options.OnConnect so the subscription survives reconnects.
func (r *Requests) Subscribe(client mqtt.Client) {
	topic := Topic(r.base, "request")
	token := client.Subscribe(topic, 1, r.handle)
	if !token.WaitTimeout(r.timeout) {
		r.logger.Error("Timed out subscribing", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		r.logger.Error("Failed to subscribe", "topic", topic, "error", err)
		return
	}
	r.logger.Info("Subscribed to requests", "topic", topic)
}

func (r *Requests) handle(client mqtt.Client, msg mqtt.Message) {
	var req Request
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		r.logger.Warn("Bad MQTT request payload", "topic", msg.Topic(), "error", err)
		r.reply(client, Response{Message: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if req.Command == "" {
		r.reply(client, Response{ID: req.ID, Message: "command is required"})
		return
	}

	timeout := time.Duration(req.Timeout * float64(time.Second))
	result, err := r.run(r.ctx, req.Command, timeout)
	if err != nil {
		r.logger.Error("MQTT request failed", "id", req.ID, "error", err)
		r.reply(client, Response{ID: req.ID, Message: err.Error()})
		return
	}

	r.reply(client, Response{
		ID:          req.ID,
		Success:     !result.Aborted,
		ChainResult: result,
	})
}

func (r *Requests) reply(client mqtt.Client, resp Response) {
	topic := Topic(r.base, "response")
	payload, err := json.Marshal(resp)
	if err != nil {
		r.logger.Error("Failed to encode response", "id", resp.ID, "error", err)
		return
	}

	token := client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(r.timeout) {
		r.logger.Warn("Timed out publishing response", "topic", topic, "id", resp.ID)
		return
	}
	if err := token.Error(); err != nil {
		r.logger.Warn("Failed to publish response", "topic", topic, "id", resp.ID, "error", err)
	}
}
