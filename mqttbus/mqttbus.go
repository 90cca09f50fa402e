// Package mqttbus connects the bridge to an MQTT broker. It publishes every
// executed AT command and accepts chain requests on a topic.
//
// Topics hang off one base topic:
//
//	<base>/interactions  one message per executed command (published)
//	<base>/request       chain requests (subscribed)
//	<base>/response      chain results (published)
package mqttbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"i4.energy/across/atbridge/secret"
)

const (
	DefaultTopic          = "atbridge"
	DefaultPublishTimeout = 5 * time.Second
)

// ErrConnect is returned when the broker cannot be reached.
var ErrConnect = errors.New("mqtt connect failed")

// Options describe the broker connection.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password secret.Value
	// OnConnect runs after every (re)connect, for example to subscribe.
	OnConnect func(mqtt.Client)
}

// Topic joins base and name with a slash.
func Topic(base, name string) string {
	base = strings.TrimRight(base, "/")
	if base == "" {
		base = DefaultTopic
	}
	return base + "/" + name
}

// NewClient builds an auto-reconnecting client without connecting it, so
// callers can wire publishers before the first OnConnect runs.
func NewClient(opts Options, logger *slog.Logger) mqtt.Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(opts.Broker)
	clientOpts.SetClientID(opts.ClientID)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password.Reveal())
	}
	clientOpts.SetOrderMatters(false)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "broker", opts.Broker, "error", err)
	})
	clientOpts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info("MQTT connected", "broker", opts.Broker)
		if opts.OnConnect != nil {
			opts.OnConnect(c)
		}
	})

	return mqtt.NewClient(clientOpts)
}

// Connect waits for the first connection of client until ctx is done.
func Connect(ctx context.Context, client mqtt.Client) error {
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(250)
		return fmt.Errorf("%w: %w", ErrConnect, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}
	return nil
}
