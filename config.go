package main

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"i4.energy/across/atbridge/modem"
	"i4.energy/across/atbridge/mqttbus"
	"i4.energy/across/atbridge/secret"
	"i4.energy/across/atbridge/store"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// SettingsPath is the JSON file holding the router connection settings
	SettingsPath string
	// Debug forces the interaction debug log on, whatever the stored setting
	Debug bool
	// DebugLogPath overrides where the interaction debug log is written
	DebugLogPath string
	// KnownHostsPath names an OpenSSH known_hosts file. When empty any router
	// host key is accepted
	KnownHostsPath string
	// WWWRoot is a directory served for paths no API route claims. Empty
	// disables it
	WWWRoot string
	// CommandTimeout bounds each AT command when a request names no timeout
	CommandTimeout time.Duration
	// MQTTBroker enables the MQTT bridge when set (e.g. "tcp://localhost:1883")
	MQTTBroker string
	// MQTTTopic is the base topic for requests, responses and interactions
	MQTTTopic string
	// MQTTClientID identifies the bridge at the broker
	MQTTClientID string
	// MQTTUsername and MQTTPassword authenticate at the broker
	MQTTUsername string
	MQTTPassword secret.Value
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "127.0.0.1:8080"
		c.LogLevel = "info"
		c.SettingsPath = store.DefaultPath()
		c.CommandTimeout = modem.DefaultCommandTimeout
		c.MQTTTopic = mqttbus.DefaultTopic
		c.MQTTClientID = "atbridge"
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if path := os.Getenv("ATBRIDGE_CONFIG"); path != "" {
			c.SettingsPath = path
		}

		if debug := os.Getenv("ATBRIDGE_DEBUG"); debug != "" {
			if d, err := strconv.ParseBool(debug); err == nil {
				c.Debug = d
			}
		}

		if path := os.Getenv("ATBRIDGE_DEBUG_LOG"); path != "" {
			c.DebugLogPath = path
		}

		if path := os.Getenv("ATBRIDGE_KNOWN_HOSTS"); path != "" {
			c.KnownHostsPath = path
		}

		if root := os.Getenv("ATBRIDGE_WWW"); root != "" {
			c.WWWRoot = root
		}

		if timeout := os.Getenv("COMMAND_TIMEOUT"); timeout != "" {
			if d, ok := parseTimeout(timeout); ok {
				c.CommandTimeout = d
			}
		}

		if broker := os.Getenv("MQTT_BROKER"); broker != "" {
			c.MQTTBroker = broker
		}

		if topic := os.Getenv("MQTT_TOPIC"); topic != "" {
			c.MQTTTopic = topic
		}

		if id := os.Getenv("MQTT_CLIENT_ID"); id != "" {
			c.MQTTClientID = id
		}

		if user := os.Getenv("MQTT_USERNAME"); user != "" {
			c.MQTTUsername = user
		}

		if pass := os.Getenv("MQTT_PASSWORD"); pass != "" {
			c.MQTTPassword = secret.New(pass)
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags. Only flags set on
// the command line are applied.
func WithFlags(fSet *pflag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *pflag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "log-level":
				c.LogLevel = f.Value.String()
			case "config":
				c.SettingsPath = f.Value.String()
			case "debug":
				if d, err := strconv.ParseBool(f.Value.String()); err == nil {
					c.Debug = d
				}
			case "debug-log":
				c.DebugLogPath = f.Value.String()
			case "known-hosts":
				c.KnownHostsPath = f.Value.String()
			case "www":
				c.WWWRoot = f.Value.String()
			case "timeout":
				if d, ok := parseTimeout(f.Value.String()); ok {
					c.CommandTimeout = d
				}
			case "mqtt-broker":
				c.MQTTBroker = f.Value.String()
			case "mqtt-topic":
				c.MQTTTopic = f.Value.String()
			case "mqtt-client-id":
				c.MQTTClientID = f.Value.String()
			case "mqtt-username":
				c.MQTTUsername = f.Value.String()
			}
		})
		return nil
	}
}

// parseTimeout accepts a Go duration ("45s") or a number of seconds ("45").
func parseTimeout(s string) (time.Duration, bool) {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d, true
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second)), true
	}
	return 0, false
}
