package main

import (
	"testing"
	"time"

	"github.com/spf13/pflag"

	"i4.energy/across/atbridge/modem"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		config, err := LoadConfig(WithDefaults())
		if err != nil {
			t.Fatal(err)
		}
		if config.BindAddress != "127.0.0.1:8080" || config.LogLevel != "info" {
			t.Errorf("unexpected defaults: %+v", config)
		}
		if config.CommandTimeout != modem.DefaultCommandTimeout {
			t.Errorf("expected default timeout, got %v", config.CommandTimeout)
		}
		if config.MQTTBroker != "" {
			t.Error("MQTT must be disabled by default")
		}
	})

	t.Run("Environment overrides defaults", func(t *testing.T) {
		t.Setenv("BIND_ADDRESS", "0.0.0.0:9000")
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("ATBRIDGE_CONFIG", "/etc/atbridge/remote_config.json")
		t.Setenv("ATBRIDGE_DEBUG", "true")
		t.Setenv("ATBRIDGE_DEBUG_LOG", "/var/log/at_debug.log")
		t.Setenv("COMMAND_TIMEOUT", "45")
		t.Setenv("MQTT_BROKER", "tcp://broker:1883")
		t.Setenv("MQTT_PASSWORD", "mqtt-pass")

		config, err := LoadConfig(WithDefaults(), WithEnv())
		if err != nil {
			t.Fatal(err)
		}
		if config.BindAddress != "0.0.0.0:9000" || config.LogLevel != "debug" {
			t.Errorf("unexpected config: %+v", config)
		}
		if config.SettingsPath != "/etc/atbridge/remote_config.json" || config.DebugLogPath != "/var/log/at_debug.log" {
			t.Errorf("unexpected paths: %+v", config)
		}
		if !config.Debug {
			t.Error("expected debug to be enabled")
		}
		if config.CommandTimeout != 45*time.Second {
			t.Errorf("expected 45s timeout, got %v", config.CommandTimeout)
		}
		if config.MQTTBroker != "tcp://broker:1883" || config.MQTTPassword.Reveal() != "mqtt-pass" {
			t.Errorf("unexpected MQTT settings: %+v", config)
		}
	})

	t.Run("Invalid environment values are ignored", func(t *testing.T) {
		t.Setenv("ATBRIDGE_DEBUG", "maybe")
		t.Setenv("COMMAND_TIMEOUT", "-3")

		config, err := LoadConfig(WithDefaults(), WithEnv())
		if err != nil {
			t.Fatal(err)
		}
		if config.Debug || config.CommandTimeout != modem.DefaultCommandTimeout {
			t.Errorf("invalid values applied: %+v", config)
		}
	})

	t.Run("Flags override environment", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("COMMAND_TIMEOUT", "10s")

		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		fs.String("log-level", "info", "")
		fs.Duration("timeout", 0, "")
		fs.String("bind-address", "", "")
		fs.Bool("debug", false, "")
		if err := fs.Parse([]string{"--log-level=warn", "--timeout=2m", "--debug"}); err != nil {
			t.Fatal(err)
		}

		config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(fs))
		if err != nil {
			t.Fatal(err)
		}
		if config.LogLevel != "warn" {
			t.Errorf("expected flag log level, got %q", config.LogLevel)
		}
		if config.CommandTimeout != 2*time.Minute {
			t.Errorf("expected 2m timeout, got %v", config.CommandTimeout)
		}
		if !config.Debug {
			t.Error("expected debug flag to apply")
		}
		if config.BindAddress != "127.0.0.1:8080" {
			t.Errorf("unset flag must not override, got %q", config.BindAddress)
		}
	})
	t.Run("Host key and web UI settings", func(t *testing.T) {
		t.Setenv("ATBRIDGE_KNOWN_HOSTS", "/etc/atbridge/known_hosts")
		t.Setenv("ATBRIDGE_WWW", "/srv/www")

		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		fs.String("known-hosts", "", "")
		fs.String("www", "", "")
		if err := fs.Parse([]string{"--www=/opt/atbridge/www"}); err != nil {
			t.Fatal(err)
		}

		config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(fs))
		if err != nil {
			t.Fatal(err)
		}
		if config.KnownHostsPath != "/etc/atbridge/known_hosts" {
			t.Errorf("expected known hosts from environment, got %q", config.KnownHostsPath)
		}
		if config.WWWRoot != "/opt/atbridge/www" {
			t.Errorf("expected web root from flag, got %q", config.WWWRoot)
		}
	})
}
