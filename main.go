package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"i4.energy/across/atbridge/mqttbus"
	"i4.energy/across/atbridge/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries what every subcommand needs once flags are parsed.
type cli struct {
	config *Config
	logger *slog.Logger
	app    *App
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           "atbridge",
		Short:         "Run AT commands on a RouterOS LTE modem over SSH",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("config", "", "Path of the router settings file (default beside the executable)")
	flags.Bool("debug", false, "Append every AT interaction to the debug log")
	flags.String("debug-log", "", "Path of the debug log (default at_debug.log beside the executable)")
	flags.Duration("timeout", 0, "Per-command timeout (default 30s)")
	flags.String("known-hosts", "", "OpenSSH known_hosts file to verify the router host key (default accept any key)")

	rootCmd.AddCommand(
		c.newServeCmd(),
		c.newExecCmd(),
		c.newStatusCmd(),
		c.newConfigCmd(),
	)
	return rootCmd
}

func (c *cli) load(cmd *cobra.Command) error {
	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(cmd.Flags()))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	c.config = config
	c.logger = newLogger(cmd.ErrOrStderr(), config.LogLevel)
	app, err := NewApp(config, c.logger)
	if err != nil {
		return err
	}
	c.app = app
	return nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

func (c *cli) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and, when a broker is configured, the MQTT bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve()
		},
	}
	cmd.Flags().String("bind-address", "127.0.0.1:8080", "Bind address for the HTTP server")
	cmd.Flags().String("www", "", "Directory served as the web UI (disabled when empty)")
	cmd.Flags().String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (disabled when empty)")
	cmd.Flags().String("mqtt-topic", mqttbus.DefaultTopic, "Base MQTT topic")
	cmd.Flags().String("mqtt-client-id", "atbridge", "MQTT client identifier")
	cmd.Flags().String("mqtt-username", "", "MQTT username (password from MQTT_PASSWORD)")
	return cmd
}

func (c *cli) serve() error {
	logger := c.logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mqttClient mqtt.Client
	if c.config.MQTTBroker != "" {
		requests := mqttbus.NewRequests(ctx, c.config.MQTTTopic, c.app.Run, logger.With("component", "mqtt"))

		client := mqttbus.NewClient(mqttbus.Options{
			Broker:    c.config.MQTTBroker,
			ClientID:  c.config.MQTTClientID,
			Username:  c.config.MQTTUsername,
			Password:  c.config.MQTTPassword,
			OnConnect: requests.Subscribe,
		}, logger.With("component", "mqtt"))
		// Requests may arrive as soon as OnConnect subscribes.
		c.app.AddObserver(mqttbus.NewPublisher(client, c.config.MQTTTopic, logger.With("component", "mqtt")))

		connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
		err := mqttbus.Connect(connectCtx, client)
		connectCancel()
		if err != nil {
			logger.Error("Failed to connect to MQTT broker", "broker", c.config.MQTTBroker, "error", err)
			return err
		}
		mqttClient = client
	}

	logger.Info("Starting AT bridge", "settings", c.app.Store.Path(), "mqtt", c.config.MQTTBroker != "")

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:    c.config.BindAddress,
		Handler: NewServer(c.app, logger.With("component", "server")),
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig)
	case err := <-serveErr:
		logger.Error("HTTP server failed", "error", err)
		return err
	}

	cancel()
	if mqttClient != nil {
		logger.Info("Closing MQTT connection")
		mqttClient.Disconnect(500)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
		return err
	}
	return nil
}

func (c *cli) newExecCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "exec <command>...",
		Short: "Run AT commands; each argument may hold a ';' separated chain",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			result, err := c.app.Run(ctx, strings.Join(args, "\n"), 0)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				if result.Stdout != "" {
					fmt.Fprintln(cmd.OutOrStdout(), result.Stdout)
				}
				if result.Stderr != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), result.Stderr)
				}
			}

			if result.Aborted {
				return fmt.Errorf("chain aborted after %d of %d commands", result.Executed, result.Total)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func (c *cli) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check that the router accepts the stored settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Ping(cmd.Context(), 0); err != nil {
				return err
			}
			target := c.app.Store.Load().Target()
			fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s:%d (interface %s)\n", target.Host, target.SSHPort(), target.Interface)
			return nil
		},
	}
}

func (c *cli) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the router settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the settings with the password masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(c.app.Store.Load())
		},
	}

	var askPassword bool
	set := &cobra.Command{
		Use:   "set",
		Short: "Update the settings; omitted flags keep their stored value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			patch, err := patchFromFlags(cmd)
			if err != nil {
				return err
			}
			if askPassword {
				password, err := readPassword(cmd)
				if err != nil {
					return err
				}
				patch.Password = &password
			}

			settings, err := c.app.Store.Update(patch)
			if err != nil {
				return err
			}
			if err := settings.Validate(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(settings)
		},
	}
	set.Flags().String("host", "", "Router host name or address")
	set.Flags().Int("port", 22, "Router SSH port")
	set.Flags().String("username", "", "SSH user name")
	set.Flags().String("password", "", "SSH password (prefer --ask-password)")
	set.Flags().BoolVar(&askPassword, "ask-password", false, "Prompt for the SSH password")
	set.Flags().String("interface", "", "LTE interface name, e.g. lte1")
	set.Flags().String("tool", "", "Remote AT command tool (default interface/lte/at-chat)")
	set.Flags().String("tool-args", "", "Extra arguments for the remote AT command tool")
	set.Flags().Bool("debug-log-enabled", false, "Persist the debug log setting")
	set.MarkFlagsMutuallyExclusive("password", "ask-password")

	cmd.AddCommand(show, set)
	return cmd
}

// patchFromFlags turns the flags given on the command line into a Patch.
func patchFromFlags(cmd *cobra.Command) (store.Patch, error) {
	var patch store.Patch
	flags := cmd.Flags()

	strs := map[string]**string{
		"host":      &patch.Host,
		"username":  &patch.Username,
		"password":  &patch.Password,
		"interface": &patch.Interface,
		"tool":      &patch.CommandTool,
		"tool-args": &patch.CommandArgs,
	}
	for name, field := range strs {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return store.Patch{}, err
		}
		*field = &v
	}

	if flags.Changed("port") {
		port, err := flags.GetInt("port")
		if err != nil {
			return store.Patch{}, err
		}
		patch.Port = &port
	}
	if flags.Changed("debug-log-enabled") {
		debug, err := flags.GetBool("debug-log-enabled")
		if err != nil {
			return store.Patch{}, err
		}
		patch.Debug = &debug
	}
	return patch, nil
}

func readPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--ask-password needs an interactive terminal")
	}
	fmt.Fprint(cmd.ErrOrStderr(), "SSH password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(password), nil
}
