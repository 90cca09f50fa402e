package modem

import (
	"log/slog"
	"time"
)

// DefaultCommandTimeout bounds each remote command when the caller gives none.
const DefaultCommandTimeout = 30 * time.Second

// Config holds everything an Executor needs. Build it with NewConfigBuilder.
type Config struct {
	dialer         Dialer
	builder        Builder
	target         Target
	commandTimeout time.Duration
	debug          bool
	debugLogPath   func() string
	observers      []Observer
	logger         *slog.Logger
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.builder == nil {
		c.builder = AtChatBuilder{}
	}
	if c.commandTimeout == 0 {
		c.commandTimeout = DefaultCommandTimeout
	}
	if c.debug && c.debugLogPath == nil {
		c.debugLogPath = DefaultDebugLogPath
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
}

// ConfigBuilder assembles a Config step by step.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder returns an empty builder.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

// WithDialer sets how sessions are opened. Required.
func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

// WithBuilder sets the remote command builder. Defaults to AtChatBuilder.
func (b *ConfigBuilder) WithBuilder(cb Builder) *ConfigBuilder {
	b.config.builder = cb
	return b
}

// WithTarget sets the router and LTE interface. It is validated on every run,
// not here, so an incomplete target still builds.
func (b *ConfigBuilder) WithTarget(t Target) *ConfigBuilder {
	b.config.target = t
	return b
}

// WithCommandTimeout sets the per-command timeout used when Run is called
// without one.
func (b *ConfigBuilder) WithCommandTimeout(d time.Duration) *ConfigBuilder {
	b.config.commandTimeout = d
	return b
}

// WithDebugLog enables the interaction log. path names the file and may be
// nil to use DefaultDebugLogPath. With enabled false no file is ever touched.
func (b *ConfigBuilder) WithDebugLog(enabled bool, path func() string) *ConfigBuilder {
	b.config.debug = enabled
	b.config.debugLogPath = path
	return b
}

// WithObserver adds an observer notified after every executed command.
func (b *ConfigBuilder) WithObserver(o Observer) *ConfigBuilder {
	if o != nil {
		b.config.observers = append(b.config.observers, o)
	}
	return b
}

// WithLogger sets the structured logger.
func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

// Build applies defaults and validates the configuration.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	c.observers = append([]Observer(nil), b.config.observers...)
	c.setDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
