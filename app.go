package main

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"i4.energy/across/atbridge/modem"
	"i4.energy/across/atbridge/store"
)

// App ties the stored settings to the executor. Settings are read for every
// chain, so changes saved through the API apply to the next request.
type App struct {
	Config *Config
	Store  *store.FileStore
	Dialer modem.Dialer
	Logger *slog.Logger

	mu        sync.RWMutex
	observers []modem.Observer
}

// NewApp returns an App reaching the router over SSH. Host keys are checked
// against config.KnownHostsPath when it is set.
func NewApp(config *Config, logger *slog.Logger) (*App, error) {
	dialer := modem.SSHDialer{}
	if config.KnownHostsPath != "" {
		callback, err := modem.KnownHosts(config.KnownHostsPath)
		if err != nil {
			return nil, err
		}
		dialer.HostKeyCallback = callback
	}

	return &App{
		Config: config,
		Store:  store.NewFileStore(config.SettingsPath, logger.With("component", "store")),
		Dialer: dialer,
		Logger: logger,
	}, nil
}

// AddObserver registers o for every chain started afterwards. It is safe to
// call while chains are running.
func (a *App) AddObserver(o modem.Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, o)
}

// Executor builds an executor from the current settings.
func (a *App) Executor() (*modem.Executor, error) {
	settings := a.Store.Load()

	builder, err := settings.Builder()
	if err != nil {
		return nil, err
	}

	b := modem.NewConfigBuilder().
		WithDialer(a.Dialer).
		WithBuilder(builder).
		WithTarget(settings.Target()).
		WithCommandTimeout(a.Config.CommandTimeout).
		WithDebugLog(settings.Debug || a.Config.Debug, a.debugLogPath).
		WithLogger(a.Logger.With("component", "executor"))
	a.mu.RLock()
	observers := slices.Clone(a.observers)
	a.mu.RUnlock()
	for _, o := range observers {
		b.WithObserver(o)
	}

	config, err := b.Build()
	if err != nil {
		return nil, err
	}
	return modem.NewExecutor(config)
}

// Run executes the AT chain raw with the current settings.
func (a *App) Run(ctx context.Context, raw string, timeout time.Duration) (modem.ChainResult, error) {
	e, err := a.Executor()
	if err != nil {
		return modem.ChainResult{}, err
	}
	return e.Run(ctx, raw, timeout)
}

// Ping checks that the router accepts the current settings.
func (a *App) Ping(ctx context.Context, timeout time.Duration) error {
	e, err := a.Executor()
	if err != nil {
		return err
	}
	return e.Ping(ctx, timeout)
}

func (a *App) debugLogPath() string {
	if a.Config.DebugLogPath != "" {
		return a.Config.DebugLogPath
	}
	return modem.DefaultDebugLogPath()
}
