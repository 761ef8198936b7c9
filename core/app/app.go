// Package app wires the runtime together: settings, identity, transport
// and agent, with signal-friendly shutdown through the context.
package app

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/strufkin/pyzbus/adapters/nats"
	"github.com/strufkin/pyzbus/core/actor"
	"github.com/strufkin/pyzbus/core/bus"
	"github.com/strufkin/pyzbus/core/settings"
	"github.com/strufkin/pyzbus/internal/identity"
	"github.com/strufkin/pyzbus/ports/kv"
)

type Config struct {
	Context context.Context
	Log     *slog.Logger

	// Overrides is the startup settings layer, merged over the defaults
	// before the cache and local layers apply.
	Overrides map[string]any

	// SettingsDir holds settings.cache and settings.local. Defaults to the
	// working directory.
	SettingsDir string

	// Transport overrides the NATS session built from the settings.
	// Mostly for tests.
	Transport bus.Transport

	Metrics actor.RuntimeMetrics

	// ApplySettings is handed through to the agent's UpdateSettings path.
	ApplySettings func(changed bus.Fields)

	// WatchLocal enables hot reload of the local override file.
	WatchLocal bool
}

type App struct {
	ctx       context.Context
	cancelCtx context.CancelFunc
	log       *slog.Logger
	agent     *actor.Agent
	settings  *settings.Settings
	loader    *settings.Loader
}

// New resolves identity and settings and constructs the agent. Consumers
// register their handlers on Agent() before calling Run.
func New(config Config) (*App, error) {
	if config.Context == nil {
		config.Context = context.Background()
	}
	if config.Log == nil {
		config.Log = slog.Default()
	}

	app := &App{log: config.Log}
	app.ctx, app.cancelCtx = context.WithCancel(config.Context)

	dir := config.SettingsDir
	if dir == "" {
		dir = "."
	}
	app.loader = settings.NewLoader(settings.LoaderConfig{
		Store:     kv.NewFileStore(dir),
		LocalPath: filepath.Join(dir, settings.DefaultLocalFile),
		Log:       config.Log,
	})
	app.settings = app.loader.Load(app.ctx, config.Overrides)

	uid := app.settings.String(settings.KeyUID)
	if uid == "" {
		uid = identity.Default()
	}
	app.log = config.Log.With(slog.String("uid", uid))
	app.log.Info("identity resolved")

	tr := config.Transport
	if tr == nil {
		var err error
		tr, err = nats.NewSession(nats.SessionConfig{
			Identity:   uid,
			Connect:    nats.ConnectURL(app.settings.String(settings.KeyPubAddr)),
			SubConnect: nats.ConnectURL(app.settings.String(settings.KeySubAddr)),
			Log:        app.log,
		})
		if err != nil {
			app.cancelCtx()
			return nil, err
		}
	}

	agent, err := actor.New(actor.Config{
		Identity:      uid,
		Transport:     tr,
		Settings:      app.settings,
		Saver:         app.loader,
		ApplySettings: config.ApplySettings,
		Log:           app.log,
		Metrics:       config.Metrics,
	})
	if err != nil {
		app.cancelCtx()
		return nil, err
	}
	app.agent = agent

	if config.WatchLocal {
		if _, err := settings.Watch(app.ctx, app.loader, app.settings, nil); err != nil {
			app.log.Warn("settings watcher unavailable", slog.Any("error", err))
		}
	}

	return app, nil
}

// Agent returns the actor for handler registration and messaging.
func (a *App) Agent() *actor.Agent { return a.agent }

// Settings returns the live settings mapping.
func (a *App) Settings() *settings.Settings { return a.settings }

// Run blocks until the app's context is cancelled.
func (a *App) Run() error {
	return a.agent.Run(a.ctx)
}

// Stop cancels the app's context, triggering an orderly shutdown.
func (a *App) Stop() {
	a.cancelCtx()
}
