package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	prommetrics "github.com/strufkin/pyzbus/adapters/prometheus"
	"github.com/strufkin/pyzbus/core/app"
	"github.com/strufkin/pyzbus/core/settings"
)

func main() {
	var (
		dir        = flag.String("dir", ".", "directory holding settings.cache and settings.local")
		uid        = flag.String("uid", "", "identity override (UID setting)")
		natsURL    = flag.String("nats", "", "NATS URL for both channels (SubAddr/PubAddr settings)")
		watchLocal = flag.Bool("watch", false, "hot-reload settings.local on change")
		metricsOn  = flag.String("metrics", "", "expose Prometheus metrics on this address, e.g. :9102")
	)
	flag.Parse()

	overrides := map[string]any{}
	if *uid != "" {
		overrides[settings.KeyUID] = *uid
	}
	if *natsURL != "" {
		overrides[settings.KeySubAddr] = *natsURL
		overrides[settings.KeyPubAddr] = *natsURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	level := new(slog.LevelVar)
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfg := app.Config{
		Context:     ctx,
		Log:         log,
		Overrides:   overrides,
		SettingsDir: *dir,
		WatchLocal:  *watchLocal,
	}

	if *metricsOn != "" {
		reg := promclient.NewRegistry()
		cfg.Metrics = prommetrics.NewRuntimeMetrics(reg)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(*metricsOn, mux); err != nil {
				log.Error("metrics listener failed", slog.Any("error", err))
			}
		}()
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Error("startup failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Honor the Debug setting once settings are resolved.
	if a.Settings().Bool(settings.KeyDebug) {
		level.Set(slog.LevelDebug)
	}

	if err := a.Run(); err != nil {
		log.Error("runtime failed", slog.Any("error", err))
		os.Exit(1)
	}
}
