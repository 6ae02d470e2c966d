package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"lightctl/config"
	"lightctl/internal/application"
	"lightctl/internal/infra/backend"
	"lightctl/internal/infra/httpapi"
	"lightctl/internal/infra/metrics"
	"lightctl/internal/infra/mqtt"
	"lightctl/internal/infra/pushover"
	"lightctl/internal/infra/websocket"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envPath := flag.String("env", ".env", "path to dotenv file")
	flag.Parse()

	envErr := godotenv.Load(*envPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)
	if envErr != nil {
		logger.Warn("dotenv file not loaded", "path", *envPath, "error", envErr)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	vendor, err := backend.New(cfg.Vendor)
	if err != nil {
		logger.Error("creating vendor client", "error", err)
		os.Exit(1)
	}

	var (
		appMetrics  application.Metrics = application.NoopMetrics{}
		httpMetrics httpapi.Instrumentation
	)
	if cfg.Server.MetricsEnabled() {
		m := metrics.New()
		appMetrics = m
		httpMetrics = m
	}

	policy, err := application.ParseSuccessPolicy(cfg.Control.SuccessPolicy)
	if err != nil {
		logger.Error("invalid success policy", "error", err)
		os.Exit(1)
	}

	registry := application.NewRegistry(vendor, application.RegistryConfig{
		MaxAge:      config.Duration(cfg.Session.MaxAge, 0),
		DeviceClass: cfg.Session.DeviceClass,
	}, appMetrics, logger)

	executor := application.NewExecutor(application.ExecutorConfig{
		MaxWorkers:    cfg.Control.MaxWorkers,
		DeviceTimeout: config.Duration(cfg.Control.DeviceTimeout, 10*time.Second),
		ReadState:     cfg.Control.ReadState == nil || *cfg.Control.ReadState,
	}, appMetrics, logger)

	var (
		notifiers application.MultiNotifier
		events    http.Handler
	)

	if cfg.Notify.WebsocketEnabled() {
		hub := websocket.NewHub(logger)
		go hub.Run(ctx)
		notifiers = append(notifiers, hub)
		events = hub
	}

	if cfg.Notify.MQTT.URI != "" {
		publisher := mqtt.NewPublisher(cfg.Notify.MQTT.URI, cfg.Notify.MQTT.Topic, logger)
		if err := publisher.Connect(ctx); err != nil {
			logger.Warn("mqtt notifications disabled", "error", err)
		} else {
			defer publisher.Close()
			notifiers = append(notifiers, publisher)
		}
	}

	if cfg.Notify.Pushover.Enabled {
		notifiers = append(notifiers, pushover.NewClient(cfg.Notify.Pushover.Token, cfg.Notify.Pushover.UserKey))
	}

	lights := application.NewLightService(registry, executor, policy, notifiers, appMetrics, logger)

	if err := lights.Sync(ctx); err != nil {
		logger.Warn("initial vendor login failed, retrying on first request", "backend", vendor.Name(), "error", err)
	} else {
		logger.Info("connected to vendor", "backend", vendor.Name(), "lights", registry.Count())
	}

	if err := registry.StartPeriodicSync(ctx, cfg.Session.Schedule()); err != nil {
		logger.Error("starting periodic sync", "error", err)
		os.Exit(1)
	}

	proxies, err := cfg.Server.Proxies()
	if err != nil {
		logger.Error("invalid trusted proxies", "error", err)
		os.Exit(1)
	}

	server := httpapi.NewServer(httpapi.Config{
		Addr:           cfg.Server.Addr(),
		AuthToken:      cfg.Server.AuthToken,
		RateLimit:      cfg.Server.RateLimit,
		RateWindow:     config.Duration(cfg.Server.RateWindow, time.Minute),
		TrustedProxies: proxies,
		Backend:        cfg.Vendor.Backend,
		CredentialsSet: cfg.CredentialsSet(),
	}, lights, events, httpMetrics, logger)

	if err := server.Start(ctx); err != nil {
		logger.Error("starting http server", "error", err)
		os.Exit(1)
	}

	logger.Info("lights control api started",
		"addr", cfg.Server.Addr(),
		"backend", vendor.Name(),
		"success_policy", cfg.Control.SuccessPolicy,
		"notifiers", len(notifiers),
	)

	<-ctx.Done()

	if err := server.Stop(); err != nil {
		logger.Error("stopping http server", "error", err)
	}
	lights.Wait()
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
