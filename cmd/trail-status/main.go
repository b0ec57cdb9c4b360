package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"

	"github.com/i474232898/trail-status/internal/aggregate"
	httpapi "github.com/i474232898/trail-status/internal/api/http"
	"github.com/i474232898/trail-status/internal/config"
	"github.com/i474232898/trail-status/internal/fetch"
	"github.com/i474232898/trail-status/internal/forecast"
	"github.com/i474232898/trail-status/internal/notify"
	"github.com/i474232898/trail-status/internal/observability"
	"github.com/i474232898/trail-status/internal/scheduler"
	"github.com/i474232898/trail-status/internal/store"
	"github.com/i474232898/trail-status/internal/trail/sources"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	// Shared HTTP client and retrying fetcher for every outbound call.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	fetcher := fetch.New(httpClient,
		fetch.WithClock(clock),
		fetch.WithLogger(log),
		fetch.WithMetrics(metrics),
		fetch.WithMaxAttempts(cfg.FetchMaxAttempts),
	)

	statusStore, closeStore, err := openStore(cfg)
	if err != nil {
		log.Error("failed to open status store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	factory := sources.Factory{Fetcher: fetcher, Clock: clock, Loc: cfg.Location, Logger: log}
	statusSources, err := factory.BuildAll(cfg.Trails)
	if err != nil {
		log.Error("failed to build status sources", "error", err)
		os.Exit(1)
	}

	if cfg.OpenWeatherAPIKey == "" {
		log.Warn("OPENWEATHER_API_KEY not set; weather predictions will be omitted")
	}
	forecaster := forecast.NewEngine(
		forecast.NewClient(fetcher, cfg.OpenWeatherAPIKey, "", forecast.Units(cfg.Units)),
		clock,
		forecast.EngineConfig{
			Location: cfg.Location,
			Daytime:  forecast.Daytime{StartHour: cfg.DaytimeStartHour, EndHour: cfg.DaytimeEndHour},
		},
		log, metrics,
	)

	var sender notify.Sender = notify.LogSender{Logger: log}
	if cfg.WebhookURL != "" {
		sender = notify.NewWebhook(cfg.WebhookURL, fetcher)
	}
	notifier := notify.NewNotifier(statusStore, sender, clock, log, metrics)

	service, err := aggregate.NewService(cfg.Trails, statusSources, forecaster, notifier, clock, log, metrics,
		aggregate.Options{
			CacheMaxAge:      cfg.CacheMaxAge,
			ErrorCacheMaxAge: cfg.ErrorCacheMaxAge,
			CycleTimeout:     cfg.CycleTimeout,
		})
	if err != nil {
		log.Error("failed to build aggregation service", "error", err)
		os.Exit(1)
	}

	// Scheduler that runs a full cycle every FETCH_INTERVAL.
	sched := scheduler.New(cfg.FetchInterval, service, log)
	if err := sched.Start(); err != nil {
		log.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "trail-status",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.CycleTimeout + 5*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	app.Use(logger.New())
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, service)

	go func() {
		log.Info("http server listening", "addr", cfg.Addr(), "trails", len(cfg.Trails))
		if err := app.Listen(cfg.Addr()); err != nil {
			log.Error("fiber server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
}

// openStore builds the persisted status map for the configured backend.
func openStore(cfg *config.AppConfig) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store.NewRedisStore(client, cfg.RedisKey), func() { _ = client.Close() }, nil
	case "memory":
		return store.NewMemoryStore(), func() {}, nil
	default:
		return store.NewFileStore(cfg.StatusFile), func() {}, nil
	}
}
