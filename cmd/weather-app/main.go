package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/PetoAdam/homenavi/weather-app/internal/config"
	"github.com/PetoAdam/homenavi/weather-app/internal/forecast"
	"github.com/PetoAdam/homenavi/weather-app/internal/httpapi"
	"github.com/PetoAdam/homenavi/weather-app/internal/mqtt"
	"github.com/PetoAdam/homenavi/weather-app/internal/observability"
	"github.com/PetoAdam/homenavi/weather-app/internal/prefs"
	"github.com/PetoAdam/homenavi/weather-app/internal/realtime"
	"github.com/PetoAdam/homenavi/weather-app/internal/scheduler"
	"github.com/PetoAdam/homenavi/weather-app/internal/weatherapi"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const serviceName = "weather-app"

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel, cfg.LogFormat)
	slog.Info("config loaded", "config", cfg)

	shutdownTelemetry, promHandler, tracer := observability.SetupObservability(serviceName)
	defer shutdownTelemetry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := prefs.Open(ctx, cfg.Prefs)
	if err != nil {
		slog.Error("prefs store unavailable", "backend", cfg.Prefs.Backend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	client := weatherapi.New(cfg.WeatherAPIKey,
		weatherapi.WithBaseURL(cfg.WeatherAPIURL),
		weatherapi.WithTimeout(cfg.FetchTimeout),
	)
	defer client.Close()
	if client.Mock() {
		slog.Warn("WEATHERAPI_KEY not set, serving sample weather data")
	}

	screen := forecast.New(client, store, forecast.Options{
		FallbackCity:   cfg.FallbackCity,
		SearchDebounce: cfg.SearchDebounce,
		MinQueryLength: cfg.MinQueryLength,
		PersistTimeout: cfg.PersistTimeout,
	})

	hub := realtime.NewHub(func() any { return screen.Snapshot() })
	screen.Subscribe(func(s forecast.State) {
		observability.RecordState(string(s.Phase))
		hub.Broadcast(s)
	})

	var bridge *mqtt.Bridge
	if cfg.MQTTBrokerURL != "" {
		mq, err := mqtt.Connect(cfg.MQTTBrokerURL, cfg.MQTTClientID)
		if err != nil {
			slog.Error("mqtt connect failed", "error", err)
			os.Exit(1)
		}
		defer mq.Close()
		bridge = mqtt.NewBridge(mq, screen, cfg.MQTTPrefix)
		defer bridge.Close()
		screen.Subscribe(func(s forecast.State) { bridge.PublishState(s) })
	}

	srv := httpapi.NewServer(screen, client, hub, cfg.CacheTTL, cfg.ForecastDays)

	jobs := scheduler.New()
	if err := jobs.Add("refresh", cfg.RefreshCron, screen.Refresh); err != nil {
		slog.Error("invalid refresh schedule", "error", err)
		os.Exit(1)
	}
	if err := jobs.Add("cache-purge", "@every 5m", srv.PurgeCaches); err != nil {
		slog.Error("invalid cache purge schedule", "error", err)
		os.Exit(1)
	}
	jobs.Start()

	if err := screen.Mount(); err != nil {
		slog.Error("mount failed", "error", err)
		os.Exit(1)
	}
	// Commands are accepted only once the mount owns the initial fetch.
	if bridge != nil {
		if err := bridge.Start(); err != nil {
			slog.Error("mqtt subscribe failed", "error", err)
			os.Exit(1)
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(observability.MetricsAndTracingMiddleware(tracer, serviceName))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Trace-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promHandler)

	r.Route("/api", func(r chi.Router) {
		srv.RegisterRoutes(r)
	})

	// No WriteTimeout: /api/ws connections are long-lived.
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("weather-app started", "port", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	slog.Info("shutting down")
	jobs.Stop(shutdownCtx)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	hub.Close()
	screen.Close()
}

func setupLogging(level, format string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}
