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

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	httpapi "github.com/i474232898/weather-assistant/internal/api/http"
	"github.com/i474232898/weather-assistant/internal/assistant"
	"github.com/i474232898/weather-assistant/internal/config"
	"github.com/i474232898/weather-assistant/internal/metrics"
	"github.com/i474232898/weather-assistant/internal/scheduler"
	"github.com/i474232898/weather-assistant/internal/speech"
	"github.com/i474232898/weather-assistant/internal/store"
	"github.com/i474232898/weather-assistant/internal/weather"
	"github.com/i474232898/weather-assistant/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	collector := metrics.NewCollector("weather_assistant", prometheus.DefaultRegisterer)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	baseCfg := providers.HTTPClientConfig{Client: httpClient, Observer: collector}

	geocodeCfg := baseCfg
	geocodeCfg.Limiter = rate.NewLimiter(rate.Limit(2), 2)

	geminiCfg := baseCfg
	if cfg.GeminiRPS > 0 {
		geminiCfg.Limiter = rate.NewLimiter(rate.Limit(cfg.GeminiRPS), 1)
	}

	catalog := weather.DefaultCatalog()
	if cfg.StationCatalogPath != "" {
		if catalog, err = weather.LoadCatalog(cfg.StationCatalogPath); err != nil {
			logger.Error("failed to load station catalog", "path", cfg.StationCatalogPath, "error", err)
			os.Exit(1)
		}
	}

	var reverse []weather.ReverseGeocoder
	if cfg.GoogleGeocoderAPIKey != "" {
		reverse = append(reverse, providers.NewGoogleReverseProvider(cfg.GoogleGeocoderAPIKey, cfg.HTTPTimeout))
	}
	reverse = append(reverse, providers.NewBigDataCloudProvider(baseCfg))

	// Core service orchestrating the provider adapters.
	service := weather.NewService(weather.Providers{
		Forecast: providers.NewOpenMeteoProvider(baseCfg),
		Water:    providers.NewUSGSProvider(baseCfg),
		Geocoder: providers.NewLocationIQProvider(geocodeCfg, cfg.LocationIQAPIKey),
		Reverse:  reverse,
		IP:       providers.NewIPAPIProvider(baseCfg),
	}, catalog, logger)

	sessions := store.NewMemoryStore(cfg.SessionIdleTTL)
	collector.TrackSessions(sessions.Len)

	answers := assistant.NewService(
		service,
		providers.NewGeminiProvider(geminiCfg, cfg.GeminiAPIKey, cfg.GeminiModel),
		sessions,
		assistant.Config{
			StationRadiusKm: cfg.StationRadiusKm,
			FloodRadiusKm:   cfg.FloodRadiusKm,
			MaxStations:     cfg.StationMaxResults,
			MaxContextBytes: cfg.PromptMaxContextBytes,
		},
		collector,
		logger,
	)

	relay := speech.NewRelay(speech.NewClient(speech.Config{
		URL:            cfg.SpeechmaticsURL,
		APIKey:         cfg.SpeechmaticsAPIKey,
		Language:       cfg.SpeechLanguage,
		EnablePartials: true,
	}), collector.TranscriptionConnections, logger)

	// Idle session sweep and keep-alive ping.
	sched := scheduler.New(scheduler.Config{
		SweepInterval:     cfg.SessionSweepInterval,
		KeepAliveURL:      cfg.KeepAliveURL,
		KeepAliveInterval: cfg.KeepAliveInterval,
	}, sessions, collector, httpClient, logger)
	if err := sched.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	app := httpapi.NewApp(httpapi.Dependencies{
		Weather:         service,
		Assistant:       answers,
		Sessions:        sessions,
		Speech:          providers.NewElevenLabsProvider(baseCfg, cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID),
		Relay:           relay,
		StationRadiusKm: cfg.StationRadiusKm,
		MaxStations:     cfg.StationMaxResults,
	}, httpapi.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AccessLog:      true,
		Metrics:        collector,
		Gatherer:       prometheus.DefaultGatherer,
		Logger:         logger,
	})

	// Start server with graceful shutdown
	go func() {
		logger.Info("http server started", "addr", cfg.Addr(), "stations", len(catalog))
		if err := app.Listen(cfg.Addr()); err != nil {
			logger.Error("fiber server stopped", "error", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}
	logger.Info("server stopped cleanly")
}

func logLevel(level string) slog.Leveler {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
