package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/skypro1111/newscast-audio-service/internal/config"
	"github.com/skypro1111/newscast-audio-service/internal/gemini"
	"github.com/skypro1111/newscast-audio-service/internal/metrics"
	"github.com/skypro1111/newscast-audio-service/internal/playback"
	"github.com/skypro1111/newscast-audio-service/internal/server"
	"github.com/skypro1111/newscast-audio-service/internal/session"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "newscast-audio-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load .env if present; real environment takes precedence
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.String("news_model", cfg.Gemini.NewsModel),
		slog.String("script_model", cfg.Gemini.ScriptModel),
		slog.String("tts_model", cfg.Gemini.TTSModel),
		slog.Bool("playback_enabled", cfg.Playback.Enabled),
		slog.Int("max_sessions", cfg.Session.MaxSessions),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize generative API client
	geminiClient, err := gemini.NewClient(gemini.Config{
		APIKey:        cfg.Gemini.APIKey,
		BaseURL:       cfg.Gemini.BaseURL,
		NewsModel:     cfg.Gemini.NewsModel,
		ScriptModel:   cfg.Gemini.ScriptModel,
		TTSModel:      cfg.Gemini.TTSModel,
		Timeout:       cfg.Gemini.GetTimeoutDuration(),
		MaxRetries:    cfg.Gemini.MaxRetries,
		MaxConcurrent: cfg.Gemini.MaxConcurrent,
		StationName:   cfg.Gemini.StationName,
		StationSlogan: cfg.Gemini.StationSlogan,
		MaxNewsItems:  cfg.Gemini.MaxNewsItems,
	})
	if err != nil {
		logger.Error("Failed to create Gemini client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Gemini client initialized")

	// Initialize shared playback output
	output := playback.NewOutput(playback.Config{
		Enabled:       cfg.Playback.Enabled,
		PlayerCommand: cfg.Playback.PlayerCommand,
	}, logger)
	logger.Info("Playback output configured", slog.Bool("enabled", cfg.Playback.Enabled))

	// Initialize session manager
	sessionMgr := session.NewManager(session.ManagerConfig{
		MaxSessions:     cfg.Session.MaxSessions,
		SessionTimeout:  cfg.Session.GetTimeoutDuration(),
		CleanupInterval: cfg.Session.GetCleanupIntervalDuration(),
		DefaultVoice1:   cfg.Session.DefaultVoice1,
		DefaultVoice2:   cfg.Session.DefaultVoice2,
	}, geminiClient, output, logger, appMetrics)
	logger.Info("Session manager initialized",
		slog.Duration("session_timeout", cfg.Session.GetTimeoutDuration()),
		slog.Int("max_sessions", cfg.Session.MaxSessions),
	)

	// Initialize HTTP API server
	httpServer := server.NewHTTPServer(cfg.HTTP, logger, cfg, sessionMgr, geminiClient, appMetrics)
	logger.Info("HTTP API server initialized",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	// Start HTTP server
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop session manager (tear down sessions and close the playback output)
	sessionMgr.Stop()

	// Get final statistics
	stats := geminiClient.GetStats()
	logger.Info("Final upstream statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("success_requests", stats.SuccessRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
		slog.Uint64("total_retries", stats.TotalRetries),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
