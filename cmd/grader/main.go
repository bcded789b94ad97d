// Package main is the entry point for the grader service.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unicon/grader-go/internal/api"
	"github.com/unicon/grader-go/internal/config"
	"github.com/unicon/grader-go/internal/engine"
	"github.com/unicon/grader-go/internal/execstore"
	"github.com/unicon/grader-go/internal/graph"
	"github.com/unicon/grader-go/internal/resultsink"
	"github.com/unicon/grader-go/internal/sandbox"
	"github.com/unicon/grader-go/internal/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	logger.Info("starting grader",
		slog.String("port", cfg.Port),
		slog.String("log_level", cfg.LogLevel),
	)

	// Initialize tracing
	tracerProvider, err := tracing.Init(context.Background(), &tracing.Config{
		ServiceName:    "unicon-grader",
		ServiceVersion: "1.0.0",
		OTLPEndpoint:   cfg.TracingEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     1.0,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Initialize execution store based on configuration
	var store execstore.Store
	switch cfg.StoreType {
	case "redis":
		redisStore, err := execstore.NewRedisStore(&execstore.RedisConfig{
			URL:      cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.StoreTTL,
		})
		if err != nil {
			logger.Error("failed to connect to Redis, falling back to memory store", "error", err)
			store = execstore.NewMemoryStore(&execstore.Config{TTL: cfg.StoreTTL})
		} else {
			store = redisStore
			logger.Info("using Redis execution store", slog.String("url", cfg.RedisURL))
		}
	default:
		store = execstore.NewMemoryStore(&execstore.Config{TTL: cfg.StoreTTL})
		logger.Info("using in-memory execution store")
	}
	defer store.Close()

	// Initialize sandbox runner
	var runner sandbox.Runner
	switch cfg.SandboxMode {
	case "subprocess":
		runner = sandbox.NewSubprocessRunner(&sandbox.SubprocessConfig{
			Python: cfg.SandboxPython,
		}, logger)
		logger.Warn("using local subprocess sandbox, submissions are NOT isolated")
	default:
		redisRunner, err := sandbox.NewRedisRunner(&sandbox.RedisConfig{
			URL:          cfg.RedisURL,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			RequestQueue: cfg.SandboxRequestQueue,
			ReplyPrefix:  cfg.SandboxReplyPrefix,
			ReplyGrace:   cfg.SandboxReplyGrace,
		}, logger)
		if err != nil {
			logger.Error("failed to connect sandbox queue", "error", err)
			os.Exit(1)
		}
		runner = redisRunner
		logger.Info("using redis sandbox queue", slog.String("queue", cfg.SandboxRequestQueue))
	}
	defer runner.Close()

	// Initialize result sink
	var sink resultsink.Sink
	switch cfg.SinkType {
	case "redis":
		redisSink, err := resultsink.NewRedisSink(&resultsink.RedisSinkConfig{
			URL:      cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.SinkChannel,
		})
		if err != nil {
			logger.Error("failed to connect result sink, falling back to log sink", "error", err)
			sink = &resultsink.LogSink{Logger: logger}
		} else {
			sink = redisSink
			logger.Info("publishing verdicts to redis", slog.String("channel", cfg.SinkChannel))
		}
	default:
		sink = &resultsink.LogSink{Logger: logger}
	}
	defer sink.Close()

	// Initialize engine
	eng := engine.New(runner, &engine.Config{
		Policy:        engine.Policy(cfg.VerdictPolicy),
		MaxIterations: cfg.MaxLoopIterations,
	}, logger)

	// Initialize schema validator
	schema, err := graph.NewSchemaValidator()
	if err != nil {
		logger.Error("failed to compile task schema", "error", err)
		os.Exit(1)
	}

	// Initialize API handlers
	handlers := api.NewHandlers(store, eng, schema, sink, cfg, logger)
	limiter := api.NewRateLimiter(&api.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		CleanupInterval:   time.Minute,
		LimiterTTL:        5 * time.Minute,
		SkipPaths:         []string{"/health", "/healthz", "/ready", "/metrics"},
	})
	defer limiter.Stop()
	server := api.NewServer(handlers, limiter)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := tracerProvider.Shutdown(ctx); err != nil {
		logger.Error("tracer shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
