package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	apihttp "hybridstream/internal/api/http"
	"hybridstream/internal/app"
	"hybridstream/internal/backend/memory"
	torrentbackend "hybridstream/internal/backend/torrent"
	"hybridstream/internal/domain"
	"hybridstream/internal/domain/ports"
	"hybridstream/internal/loader"
	"hybridstream/internal/metrics"
	mongorepo "hybridstream/internal/repository/mongo"
	"hybridstream/internal/session"
	"hybridstream/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "hybridstream")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "hybridstream"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("backendMode", cfg.BackendMode),
		slog.Bool("mongoEnabled", cfg.MongoURI != ""),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Mongo is optional; without it settings live in memory only.
	var settingsStore ports.PlayerSettingsStore
	var disconnectMongo func()
	if cfg.MongoURI != "" {
		ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
		mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
		if err != nil {
			cancel()
			logger.Error("mongo connect failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
			cancel()
			logger.Error("mongo ping failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		cancel()
		settingsStore = mongorepo.NewPlayerSettingsRepository(mongoClient, cfg.MongoDatabase)
		disconnectMongo = func() {
			if err := mongoClient.Disconnect(context.Background()); err != nil {
				logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
			}
		}
	}

	backend, err := buildBackend(cfg, logger)
	if err != nil {
		logger.Error("backend init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	playerSettings := app.NewPlayerSettingsManager(cfg, settingsStore, logger)

	limiter := loader.NewRateLimiter(cfg.RateLimitBytesPerSec)
	fallbackPolicy := domain.LoadPolicy{
		TimeoutMS:       int64(cfg.FallbackTimeoutMS),
		MaxRetry:        cfg.FallbackMaxRetry,
		RetryDelayMS:    int64(cfg.FallbackRetryDelayMS),
		MaxRetryDelayMS: int64(cfg.FallbackMaxRetryDelayMS),
	}
	newFallback := func() ports.FragmentLoader {
		return loader.NewHTTPLoader(loader.HTTPLoaderOptions{
			Limiter:       limiter,
			Logger:        logger,
			DefaultPolicy: fallbackPolicy,
		})
	}

	sess, err := session.New(backend, session.Options{
		Logger:      logger,
		Settings:    playerSettings,
		NewFallback: newFallback,
	})
	if err != nil {
		logger.Error("session init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	lister, _ := backend.(apihttp.StreamLister)
	handler := apihttp.NewServer(sess,
		apihttp.WithLogger(logger),
		apihttp.WithStreamLister(lister),
		apihttp.WithPlayerSettings(playerSettings),
	)

	go broadcastState(rootCtx, handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if err := sess.Close(); err != nil {
		logger.Warn("session close error", slog.String("error", err.Error()))
	}
	if disconnectMongo != nil {
		disconnectMongo()
	}

	logger.Info("server stopped")
}

func buildBackend(cfg app.Config, logger *slog.Logger) (ports.SegmentBackend, error) {
	switch cfg.BackendMode {
	case app.BackendModeTorrent:
		return torrentbackend.New(torrentbackend.Config{
			DataDir:    cfg.TorrentDataDir,
			ListenPort: cfg.TorrentListenPort,
			Seed:       cfg.TorrentSeed,
		}, logger)
	default:
		return memory.New(logger, memory.WithMaxCacheBytes(cfg.MemoryCacheBytes)), nil
	}
}

func broadcastState(ctx context.Context, handler *apihttp.Server) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			handler.BroadcastState()
		}
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
