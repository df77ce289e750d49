package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/sttgateway/internal/api"
	"github.com/nikhilbhutani/sttgateway/internal/api/handlers"
	"github.com/nikhilbhutani/sttgateway/internal/audio"
	"github.com/nikhilbhutani/sttgateway/internal/cache"
	"github.com/nikhilbhutani/sttgateway/internal/config"
	"github.com/nikhilbhutani/sttgateway/internal/database"
	"github.com/nikhilbhutani/sttgateway/internal/metrics"
	"github.com/nikhilbhutani/sttgateway/internal/queue"
	"github.com/nikhilbhutani/sttgateway/internal/quota"
	"github.com/nikhilbhutani/sttgateway/internal/storage"
	"github.com/nikhilbhutani/sttgateway/internal/stt"
	"github.com/nikhilbhutani/sttgateway/internal/tenant"
	"github.com/nikhilbhutani/sttgateway/internal/transcribe"
	"github.com/nikhilbhutani/sttgateway/internal/usage"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, database.MigrationSource(cfg.Database.MigrationsPath)); err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	// Redis backs quota counters and the rate limiter. Both fail open, so a
	// missing Redis only degrades them.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, quota and rate limiting will fail open", "error", err)
	}
	defer rdb.Close()
	kv := cache.NewCache(rdb)

	store, err := newStorage(ctx, cfg.Storage)
	if err != nil {
		slog.Error("storage backend unavailable", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	resolver := audio.NewResolver(store, audio.ResolverConfig{
		DefaultBucket: cfg.Storage.Bucket,
		SignedURLTTL:  cfg.Storage.SignedURLTTL,
		FetchTimeout:  cfg.STT.FetchTimeout,
		MaxBytes:      cfg.STT.MaxAudioBytes,
	})

	chain, closeChain, err := stt.NewChainFromConfig(ctx, cfg.STT, logger)
	if err != nil {
		slog.Error("failed to build provider chain", "error", err)
		os.Exit(1)
	}
	defer closeChain()
	slog.Info("stt provider chain", "providers", chain.Providers(), "detector", chain.Detector())

	tenants := tenant.NewService(db)
	counters := quota.NewRedisStore(kv, tenants, 5*time.Minute)
	guard := quota.NewGuard(counters, cfg.Quota, logger, metrics.DefaultMetrics)

	usageStore := usage.NewStore(db)
	var recorder usage.Recorder
	switch cfg.Usage.Mode {
	case "queue":
		qc := queue.NewClient(cfg.Redis)
		defer qc.Close()
		recorder = usage.NewQueueRecorder(qc)
	default:
		recorder = usage.NewStoreRecorder(usageStore, counters)
	}
	dispatcher := usage.NewDispatcher(recorder, cfg.Usage.Mode, cfg.Usage.WriteTimeout, logger, metrics.DefaultMetrics)

	svc := transcribe.NewService(resolver, guard, chain, dispatcher,
		transcribe.Config{
			FallbackLocale: cfg.STT.DefaultLocale,
			Prices:         usage.NewPrices(cfg.Usage.PricePerMinute),
		}, logger, metrics.DefaultMetrics)

	router := api.NewRouter(cfg, api.Deps{
		Transcriber: svc,
		Usage:       usageStore,
		Chain:       chain,
		Directory:   tenants,
		Limiter:     kv,
		Ready:       map[string]handlers.Pinger{"database": db, "redis": kv},
		Metrics:     metrics.DefaultMetrics,
		Logger:      logger,
	})
	handler := router.Setup()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	// In-flight usage writes still hold their own timeouts.
	dispatcher.Wait()
	slog.Info("server stopped")
}

func newStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Backend {
	case "s3":
		return storage.NewS3Storage(ctx, storage.S3Config{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	case "supabase", "":
		if cfg.SupabaseURL == "" {
			return nil, fmt.Errorf("SUPABASE_URL is required for the supabase backend")
		}
		return storage.NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseKey), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
