package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/sttgateway/internal/cache"
	"github.com/nikhilbhutani/sttgateway/internal/config"
	"github.com/nikhilbhutani/sttgateway/internal/database"
	"github.com/nikhilbhutani/sttgateway/internal/queue"
	"github.com/nikhilbhutani/sttgateway/internal/queue/workers"
	"github.com/nikhilbhutani/sttgateway/internal/quota"
	"github.com/nikhilbhutani/sttgateway/internal/tenant"
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

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	counters := quota.NewRedisStore(cache.NewCache(rdb), tenant.NewService(db), 5*time.Minute)
	recorder := usage.NewStoreRecorder(usage.NewStore(db), counters)

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			Logger: newAsynqLogger(logger),
		},
	)

	registry := queue.NewHandlersRegistry()

	// Register workers
	usageWorker := workers.NewUsageWorker(recorder)

	registry.Register(queue.TypeUsageRecord, asynq.HandlerFunc(usageWorker.ProcessTask))

	slog.Info("starting worker", "concurrency", 10)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
