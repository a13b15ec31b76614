// cmd/jobmatch-server/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"jobmatch-service/internal/cache"
	"jobmatch-service/internal/common/aws"
	"jobmatch-service/internal/common/config"
	"jobmatch-service/internal/common/database"
	"jobmatch-service/internal/common/logger"
	"jobmatch-service/internal/common/observability"
	"jobmatch-service/internal/matching"
	"jobmatch-service/internal/notify"
	"jobmatch-service/internal/relevance"
	"jobmatch-service/internal/scheduler"
	"jobmatch-service/internal/source"
	"jobmatch-service/internal/store"
	syncsvc "jobmatch-service/internal/sync"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting jobmatch server...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("jobmatch-server")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init SES ---
	sesClient, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
	if err != nil {
		zapLog.Fatal("ses client failed", zap.Error(err))
	}
	zapLog.Info("All external service clients initialized")

	// --- Stores and domain services ---
	jobs := store.NewJobStore(pg.GetDB(), log)
	runs := store.NewSyncRunStore(pg.GetDB(), log)
	subs := store.NewSubscriptionStore(pg.GetDB(), log)

	sourceClient := source.NewClient(&cfg.Source, log)
	relevanceClient := relevance.NewClient(&cfg.Relevance, log)
	resultCache := cache.NewResultCache(rdb.GetClient(), log)

	matcher := matching.NewMatcher(relevanceClient, jobs, resultCache, obs, cfg, log)
	syncer := syncsvc.NewSyncer(sourceClient, relevanceClient, jobs, runs, obs, &cfg.Sync, log)
	notifier := notify.NewNotifier(matcher, sesClient, subs, &cfg.Notifications, log)

	// --- Scheduler ---
	sched := scheduler.New(syncer, notifier, jobs, &cfg.Sync, &cfg.Scheduler, cfg.Source.Country, log)
	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			zapLog.Fatal("scheduler start failed", zap.Error(err))
		}
	} else {
		zapLog.Info("Scheduler disabled by configuration")
	}

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := pg.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "degraded",
					"error":  err.Error(),
				})
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.Address))
		if err := http.ListenAndServe(cfg.Server.Address, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping scheduler...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.Scheduler.Enabled {
		sched.Stop(shutdownCtx)
	}

	zapLog.Info("Jobmatch server stopped gracefully")
}
