// cmd/access-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lead-access-service/internal/access"
	"lead-access-service/internal/common/config"
	"lead-access-service/internal/common/database"
	"lead-access-service/internal/common/logger"
	"lead-access-service/internal/common/observability"
	"lead-access-service/internal/credits"
	"lead-access-service/internal/keyqueue"
	"lead-access-service/internal/people"
	"lead-access-service/internal/unlock"
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
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting access service...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New(cfg.App.Name)
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
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis (contact cache, best effort) ---
	rds, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		zapLog.Fatal("redis client failed", zap.Error(err))
	}
	defer rds.Close()
	if err := rds.Ping(ctx); err != nil {
		zapLog.Warn("redis unreachable, contact cache disabled", zap.Error(err))
		rds = nil
	} else {
		zapLog.Info("Redis connected successfully")
	}

	// --- Wire the core ---
	queue := keyqueue.New()

	ledger := access.NewLedger(pg.GetDB(), queue, log)
	if err := ledger.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("ledger schema failed", zap.Error(err))
	}

	engine := credits.NewEngine(pg.GetDB(), queue, cfg.Credits, log)
	if err := engine.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("credits schema failed", zap.Error(err))
	}

	var store *people.Store
	if rds != nil {
		store = people.NewStore(pg.GetDB(), rds.GetClient(), time.Duration(cfg.Unlock.ContactCacheTTL)*time.Second, log)
	} else {
		store = people.NewStore(pg.GetDB(), nil, 0, log)
	}

	svc := unlock.NewService(pg.GetDB(), ledger, engine, store, unlock.CostTableFromConfig(cfg.Unlock), log)

	// --- HTTP binding (thin glue; the core lives in internal/) ---
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	api := newAPI(svc, engine, pg, obs, log)
	go func() {
		addr := cfg.App.Address
		zapLog.Info("api listening", zap.String("address", addr))
		if err := http.ListenAndServe(addr, api.routes()); err != nil {
			zapLog.Fatal("api server failed", zap.Error(err))
		}
	}()

	// --- Metrics endpoint ---
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			zapLog.Info("metrics endpoint listening", zap.String("address", cfg.Metrics.Address))
			if err := http.ListenAndServe(cfg.Metrics.Address, mux); err != nil {
				zapLog.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	zapLog.Info("access service ready",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	// --- Wait for shutdown ---
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	zapLog.Info("shutting down")
}
