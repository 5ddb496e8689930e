package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/saraivavision/booking-service/internal/availability"
	"github.com/saraivavision/booking-service/internal/booking"
	"github.com/saraivavision/booking-service/internal/config"
	"github.com/saraivavision/booking-service/internal/db"
	"github.com/saraivavision/booking-service/internal/outbox"
	redisclient "github.com/saraivavision/booking-service/internal/redis"
	"github.com/saraivavision/booking-service/internal/schedule"
	"github.com/saraivavision/booking-service/pkg/logging"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("running worker", "env", cfg.Env, "interval", cfg.WorkerInterval.String())

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", "error", err)
		}
	}()
	logger.Info("connected to Redis")

	sched := schedule.NormalizeJSON(cfg.ClinicHoursJSON)

	repo := booking.NewPgRepository(pgPool)
	availSvc := availability.NewService(nil, repo, rdb, cfg.AvailabilityCacheTTL, logger)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	bookingSvc := booking.NewService(repo, locker, availSvc, sched, cfg, logger)

	outboxRepo := outbox.NewPgRepository(pgPool)
	dispatcher := outbox.NewDispatcher(outboxRepo, outbox.LogNotifier{Logger: logger}, logger)

	// Run once at startup
	runOnce(rootCtx, bookingSvc, dispatcher, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, bookingSvc, dispatcher, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, dispatcher *outbox.Dispatcher, logger *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.ExpirePending(runCtx); err != nil {
		logger.Error("expiry run error", "error", err)
	}
	if err := dispatcher.RunOnce(runCtx); err != nil {
		logger.Error("outbox dispatch error", "error", err)
	}
	logger.Info("worker run complete", "duration", time.Since(start).String())
}
