package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/saraivavision/booking-service/internal/api"
	"github.com/saraivavision/booking-service/internal/availability"
	"github.com/saraivavision/booking-service/internal/booking"
	"github.com/saraivavision/booking-service/internal/config"
	"github.com/saraivavision/booking-service/internal/csrf"
	"github.com/saraivavision/booking-service/internal/db"
	"github.com/saraivavision/booking-service/internal/metrics"
	"github.com/saraivavision/booking-service/internal/ninsaude"
	redisclient "github.com/saraivavision/booking-service/internal/redis"
	"github.com/saraivavision/booking-service/internal/schedule"
	"github.com/saraivavision/booking-service/pkg/logging"
)

var version = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("running", "env", cfg.Env, "http_port", cfg.HTTPPort, "scheduling_enabled", cfg.SchedulingEnabled)

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

	// Connect Redis
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	bookingMetrics := metrics.NewBookingMetrics(registry)

	var external availability.ExternalSource
	if cfg.NinsaudeBaseURL != "" {
		external = ninsaude.New(cfg.NinsaudeBaseURL, cfg.NinsaudeToken, cfg.NinsaudeTimeout)
	} else {
		logger.Warn("NINSAUDE_BASE_URL not set, availability uses local bookings only")
	}

	repo := booking.NewPgRepository(pgPool)
	availSvc := availability.NewService(external, repo, rdb, cfg.AvailabilityCacheTTL, logger)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	bookingSvc := booking.NewService(repo, locker, availSvc, sched, cfg, logger)
	tokens := csrf.NewRedisStore(rdb, cfg.CSRFTokenTTL)

	router := api.NewRouter(api.RouterConfig{
		Booking:      bookingSvc,
		Availability: availSvc,
		Tokens:       tokens,
		Schedule:     sched,
		Config:       cfg,
		Logger:       logger,
		Metrics:      bookingMetrics,
		Registry:     registry,
		PgPool:       pgPool,
		Redis:        rdb,
		Version:      version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	logger.Info("api-server stopped")
}
