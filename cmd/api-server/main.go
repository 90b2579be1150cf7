package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hackgods/booking-platform/internal/api"
	"github.com/hackgods/booking-platform/internal/appointment"
	"github.com/hackgods/booking-platform/internal/business"
	"github.com/hackgods/booking-platform/internal/config"
	"github.com/hackgods/booking-platform/internal/db"
	"github.com/hackgods/booking-platform/internal/logging"
	"github.com/hackgods/booking-platform/internal/ratelimit"
	redisclient "github.com/hackgods/booking-platform/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config load error: %v", err)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	log.WithFields(logrus.Fields{"env": cfg.Env, "http_port": cfg.HTTPPort}).Info("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.PostgresDSN, log); err != nil {
			log.WithError(err).Fatal("migrations failed")
		}
	}

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.WithError(err).Fatal("postgres connection error")
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	// Redis only backs the rate limiter; without it each instance counts
	// attempts on its own.
	var (
		limiterStore ratelimit.Store = ratelimit.NewMemoryStore()
		redisPing    api.Pinger
	)
	rdb, err := redisclient.Connect(rootCtx, cfg)
	if err != nil {
		log.WithError(err).Warn("redis unavailable, using in-process rate limiting")
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.WithError(err).Warn("error closing redis")
			}
		}()
		limiterStore = ratelimit.NewRedisStore(rdb, "rl")
		redisPing = redisclient.Ping(rdb)
		log.Info("connected to Redis")
	}

	appointments := appointment.NewPgRepository(pgPool)
	alloc := appointment.NewSlotAllocator(appointments, appointment.OptionsFromConfig(cfg))
	businesses := business.NewManager(business.NewPgRepository(pgPool), appointments, log)
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		Window:      cfg.RateLimit.Window,
		Block:       cfg.RateLimit.Block,
	}, limiterStore)

	router := api.NewRouter(api.RouterConfig{
		Allocator:         alloc,
		Appointments:      appointments,
		Businesses:        businesses,
		Limiter:           limiter,
		RateLimitFailOpen: cfg.RateLimit.FailOpen,
		PostgresPing:      pgPool.Ping,
		RedisPing:         redisPing,
		Logger:            log,
		Env:               cfg.Env,
		Version:           cfg.Version,
		ShowErrorDetails:  !cfg.IsProduction(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
