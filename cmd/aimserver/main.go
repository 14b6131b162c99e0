package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aims-io/aims/internal/app"
	"github.com/aims-io/aims/internal/app/httpapi"
	"github.com/aims-io/aims/internal/app/seed"
	"github.com/aims-io/aims/internal/app/storage"
	"github.com/aims-io/aims/internal/app/storage/postgres"
	"github.com/aims-io/aims/internal/config"
	"github.com/aims-io/aims/internal/platform/database"
	"github.com/aims-io/aims/internal/platform/migrations"
	"github.com/aims-io/aims/pkg/logger"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to config or :8080)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env; in-memory storage when empty)")
	runMigrations := flag.Bool("migrate", true, "run embedded database migrations on startup (ignored for in-memory)")
	runSeed := flag.Bool("seed", false, "bootstrap the admin agent, default capabilities, and first API key")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLog := logger.New(logger.LoggingConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})

	rootCtx := context.Background()

	dsnVal := strings.TrimSpace(*dsn)
	if dsnVal == "" {
		dsnVal = cfg.DatabaseURL
	}

	var (
		db    *sql.DB
		store storage.Store
	)
	if dsnVal != "" {
		db, err = database.Open(rootCtx, dsnVal)
		if err != nil {
			log.Fatalf("connect to postgres: %v", err)
		}
		defer db.Close()
		if *runMigrations {
			if err := migrations.Apply(rootCtx, db); err != nil {
				log.Fatalf("apply migrations: %v", err)
			}
		}
		store = postgres.New(db)
	} else {
		appLog.Warn("no DATABASE_URL configured; using in-memory storage")
		store = storage.NewMemory()
	}

	application, err := app.New(store, app.Options{
		JWTSecret:             cfg.JWTSecretKey,
		JWTAlgorithm:          cfg.JWTAlgorithm,
		JWTExpirationMinutes:  cfg.JWTExpirationMinutes,
		APIKeyPrefix:          cfg.APIKeyPrefix,
		KeyRotationGraceHours: cfg.KeyRotationGraceHours,
	}, appLog)
	if err != nil {
		log.Fatalf("initialise application: %v", err)
	}

	if *runSeed {
		result, err := seed.Run(rootCtx, store, cfg.APIKeyPrefix)
		if err != nil {
			log.Fatalf("seed: %v", err)
		}
		if !result.Seeded {
			appLog.Info("admin agent already exists; skipping seed")
		} else {
			appLog.Infof("bootstrap complete: admin agent %s", result.AdminAgentID)
			appLog.Infof("admin API key (save it, it will not be shown again): %s", result.RawKey)
		}
	}

	listenAddr := strings.TrimSpace(*addr)
	if listenAddr == "" {
		listenAddr = cfg.ListenAddr
	}

	limiter := httpapi.NewRateLimiter(cfg.RateLimitAuthPerMinute, cfg.RateLimitAPIPerMinute)
	httpService := httpapi.NewService(application, listenAddr, limiter, appLog)

	if err := httpService.Start(rootCtx); err != nil {
		log.Fatalf("start http service: %v", err)
	}
	appLog.Infof("aims listening on %s", listenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpService.Stop(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}
