package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/dojohq/crm-automation/internal/api"
	"github.com/dojohq/crm-automation/internal/config"
	"github.com/dojohq/crm-automation/internal/dispatch"
	"github.com/dojohq/crm-automation/internal/engine"
	"github.com/dojohq/crm-automation/internal/pkg/distlock"
	"github.com/dojohq/crm-automation/internal/pkg/logger"
	"github.com/dojohq/crm-automation/internal/repository/postgres"
	"github.com/dojohq/crm-automation/internal/service/sequence"
	"github.com/dojohq/crm-automation/internal/settings"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		logger.Error("load config failed", "path", configPath, "error", err)
		os.Exit(1)
	}
	applyLogging(cfg.Logging)

	db, err := openDB(cfg.Database)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := openRedis(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Repositories
	seqRepo := postgres.NewSequenceRepo(db)
	enrRepo := postgres.NewEnrollmentRepo(db)
	recRepo := postgres.NewRecipientRepo(db)
	setRepo := postgres.NewSettingsRepo(db)
	setCache := settings.NewCache(setRepo, redisClient)

	// Providers
	var sms dispatch.SMSSender
	if cfg.Twilio.Enabled {
		sms = dispatch.NewTwilioClient(cfg.Twilio)
		logger.Info("twilio sms enabled")
	}
	var email dispatch.EmailSender
	if cfg.SES.Enabled {
		sesClient, err := dispatch.NewSESClient(context.Background(), cfg.SES)
		if err != nil {
			logger.Error("ses init failed", "error", err)
			os.Exit(1)
		}
		email = sesClient
		logger.Info("ses email enabled", "region", cfg.SES.Region)
	}

	eng := engine.New(seqRepo, enrRepo, recRepo, setCache,
		dispatch.NewMultiplexer(sms, email), engine.Options{
			BatchSize:       cfg.Automation.BatchSize,
			MaxStepAttempts: cfg.Automation.MaxStepAttempts,
			DispatchTimeout: cfg.Automation.DispatchTimeout(),
		})

	// Embedded scheduler: small installs run everything in one process.
	// Larger ones disable this and deploy cmd/worker separately.
	var sched *engine.Scheduler
	if cfg.Automation.Enabled {
		lock := distlock.NewLock(redisClient, db, "automation-scheduler", 2*cfg.Automation.TickInterval())
		sched = engine.NewScheduler(eng, postgres.NewWorkerRepo(db), lock, cfg.Automation.TickInterval())
		if err := sched.Start(context.Background()); err != nil {
			logger.Error("scheduler start failed", "error", err)
			os.Exit(1)
		}
	}

	seqSvc := sequence.NewService(seqRepo)
	handlers := api.NewHandlers(seqSvc, eng, sched, enrRepo, setCache, setRepo)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.SetupRoutes(handlers),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	if sched != nil {
		sched.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

func openDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

func openRedis(cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled || cfg.URL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		logger.Warn("invalid redis url, continuing without cache", "error", err)
		return nil
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, continuing without cache", "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected")
	return client
}

func applyLogging(cfg config.LoggingConfig) {
	switch cfg.Level {
	case "debug":
		logger.SetLevel(logger.DEBUG)
	case "warn":
		logger.SetLevel(logger.WARN)
	case "error":
		logger.SetLevel(logger.ERROR)
	default:
		logger.SetLevel(logger.INFO)
	}
	if cfg.RedactPII != nil {
		logger.SetRedactPII(*cfg.RedactPII)
	}
}
