// The worker runs the automation scheduler without the HTTP surface.
// Multiple workers may run at once; the distributed lock keeps ticks
// single-flight across instances.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/dojohq/crm-automation/internal/config"
	"github.com/dojohq/crm-automation/internal/dispatch"
	"github.com/dojohq/crm-automation/internal/engine"
	"github.com/dojohq/crm-automation/internal/pkg/distlock"
	"github.com/dojohq/crm-automation/internal/pkg/logger"
	"github.com/dojohq/crm-automation/internal/repository/postgres"
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
	if cfg.Logging.Level == "debug" {
		logger.SetLevel(logger.DEBUG)
	}
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	var redisClient *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		if opts, err := redis.ParseURL(cfg.Redis.URL); err == nil {
			redisClient = redis.NewClient(opts)
			defer redisClient.Close()
		} else {
			logger.Warn("invalid redis url, using pg advisory locks", "error", err)
		}
	}

	seqRepo := postgres.NewSequenceRepo(db)
	enrRepo := postgres.NewEnrollmentRepo(db)
	recRepo := postgres.NewRecipientRepo(db)
	setCache := settings.NewCache(postgres.NewSettingsRepo(db), redisClient)

	var sms dispatch.SMSSender
	if cfg.Twilio.Enabled {
		sms = dispatch.NewTwilioClient(cfg.Twilio)
	}
	var email dispatch.EmailSender
	if cfg.SES.Enabled {
		sesClient, err := dispatch.NewSESClient(context.Background(), cfg.SES)
		if err != nil {
			logger.Error("ses init failed", "error", err)
			os.Exit(1)
		}
		email = sesClient
	}

	eng := engine.New(seqRepo, enrRepo, recRepo, setCache,
		dispatch.NewMultiplexer(sms, email), engine.Options{
			BatchSize:       cfg.Automation.BatchSize,
			MaxStepAttempts: cfg.Automation.MaxStepAttempts,
			DispatchTimeout: cfg.Automation.DispatchTimeout(),
		})

	lock := distlock.NewLock(redisClient, db, "automation-scheduler", 2*cfg.Automation.TickInterval())
	sched := engine.NewScheduler(eng, postgres.NewWorkerRepo(db), lock, cfg.Automation.TickInterval())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sched.Start(ctx); err != nil {
		logger.Error("scheduler start failed", "error", err)
		os.Exit(1)
	}
	logger.Info("worker running", "tick_interval", cfg.Automation.TickInterval())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	cancel()
	sched.Stop()
	logger.Info("worker stopped")
}
