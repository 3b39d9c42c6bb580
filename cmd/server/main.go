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

	"github.com/RajaChaiban/InstaAgent/internal/config"
	"github.com/RajaChaiban/InstaAgent/internal/domain"
	"github.com/RajaChaiban/InstaAgent/internal/httpserver"
	"github.com/RajaChaiban/InstaAgent/internal/instagram"
	"github.com/RajaChaiban/InstaAgent/internal/ledgercache"
	"github.com/RajaChaiban/InstaAgent/internal/openai"
	"github.com/RajaChaiban/InstaAgent/internal/scheduler"
	"github.com/RajaChaiban/InstaAgent/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Ledger, with an optional redis cache in front of it.
	repo, err := sqlite.NewRepository(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}
	defer repo.Close()
	logger.Info("ledger opened", "path", cfg.DatabasePath)

	var ledger domain.CommentLedger = repo
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		ledger = ledgercache.New(repo, rdb, time.Duration(cfg.CacheTTLHours)*time.Hour, logger)
		logger.Info("ledger cache enabled", "addr", cfg.RedisAddr)
	}

	// The one shared automation session. The batch owns it exclusively.
	session, err := instagram.Connect(cfg.BrowserURL, logger)
	if err != nil {
		return fmt.Errorf("connect automation session: %w", err)
	}
	defer session.Close()
	logger.Info("automation session connected")

	generator := openai.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)

	pipeline := domain.NewPipeline(
		domain.PipelineConfig{
			Platform:             cfg.Platform,
			MaxAgeDays:           cfg.MaxAgeDays,
			CaptionMinLength:     cfg.CaptionMinLength,
			CaptionMaxLength:     cfg.CaptionMaxLength,
			GenerationAttempts:   cfg.GenerationAttempts,
			GenerationRetryDelay: cfg.GenerationRetryDelay,
		},
		session, session, generator, session, ledger, logger,
	)
	batch := domain.NewBatch(pipeline, cfg.DelayMin, cfg.DelayMax, logger)

	sched := scheduler.New(
		scheduler.Config{
			Targets:       cfg.Targets,
			Interval:      cfg.SchedulerInterval,
			SkipIfRunning: cfg.SkipIfRunning,
			RunOnStart:    cfg.RunOnStart,
			StartupDelay:  cfg.StartupDelay,
		},
		batch, cfg.SchedulerEnabled, logger,
	)
	if cfg.SchedulerEnabled {
		sched.Start()
		defer sched.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	server := httpserver.NewServer(cfg, sched, batch, ledger, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started",
		"port", cfg.Port,
		"targets", len(cfg.Targets),
		"scheduler_enabled", cfg.SchedulerEnabled,
	)

	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
