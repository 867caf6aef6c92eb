package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crowdforge/launcher/internal/config"
	"github.com/crowdforge/launcher/internal/core"
	"github.com/crowdforge/launcher/internal/escrow"
	"github.com/crowdforge/launcher/internal/moderation"
	"github.com/crowdforge/launcher/internal/notify"
	"github.com/crowdforge/launcher/internal/objectstore"
	"github.com/crowdforge/launcher/internal/orchestrator"
	"github.com/crowdforge/launcher/internal/scheduler"
	"github.com/crowdforge/launcher/internal/server"
	"github.com/crowdforge/launcher/internal/store"
	"github.com/crowdforge/launcher/internal/webhook"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := config.Load()
	if cfg.WebhookSigningKey == "" {
		slog.Error("refusing to start without a webhook signing key", "hint", "set LAUNCHER_WEBHOOK_SIGNING_KEY")
		os.Exit(1)
	}

	// Connect to the database
	db, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := store.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database ready")

	// Connect to object storage
	storage, err := objectstore.NewMinio(context.Background(), objectstore.MinioConfig{
		Endpoint:      cfg.StorageEndpoint,
		AccessKey:     cfg.StorageAccessKey,
		SecretKey:     cfg.StorageSecretKey,
		UseSSL:        cfg.StorageUseSSL,
		ResultsBucket: cfg.ResultsBucket,
	})
	if err != nil {
		slog.Error("failed to connect to object storage", "error", err)
		os.Exit(1)
	}
	slog.Info("object storage ready", "endpoint", cfg.StorageEndpoint, "results_bucket", cfg.ResultsBucket)

	jobs := store.NewJobRepository(db)
	webhooks := store.NewWebhookRepository(db)
	requests := store.NewModerationRepository(db)
	locks := scheduler.NewLockManager(store.NewLockRepository(db))

	policy := core.RetryPolicy{MaxRetries: cfg.MaxRetries}
	registry := webhook.NewStaticRegistry(map[core.OracleType]string{
		core.OracleTypeFortune:  cfg.OracleEndpoints["fortune"],
		core.OracleTypeCvat:     cfg.OracleEndpoints["cvat"],
		core.OracleTypeAudino:   cfg.OracleEndpoints["audino"],
		core.OracleTypeHCaptcha: cfg.OracleEndpoints["hcaptcha"],
	})
	delivery := webhook.NewService(webhooks, registry, policy, cfg.WebhookSigningKey, cfg.Concurrency)

	moderationSvc := moderation.NewService(jobs, requests, storage,
		moderation.NewVisionAnnotator(cfg.VisionEndpoint, cfg.VisionAPIKey),
		notify.NewSlack(cfg.SlackWebhookURL),
		moderation.Config{
			BatchSize:     cfg.ModerationBatchSize,
			Concurrency:   cfg.Concurrency,
			ResultsBucket: cfg.ResultsBucket,
			ListingTTL:    cfg.ListingCacheTTL,
		})
	defer moderationSvc.Close()

	orch := orchestrator.New(jobs, locks, escrow.NewHTTPClient(cfg.EscrowGatewayURL), moderationSvc, delivery, orchestrator.Config{
		MaxRetries:   cfg.MaxRetries,
		ChainIDs:     cfg.ChainIDs,
		SyncPageSize: cfg.SyncPageSize,
		Concurrency:  cfg.Concurrency,
	})

	// Start the sweep procedures
	sched := scheduler.New()
	if err := orch.RegisterSweeps(sched, orchestrator.Intervals{
		ModerateJobs:    cfg.ModerationInterval,
		CreateEscrows:   cfg.SweepInterval,
		FundEscrows:     cfg.SweepInterval,
		SetupEscrows:    cfg.SweepInterval,
		CancelJobs:      cfg.SweepInterval,
		SyncStatuses:    cfg.SyncInterval,
		DeliverWebhooks: cfg.WebhookInterval,
	}); err != nil {
		slog.Error("failed to register sweep procedures", "error", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.New(orch).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("launcher server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
