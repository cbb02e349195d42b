// Package app wires every VerseForge collaborator together and runs the
// HTTP server. Grounded on the teacher's internal/app.Run: config load,
// infra connections, migrations, metrics registry, domain handler mounting,
// then a listen/shutdown loop driven by the parent context.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/verseforge/verseforge/internal/config"
	"github.com/verseforge/verseforge/internal/httpserver"
	"github.com/verseforge/verseforge/internal/platform"
	"github.com/verseforge/verseforge/internal/telemetry"
	"github.com/verseforge/verseforge/pkg/api"
	"github.com/verseforge/verseforge/pkg/blobstore"
	"github.com/verseforge/verseforge/pkg/cache"
	"github.com/verseforge/verseforge/pkg/cleanup"
	"github.com/verseforge/verseforge/pkg/metastore"
	"github.com/verseforge/verseforge/pkg/moderation"
	"github.com/verseforge/verseforge/pkg/modelclient"
	"github.com/verseforge/verseforge/pkg/promptcomposer"
	"github.com/verseforge/verseforge/pkg/quotanotify"
	"github.com/verseforge/verseforge/pkg/ratelimit"
	"github.com/verseforge/verseforge/pkg/scheduler"
	"github.com/verseforge/verseforge/pkg/storage"
	"github.com/verseforge/verseforge/pkg/validator"
	"github.com/verseforge/verseforge/pkg/verse"
)

// Run is the application entry point: connect infra, wire collaborators,
// mount routes, and serve until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting verseforge", "environment", cfg.Environment, "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := prometheus.NewRegistry()
	for _, c := range telemetry.All() {
		metricsReg.MustRegister(c)
	}

	// Domain components, built in dependency order.
	metaStore := metastore.New(db)

	cacheInstance := cache.New(rdb, logger)
	cacheInstance.SetSource(metaStore)

	blobCfg := blobstore.S3Config{
		Bucket:          cfg.BlobBucket,
		Region:          cfg.BlobRegion,
		Endpoint:        cfg.BlobEndpoint,
		AccessKeyID:     cfg.BlobAccessKeyID,
		SecretAccessKey: cfg.BlobSecretAccessKey,
		UsePathStyle:    cfg.BlobUsePathStyle,
	}
	blobStore, err := blobstore.NewS3Store(ctx, blobCfg)
	if err != nil {
		return fmt.Errorf("creating blob store: %w", err)
	}

	validatorInstance := validator.New(cacheInstance)
	validatorInstance.LoadBlocklist(ctx)

	verseResolver := verse.New(metaStore, logger)

	modelClientInstance := modelclient.New(cfg.ModelEndpoint, cfg.ModelAPIKey, time.Duration(cfg.ModelTimeoutSec)*time.Second)

	moderationInstance := moderation.New(metaStore, cacheInstance, cfg.EnableContentModeration)

	publicBase := fmt.Sprintf("http://%s", cfg.ListenAddr())
	storageInstance := storage.New(blobStore, metaStore, cacheInstance, publicBase, cfg.SignedURLSecret, time.Duration(cfg.SignedURLTTL)*time.Second)

	usageCounters := telemetry.NewUsageCounters(logger)

	quotaNotifier := quotanotify.New(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	if quotaNotifier.IsEnabled() {
		logger.Info("quota slack alerting enabled", "channel", cfg.SlackAlertChannel)
	} else {
		logger.Info("quota slack alerting disabled (SLACK_BOT_TOKEN not set)")
	}

	quotaThresholds := telemetry.QuotaThresholds{
		"r2_writes":           cfg.QuotaR2WritesDaily,
		"r2_reads":            cfg.QuotaR2ReadsDaily,
		"d1_queries":          cfg.QuotaD1QueriesDaily,
		"d1_writes":           cfg.QuotaD1WritesDaily,
		"total_storage_bytes": cfg.QuotaTotalStorageBytes,
		"total_generations":   cfg.QuotaTotalGenerationsDaily,
	}
	quotaMonitor := telemetry.NewQuotaMonitor(quotaThresholds, usageCounters, quotaNotifier, logger)

	rateLimitEvents := telemetry.NewRateLimitEventBuffer(1000)
	rateLimiter := ratelimit.New(ratelimit.Limits{
		Anonymous:     cfg.RateLimitAnonymous,
		Authenticated: cfg.RateLimitAuthenticated,
	}, rateLimitEvents)

	cleanupInstance := cleanup.New(blobStore, metaStore, logger, cfg.ImageRetentionDays, cfg.BackupRetentionDays, nil)

	sched := scheduler.New(logger, func(jobName string, err error) {
		outcome := "success"
		if err != nil {
			outcome = "error"
			logger.Error("scheduled job failed", "job", jobName, "error", err)
		} else {
			logger.Info("scheduled job completed", "job", jobName)
		}
		telemetry.SchedulerRunsTotal.WithLabelValues(jobName, outcome).Inc()
	})
	sched.Register(scheduler.Job{
		Name: "daily-verse",
		Cron: "0 6 * * *",
		Handler: func(ctx context.Context) error {
			entry, err := verseResolver.GetDailyVerse(ctx)
			if err != nil {
				return fmt.Errorf("selecting daily verse: %w", err)
			}

			prompt := promptcomposer.Compose(promptcomposer.Verse{Reference: entry.Reference, Text: entry.Text}, "classic")

			genResult, err := modelClientInstance.Run(ctx, prompt, modelclient.RunOptions{})
			if err != nil {
				return fmt.Errorf("generating daily verse image: %w", err)
			}

			saved, err := storageInstance.SaveImage(ctx, genResult.ImageBytes, storage.SaveOptions{
				VerseReference:   entry.Reference,
				VerseText:        entry.Text,
				Prompt:           prompt,
				StylePreset:      "classic",
				Tags:             []string{"daily-verse"},
				ModerationStatus: "approved",
				Width:            genResult.Width,
				Height:           genResult.Height,
			})
			if err != nil {
				return fmt.Errorf("saving daily verse image: %w", err)
			}

			cacheInstance.SetDailyVerse(ctx, saved.ImageID)
			logger.Info("daily verse generated", "reference", entry.Reference, "image_id", saved.ImageID)
			return nil
		},
	})
	sched.Register(scheduler.Job{
		Name: "cleanup",
		Cron: "0 2 * * 0",
		Handler: func(ctx context.Context) error {
			result, err := cleanupInstance.PerformCleanupCycle(ctx, false)
			if err != nil {
				return fmt.Errorf("cleanup cycle: %w", err)
			}
			telemetry.CleanupDeletedTotal.Add(float64(len(result.Execute.DeletedIDs)))
			logger.Info("cleanup cycle completed",
				"deleted", len(result.Execute.DeletedIDs),
				"failed", len(result.Execute.FailedImageIDs),
				"backups_pruned", len(result.Retention.DeletedBackupKeys),
			)
			return nil
		},
	})
	sched.Register(scheduler.Job{
		Name: "metrics",
		Cron: "0 0 * * *",
		Handler: func(ctx context.Context) error {
			agg, err := metaStore.AggregateToday(ctx)
			if err != nil {
				return fmt.Errorf("aggregating daily metrics: %w", err)
			}
			date := time.Now().UTC().Format("2006-01-02")
			if err := metaStore.UpsertDailyMetric(ctx, date, agg); err != nil {
				return fmt.Errorf("persisting daily metrics: %w", err)
			}
			quotaMonitor.Check(ctx)
			return nil
		},
	})

	apiHandler := api.New(
		logger,
		validatorInstance,
		rateLimiter,
		verseResolver,
		modelClientInstance,
		moderationInstance,
		storageInstance,
		cacheInstance,
		metaStore,
		usageCounters,
		api.Config{
			Environment:    cfg.Environment,
			AdminTokenHash: cfg.AdminTokenHash,
			PublicBase:     publicBase,
		},
	)

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg)
	srv.APIRouter.Mount("/", apiHandler.Routes())
	apiHandler.MountDevRoutes(srv.Router)

	schedCtx, schedCancel := context.WithCancel(ctx)
	defer schedCancel()
	go sched.Run(schedCtx)

	go func() {
		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-schedCtx.Done():
				return
			case <-ticker.C:
				quotaMonitor.Check(schedCtx)
			}
		}
	}()

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
