package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"smartaccounting/internal/amqp"
	"smartaccounting/internal/auth"
	"smartaccounting/internal/backup"
	"smartaccounting/internal/cache"
	"smartaccounting/internal/catalog"
	"smartaccounting/internal/cli"
	apphttp "smartaccounting/internal/http"
	applog "smartaccounting/internal/log"
	"smartaccounting/internal/services"
)

const (
	cacheCleanupInterval = 10 * time.Minute
	pruneInterval        = time.Hour
	shutdownTimeout      = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(applog.ComponentApp, cfg)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	revoked, err := auth.OpenBoltRevocations(cfg.SessionDBPath)
	if err != nil {
		logger.Error("Failed to open session store", "error", err, "path", cfg.SessionDBPath)
		os.Exit(1)
	}
	defer revoked.Close()

	files, err := backup.NewFileStore(cfg.BackupDir)
	if err != nil {
		logger.Error("Failed to prepare backup directory", "error", err, "path", cfg.BackupDir)
		os.Exit(1)
	}

	cat, err := catalog.Load(cfg.CategoriesFile)
	if err != nil {
		logger.Error("Failed to load categories", "error", err, "path", cfg.CategoriesFile)
		os.Exit(1)
	}

	// Leave the interface nil when AMQP is off so publishing is skipped.
	var publisher services.Publisher
	var amqpClient *amqp.Client
	if cfg.AMQPEnabled() {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		publisher = amqpClient
		logger.Info("Ledger events enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("Ledger events disabled - no AMQP_URL provided")
	}

	reports := services.NewReportService(repo)
	ledger := services.NewLedgerService(repo, publisher, reports, cat, cfg.StrictCategories)
	backups := services.NewBackupService(repo, files, publisher, reports)
	sessions := auth.NewService(repo, revoked, cfg.SessionSecret, cfg.SessionTTL)

	caches := cache.NewManager()
	caches.Register(reports.Cache())

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:             ledger,
		Reports:            reports,
		Backups:            backups,
		Auth:               sessions,
		Store:              repo,
		Logger:             logger.WithComponent(applog.ComponentHTTP),
		Locale:             cfg.Language(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		caches.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", "error", err)
			}
		}
	})

	caches.StartCleanup(ctx, cacheCleanupInterval)
	go pruneRevocations(ctx, logger, sessions)

	logger.Info("Starting smartaccounting server",
		"port", cfg.Port,
		"version", apphttp.Version,
		"locale", cfg.Language().String(),
		"strict_categories", cfg.StrictCategories)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// pruneRevocations drops expired session revocations every hour.
func pruneRevocations(ctx context.Context, logger *applog.Logger, sessions *auth.Service) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sessions.PruneRevoked(ctx); err != nil {
				logger.Warn("Pruning revoked sessions failed", "error", err)
			}
		}
	}
}
