package main

import (
	"context"
	"errors"
	"os"
	"time"

	"smartaccounting/internal/amqp"
	"smartaccounting/internal/backup"
	"smartaccounting/internal/cli"
	applog "smartaccounting/internal/log"
	"smartaccounting/internal/services"
	"smartaccounting/internal/sheets"
	gsheet "smartaccounting/internal/sheets/google"
	"smartaccounting/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(applog.ComponentWorker, cfg)
	logger.Info("Starting backup-worker")

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	files, err := backup.NewFileStore(cfg.BackupDir)
	if err != nil {
		logger.Error("Failed to prepare backup directory", "error", err, "path", cfg.BackupDir)
		os.Exit(1)
	}

	// The worker only writes backup files, so it neither publishes events
	// nor holds a report cache.
	exporter := services.NewBackupService(repo, files, nil, nil)

	var mirror sheets.RecordMirror
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, gsheet.Credentials{
			ServiceAccountFile: cfg.GoogleCredentialsFile,
			OAuthClientFile:    cfg.GoogleOAuthClientFile,
			OAuthTokenFile:     cfg.GoogleOAuthTokenFile,
		}, cfg.GoogleSheetPrefix)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		mirror = client
	} else {
		logger.Info("Google Sheets mirror disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	w := worker.NewBackupWorker(repo, exporter, mirror)

	var amqpClient *amqp.Client
	if cfg.AMQPEnabled() {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("AMQP disabled - relying on periodic refresh only", "interval", cfg.RefreshInterval)
	}

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		logger.Info("Shutting down worker...")
		if err := w.Stop(ctx); err != nil {
			logger.Warn("Worker stop error", "error", err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", "error", err)
			}
		}
	})

	// Start reconciles every user once before the first tick, catching up
	// on anything missed while the worker was down.
	if err := w.Start(ctx, cfg.RefreshInterval); err != nil {
		logger.Error("Failed to start periodic refresh", "error", err)
		os.Exit(1)
	}

	if amqpClient != nil {
		go func() {
			err := amqpClient.ConsumeRecordChanged(ctx, w.HandleRecordChanged)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
