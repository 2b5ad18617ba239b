package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"

	"github.com/memorelay/memorelay/internal/chat"
	"github.com/memorelay/memorelay/internal/drive"
	"github.com/memorelay/memorelay/internal/dropdir"
	"github.com/memorelay/memorelay/internal/oracle"
	"github.com/memorelay/memorelay/internal/pipeline"
	"github.com/memorelay/memorelay/internal/sheets"
	"github.com/memorelay/memorelay/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := configFromEnv()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	queue, err := pipeline.BuildJobQueueFromDSN(cfg.QueueDSN, cfg.QueueCapacity)
	if err != nil {
		logger.Error("failed to initialize job queue", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if queue == nil {
		queue = pipeline.NewMemoryJobQueue(cfg.QueueCapacity)
	}

	feed := webhook.NewFeed()

	intake, err := pipeline.NewIntake(pipeline.IntakeOptions{
		Queue:        queue,
		ScratchDir:   cfg.ScratchDir,
		Logger:       logger,
		OnTransition: feed.Publish,
	})
	if err != nil {
		logger.Error("failed to initialize intake", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store := drive.NewClient(drive.ClientOptions{
		BaseURL:       cfg.DriveBaseURL,
		LinkBaseURL:   cfg.DriveLinkBaseURL,
		TokenProvider: staticToken(cfg.DriveToken),
	})
	uploader, err := pipeline.NewUploader(pipeline.UploaderOptions{
		Store:       store,
		MaxAttempts: cfg.UploadMaxAttempts,
		BaseDelay:   cfg.UploadBaseDelay,
		Multiplier:  cfg.UploadMultiplier,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to initialize uploader", slog.String("error", err.Error()))
		os.Exit(1)
	}

	grid, err := sheets.NewClient(sheets.ClientOptions{
		BaseURL:       cfg.SheetsBaseURL,
		SpreadsheetID: cfg.SpreadsheetID,
		TokenProvider: staticToken(cfg.SheetsToken),
	})
	if err != nil {
		logger.Error("failed to initialize ledger client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	ledger, err := pipeline.NewLedger(pipeline.LedgerOptions{
		Grid:     grid,
		Position: pipeline.AppendPosition(cfg.LedgerAppend),
	})
	if err != nil {
		logger.Error("failed to initialize ledger", slog.String("error", err.Error()))
		os.Exit(1)
	}

	classifier := oracle.NewClient(oracle.ClientOptions{
		BaseURL:     cfg.OracleBaseURL,
		Model:       cfg.OracleModel,
		KeyProvider: staticKey(cfg.OracleAPIKey),
	})
	matcher, err := pipeline.NewMatcher(classifier, logger)
	if err != nil {
		logger.Error("failed to initialize matcher", slog.String("error", err.Error()))
		os.Exit(1)
	}
	reconciler, err := pipeline.NewReconciler(pipeline.ReconcilerOptions{
		Ledger:  ledger,
		Matcher: matcher,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialize reconciler", slog.String("error", err.Error()))
		os.Exit(1)
	}

	worker, err := pipeline.NewWorker(pipeline.WorkerOptions{
		Queue:        queue,
		Uploader:     uploader,
		Reconciler:   reconciler,
		Ledger:       ledger,
		Logger:       logger,
		OnTransition: feed.Publish,
	})
	if err != nil {
		logger.Error("failed to initialize worker", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fetcher := chat.NewClient(chat.ClientOptions{
		BaseURL:       cfg.ChatBaseURL,
		TokenProvider: staticToken(cfg.ChatToken),
	})
	server, err := webhook.NewServer(webhook.ServerOptions{
		Config: webhook.ServerConfig{
			ChannelSecret: cfg.ChannelSecret,
			MaxBodyBytes:  cfg.MaxBodyBytes,
		},
		Intake:  intake,
		Queue:   queue,
		Worker:  worker,
		Fetcher: fetcher,
		Feed:    feed,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialize webhook server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	httpServer := &http.Server{Addr: cfg.Addr, Handler: server}
	group.Go(func() error {
		logger.Info("memorelay listening", slog.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		worker.Run(ctx)
		return nil
	})
	if cfg.DropDir != "" {
		watcher, err := dropdir.NewWatcher(cfg.DropDir, intake, logger)
		if err != nil {
			logger.Error("failed to initialize drop directory watcher", slog.String("error", err.Error()))
			os.Exit(1)
		}
		group.Go(func() error {
			return watcher.Run(ctx)
		})
	}

	if err := group.Wait(); err != nil {
		logger.Error("memorelay exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("memorelay stopped")
}

func staticToken(token string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		return token, nil
	}
}

func staticKey(key string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		return key, nil
	}
}
