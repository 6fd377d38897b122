package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"ordem/internal/amqp"
	"ordem/internal/billing"
	"ordem/internal/cli"
	"ordem/internal/config"
	"ordem/internal/log"
	"ordem/internal/sheets"
	gsheet "ordem/internal/sheets/google"
	"ordem/internal/sheets/memory"
	"ordem/internal/worker"
)

func main() {
	cfg := cli.LoadConfig()
	logger := cli.SetupLogger(cfg).WithComponent(log.ComponentWorker)
	cli.MustValidate(logger, cfg)

	logger.Info("Starting ordem-worker")
	if err := run(cfg, logger); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext(logger)
	defer stop()

	store, err := cli.OpenStore(logger, cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	sweeper, err := worker.NewSweeper(billing.NewService(store, nil), cfg.SubscriptionSweepSchedule, logger)
	if err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return sweeper.Run(gctx) })

	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled - no AMQP_URL provided, only the subscription sweep runs")
	} else {
		ledger, err := openLedger(ctx, cfg, logger)
		if err != nil {
			return err
		}
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, "transactions.*")
		if err != nil {
			return err
		}
		client.SetLogger(logger)
		defer client.Close()

		lw := worker.NewLedgerWorker(ledger, logger)
		group.Go(func() error {
			logger.Info("Consuming transaction changes", "queue", cfg.AMQPQueue)
			err := client.ConsumeChanges(gctx, lw.HandleChange)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return group.Wait()
}

// openLedger returns the Google Sheets mirror when a spreadsheet is
// configured and an in-memory ledger otherwise.
func openLedger(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.Ledger, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, mirroring in memory")
		return memory.New(), nil
	}
	client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, cli.GoogleCredentials(cfg))
	if err != nil {
		return nil, err
	}
	if err := client.EnsureHeader(ctx); err != nil {
		return nil, err
	}
	logger.Info("Google Sheets ledger ready", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	return client, nil
}
