package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"ordem/internal/amqp"
	"ordem/internal/auth"
	"ordem/internal/billing"
	"ordem/internal/cache"
	"ordem/internal/cli"
	"ordem/internal/config"
	"ordem/internal/files"
	"ordem/internal/files/gcs"
	"ordem/internal/finance"
	"ordem/internal/guard"
	"ordem/internal/habits"
	apphttp "ordem/internal/http"
	"ordem/internal/log"
	"ordem/internal/messaging"
	"ordem/internal/metrics"
	"ordem/internal/middleware/ratelimit"
	"ordem/internal/realtime"
	"ordem/internal/services"
)

const (
	shutdownTimeout = 30 * time.Second
	actorIdle       = 5 * time.Minute
	janitorInterval = time.Minute
)

func main() {
	cfg := cli.LoadConfig()
	logger := cli.SetupLogger(cfg)
	cli.MustValidate(logger, cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext(logger)
	defer stop()

	store, err := cli.OpenStore(logger, cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	objects, err := fileStore(ctx, cfg)
	if err != nil {
		return err
	}

	m := metrics.New()
	hub := realtime.NewHub(0, logger)

	publishers := realtime.Publishers{hub}
	if cfg.AMQPURL != "" {
		// Publishing only: the server declares the exchange, the worker owns the queue.
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, "")
		if err != nil {
			logger.Warn("AMQP unavailable, ledger mirror disabled", log.FieldError, err)
		} else {
			client.SetLogger(logger)
			defer client.Close()
			publishers = append(publishers, client)
			logger.Info("AMQP publisher connected", "exchange", cfg.AMQPExchange)
		}
	}

	jwt := auth.NewJWTManager(cfg.SessionSecret, cfg.SessionTTL)
	g := guard.New(jwt, store)
	fs := files.NewService(objects, store, cfg.MaxUploadBytes)
	router := messaging.NewRouter(store, publishers, m, logger, actorIdle)
	defer router.Stop()

	billingSvc := billing.NewService(store, g)
	if plans, err := billing.DefaultCatalog(); err != nil {
		return err
	} else if _, err := billingSvc.SyncPlans(ctx, plans); err != nil {
		return err
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: float64(cfg.RateLimitPerSecond),
		Burst:             cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	})

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Config:    cfg,
		Store:     store,
		Auth:      auth.NewService(store, cfg.TrialDays, cfg.AdminEmails),
		JWT:       jwt,
		Guard:     g,
		Records:   services.NewRecordService(store, publishers, m),
		Habits:    habits.NewService(store, publishers, m),
		Finance:   finance.NewService(store, publishers, m),
		Community: services.NewCommunityService(store, fs, publishers, m),
		Profiles:  services.NewProfileService(store, fs),
		Admin:     services.NewAdminService(store),
		Billing:   billingSvc,
		Messaging: messaging.NewService(store, router, publishers),
		Files:     fs,
		Hub:       hub,
		Metrics:   m,
		Limiter:   limiter,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		cache.NewJanitor(janitorInterval, logger, g.Cache()).Run(gctx)
		return nil
	})
	group.Go(func() error {
		limiter.Run(gctx)
		return nil
	})
	group.Go(func() error {
		logger.Info("Starting ordem server", "port", cfg.Port, "files", cfg.FilesBackend, "amqp", len(publishers) > 1)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := cli.ShutdownContext(shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func fileStore(ctx context.Context, cfg *config.Config) (files.Store, error) {
	if cfg.FilesBackend == "gcs" {
		return gcs.New(ctx, cfg.GCSBucket, cli.GoogleCredentials(cfg))
	}
	return files.NewLocal(cfg.FilesDir)
}
