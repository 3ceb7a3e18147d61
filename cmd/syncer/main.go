package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-pkgz/syncs"
	"github.com/jessevdk/go-flags"

	"feedsync/internal/api"
	"feedsync/internal/config"
	"feedsync/internal/notifier"
	"feedsync/internal/scheduler"
	"feedsync/internal/service"
	"feedsync/internal/storage"
	"feedsync/internal/syndication"
)

type options struct {
	Config      string `short:"c" long:"config" env:"FEEDSYNC_CONFIG" description:"config file (yaml)"`
	MigrateOnly bool   `long:"migrate-only" description:"apply migrations and exit"`
	NoHTTP      bool   `long:"no-http" env:"FEEDSYNC_NO_HTTP" description:"run the scheduler without the http api"`
	Dbg         bool   `long:"dbg" env:"DEBUG" description:"debug mode"`
}

var revision = "local"

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	logger := setupLogger("info", opts.Dbg)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel, opts.Dbg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, stop, opts, cfg, logger); err != nil {
		logger.Error("feedsync stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stop context.CancelFunc, opts options, cfg *config.Config, logger *slog.Logger) error {
	db, err := storage.Open(ctx, storageConfig(cfg.Database))
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to database", "driver", db.Driver())

	if err := db.Migrate(ctx, logger); err != nil {
		return err
	}
	if opts.MigrateOnly {
		return nil
	}

	feedStore := storage.NewFeedStore(db)
	itemStore := storage.NewItemStore(db)
	settingStore := storage.NewSettingStore(db)
	txManager := storage.NewTransactionManager(db)

	fetcher := syndication.NewFetcher(syndication.Config{
		Timeout:        cfg.Fetch.Timeout,
		UserAgent:      cfg.Fetch.UserAgent,
		MaxAttempts:    cfg.Fetch.Retry.MaxAttempts,
		InitialBackoff: cfg.Fetch.Retry.InitialBackoff,
		MaxBackoff:     cfg.Fetch.Retry.MaxBackoff,
	}, logger)
	resolver := syndication.NewResolver(fetcher)

	syncService := service.NewSyncService(feedStore, itemStore, settingStore, fetcher, logger, cfg.Sync)
	feedService := service.NewFeedService(feedStore, settingStore, fetcher, resolver, syncService, logger)
	settingsService := service.NewSettingsService(settingStore, txManager)

	notifiers := notifier.NewMulti(notifier.NewSummary(logger))
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := notifier.NewRabbitMQ(notifier.Config{
			URL:          cfg.RabbitMQ.URL,
			Exchange:     cfg.RabbitMQ.Exchange,
			ExchangeType: cfg.RabbitMQ.ExchangeType,
			RoutingKey:   cfg.RabbitMQ.RoutingKey,
			QueueName:    cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			return err
		}
		defer rabbitMQ.Close()
		notifiers = append(notifiers, rabbitMQ)
	}

	sched := scheduler.NewScheduler(syncService, settingStore, notifiers, scheduler.Config{
		CycleTimeout: cfg.Sync.CycleTimeout,
		MinInterval:  cfg.Sync.MinInterval,
	}, logger)

	logger.Info("starting feedsync",
		"version", revision,
		"concurrency", cfg.Sync.Concurrency,
		"min_interval", cfg.Sync.MinInterval,
		"http", !opts.NoHTTP,
	)

	wg := syncs.NewErrSizedGroup(2)
	wg.Go(func() error {
		defer stop()
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if !opts.NoHTTP {
		server := api.NewServer(feedService, itemStore, settingStore, settingsService, sched, revision, logger)
		wg.Go(func() error {
			defer stop()
			return server.Run(ctx, cfg.HTTP.Addr)
		})
	}

	return wg.Wait()
}

func storageConfig(cfg config.DatabaseConfig) storage.Config {
	if cfg.Driver == storage.DriverPostgres {
		return storage.Config{Driver: storage.DriverPostgres, DSN: cfg.PostgresDSN()}
	}
	return storage.Config{Driver: storage.DriverSQLite, DSN: storage.SQLiteDSN(cfg.Path)}
}

func setupLogger(level string, dbg bool) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	if dbg {
		logLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: logLevel, AddSource: dbg}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
