package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"feed_relay/internal/api"
	"feed_relay/internal/config"
	"feed_relay/internal/credential"
	"feed_relay/internal/domain"
	"feed_relay/internal/notifier"
	"feed_relay/internal/publisher"
	"feed_relay/internal/scheduler"
	"feed_relay/internal/service"
	"feed_relay/internal/storage/postgres"
	"feed_relay/internal/upstream"
)

type options struct {
	Config   string `short:"c" long:"config" env:"RELAY_CONFIG" default:"config.yaml" description:"Path to config file"`
	LogLevel string `long:"log-level" env:"RELAY_LOG_LEVEL" description:"Override the configured log level (debug, info, warn, error)"`
	Once     bool   `long:"once" description:"Sync enabled feeds once and exit"`
}

func main() {
	var opts options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	logger := setupLogger("info")

	cfg, err := config.Load(opts.Config)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	logger = setupLogger(cfg.LogLevel)

	if err := run(cfg, opts, logger); err != nil {
		logger.Error("relay stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, opts options, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	logger.Info("connected to database")

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			return err
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	credentialStore := postgres.NewCredentialStore(db)
	feedStore := postgres.NewFeedStore(db)
	articleStore := postgres.NewArticleStore(db)
	txManager := postgres.NewTransactionManager(db)

	loc, err := cfg.Sync.Location()
	if err != nil {
		return err
	}
	selector := credential.NewSelector(credentialStore, credential.NewBlocklist(loc), logger)

	client := upstream.New(upstream.Config{
		BaseURL:            cfg.Upstream.BaseURL,
		Timeout:            cfg.Upstream.Timeout,
		LoginTimeout:       cfg.Upstream.LoginTimeout,
		UserAgent:          cfg.Upstream.UserAgent,
		UnauthorizedMarker: cfg.Upstream.UnauthorizedMarker,
		RateLimitedMarker:  cfg.Upstream.RateLimitedMarker,
		RequestsPerMinute:  cfg.Upstream.RequestsPerMinute,
	}, logger)

	engine := service.NewEngine(selector, client, feedStore, articleStore, txManager, pub, logger, cfg.Sync)

	if opts.Once {
		stats, err := engine.SyncEnabledFeeds(ctx)
		if err != nil {
			return err
		}
		logger.Info("one-off sync finished", "feeds", stats.Feeds, "synced", stats.Synced, "duration", stats.Duration)
		return nil
	}

	reauth := service.NewReauthenticator(
		client,
		credentialStore,
		selector,
		notifier.NewQRRenderer(cfg.Notify.QRSize),
		notifier.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Timeout, logger),
		logger,
		cfg.Credentials,
	)

	var logins sync.WaitGroup
	engine.OnCredentialInvalidated(func(cred domain.Credential) {
		logins.Add(1)
		go func() {
			defer logins.Done()
			reauth.Recover(ctx, cred)
		}()
	})

	monitor := service.NewHealthMonitor(credentialStore, feedStore, client, selector, reauth, logger, cfg.Credentials)

	sched := scheduler.NewScheduler(loc, logger)
	err = sched.Add("sync-enabled-feeds", cfg.Sync.Cron, cfg.Sync.SweepTimeout, func(ctx context.Context) error {
		_, err := engine.SyncEnabledFeeds(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if err := sched.Add("credential-health", cfg.Credentials.HealthCron, 0, monitor.Check); err != nil {
		return err
	}

	handler := api.NewHandler(ctx, api.Deps{
		Syncer:      engine,
		Feeds:       feedStore,
		Articles:    articleStore,
		Credentials: credentialStore,
		Blocklist:   selector,
		Recoverer:   reauth,
		DB:          db,
	}, cfg.HTTP, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.NewServer(handler, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("http server: %w", err)
			cancel()
		}
	}()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		_ = sched.Start(ctx)
	}()

	logger.Info("feed relay started",
		"sync_cron", cfg.Sync.Cron,
		"health_cron", cfg.Credentials.HealthCron,
		"timezone", cfg.Sync.Timezone,
		"rabbitmq", cfg.RabbitMQ.Enabled,
	)

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
	<-schedDone
	handler.Wait()
	logins.Wait()

	logger.Info("feed relay stopped")

	select {
	case err := <-serverErr:
		return err
	default:
		return nil
	}
}

func setupLogger(level string) *slog.Logger {
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

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
