package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"detailbook/internal/api"
	"detailbook/internal/config"
	"detailbook/internal/database"
	"detailbook/internal/domain"
	"detailbook/internal/events"
	"detailbook/internal/google"
	"detailbook/internal/logging"
	"detailbook/internal/metrics"
	"detailbook/internal/models"
	"detailbook/internal/notify"
	"detailbook/internal/payments"
	"detailbook/internal/repository"
	"detailbook/internal/schedule"
	"detailbook/internal/service"
	"detailbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	opts, err := cfg.Business.Options()
	if err != nil {
		return err
	}

	catalog, err := loadCatalog(cfg, logger)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.Database.Path, database.Options{
		BusyTimeout: time.Duration(cfg.Database.BusyTimeoutMs) * time.Millisecond,
	}, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalogService := service.NewCatalogService(db, logging.Component(logger, "catalog"))
	if err := catalogService.Seed(ctx, catalog); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}

	redisClient := initRedis(ctx, cfg, logger)
	defer (func() { _ = repository.Close(redisClient) })()

	bus := events.NewEventBus()
	bus.OnError(func(event *events.Event, err error) {
		logger.Warn().Err(err).Str("event", event.Type).Msg("event handler failed")
	})

	if broker := initBroker(cfg, logger); broker != nil {
		defer broker.Close()
		types := append([]string{events.EventScheduleChanged}, events.BookingEventTypes...)
		events.Forward(bus, broker, 5*time.Second, logging.Component(logger, "amqp"), types...)
	}

	notifier := initNotifier(cfg, opts, bus, logger)

	slotService := service.NewSlotService(
		db,
		initSlotCache(redisClient, logger),
		opts,
		time.Duration(cfg.Redis.SlotCacheTTL)*time.Second,
		cfg.Business.MaxBookingDays,
		logging.Component(logger, "slots"),
	)
	// cached lists from before the seed may carry old durations or active flags
	slotService.InvalidateHorizon(ctx)

	var syncWorker domain.SyncWorker
	if calendarWorker := initCalendarWorker(ctx, cfg, opts, db, redisClient, logger); calendarWorker != nil {
		go calendarWorker.Start(ctx)
		syncWorker = calendarWorker
	}

	var gateway domain.PaymentGateway
	if cfg.Payments.StripeSecretKey != "" {
		gateway = payments.NewStripeGateway(cfg.Payments, nil, logging.Component(logger, "payments"))
		logger.Info().Str("currency", cfg.Payments.Currency).Msg("stripe payments enabled")
	}

	bookingService := service.NewBookingService(db, slotService, bus, syncWorker, gateway, logging.Component(logger, "bookings"))
	scheduleService := service.NewScheduleService(db, slotService, bus, logging.Component(logger, "schedule"))

	if notifier != nil && cfg.Telegram.DigestTime != "" {
		go func() {
			if err := notifier.StartDailyDigest(ctx, bookingService, cfg.Telegram.DigestTime); err != nil {
				logger.Error().Err(err).Msg("daily digest stopped")
			}
		}()
	}

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup"))
		go backup.Start(ctx)
	}

	startMetrics(ctx, cfg, logger)

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Slots:    slotService,
		Bookings: bookingService,
		Catalog:  catalogService,
		Schedule: scheduleService,
		Payments: gateway,
		Ready:    readiness(db, redisClient),
	}, opts, logging.Component(logger, "http"))

	return serve(ctx, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func loadCatalog(cfg *config.Config, logger *zerolog.Logger) (*models.Catalog, error) {
	catalogPath := os.Getenv("CATALOG_PATH")
	if catalogPath == "" {
		catalogPath = cfg.CatalogPath
	}
	if catalogPath == "" {
		catalogPath = "configs/catalog.yaml"
	}

	data, err := os.ReadFile(catalogPath)
	if err != nil {
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("read catalog")
		return nil, err
	}

	var catalog models.Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("parse catalog")
		return nil, err
	}
	if err := config.ValidateCatalog(&catalog); err != nil {
		return nil, fmt.Errorf("catalog validation failed: %w", err)
	}
	return &catalog, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = repository.Close(redisClient)
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initSlotCache(redisClient *redis.Client, logger *zerolog.Logger) domain.SlotCache {
	memory := repository.NewMemorySlotCache()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverSlotCache(
		repository.NewRedisSlotCache(redisClient),
		memory,
		logging.Component(logger, "slot-cache"),
	)
}

func initBroker(cfg *config.Config, logger *zerolog.Logger) *events.AMQPBroker {
	if cfg.Events.AMQPURL == "" {
		return nil
	}
	broker, err := events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.Exchange)
	if err != nil {
		logger.Warn().Err(err).Msg("rabbitmq init failed, events stay in process")
		return nil
	}
	logger.Info().Str("exchange", cfg.Events.Exchange).Msg("rabbitmq connected")
	return broker
}

func initNotifier(cfg *config.Config, opts schedule.Options, bus *events.EventBus, logger *zerolog.Logger) *notify.Notifier {
	if cfg.Telegram.BotToken == "" || len(cfg.Telegram.Managers) == 0 {
		return nil
	}
	bot, err := notify.NewBot(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		return nil
	}
	notifier := notify.NewNotifier(bot, cfg.Telegram.Managers, opts.Loc(), logging.Component(logger, "telegram"))
	notifier.Subscribe(bus)
	logger.Info().Str("bot", bot.Self.UserName).Int("managers", len(cfg.Telegram.Managers)).Msg("telegram notifications enabled")
	return notifier
}

func initCalendarWorker(
	ctx context.Context,
	cfg *config.Config,
	opts schedule.Options,
	db *database.DB,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) *worker.CalendarWorker {
	if cfg.Google.CredentialsFile == "" {
		return nil
	}

	calendar, err := google.NewCalendarService(ctx, cfg.Google.CredentialsFile, cfg.Google.CalendarID, opts.Loc())
	if err != nil {
		logger.Warn().Err(err).Msg("google calendar init failed, continuing without calendar sync")
		return nil
	}
	if err := calendar.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Str("calendar_id", cfg.Google.CalendarID).Msg("google calendar unreachable, continuing without calendar sync")
		return nil
	}

	logger.Info().Str("calendar_id", cfg.Google.CalendarID).Msg("google calendar connected")
	return worker.NewCalendarWorker(db, calendar, redisClient, worker.DefaultRetryPolicy(), logging.Component(logger, "calendar-worker"))
}

func readiness(db *database.DB, redisClient *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if redisClient != nil {
			if err := repository.Ping(ctx, redisClient); err != nil {
				return err
			}
		}
		return nil
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Str("timezone", cfg.Business.Timezone).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
