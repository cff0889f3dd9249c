package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signaldesk/internal/api"
	"signaldesk/internal/bot"
	"signaldesk/internal/config"
	"signaldesk/internal/database"
	"signaldesk/internal/events"
	"signaldesk/internal/logging"
	"signaldesk/internal/metrics"
	"signaldesk/internal/models"
	"signaldesk/internal/repository"
	"signaldesk/internal/service"
	"signaldesk/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

type services struct {
	users         *service.UserService
	access        *service.AccessService
	signals       *service.SignalService
	subscriptions *service.SubscriptionService
	deliveries    *service.DeliveryService
	payments      *service.PaymentService
	notifications *service.NotificationService
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := cfg.ValidateBot(); err != nil {
		logger.Error().Err(err).Msg("Задайте токен бота в config.yaml")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для экспорта")
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus := events.NewEventBus(&logger)
	svc := newServices(db, eventBus, cfg, &logger)
	if err := svc.subscriptions.SyncPlans(ctx, cfg.Plans); err != nil {
		logger.Error().Err(err).Msg("Ошибка синхронизации тарифов")
		return err
	}

	redisClient, stateService := initStateService(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	reg := prometheus.NewRegistry()
	startMetrics(ctx, cfg, reg, &logger)

	if cfg.API.Enabled {
		apiServer := api.NewHTTPServer(cfg.API, api.Services{
			Users:         svc.users,
			Access:        svc.access,
			Signals:       svc.signals,
			Subscriptions: svc.subscriptions,
			Deliveries:    svc.deliveries,
			Payments:      svc.payments,
			Notifications: svc.notifications,
		}, &logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	return startBot(ctx, cfg, db, eventBus, stateService, svc, bot.NewMetrics(reg), &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "bot-main").Logger()
	return cfg, logger, closer, nil
}

func newServices(db *database.DB, bus *events.EventBus, cfg *config.Config, logger *zerolog.Logger) services {
	access := service.NewAccessService(db, bus, logging.Component(logger, "access"))
	return services{
		users:         service.NewUserService(db, cfg, logging.Component(logger, "users")),
		access:        access,
		signals:       service.NewSignalService(db, access, bus, cfg.Signals, logging.Component(logger, "signals")),
		subscriptions: service.NewSubscriptionService(db, bus, logging.Component(logger, "subscriptions")),
		deliveries:    service.NewDeliveryService(db, access, logging.Component(logger, "deliveries")),
		payments:      service.NewPaymentService(db, bus, logging.Component(logger, "payments")),
		notifications: service.NewNotificationService(db),
	}
}

// initStateService: Redis основной, память запасной. Без адреса Redis
// состояние живет только в памяти процесса.
func initStateService(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, *service.StateService) {
	ttl := time.Duration(models.DefaultRedisTTL) * time.Second
	fallbackRepo := repository.NewMemoryStateRepository(ttl)

	if cfg.Redis.Address == "" {
		logger.Info().Msg("Redis не настроен, состояние хранится в памяти")
		return nil, service.NewStateService(fallbackRepo, logger)
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if errPing := repository.Ping(ctx, redisClient); errPing != nil {
		logger.Warn().Err(errPing).Msg("Redis unavailable")
	}

	primaryRepo := repository.NewRedisStateRepository(redisClient, ttl)
	stateRepo := repository.NewFailoverStateRepository(primaryRepo, fallbackRepo, logging.Component(logger, "state"))
	return redisClient, service.NewStateService(stateRepo, logger)
}

func startBot(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	eventBus *events.EventBus,
	stateService *service.StateService,
	svc services,
	botMetrics *bot.Metrics,
	logger *zerolog.Logger,
) error {
	botWrapper, err := bot.NewBotWrapper(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания BotAPI")
		return err
	}

	telegramBot := bot.NewBot(cfg, bot.Deps{
		Telegram:      service.NewTelegramService(botWrapper),
		State:         stateService,
		Users:         svc.users,
		Access:        svc.access,
		Signals:       svc.signals,
		Subscriptions: svc.subscriptions,
		Deliveries:    svc.deliveries,
		Notifications: svc.notifications,
	}, botMetrics, logger)

	broadcaster := worker.NewBroadcastWorker(db, svc.access, svc.deliveries, telegramBot, cfg.Broadcast, logging.Component(logger, "broadcast"))
	broadcaster.Subscribe(eventBus)
	go broadcaster.Start(ctx)
	telegramBot.SubscribeEvents(eventBus)

	logger.Info().Str("username", botWrapper.Self.UserName).Msg("Бот запущен...")
	telegramBot.Start(ctx)

	logger.Info().Msg("Shutdown complete.")
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, reg *prometheus.Registry, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	metrics.Register()

	// бот пишет свои счетчики в отдельный registry, отдаем оба
	handler := promhttp.HandlerFor(prometheus.Gatherers{prometheus.DefaultGatherer, reg}, promhttp.HandlerOpts{})
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
}
