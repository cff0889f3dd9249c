package bot

import (
	"context"
	"time"

	"signaldesk/internal/config"
	"signaldesk/internal/domain"
	"signaldesk/internal/logging"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const updateTimeout = 30 * time.Second

// Deps сервисы, через которые работает бот.
type Deps struct {
	Telegram      domain.TelegramService
	State         domain.StateManager
	Users         domain.UserService
	Access        domain.AccessService
	Signals       domain.SignalService
	Subscriptions domain.SubscriptionService
	Deliveries    domain.DeliveryService
	Notifications domain.NotificationService
}

type Bot struct {
	tgService     domain.TelegramService
	config        *config.Config
	stateService  domain.StateManager
	userService   domain.UserService
	access        domain.AccessService
	signals       domain.SignalService
	subscriptions domain.SubscriptionService
	deliveries    domain.DeliveryService
	notifications domain.NotificationService
	metrics       *Metrics
	logger        *zerolog.Logger
	now           func() time.Time
}

func NewBot(cfg *config.Config, deps Deps, metrics *Metrics, logger *zerolog.Logger) *Bot {
	return &Bot{
		tgService:     deps.Telegram,
		config:        cfg,
		stateService:  deps.State,
		userService:   deps.Users,
		access:        deps.Access,
		signals:       deps.Signals,
		subscriptions: deps.Subscriptions,
		deliveries:    deps.Deliveries,
		notifications: deps.Notifications,
		metrics:       metrics,
		logger:        logging.Component(logger, "bot"),
		now:           time.Now,
	}
}

// Шаги мастера подбора сделки.
const (
	StateMainMenu     = "main_menu"
	StateWizardMarket = "wizard_market"
	StateWizardPair   = "wizard_pair"
	StateWizardTF     = "wizard_tf"
	StateWizardRisk   = "wizard_risk"
)

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tgService.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tgService.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop stops receiving Telegram updates (best-effort).
func (b *Bot) Stop() {
	if b == nil || b.tgService == nil {
		return
	}
	b.tgService.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.UpdateProcessingTime.Observe(time.Since(start).Seconds())
		}
	}()

	updateCtx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	requestID := uuid.NewString()
	l := b.logger.With().Str("request_id", requestID).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		userID := updateUserID(update)
		if userID == 0 {
			return
		}

		if b.userService.IsBlacklisted(userID) {
			if update.CallbackQuery != nil {
				_ = b.tgService.AnswerCallback(update.CallbackQuery.ID, "")
			}
			return
		}

		if !b.allowUpdate(updateCtx, userID) {
			if update.Message != nil {
				b.sendMessage(update.Message.Chat.ID, "⚠️ Вы отправляете сообщения слишком часто. Пожалуйста, подождите немного.")
			}
			return
		}

		if update.CallbackQuery != nil {
			if b.metrics != nil {
				b.metrics.CallbacksProcessed.Inc()
			}
			b.handleCallbackQuery(updateCtx, update.CallbackQuery)
			return
		}

		if update.Message == nil {
			return
		}
		if b.metrics != nil {
			b.metrics.MessagesProcessed.Inc()
		}
		b.handleMessage(updateCtx, update.Message)
	})
}

func updateUserID(update tgbotapi.Update) int64 {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	}
	return 0
}
