package domain

import (
	"context"
	"time"

	"signaldesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Store is the persistence surface. Lookups named Latest*/Current*/Find*
// return (nil, nil) when nothing matches; Get* return ErrNotFound.
type Store interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByTgID(ctx context.Context, tgID int64) (*models.User, error)
	UpsertUser(ctx context.Context, user *models.User) error
	UpdateUserRole(ctx context.Context, userID int64, role models.Role) error
	ListUsers(ctx context.Context) ([]*models.User, error)

	UpsertPlan(ctx context.Context, plan *models.Plan) error
	GetPlanByCode(ctx context.Context, code string) (*models.Plan, error)
	ListPlans(ctx context.Context) ([]*models.Plan, error)

	LatestSubscription(ctx context.Context, userID int64) (*models.Subscription, error)
	CurrentSubscription(ctx context.Context, userID int64) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, userID int64) ([]*models.Subscription, error)
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	UpdateSubscriptionStatus(ctx context.Context, id int64, status models.SubscriptionStatus) error

	LatestSignal(ctx context.Context) (*models.Signal, error)
	LatestSignalForSymbol(ctx context.Context, symbol string) (*models.Signal, error)
	CountSignalsByAdminSince(ctx context.Context, adminID int64, since time.Time) (int, error)
	CountSignalsBySymbolSince(ctx context.Context, symbol string, since time.Time) (int, error)
	RecentSignals(ctx context.Context, symbol, timeframe string, limit int) ([]*models.Signal, error)
	CreateSignal(ctx context.Context, sig *models.Signal) error
	GetSignal(ctx context.Context, id int64) (*models.Signal, error)
	ListSignals(ctx context.Context, filter models.SignalFilter) ([]*models.Signal, error)
	ListSignalsBetween(ctx context.Context, from, to time.Time) ([]*models.Signal, error)

	FindDelivery(ctx context.Context, signalID, userID int64) (*models.SignalDelivery, error)
	MarkDelivered(ctx context.Context, signalID, userID int64, at time.Time) (*models.SignalDelivery, error)
	MarkSeen(ctx context.Context, signalID, userID int64, at time.Time) (*models.SignalDelivery, error)
	ListDeliveries(ctx context.Context, userID int64, limit int) ([]*models.SignalDelivery, error)

	FindPayment(ctx context.Context, provider, txID string) (*models.Payment, error)
	CreatePayment(ctx context.Context, p *models.Payment) error
	UpdatePayment(ctx context.Context, p *models.Payment) error

	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id int64) (*models.Notification, error)
	ListNotifications(ctx context.Context, userID int64, limit int) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error

	GetProfile(ctx context.Context, userID int64) (*models.Profile, error)
	CreateProfile(ctx context.Context, p *models.Profile) error
	UpdateProfile(ctx context.Context, p *models.Profile) error
}

// Repository runs fn inside a single transaction. fn's error rolls back.
type Repository interface {
	Store
	InTx(ctx context.Context, fn func(Store) error) error
}

type StateRepository interface {
	GetState(ctx context.Context, userID int64) (*models.UserState, error)
	SetState(ctx context.Context, state *models.UserState) error
	ClearState(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

type StateManager interface {
	GetUserState(ctx context.Context, userID int64) (*models.UserState, error)
	SetUserState(ctx context.Context, userID int64, step string, data map[string]interface{}) error
	UpdateUserStateData(ctx context.Context, userID int64, key string, value interface{}) error
	ClearUserState(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

type TelegramService interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMessage(chatID int64, text string) (tgbotapi.Message, error)
	SendHTML(chatID int64, text string) (tgbotapi.Message, error)
	SendWithInlineKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	EditMessage(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	SendDocument(chatID int64, name string, data []byte) (tgbotapi.Message, error)
	AnswerCallback(callbackID string, text string) error
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

// SignalNotifier pushes a published signal to one user.
type SignalNotifier interface {
	NotifySignal(ctx context.Context, user *models.User, sig *models.Signal) error
}

type AccessService interface {
	EnsureUserCanViewSignals(ctx context.Context, id models.Identity) (*models.User, error)
}

type SignalService interface {
	AdminCreateSignal(ctx context.Context, payload *models.SignalPayload, admin models.Identity) (*models.Signal, error)
	ListSignals(ctx context.Context, viewer models.Identity, filter models.SignalFilter) ([]*models.Signal, error)
	GetSignal(ctx context.Context, viewer models.Identity, id int64) (*models.Signal, error)
	SignalsForExport(ctx context.Context, admin models.Identity, from, to time.Time) ([]*models.Signal, error)
}

type UserService interface {
	IsAdmin(tgID int64) bool
	IsBlacklisted(tgID int64) bool
	RegisterUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUser(ctx context.Context, id models.Identity) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	GetProfile(ctx context.Context, userID int64) (*models.Profile, error)
	CreateProfile(ctx context.Context, userID int64) (*models.Profile, error)
	UpdateProfile(ctx context.Context, userID int64, upd *models.ProfileUpdate) (*models.Profile, error)
}

type SubscriptionService interface {
	ListPlans(ctx context.Context) ([]*models.Plan, error)
	CreateSubscription(ctx context.Context, userID int64, planCode string) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, userID int64) ([]*models.Subscription, error)
	CurrentSubscription(ctx context.Context, userID int64) (*models.Subscription, error)
	ActivateSubscription(ctx context.Context, admin models.Identity, userID int64, planCode string) (*models.Subscription, error)
}

type DeliveryService interface {
	MarkDelivered(ctx context.Context, signalID, userID int64, at *time.Time) (*models.SignalDelivery, error)
	MarkSeen(ctx context.Context, signalID, userID int64, at *time.Time) (*models.SignalDelivery, error)
	Feed(ctx context.Context, userID int64, limit int) ([]*models.SignalDelivery, error)
}

type PaymentService interface {
	HandleWebhook(ctx context.Context, in *models.PaymentWebhook) (*models.Payment, error)
}

type NotificationService interface {
	List(ctx context.Context, userID int64, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id int64) (*models.Notification, error)
}
