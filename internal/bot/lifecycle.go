package bot

import (
	"context"
	"fmt"
	"time"

	"signaldesk/internal/events"
	"signaldesk/internal/models"

	"github.com/shopspring/decimal"
)

const lifecyclePushTimeout = 15 * time.Second

type EventSubscriber interface {
	Subscribe(eventType string, handler events.EventHandler)
}

// SubscribeEvents: пользователю сообщаем об активации и истечении подписки,
// администраторам о новых платежах.
func (b *Bot) SubscribeEvents(bus EventSubscriber) {
	bus.Subscribe(events.EventSubscriptionActivated, b.handleLifecycleEvent)
	bus.Subscribe(events.EventSubscriptionExpired, b.handleLifecycleEvent)
	bus.Subscribe(events.EventPaymentReceived, b.handleLifecycleEvent)
}

// handleLifecycleEvent не блокирует издателя: шина вызывает обработчики
// синхронно, а отправка в Telegram может занять секунды.
func (b *Bot) handleLifecycleEvent(ev *events.Event) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), lifecyclePushTimeout)
		defer cancel()
		if err := b.pushLifecycle(ctx, ev); err != nil {
			b.logSendError(fmt.Errorf("push %s: %w", ev.Type, err))
		}
	}()
	return nil
}

func (b *Bot) pushLifecycle(ctx context.Context, ev *events.Event) error {
	switch ev.Type {
	case events.EventSubscriptionActivated:
		var p events.SubscriptionActivatedPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		text := "✅ Подписка активирована"
		if p.EndAt != nil {
			text += " до " + p.EndAt.UTC().Format("02.01.2006")
		}
		return b.pushToUser(ctx, p.UserID, text+". Сигналы снова доступны.")

	case events.EventSubscriptionExpired:
		var p events.SubscriptionExpiredPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		return b.pushToUser(ctx, p.UserID, "⌛ Подписка истекла. Продлите её, чтобы снова получать сигналы.")

	case events.EventPaymentReceived:
		var p events.PaymentReceivedPayload
		if err := ev.Decode(&p); err != nil {
			return err
		}
		if p.Repeated {
			return nil
		}
		return b.pushToAdmins(paymentText(&p))
	}
	return nil
}

func (b *Bot) pushToUser(ctx context.Context, userID int64, text string) error {
	user, err := b.userService.GetUser(ctx, models.ByUserID(userID))
	if err != nil {
		return err
	}
	if user.IsBanned() || b.userService.IsBlacklisted(user.TgID) {
		return nil
	}
	_, err = b.tgService.SendMessage(user.TgID, text)
	return err
}

func (b *Bot) pushToAdmins(text string) error {
	var firstErr error
	for _, tgID := range b.config.Admins {
		if _, err := b.tgService.SendMessage(tgID, text); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func paymentText(p *events.PaymentReceivedPayload) string {
	return fmt.Sprintf("💰 Платёж %s %s от пользователя #%d: %s %s, статус %s",
		p.Provider, p.TxID, p.UserID,
		decimal.New(p.AmountCents, -2).StringFixed(2), p.Currency, p.Status)
}
