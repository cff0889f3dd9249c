package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signaldesk/internal/domain"
	"signaldesk/internal/events"
	"signaldesk/internal/models"

	"github.com/rs/zerolog"
)

type PaymentService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewPaymentService(repo domain.Repository, eventBus domain.EventPublisher, logger *zerolog.Logger) *PaymentService {
	return &PaymentService{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleWebhook records a provider payment. A repeated (provider, tx_id)
// updates the stored row. Subscriptions are never activated here.
func (s *PaymentService) HandleWebhook(ctx context.Context, in *models.PaymentWebhook) (*models.Payment, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrInvalidRequest)
	}
	id := models.Identity{UserID: in.UserID, TgID: in.TgID}
	if id.Empty() {
		return nil, fmt.Errorf("%w: user_id or tg_id is required", domain.ErrInvalidRequest)
	}
	provider := strings.TrimSpace(in.Provider)
	txID := strings.TrimSpace(in.TxID)
	if provider == "" || txID == "" {
		return nil, fmt.Errorf("%w: provider and tx_id are required", domain.ErrInvalidRequest)
	}
	now := s.now().UTC()

	var (
		payment  *models.Payment
		repeated bool
	)
	err := s.repo.InTx(ctx, func(tx domain.Store) error {
		user, err := resolveUser(ctx, tx, id)
		if err != nil {
			return err
		}

		existing, err := tx.FindPayment(ctx, provider, txID)
		if err != nil {
			return err
		}
		if existing != nil {
			repeated = true
			existing.Status = in.Status
			existing.AmountCents = in.AmountCents
			existing.Currency = in.Currency
			existing.UpdatedAt = now
			payment = existing
			return tx.UpdatePayment(ctx, existing)
		}

		payment = &models.Payment{
			UserID:      user.ID,
			AmountCents: in.AmountCents,
			Currency:    in.Currency,
			Provider:    provider,
			TxID:        txID,
			Status:      in.Status,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return tx.CreatePayment(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("payment_id", payment.ID).
		Str("provider", provider).
		Str("status", payment.Status).
		Bool("repeated", repeated).
		Msg("payment webhook processed")

	if pubErr := s.eventBus.PublishJSON(events.EventPaymentReceived, events.PaymentReceivedPayload{
		PaymentID:   payment.ID,
		UserID:      payment.UserID,
		Provider:    payment.Provider,
		TxID:        payment.TxID,
		Status:      payment.Status,
		AmountCents: payment.AmountCents,
		Currency:    payment.Currency,
		Repeated:    repeated,
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish payment_received")
	}
	return payment, nil
}
