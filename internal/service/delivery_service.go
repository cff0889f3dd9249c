package service

import (
	"context"
	"time"

	"signaldesk/internal/domain"
	"signaldesk/internal/models"

	"github.com/rs/zerolog"
)

type DeliveryService struct {
	repo   domain.Repository
	access domain.AccessService
	logger *zerolog.Logger
	now    func() time.Time
}

func NewDeliveryService(repo domain.Repository, access domain.AccessService, logger *zerolog.Logger) *DeliveryService {
	return &DeliveryService{
		repo:   repo,
		access: access,
		logger: logger,
		now:    time.Now,
	}
}

// MarkDelivered is idempotent: delivered_at is written only once.
// The first delivery also leaves the user a notification.
func (s *DeliveryService) MarkDelivered(ctx context.Context, signalID, userID int64, at *time.Time) (*models.SignalDelivery, error) {
	ts := s.timestamp(at)

	var d *models.SignalDelivery
	err := s.repo.InTx(ctx, func(tx domain.Store) error {
		if _, err := tx.GetUserByID(ctx, userID); err != nil {
			return err
		}
		sig, err := tx.GetSignal(ctx, signalID)
		if err != nil {
			return err
		}

		prev, err := tx.FindDelivery(ctx, signalID, userID)
		if err != nil {
			return err
		}

		d, err = tx.MarkDelivered(ctx, signalID, userID, ts)
		if err != nil {
			return err
		}

		if prev == nil || prev.DeliveredAt == nil {
			return tx.CreateNotification(ctx, &models.Notification{
				UserID:    userID,
				Type:      models.NotificationSignalDelivered,
				Title:     "Сигнал " + sig.Symbol + " доставлен",
				Message:   signalSummary(sig),
				CreatedAt: ts,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// MarkSeen sets seen_at once; repeated calls keep the first timestamp.
func (s *DeliveryService) MarkSeen(ctx context.Context, signalID, userID int64, at *time.Time) (*models.SignalDelivery, error) {
	ts := s.timestamp(at)

	var d *models.SignalDelivery
	err := s.repo.InTx(ctx, func(tx domain.Store) error {
		if _, err := tx.GetSignal(ctx, signalID); err != nil {
			return err
		}
		// без пользователя вставка упадет на внешнем ключе
		if _, err := tx.GetUserByID(ctx, userID); err != nil {
			return err
		}
		var err error
		d, err = tx.MarkSeen(ctx, signalID, userID, ts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Feed returns the user's deliveries, gated by the access check.
func (s *DeliveryService) Feed(ctx context.Context, userID int64, limit int) ([]*models.SignalDelivery, error) {
	if _, err := s.access.EnsureUserCanViewSignals(ctx, models.ByUserID(userID)); err != nil {
		return nil, err
	}
	return s.repo.ListDeliveries(ctx, userID, clampLimit(limit))
}

func (s *DeliveryService) timestamp(at *time.Time) time.Time {
	if at != nil && !at.IsZero() {
		return at.UTC()
	}
	return s.now().UTC()
}
