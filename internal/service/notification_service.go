package service

import (
	"context"

	"signaldesk/internal/domain"
	"signaldesk/internal/models"
)

type NotificationService struct {
	repo domain.Repository
}

func NewNotificationService(repo domain.Repository) *NotificationService {
	return &NotificationService{repo: repo}
}

func (s *NotificationService) List(ctx context.Context, userID int64, limit int) ([]*models.Notification, error) {
	return s.repo.ListNotifications(ctx, userID, clampLimit(limit))
}

func (s *NotificationService) MarkRead(ctx context.Context, id int64) (*models.Notification, error) {
	var n *models.Notification
	err := s.repo.InTx(ctx, func(tx domain.Store) error {
		if err := tx.MarkNotificationRead(ctx, id); err != nil {
			return err
		}
		var err error
		n, err = tx.GetNotification(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}
