package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signaldesk/internal/config"
	"signaldesk/internal/domain"
	"signaldesk/internal/events"
	"signaldesk/internal/models"

	"github.com/rs/zerolog"
)

type SubscriptionService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewSubscriptionService(repo domain.Repository, eventBus domain.EventPublisher, logger *zerolog.Logger) *SubscriptionService {
	return &SubscriptionService{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
		now:      time.Now,
	}
}

// SyncPlans upserts the configured plans by code.
func (s *SubscriptionService) SyncPlans(ctx context.Context, plans []models.Plan) error {
	if err := config.ValidatePlans(plans); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return s.repo.InTx(ctx, func(tx domain.Store) error {
		for i := range plans {
			p := plans[i]
			if err := tx.UpsertPlan(ctx, &p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SubscriptionService) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	return s.repo.ListPlans(ctx)
}

// CreateSubscription starts a plan now.
func (s *SubscriptionService) CreateSubscription(ctx context.Context, userID int64, planCode string) (*models.Subscription, error) {
	if userID == 0 || strings.TrimSpace(planCode) == "" {
		return nil, fmt.Errorf("%w: user_id and plan_code are required", domain.ErrInvalidRequest)
	}
	now := s.now().UTC()

	var sub *models.Subscription
	err := s.repo.InTx(ctx, func(tx domain.Store) error {
		if _, err := tx.GetUserByID(ctx, userID); err != nil {
			return err
		}
		plan, err := tx.GetPlanByCode(ctx, planCode)
		if err != nil {
			return err
		}

		end := plan.PeriodEnd(now)
		if end == nil {
			return noPeriod(plan)
		}

		sub = &models.Subscription{
			UserID:    userID,
			PlanID:    &plan.ID,
			Status:    plan.InitialStatus(),
			StartAt:   &now,
			EndAt:     end,
			Source:    models.SourceManual,
			CreatedAt: now,
		}
		return tx.CreateSubscription(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("user_id", userID).Str("plan", planCode).Msg("subscription created")
	return sub, nil
}

func (s *SubscriptionService) ListSubscriptions(ctx context.Context, userID int64) ([]*models.Subscription, error) {
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListSubscriptions(ctx, userID)
}

func (s *SubscriptionService) CurrentSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	return s.repo.CurrentSubscription(ctx, userID)
}

// ActivateSubscription is the manual activation by an admin: the current
// active or trial subscription is expired and replaced by a new one.
func (s *SubscriptionService) ActivateSubscription(ctx context.Context, admin models.Identity, userID int64, planCode string) (*models.Subscription, error) {
	if userID == 0 || strings.TrimSpace(planCode) == "" {
		return nil, fmt.Errorf("%w: user_id and plan_code are required", domain.ErrInvalidRequest)
	}
	now := s.now().UTC()

	var (
		sub     *models.Subscription
		adminID int64
	)
	err := s.repo.InTx(ctx, func(tx domain.Store) error {
		actor, err := requireAdmin(ctx, tx, admin)
		if err != nil {
			return err
		}
		adminID = actor.ID

		if _, err := tx.GetUserByID(ctx, userID); err != nil {
			return err
		}
		plan, err := tx.GetPlanByCode(ctx, planCode)
		if err != nil {
			return err
		}

		end := plan.ActivationEnd(now)
		if end == nil {
			return noPeriod(plan)
		}

		current, err := tx.CurrentSubscription(ctx, userID)
		if err != nil {
			return err
		}
		if current != nil {
			if err := tx.UpdateSubscriptionStatus(ctx, current.ID, models.SubscriptionExpired); err != nil {
				return err
			}
		}

		sub = &models.Subscription{
			UserID:    userID,
			PlanID:    &plan.ID,
			Status:    plan.InitialStatus(),
			StartAt:   &now,
			EndAt:     end,
			Source:    models.SourceManual,
			CreatedAt: now,
		}
		if err := tx.CreateSubscription(ctx, sub); err != nil {
			return err
		}

		return tx.CreateNotification(ctx, &models.Notification{
			UserID:    userID,
			Type:      models.NotificationSubscriptionActivated,
			Title:     "Подписка активирована: " + plan.Name,
			Message:   "Подписка активна до " + end.Format("02.01.2006"),
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("user_id", userID).
		Int64("admin_id", adminID).
		Str("plan", planCode).
		Msg("subscription activated")

	if pubErr := s.eventBus.PublishJSON(events.EventSubscriptionActivated, events.SubscriptionActivatedPayload{
		UserID:         userID,
		SubscriptionID: sub.ID,
		PlanCode:       planCode,
		Status:         string(sub.Status),
		EndAt:          sub.EndAt,
		ActivatedBy:    adminID,
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Msg("failed to publish subscription_activated")
	}
	return sub, nil
}

func noPeriod(plan *models.Plan) error {
	return fmt.Errorf("%w: plan %s has no period", domain.ErrInvalidRequest, plan.Code)
}
