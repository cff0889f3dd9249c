package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signaldesk/internal/domain"
	"signaldesk/internal/events"
	"signaldesk/internal/metrics"
	"signaldesk/internal/models"

	"github.com/rs/zerolog"
)

// AccessService решает, может ли пользователь видеть сигналы, и попутно
// синхронизирует его роль с состоянием подписки.
type AccessService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewAccessService(repo domain.Repository, eventBus domain.EventPublisher, logger *zerolog.Logger) *AccessService {
	return &AccessService{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
		now:      time.Now,
	}
}

// EnsureUserCanViewSignals returns the user on success. A deny caused by a
// lapsed subscription still commits the expiry before returning the error.
func (s *AccessService) EnsureUserCanViewSignals(ctx context.Context, id models.Identity) (*models.User, error) {
	if id.Empty() {
		return nil, fmt.Errorf("%w: user_id or tg_id is required", domain.ErrInvalidRequest)
	}

	now := s.now().UTC()

	var (
		user    *models.User
		denyErr error
		expired *models.Subscription
	)
	err := s.repo.InTx(ctx, func(tx domain.Store) error {
		u, err := resolveUser(ctx, tx, id)
		if err != nil {
			return err
		}
		user = u

		denyErr, expired, err = checkAccess(ctx, tx, u, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if expired != nil {
		s.logger.Info().
			Int64("user_id", user.ID).
			Int64("subscription_id", expired.ID).
			Msg("subscription expired")
		if pubErr := s.eventBus.PublishJSON(events.EventSubscriptionExpired, events.SubscriptionExpiredPayload{
			UserID:         user.ID,
			SubscriptionID: expired.ID,
			ExpiredAt:      now,
		}); pubErr != nil {
			s.logger.Warn().Err(pubErr).Msg("failed to publish subscription_expired")
		}
	}

	metrics.IncAccess(accessResult(denyErr))
	if denyErr != nil {
		s.logger.Debug().Int64("user_id", user.ID).Err(denyErr).Msg("signals access denied")
		return nil, denyErr
	}
	return user, nil
}

// checkAccess отдает отказ отдельно от ошибки: отказ не откатывает транзакцию.
func checkAccess(ctx context.Context, tx domain.Store, user *models.User, now time.Time) (deny error, expired *models.Subscription, err error) {
	switch user.Role {
	case models.RoleBanned:
		return domain.Forbidden(domain.ReasonBanned), nil, nil
	case models.RoleAdmin:
		return nil, nil, nil
	case models.RoleGuest, models.RoleTrial, models.RoleSubscriber, models.RoleExpired:
	default:
		return nil, nil, corruptedRole(user.Role)
	}

	sub, err := tx.LatestSubscription(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	if sub == nil || sub.StartAt == nil || sub.EndAt == nil {
		return domain.Forbidden(domain.ReasonNoSubscription), nil, nil
	}

	if sub.Ended(now) || !sub.Status.Live() {
		if sub.Status.Live() {
			if err := tx.UpdateSubscriptionStatus(ctx, sub.ID, models.SubscriptionExpired); err != nil {
				return nil, nil, err
			}
			sub.Status = models.SubscriptionExpired
			if !user.Role.Sticky() {
				if err := tx.UpdateUserRole(ctx, user.ID, models.RoleExpired); err != nil {
					return nil, nil, err
				}
				user.Role = models.RoleExpired
			}
			expired = sub
		}
		return domain.Forbidden(domain.ReasonExpired), expired, nil
	}

	if role := syncedRole(user.Role, sub.Status); role != user.Role {
		if err := tx.UpdateUserRole(ctx, user.ID, role); err != nil {
			return nil, nil, err
		}
		user.Role = role
	}
	return nil, nil, nil
}

// syncedRole поднимает роль по живой подписке; прочие роли не трогаем.
func syncedRole(role models.Role, status models.SubscriptionStatus) models.Role {
	switch {
	case status == models.SubscriptionTrial && role == models.RoleGuest:
		return models.RoleTrial
	case status == models.SubscriptionActive &&
		(role == models.RoleGuest || role == models.RoleTrial || role == models.RoleExpired):
		return models.RoleSubscriber
	}
	return role
}

func resolveUser(ctx context.Context, store domain.Store, id models.Identity) (*models.User, error) {
	switch {
	case id.UserID != 0:
		return store.GetUserByID(ctx, id.UserID)
	case id.TgID != 0:
		return store.GetUserByTgID(ctx, id.TgID)
	default:
		return nil, fmt.Errorf("%w: user_id or tg_id is required", domain.ErrInvalidRequest)
	}
}

func corruptedRole(role models.Role) error {
	return fmt.Errorf("user role %q: %w", role, domain.ErrDataCorruption)
}

func accessResult(deny error) string {
	var fe *domain.ForbiddenError
	if errors.As(deny, &fe) {
		return string(fe.Reason)
	}
	return "allowed"
}
