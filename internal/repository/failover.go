package repository

import (
	"context"
	"sync"
	"time"

	"signaldesk/internal/domain"
	"signaldesk/internal/models"

	"github.com/rs/zerolog"
)

// DefaultRetryPrimaryAfter пауза перед повторной попыткой основного хранилища.
const DefaultRetryPrimaryAfter = time.Minute

// FailoverStateRepository sends calls to primary until it fails, then to
// fallback. Primary is retried once per retryAfter.
type FailoverStateRepository struct {
	primary    domain.StateRepository
	fallback   domain.StateRepository
	logger     *zerolog.Logger
	retryAfter time.Duration

	mu       sync.Mutex
	down     bool
	downedAt time.Time
	now      func() time.Time
}

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:    primary,
		fallback:   fallback,
		logger:     logger,
		retryAfter: DefaultRetryPrimaryAfter,
		now:        time.Now,
	}
}

// usePrimary is true while primary is healthy or when it is time to retry it.
func (r *FailoverStateRepository) usePrimary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.down || r.now().Sub(r.downedAt) > r.retryAfter
}

func (r *FailoverStateRepository) report(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err == nil {
		if r.down {
			r.logger.Info().Str("op", op).Msg("primary state storage recovered")
		}
		r.down = false
		return
	}
	if !r.down {
		r.logger.Error().Err(err).Str("op", op).Msg("primary state storage failed, using memory")
	}
	r.down = true
	r.downedAt = r.now()
}

func (r *FailoverStateRepository) Down() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.down
}

func (r *FailoverStateRepository) GetState(ctx context.Context, userID int64) (*models.UserState, error) {
	if r.usePrimary() {
		state, err := r.primary.GetState(ctx, userID)
		r.report("get", err)
		if err == nil {
			return state, nil
		}
	}
	return r.fallback.GetState(ctx, userID)
}

func (r *FailoverStateRepository) SetState(ctx context.Context, state *models.UserState) error {
	if r.usePrimary() {
		err := r.primary.SetState(ctx, state)
		r.report("set", err)
		if err == nil {
			return nil
		}
	}
	return r.fallback.SetState(ctx, state)
}

// ClearState чистит оба хранилища, сессия могла остаться в памяти.
func (r *FailoverStateRepository) ClearState(ctx context.Context, userID int64) error {
	fbErr := r.fallback.ClearState(ctx, userID)
	if r.usePrimary() {
		err := r.primary.ClearState(ctx, userID)
		r.report("clear", err)
		if err == nil {
			return nil
		}
	}
	return fbErr
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, userID, limit, window)
		r.report("rate_limit", err)
		if err == nil {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, userID, limit, window)
}
