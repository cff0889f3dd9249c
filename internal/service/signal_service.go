package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"signaldesk/internal/config"
	"signaldesk/internal/domain"
	"signaldesk/internal/events"
	"signaldesk/internal/metrics"
	"signaldesk/internal/models"

	"github.com/rs/zerolog"
)

type SignalService struct {
	repo     domain.Repository
	access   domain.AccessService
	eventBus domain.EventPublisher
	rules    config.SignalsConfig
	loc      *time.Location
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewSignalService(repo domain.Repository, access domain.AccessService, eventBus domain.EventPublisher, rules config.SignalsConfig, logger *zerolog.Logger) *SignalService {
	return &SignalService{
		repo:     repo,
		access:   access,
		eventBus: eventBus,
		rules:    rules,
		loc:      rules.Location(),
		logger:   logger,
		now:      time.Now,
	}
}

// AdminCreateSignal runs the admission gate and persists the signal.
// Stages run in a fixed order inside one transaction; any rejection rolls back.
func (s *SignalService) AdminCreateSignal(ctx context.Context, payload *models.SignalPayload, admin models.Identity) (*models.Signal, error) {
	now := s.now().UTC()

	var created *models.Signal
	err := s.repo.InTx(ctx, func(tx domain.Store) error {
		adminUser, err := requireAdmin(ctx, tx, admin)
		if err != nil {
			return err
		}

		sig, err := ValidateSignalPayload(payload, s.rules)
		if err != nil {
			return err
		}

		if err := s.checkCooldowns(ctx, tx, sig.Symbol, now); err != nil {
			return err
		}
		if err := s.checkDailyLimits(ctx, tx, adminUser.ID, sig.Symbol, now); err != nil {
			return err
		}
		if err := s.checkDuplicates(ctx, tx, sig); err != nil {
			return err
		}

		sig.CreatedBy = adminUser.ID
		sig.CreatedAt = now
		if err := tx.CreateSignal(ctx, sig); err != nil {
			return err
		}

		if err := tx.CreateNotification(ctx, &models.Notification{
			UserID:    adminUser.ID,
			Type:      models.NotificationNewSignal,
			Title:     "Новый сигнал по " + sig.Symbol,
			Message:   signalSummary(sig),
			CreatedAt: now,
		}); err != nil {
			return err
		}

		created = sig
		return nil
	})

	result := admissionResult(err)
	metrics.IncAdmission(result)
	if err != nil {
		s.logRejection(err, result, payload)
		return nil, err
	}

	s.logger.Info().
		Int64("signal_id", created.ID).
		Str("symbol", created.Symbol).
		Str("tf", created.Timeframe).
		Int64("admin_id", created.CreatedBy).
		Msg("signal published")

	if pubErr := s.eventBus.PublishJSON(events.EventSignalPublished, events.SignalPublishedPayload{
		SignalID:  created.ID,
		Market:    created.Market,
		Symbol:    created.Symbol,
		Timeframe: created.Timeframe,
		Direction: created.Direction,
		CreatedBy: created.CreatedBy,
		CreatedAt: created.CreatedAt,
	}); pubErr != nil {
		s.logger.Warn().Err(pubErr).Int64("signal_id", created.ID).Msg("failed to publish signal_published")
	}

	return created, nil
}

func (s *SignalService) checkCooldowns(ctx context.Context, tx domain.Store, symbol string, now time.Time) error {
	last, err := tx.LatestSignal(ctx)
	if err != nil {
		return err
	}
	if err := cooldown(last, s.rules.GlobalCooldown(), now, domain.LimitGlobalCooldown); err != nil {
		return err
	}

	lastForSymbol, err := tx.LatestSignalForSymbol(ctx, symbol)
	if err != nil {
		return err
	}
	return cooldown(lastForSymbol, s.rules.SymbolCooldown(), now, domain.LimitSymbolCooldown)
}

// cooldown отклоняет, если с последнего сигнала прошло строго меньше окна.
func cooldown(last *models.Signal, window time.Duration, now time.Time, kind domain.RateLimitKind) error {
	if last == nil || window <= 0 {
		return nil
	}
	elapsed := now.Sub(last.CreatedAt)
	if elapsed < window {
		return domain.RateLimited(kind, window-elapsed)
	}
	return nil
}

func (s *SignalService) checkDailyLimits(ctx context.Context, tx domain.Store, adminID int64, symbol string, now time.Time) error {
	dayStart, nextDay := dayBounds(now, s.loc)
	retryAfter := nextDay.Sub(now)

	if s.rules.MaxPerAdminPerDay > 0 {
		n, err := tx.CountSignalsByAdminSince(ctx, adminID, dayStart)
		if err != nil {
			return err
		}
		if n >= s.rules.MaxPerAdminPerDay {
			return domain.RateLimited(domain.LimitAdminDaily, retryAfter)
		}
	}

	if s.rules.MaxPerSymbolPerDay > 0 {
		n, err := tx.CountSignalsBySymbolSince(ctx, symbol, dayStart)
		if err != nil {
			return err
		}
		if n >= s.rules.MaxPerSymbolPerDay {
			return domain.RateLimited(domain.LimitSymbolDaily, retryAfter)
		}
	}
	return nil
}

// dayBounds полночь текущих суток в loc и следующая полночь, в UTC.
func dayBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	y, m, d := local.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

func (s *SignalService) checkDuplicates(ctx context.Context, tx domain.Store, sig *models.Signal) error {
	recent, err := tx.RecentSignals(ctx, sig.Symbol, sig.Timeframe, s.rules.DuplicateScanWindow)
	if err != nil {
		return err
	}
	for _, prev := range recent {
		if prev.SameContent(sig) {
			return fmt.Errorf("%w: identical to signal %d", domain.ErrDuplicate, prev.ID)
		}
		if prev.Entry.Overlaps(sig.Entry) {
			return fmt.Errorf("%w: entry zone overlaps signal %d", domain.ErrConflict, prev.ID)
		}
	}
	return nil
}

// ListSignals is gated by the access check.
func (s *SignalService) ListSignals(ctx context.Context, viewer models.Identity, filter models.SignalFilter) ([]*models.Signal, error) {
	if _, err := s.access.EnsureUserCanViewSignals(ctx, viewer); err != nil {
		return nil, err
	}
	filter.Limit = clampLimit(filter.Limit)
	filter.Symbol = strings.ToUpper(strings.TrimSpace(filter.Symbol))
	return s.repo.ListSignals(ctx, filter)
}

func (s *SignalService) GetSignal(ctx context.Context, viewer models.Identity, id int64) (*models.Signal, error) {
	if _, err := s.access.EnsureUserCanViewSignals(ctx, viewer); err != nil {
		return nil, err
	}
	return s.repo.GetSignal(ctx, id)
}

// SignalsForExport returns signals created in [from, to) for an admin.
func (s *SignalService) SignalsForExport(ctx context.Context, admin models.Identity, from, to time.Time) ([]*models.Signal, error) {
	if _, err := requireAdmin(ctx, s.repo, admin); err != nil {
		return nil, err
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: from must be before to", domain.ErrInvalidRequest)
	}
	return s.repo.ListSignalsBetween(ctx, from, to)
}

func (s *SignalService) logRejection(err error, result string, payload *models.SignalPayload) {
	event := s.logger.Info()
	if result == "error" {
		event = s.logger.Error()
	}
	if payload != nil {
		event = event.Str("symbol", payload.Symbol).Str("tf", payload.Timeframe)
	}
	var rl *domain.RateLimitedError
	if errors.As(err, &rl) {
		event = event.Int("retry_after", rl.RetryAfterSeconds())
	}
	event.Err(err).Str("reason", result).Msg("signal rejected")
}

func requireAdmin(ctx context.Context, store domain.Store, id models.Identity) (*models.User, error) {
	user, err := resolveUser(ctx, store, id)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() {
		return nil, domain.Forbidden(domain.ReasonNotAdmin)
	}
	return user, nil
}

func admissionResult(err error) string {
	var rl *domain.RateLimitedError
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, domain.ErrInvalidPayload):
		return "invalid_payload"
	case errors.As(err, &rl):
		return "rate_limited:" + string(rl.Kind)
	case errors.Is(err, domain.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidRequest):
		return "not_found"
	default:
		return "error"
	}
}

func signalSummary(sig *models.Signal) string {
	return fmt.Sprintf("%s %s @ %s-%s",
		strings.ToUpper(sig.Direction), sig.Symbol, formatPrice(sig.Entry.Min), formatPrice(sig.Entry.Max))
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return models.DefaultSignalsLimit
	case limit > models.MaxSignalsLimit:
		return models.MaxSignalsLimit
	default:
		return limit
	}
}
