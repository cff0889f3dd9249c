package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"signaldesk/internal/models"
)

const subscriptionColumns = `id, user_id, plan_id, status, start_at, end_at, source, created_at`

// LatestSubscription последняя подписка по start_at; без start_at идут в конец.
func (s *Store) LatestSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
              WHERE user_id = ?
              ORDER BY start_at DESC NULLS LAST, id DESC
              LIMIT 1`
	return s.optionalSubscription(ctx, query, userID)
}

// CurrentSubscription последняя подписка в статусе active или trial.
func (s *Store) CurrentSubscription(ctx context.Context, userID int64) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
              WHERE user_id = ? AND status IN (?, ?)
              ORDER BY start_at DESC NULLS LAST, id DESC
              LIMIT 1`
	return s.optionalSubscription(ctx, query, userID,
		string(models.SubscriptionActive), string(models.SubscriptionTrial))
}

func (s *Store) optionalSubscription(ctx context.Context, query string, args ...any) (*models.Subscription, error) {
	sub, err := scanSubscription(s.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

func (s *Store) ListSubscriptions(ctx context.Context, userID int64) ([]*models.Subscription, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
         WHERE user_id = ?
         ORDER BY start_at DESC NULLS LAST, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Store) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	if sub.Source == "" {
		sub.Source = models.SourceManual
	}

	var planID sql.NullInt64
	if sub.PlanID != nil {
		planID = sql.NullInt64{Int64: *sub.PlanID, Valid: true}
	}

	res, err := s.q.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, plan_id, status, start_at, end_at, source, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.UserID, planID, string(sub.Status),
		nullTime(sub.StartAt), nullTime(sub.EndAt),
		sub.Source, utc(sub.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get subscription id: %w", err)
	}
	sub.ID = id
	return nil
}

func (s *Store) UpdateSubscriptionStatus(ctx context.Context, id int64, status models.SubscriptionStatus) error {
	res, err := s.q.ExecContext(ctx, `UPDATE subscriptions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(errNoRows, "subscription", id)
	}
	return nil
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var (
		sub        models.Subscription
		planID     sql.NullInt64
		status     string
		start, end sql.NullTime
	)
	err := row.Scan(&sub.ID, &sub.UserID, &planID, &status, &start, &end, &sub.Source, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}

	st, ok := models.ParseSubscriptionStatus(status)
	if !ok {
		return nil, corrupted("subscription status", status)
	}
	sub.Status = st
	if planID.Valid {
		id := planID.Int64
		sub.PlanID = &id
	}
	sub.StartAt = timePtr(start)
	sub.EndAt = timePtr(end)
	sub.CreatedAt = sub.CreatedAt.UTC()
	return &sub, nil
}
