package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"signaldesk/internal/models"
)

func (s *Store) GetProfile(ctx context.Context, userID int64) (*models.Profile, error) {
	var (
		p                                       models.Profile
		exchangeUIDs, apiKeys, notif, favorites sql.NullString
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT id, user_id, exchange_uids, api_keys, notifications, favorites, updated_at
         FROM profiles WHERE user_id = ?`, userID).Scan(
		&p.ID, &p.UserID, &exchangeUIDs, &apiKeys, &notif, &favorites, &p.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "profile for user", userID)
	}

	if err := fromJSON(exchangeUIDs, &p.ExchangeUIDs); err != nil {
		return nil, corrupted("profile exchange_uids", exchangeUIDs.String)
	}
	if err := fromJSON(apiKeys, &p.APIKeys); err != nil {
		return nil, corrupted("profile api_keys", apiKeys.String)
	}
	if err := fromJSON(notif, &p.Notifications); err != nil {
		return nil, corrupted("profile notifications", notif.String)
	}
	if err := fromJSON(favorites, &p.Favorites); err != nil {
		return nil, corrupted("profile favorites", favorites.String)
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) CreateProfile(ctx context.Context, p *models.Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	args, err := profileArgs(p)
	if err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx,
		`INSERT INTO profiles (exchange_uids, api_keys, notifications, favorites, updated_at, user_id)
         VALUES (?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get profile id: %w", err)
	}
	p.ID = id
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, p *models.Profile) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	args, err := profileArgs(p)
	if err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx,
		`UPDATE profiles SET exchange_uids = ?, api_keys = ?, notifications = ?, favorites = ?, updated_at = ?
         WHERE user_id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(errNoRows, "profile for user", p.UserID)
	}
	return nil
}

// profileArgs порядок совпадает с колонками в CreateProfile и UpdateProfile.
func profileArgs(p *models.Profile) ([]any, error) {
	fields := []any{
		orEmptyMap(p.ExchangeUIDs),
		orEmptyMap(p.APIKeys),
		orEmptyBoolMap(p.Notifications),
		orEmptySlice(p.Favorites),
	}
	args := make([]any, 0, len(fields)+2)
	for _, f := range fields {
		raw, err := toJSON(f)
		if err != nil {
			return nil, fmt.Errorf("failed to encode profile: %w", err)
		}
		args = append(args, raw)
	}
	return append(args, utc(p.UpdatedAt), p.UserID), nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptyBoolMap(m map[string]bool) map[string]bool {
	if m == nil {
		return map[string]bool{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
