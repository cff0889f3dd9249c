package database

import (
	"context"
	"fmt"
	"time"

	"signaldesk/internal/models"
)

const userColumns = `id, tg_id, username, full_name, email, lang, tz, role, created_at, updated_at`

// UpsertUser вставляет пользователя или обновляет его по tg_id.
func (s *Store) UpsertUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}
	if user.Role == "" {
		user.Role = models.RoleGuest
	}

	query := `INSERT INTO users (tg_id, username, full_name, email, lang, tz, role, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(tg_id) DO UPDATE SET
                username = excluded.username,
                full_name = excluded.full_name,
                email = excluded.email,
                lang = excluded.lang,
                tz = excluded.tz,
                role = excluded.role,
                updated_at = excluded.updated_at
              RETURNING id`

	err := s.q.QueryRowContext(ctx, query,
		user.TgID,
		user.Username,
		user.FullName,
		user.Email,
		user.Lang,
		user.TZ,
		string(user.Role),
		utc(user.CreatedAt),
		utc(user.UpdatedAt),
	).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	// при обновлении created_at остается прежним
	if err := s.q.QueryRowContext(ctx, `SELECT created_at FROM users WHERE id = ?`, user.ID).Scan(&user.CreatedAt); err != nil {
		return fmt.Errorf("failed to reload user: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return user, nil
}

func (s *Store) GetUserByTgID(ctx context.Context, tgID int64) (*models.User, error) {
	user, err := s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE tg_id = ?`, tgID)
	if err != nil {
		return nil, notFound(err, "user with tg_id", tgID)
	}
	return user, nil
}

func (s *Store) UpdateUserRole(ctx context.Context, userID int64, role models.Role) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(errNoRows, "user", userID)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) queryUser(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	return scanUser(s.q.QueryRowContext(ctx, query, args...))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u    models.User
		role string
	)
	err := row.Scan(&u.ID, &u.TgID, &u.Username, &u.FullName, &u.Email, &u.Lang, &u.TZ,
		&role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}

	r, ok := models.ParseRole(role)
	if !ok {
		return nil, corrupted("user role", role)
	}
	u.Role = r
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}
