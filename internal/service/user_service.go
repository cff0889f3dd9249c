package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signaldesk/internal/config"
	"signaldesk/internal/domain"
	"signaldesk/internal/models"

	"github.com/rs/zerolog"
)

type UserService struct {
	repo         domain.Repository
	logger       *zerolog.Logger
	adminsMap    map[int64]bool
	blacklistMap map[int64]bool
	now          func() time.Time
}

func NewUserService(repo domain.Repository, cfg *config.Config, logger *zerolog.Logger) *UserService {
	adminsMap := make(map[int64]bool)
	for _, id := range cfg.Admins {
		adminsMap[id] = true
	}

	blacklistMap := make(map[int64]bool)
	for _, id := range cfg.Blacklist {
		blacklistMap[id] = true
	}

	return &UserService{
		repo:         repo,
		logger:       logger,
		adminsMap:    adminsMap,
		blacklistMap: blacklistMap,
		now:          time.Now,
	}
}

func (s *UserService) IsAdmin(tgID int64) bool {
	return s.adminsMap[tgID]
}

func (s *UserService) IsBlacklisted(tgID int64) bool {
	return s.blacklistMap[tgID]
}

// RegisterUser creates the user or refreshes the non-empty profile fields.
// Tg ids from the admins list become admin, from the blacklist banned.
func (s *UserService) RegisterUser(ctx context.Context, in *models.User) (*models.User, error) {
	if in == nil || in.TgID == 0 {
		return nil, fmt.Errorf("%w: tg_id is required", domain.ErrInvalidRequest)
	}
	now := s.now().UTC()

	var user *models.User
	err := s.repo.InTx(ctx, func(tx domain.Store) error {
		existing, err := tx.GetUserByTgID(ctx, in.TgID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			user = &models.User{
				TgID:      in.TgID,
				Username:  in.Username,
				FullName:  in.FullName,
				Email:     in.Email,
				Lang:      in.Lang,
				TZ:        in.TZ,
				Role:      models.RoleGuest,
				CreatedAt: now,
			}
		case err != nil:
			return err
		default:
			user = existing
			mergeUser(user, in)
		}

		switch {
		case s.IsBlacklisted(user.TgID):
			user.Role = models.RoleBanned
		case s.IsAdmin(user.TgID):
			user.Role = models.RoleAdmin
		}
		user.UpdatedAt = now
		return tx.UpsertUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func mergeUser(dst, src *models.User) {
	if src.Username != "" {
		dst.Username = src.Username
	}
	if src.FullName != "" {
		dst.FullName = src.FullName
	}
	if src.Email != "" {
		dst.Email = src.Email
	}
	if src.Lang != "" {
		dst.Lang = src.Lang
	}
	if src.TZ != "" {
		dst.TZ = src.TZ
	}
}

func (s *UserService) GetUser(ctx context.Context, id models.Identity) (*models.User, error) {
	return resolveUser(ctx, s.repo, id)
}

func (s *UserService) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.repo.ListUsers(ctx)
}

func (s *UserService) GetProfile(ctx context.Context, userID int64) (*models.Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}

// CreateProfile returns the existing profile if there is one.
func (s *UserService) CreateProfile(ctx context.Context, userID int64) (*models.Profile, error) {
	var profile *models.Profile
	err := s.repo.InTx(ctx, func(tx domain.Store) error {
		if _, err := tx.GetUserByID(ctx, userID); err != nil {
			return err
		}
		existing, err := tx.GetProfile(ctx, userID)
		if err == nil {
			profile = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		profile = &models.Profile{
			UserID:        userID,
			ExchangeUIDs:  map[string]string{},
			APIKeys:       map[string]string{},
			Notifications: map[string]bool{},
			Favorites:     []string{},
			UpdatedAt:     s.now().UTC(),
		}
		return tx.CreateProfile(ctx, profile)
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID int64, upd *models.ProfileUpdate) (*models.Profile, error) {
	if upd == nil {
		return nil, fmt.Errorf("%w: empty profile update", domain.ErrInvalidRequest)
	}

	var profile *models.Profile
	err := s.repo.InTx(ctx, func(tx domain.Store) error {
		p, err := tx.GetProfile(ctx, userID)
		if err != nil {
			return err
		}
		if upd.ExchangeUIDs != nil {
			p.ExchangeUIDs = upd.ExchangeUIDs
		}
		if upd.APIKeys != nil {
			p.APIKeys = upd.APIKeys
		}
		if upd.Notifications != nil {
			p.Notifications = upd.Notifications
		}
		if upd.Favorites != nil {
			p.Favorites = upd.Favorites
		}
		p.UpdatedAt = s.now().UTC()
		profile = p
		return tx.UpdateProfile(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}
