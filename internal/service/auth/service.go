package auth

import (
	"context"
	"errors"
	"strings"

	"log/slog"

	"github.com/wavecall/api/internal/apperr"
	"github.com/wavecall/api/internal/cache"
	"github.com/wavecall/api/internal/domain"
	"github.com/wavecall/api/internal/repository"
	"github.com/wavecall/api/pkg/config"
	jwtpkg "github.com/wavecall/api/pkg/jwt"
)

// ErrUnauthorized indicates the caller presented no or invalid identity.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Service resolves bearer tokens into trusted identities and keeps the local
// user mirror in sync with the external identity provider.
type Service struct {
	users  repository.UserRepository
	cache  cache.TeamCache
	logger *slog.Logger
	cfg    config.APIConfig
}

// New constructs a Service.
func New(users repository.UserRepository, teamCache cache.TeamCache, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, cache: teamCache, logger: logger, cfg: cfg}
}

// Authorize validates a bearer token and resolves the mirrored user into an
// Identity value.
func (s Service) Authorize(ctx context.Context, token string) (domain.Identity, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return domain.Identity{}, ErrUnauthorized
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return domain.Identity{}, ErrUnauthorized
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Identity{}, ErrUnauthorized
		}
		return domain.Identity{}, err
	}
	return domain.Identity{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.Name,
		ImageURL:    user.ImageURL,
	}, nil
}

// UpdateProfile renames the mirrored user and drops their cached entries so
// rosters pick up the new name.
func (s Service) UpdateProfile(ctx context.Context, identity domain.Identity, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperr.Validation("Name is required")
	}
	if len(name) > 100 {
		return apperr.Validation("Name is too long")
	}
	if err := s.users.UpdateUserName(ctx, identity.ID, name, nowUTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return err
	}
	if err := s.cache.InvalidateUserCache(ctx, identity.ID); err != nil {
		s.logger.Warn("user cache invalidation failed", "user_id", identity.ID, "error", err)
	}
	s.logger.Info("profile updated", "user_id", identity.ID)
	return nil
}

// EmailExists reports whether an account is registered under the email.
func (s Service) EmailExists(ctx context.Context, email string) (bool, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return false, apperr.Validation("Email is required")
	}
	if _, err := s.users.GetUserByEmail(ctx, normalized); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
