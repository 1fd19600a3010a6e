package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/wavecall/api/internal/domain"
	"github.com/wavecall/api/internal/repository"
)

// Provider lifecycle event types delivered to the identity webhook.
const (
	eventUserCreated = "user.created"
	eventUserUpdated = "user.updated"
	eventUserDeleted = "user.deleted"
)

// providerEvent is the envelope the identity provider posts on user
// lifecycle changes. Signatures follow the Svix scheme.
type providerEvent struct {
	Type string       `json:"type"`
	Data providerUser `json:"data"`
}

type providerUser struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	ImageURL       string `json:"image_url"`
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
		Verification struct {
			Status string `json:"status"`
		} `json:"verification"`
	} `json:"email_addresses"`
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

func (u providerUser) displayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		return "User"
	}
	return name
}

func (u providerUser) primaryEmail() (string, bool) {
	if len(u.EmailAddresses) == 0 {
		return "", false
	}
	first := u.EmailAddresses[0]
	return strings.ToLower(first.EmailAddress), first.Verification.Status == "verified"
}

// HandleProviderWebhook verifies the signature headers and applies the user
// lifecycle event to the local mirror.
func (s Service) HandleProviderWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	if s.cfg.IdentityWebhookSecret == "" {
		return errors.New("identity webhook secret not configured")
	}
	wh, err := svix.NewWebhook(s.cfg.IdentityWebhookSecret)
	if err != nil {
		return fmt.Errorf("configure webhook verifier: %w", err)
	}
	if err := wh.Verify(payload, headers); err != nil {
		return ErrUnauthorized
	}

	var event providerEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode webhook payload: %w", err)
	}
	return s.applyProviderEvent(ctx, event.Type, event.Data)
}

// applyProviderEvent synchronizes one provider user event into the mirror.
func (s Service) applyProviderEvent(ctx context.Context, eventType string, data providerUser) error {
	switch eventType {
	case eventUserCreated:
		email, verified := data.primaryEmail()
		user := &domain.User{
			ID:            uuid.NewString(),
			ProviderID:    data.ID,
			Name:          data.displayName(),
			Email:         email,
			EmailVerified: verified,
			ImageURL:      data.ImageURL,
			CreatedAt:     epochMillis(data.CreatedAt),
			UpdatedAt:     epochMillis(data.UpdatedAt),
		}
		if err := s.users.CreateUser(ctx, user); err != nil {
			return err
		}
		s.logger.Info("user mirrored", "provider_id", data.ID, "user_id", user.ID)
		return nil

	case eventUserUpdated:
		email, verified := data.primaryEmail()
		user := &domain.User{
			ProviderID:    data.ID,
			Name:          data.displayName(),
			Email:         email,
			EmailVerified: verified,
			ImageURL:      data.ImageURL,
			UpdatedAt:     epochMillis(data.UpdatedAt),
		}
		if err := s.users.UpdateUserByProviderID(ctx, user); err != nil {
			return err
		}
		s.invalidateByProviderID(ctx, data.ID)
		s.logger.Info("user mirror updated", "provider_id", data.ID)
		return nil

	case eventUserDeleted:
		// Resolve the local id before the row disappears so the cache
		// entries can still be dropped.
		local, err := s.users.GetUserByProviderID(ctx, data.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err := s.users.DeleteUserByProviderID(ctx, data.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		}
		if local != nil {
			if err := s.cache.InvalidateUserCache(ctx, local.ID); err != nil {
				s.logger.Warn("user cache invalidation failed", "user_id", local.ID, "error", err)
			}
		}
		s.logger.Info("user mirror deleted", "provider_id", data.ID)
		return nil

	default:
		s.logger.Debug("ignoring provider event", "type", eventType)
		return nil
	}
}

func (s Service) invalidateByProviderID(ctx context.Context, providerID string) {
	local, err := s.users.GetUserByProviderID(ctx, providerID)
	if err != nil {
		return
	}
	if err := s.cache.InvalidateUserCache(ctx, local.ID); err != nil {
		s.logger.Warn("user cache invalidation failed", "user_id", local.ID, "error", err)
	}
}

func epochMillis(ms int64) time.Time {
	if ms == 0 {
		return nowUTC()
	}
	return time.UnixMilli(ms).UTC()
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
