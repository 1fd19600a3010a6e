package repository

import (
	"context"
	"time"

	"github.com/wavecall/api/internal/domain"
)

// UserRepository persists the local mirror of provider-owned accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	UpdateUserByProviderID(ctx context.Context, user *domain.User) error
	DeleteUserByProviderID(ctx context.Context, providerID string) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByProviderID(ctx context.Context, providerID string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUsersByEmails(ctx context.Context, emails []string) ([]domain.User, error)
	UpdateUserName(ctx context.Context, id, name string, updatedAt time.Time) error
}

// TeamRepository manages teams and memberships.
type TeamRepository interface {
	CreateTeamWithMembers(ctx context.Context, team *domain.Team, memberIDs []string) error
	GetMembership(ctx context.Context, teamID, userID string) (*domain.TeamMember, error)
	ListTeamIDsByUser(ctx context.Context, userID string) ([]string, error)
	GetTeamsByIDs(ctx context.Context, teamIDs []string) ([]domain.Team, error)
	ListMemberDetails(ctx context.Context, teamIDs []string) ([]domain.TeamMemberDetail, error)
	ListMemberIDs(ctx context.Context, teamID string) ([]string, error)
	AddMembers(ctx context.Context, teamID string, userIDs []string, createdAt time.Time) error
	DeleteMembership(ctx context.Context, teamID, userID string) error
}
