package cache

import (
	"context"

	"github.com/wavecall/api/internal/domain"
)

// TeamCache is the read cache for team listings. Invalidation is best-effort
// multi-key deletion: the store mutation is already committed when it runs,
// so a failed delete only extends staleness until TTL expiry.
type TeamCache interface {
	// GetUserTeams returns the cached team list for a user and whether the
	// key was present. A cached empty list is a valid hit.
	GetUserTeams(ctx context.Context, userID string) ([]domain.TeamWithMembers, bool)
	SetUserTeams(ctx context.Context, userID string, teams []domain.TeamWithMembers) error
	// InvalidateTeamCache drops the team-scoped entry and every listed
	// member's team-list entry.
	InvalidateTeamCache(ctx context.Context, teamID string, memberIDs []string) error
	// InvalidateUserCache drops every entry scoped to a single user.
	InvalidateUserCache(ctx context.Context, userID string) error
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
	Close()
}

const keyPrefix = "wavecall:cache:"

// UserTeamsKey derives the cache key holding a user's team list.
func UserTeamsKey(userID string) string {
	return keyPrefix + "teams:user:" + userID
}

// TeamKey derives the key for team-scoped entries.
func TeamKey(teamID string) string {
	return keyPrefix + "team:" + teamID
}

// userScopePattern matches every key scoped to the user, whatever the
// entity kind in front of it.
func userScopePattern(userID string) string {
	return keyPrefix + "*user:" + userID
}
