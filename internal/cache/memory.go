package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wavecall/api/internal/domain"
)

type memoryEntry struct {
	teams     []domain.TeamWithMembers
	expiresAt time.Time
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache returns a process-local team cache. It serves as the
// fallback when no Redis address is configured and as the fake in tests.
func NewMemoryCache(ttl time.Duration) TeamCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &memoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *memoryCache) GetUserTeams(ctx context.Context, userID string) ([]domain.TeamWithMembers, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := UserTeamsKey(userID)
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	teams := append([]domain.TeamWithMembers(nil), entry.teams...)
	return teams, true
}

func (c *memoryCache) SetUserTeams(ctx context.Context, userID string, teams []domain.TeamWithMembers) error {
	if teams == nil {
		teams = []domain.TeamWithMembers{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[UserTeamsKey(userID)] = memoryEntry{
		teams:     append([]domain.TeamWithMembers(nil), teams...),
		expiresAt: c.now().Add(c.ttl),
	}
	return nil
}

func (c *memoryCache) InvalidateTeamCache(ctx context.Context, teamID string, memberIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, TeamKey(teamID))
	for _, userID := range memberIDs {
		delete(c.entries, UserTeamsKey(userID))
	}
	return nil
}

func (c *memoryCache) InvalidateUserCache(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	suffix := "user:" + userID
	for key := range c.entries {
		if strings.HasSuffix(key, suffix) {
			delete(c.entries, key)
		}
	}
	return nil
}

func (c *memoryCache) Ping(ctx context.Context) error { return nil }

func (c *memoryCache) Close() {}
