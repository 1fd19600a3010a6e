package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/wavecall/api/internal/domain"
)

type redisCache struct {
	client  *redis.Client
	logger  *slog.Logger
	ttl     time.Duration
	timeout time.Duration
}

// NewRedisCache constructs a Redis backed team cache and verifies
// connectivity before returning it.
func NewRedisCache(addr, password string, db int, ttl time.Duration, logger *slog.Logger) (TeamCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &redisCache{
		client:  client,
		logger:  logger,
		ttl:     ttl,
		timeout: 250 * time.Millisecond,
	}, nil
}

func (c *redisCache) GetUserTeams(ctx context.Context, userID string) ([]domain.TeamWithMembers, bool) {
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.client.Get(opCtx, UserTeamsKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logRedisError("get", err)
		}
		return nil, false
	}
	var teams []domain.TeamWithMembers
	if err := json.Unmarshal(raw, &teams); err != nil {
		c.logRedisError("decode", err)
		return nil, false
	}
	return teams, true
}

func (c *redisCache) SetUserTeams(ctx context.Context, userID string, teams []domain.TeamWithMembers) error {
	if teams == nil {
		teams = []domain.TeamWithMembers{}
	}
	raw, err := json.Marshal(teams)
	if err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.Set(opCtx, UserTeamsKey(userID), raw, c.ttl).Err()
}

func (c *redisCache) InvalidateTeamCache(ctx context.Context, teamID string, memberIDs []string) error {
	keys := make([]string, 0, len(memberIDs)+1)
	keys = append(keys, TeamKey(teamID))
	for _, userID := range memberIDs {
		keys = append(keys, UserTeamsKey(userID))
	}
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.Del(opCtx, keys...).Err()
}

func (c *redisCache) InvalidateUserCache(ctx context.Context, userID string) error {
	opCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	iter := c.client.Scan(opCtx, 0, userScopePattern(userID), 100).Iterator()
	keys := make([]string, 0, 4)
	for iter.Next(opCtx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(opCtx, keys...).Err()
}

func (c *redisCache) Ping(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return c.client.Ping(opCtx).Err()
}

func (c *redisCache) Close() {
	if c.client != nil {
		_ = c.client.Close()
	}
}

func (c *redisCache) logRedisError(op string, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Error("redis cache error", "op", op, "error", err)
}
