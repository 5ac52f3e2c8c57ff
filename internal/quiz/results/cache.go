package results

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LeaderboardCache mirrors session standings into a redis sorted set for
// cheap reads. Best-effort only: the participant registry stays the source
// of truth, and callers log and swallow cache errors.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLeaderboardCache wraps an existing client.
func NewLeaderboardCache(client *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: client, ttl: ttl}
}

func (c *LeaderboardCache) key(sessionID uuid.UUID) string {
	return "quiz:leaderboard:" + sessionID.String()
}

// Store replaces the cached standings for a session.
func (c *LeaderboardCache) Store(ctx context.Context, sessionID uuid.UUID, entries []LeaderboardEntry) error {
	key := c.key(sessionID)
	members := make([]redis.Z, 0, len(entries))
	for _, e := range entries {
		members = append(members, redis.Z{
			Score:  float64(e.TotalPoints),
			Member: e.ParticipantID.String(),
		})
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(members) > 0 {
		pipe.ZAdd(ctx, key, members...)
	}
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache leaderboard: %w", err)
	}
	return nil
}

// CachedEntry is one row read back from the mirror.
type CachedEntry struct {
	ParticipantID string
	TotalPoints   int
}

// Top reads the highest-scoring n participants from the mirror.
func (c *LeaderboardCache) Top(ctx context.Context, sessionID uuid.UUID, n int) ([]CachedEntry, error) {
	zs, err := c.client.ZRevRangeWithScores(ctx, c.key(sessionID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read cached leaderboard: %w", err)
	}
	out := make([]CachedEntry, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, CachedEntry{ParticipantID: member, TotalPoints: int(z.Score)})
	}
	return out, nil
}
