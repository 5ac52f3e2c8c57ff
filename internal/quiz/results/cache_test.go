package results

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/models"
	"github.com/NaoufalLabrihmi/edu-quest-verse-sub000/internal/quiz/store/memory"
)

func newSeededRegistry(t *testing.T, sessionID uuid.UUID, points int) *memory.Store {
	t.Helper()
	st := memory.New()
	p := &models.Participant{
		ID:          uuid.New(),
		SessionID:   sessionID,
		UserID:      uuid.New(),
		Status:      models.ParticipantStatusStarted,
		TotalPoints: points,
		JoinedAt:    time.Now(),
	}
	if err := st.JoinParticipant(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return st
}

func newCache(t *testing.T) (*LeaderboardCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLeaderboardCache(client, time.Hour), mr
}

func TestLeaderboardCacheRoundTrip(t *testing.T) {
	cache, _ := newCache(t)
	ctx := context.Background()
	sessionID := uuid.New()

	first := uuid.New()
	second := uuid.New()
	entries := []LeaderboardEntry{
		{ParticipantID: first, TotalPoints: 300},
		{ParticipantID: second, TotalPoints: 150},
	}
	if err := cache.Store(ctx, sessionID, entries); err != nil {
		t.Fatalf("Store: %v", err)
	}

	top, err := cache.Top(ctx, sessionID, 10)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("got %d entries, want 2", len(top))
	}
	if top[0].ParticipantID != first.String() || top[0].TotalPoints != 300 {
		t.Fatalf("unexpected leader: %+v", top[0])
	}
	if top[1].ParticipantID != second.String() || top[1].TotalPoints != 150 {
		t.Fatalf("unexpected runner-up: %+v", top[1])
	}
}

func TestLeaderboardCacheStoreReplaces(t *testing.T) {
	cache, _ := newCache(t)
	ctx := context.Background()
	sessionID := uuid.New()

	gone := uuid.New()
	if err := cache.Store(ctx, sessionID, []LeaderboardEntry{{ParticipantID: gone, TotalPoints: 50}}); err != nil {
		t.Fatal(err)
	}

	kept := uuid.New()
	if err := cache.Store(ctx, sessionID, []LeaderboardEntry{{ParticipantID: kept, TotalPoints: 75}}); err != nil {
		t.Fatal(err)
	}

	top, err := cache.Top(ctx, sessionID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].ParticipantID != kept.String() {
		t.Fatalf("old standings leaked through: %+v", top)
	}
}

func TestLeaderboardCacheExpires(t *testing.T) {
	cache, mr := newCache(t)
	ctx := context.Background()
	sessionID := uuid.New()

	if err := cache.Store(ctx, sessionID, []LeaderboardEntry{{ParticipantID: uuid.New(), TotalPoints: 10}}); err != nil {
		t.Fatal(err)
	}

	mr.FastForward(2 * time.Hour)

	top, err := cache.Top(ctx, sessionID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 0 {
		t.Fatalf("expected expired cache, got %+v", top)
	}
}

func TestAggregatorRefreshesCache(t *testing.T) {
	cache, _ := newCache(t)
	ctx := context.Background()
	sessionID := uuid.New()

	st := newSeededRegistry(t, sessionID, 120)
	agg := NewAggregator(st, cache)

	if _, err := agg.Leaderboard(ctx, sessionID); err != nil {
		t.Fatal(err)
	}

	top, err := cache.Top(ctx, sessionID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].TotalPoints != 120 {
		t.Fatalf("cache mirror not refreshed: %+v", top)
	}
}
