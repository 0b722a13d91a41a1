package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type standingRow struct {
	Team string `json:"team"`
	Wins int    `json:"wins"`
}

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewFromClient(client), mr
}

func TestRedisCache_SetGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	in := []standingRow{{Team: "BOS", Wins: 50}, {Team: "NYK", Wins: 40}}
	c.Set(ctx, StandingsKey("2025-26"), in, TTLStandings)

	var out []standingRow
	require.True(t, c.Get(ctx, StandingsKey("2025-26"), &out))
	assert.Equal(t, in, out)
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	key := StandingsKey("2025-26")

	c.Set(ctx, key, standingRow{Team: "BOS", Wins: 50}, TTLStandings)

	mr.FastForward(TTLStandings - time.Second)
	var out standingRow
	assert.True(t, c.Get(ctx, key, &out), "entry should survive until its TTL")

	mr.FastForward(2 * time.Second)
	assert.False(t, c.Get(ctx, key, &out), "entry should be gone after its TTL")
}

func TestRedisCache_FailOpen(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, TeamKey(1), standingRow{Team: "BOS"}, TTLTeam)
	mr.Close()

	var out standingRow
	assert.False(t, c.Get(ctx, TeamKey(1), &out))
	assert.NotPanics(t, func() { c.Set(ctx, TeamKey(2), standingRow{}, TTLTeam) })
	assert.Equal(t, 0, c.Delete(ctx, TeamKey(1)))
	assert.Equal(t, 0, c.DeletePattern(ctx, "team:*"))
}

func TestRedisCache_UndecodableIsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(TeamKey(1), "not json"))
	var out standingRow
	assert.False(t, c.Get(ctx, TeamKey(1), &out))
}

func TestRedisCache_DeletePattern(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, AllPredictionsKey("2025-26"), 1, TTLPredictions)
	c.Set(ctx, TeamPredictionKey("2025-26", 7), 1, TTLPredictions)
	c.Set(ctx, TeamPredictionKey("2024-25", 7), 1, TTLPredictions)
	c.Set(ctx, StandingsKey("2025-26"), 1, TTLStandings)

	n := c.DeletePattern(ctx, PredictionsPattern("2025-26"))
	assert.Equal(t, 2, n)

	assert.False(t, mr.Exists(AllPredictionsKey("2025-26")))
	assert.False(t, mr.Exists(TeamPredictionKey("2025-26", 7)))
	assert.True(t, mr.Exists(TeamPredictionKey("2024-25", 7)))
	assert.True(t, mr.Exists(StandingsKey("2025-26")))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "standings:2025-26", StandingsKey("2025-26"))
	assert.Equal(t, "team:12", TeamKey(12))
	assert.Equal(t, "live:0022500123", LiveKey("0022500123"))
	assert.Equal(t, "game:today", TodayKey())
	assert.Equal(t, "stats:player:3:2025-26", PlayerStatsKey(3, "2025-26"))
	assert.Equal(t, "predictions:all:2025-26", AllPredictionsKey("2025-26"))
	assert.Equal(t, "predictions:team:2025-26:4", TeamPredictionKey("2025-26", 4))
	assert.Equal(t, "model:active", ActiveModelKey())
	assert.Equal(t, "predictions:*2025-26*", PredictionsPattern("2025-26"))
}
