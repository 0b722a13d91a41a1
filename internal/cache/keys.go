package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Key prefixes
const (
	PrefixStandings   = "standings"
	PrefixTeam        = "team"
	PrefixPlayer      = "player"
	PrefixGame        = "game"
	PrefixLive        = "live"
	PrefixStats       = "stats"
	PrefixPredictions = "predictions"
	PrefixModel       = "model"
)

// TTL tiers
const (
	TTLStandings   = 300 * time.Second
	TTLTodayGames  = 300 * time.Second
	TTLLive        = 30 * time.Second
	TTLTeam        = 3600 * time.Second
	TTLPlayer      = 3600 * time.Second
	TTLGameFinal   = 86400 * time.Second
	TTLStats       = 600 * time.Second
	TTLPredictions = 3600 * time.Second
	TTLModel       = 86400 * time.Second
)

// Cache is what services depend on. RedisCache satisfies it; so does
// anything else that honours the fail-open contract.
type Cache interface {
	Get(ctx context.Context, key string, dst interface{}) bool
	Set(ctx context.Context, key string, v interface{}, ttl time.Duration)
	Delete(ctx context.Context, keys ...string) int
	DeletePattern(ctx context.Context, pattern string) int
}

// Key joins a prefix and its arguments with colons.
func Key(prefix string, args ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, a := range args {
		b.WriteByte(':')
		fmt.Fprint(&b, a)
	}
	return b.String()
}

func StandingsKey(season string) string { return Key(PrefixStandings, season) }

func TeamKey(teamID int) string { return Key(PrefixTeam, teamID) }

func PlayerKey(playerID int) string { return Key(PrefixPlayer, playerID) }

func LiveKey(gameID string) string { return Key(PrefixLive, gameID) }

func GameKey(gameID string) string { return Key(PrefixGame, gameID) }

// TodayKey holds today's scoreboard.
func TodayKey() string { return Key(PrefixGame, "today") }

func PlayerStatsKey(playerID int, season string) string {
	return Key(PrefixStats, "player", playerID, season)
}

func AllPredictionsKey(season string) string { return Key(PrefixPredictions, "all", season) }

func TeamPredictionKey(season string, teamID int) string {
	return Key(PrefixPredictions, "team", season, teamID)
}

func ActiveModelKey() string { return Key(PrefixModel, "active") }

// PredictionsPattern matches every prediction key of a season.
func PredictionsPattern(season string) string {
	return fmt.Sprintf("%s:*%s*", PrefixPredictions, season)
}
