// Package service holds the cache-through league reads served over REST.
package service

import (
	"context"
	"time"

	"github.com/fortuna/courtcast/internal/store"
)

// TeamStore reads teams.
type TeamStore interface {
	GetAll(ctx context.Context) ([]*store.Team, error)
	GetByID(ctx context.Context, id int) (*store.Team, error)
}

// GameStore reads games.
type GameStore interface {
	GetByNBAID(ctx context.Context, nbaGameID string) (*store.Game, error)
	ListByDate(ctx context.Context, day time.Time) ([]*store.Game, error)
}

// PlayerStore reads players.
type PlayerStore interface {
	GetByID(ctx context.Context, id int) (*store.Player, error)
}

// StatsStore reads box-score lines.
type StatsStore interface {
	ListByGame(ctx context.Context, gameID int) ([]*store.PlayerGameStats, error)
	SeasonAverages(ctx context.Context, playerID int, season string) (*store.PlayerSeasonAverages, error)
}

// StandingsStore reads standings.
type StandingsStore interface {
	ListBySeason(ctx context.Context, season string) ([]*store.StandingView, error)
}

// IngestionLogStore reads ingestion runs.
type IngestionLogStore interface {
	Recent(ctx context.Context, limit int) ([]*store.IngestionLog, error)
}

// Stores groups the repositories the services read. Both the Postgres
// repositories and memstore satisfy every interface.
type Stores struct {
	Teams         TeamStore
	Games         GameStore
	Players       PlayerStore
	Stats         StatsStore
	Standings     StandingsStore
	IngestionLogs IngestionLogStore
}
