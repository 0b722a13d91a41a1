package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fortuna/courtcast/internal/store"
)

// GameRepository handles game data access
type GameRepository struct {
	db *store.Database
}

// NewGameRepository creates a new game repository
func NewGameRepository(db *store.Database) *GameRepository {
	return &GameRepository{db: db}
}

const gameColumns = `id, nba_game_id, season, season_type, game_date, home_team_id, away_team_id,
	home_score, away_score, home_quarters, away_quarters, status, period, game_clock,
	created_at, updated_at`

// Upsert inserts or updates a game keyed by nba_game_id. Quarter scores
// and live fields only overwrite when the incoming record carries them.
func (r *GameRepository) Upsert(ctx context.Context, g *store.Game) (int, error) {
	homeQ, err := marshalJSONB(g.HomeQuarters)
	if err != nil {
		return 0, fmt.Errorf("encoding home quarters: %w", err)
	}
	awayQ, err := marshalJSONB(g.AwayQuarters)
	if err != nil {
		return 0, fmt.Errorf("encoding away quarters: %w", err)
	}

	query := `
		INSERT INTO games (nba_game_id, season, season_type, game_date, home_team_id, away_team_id,
			home_score, away_score, home_quarters, away_quarters, status, period, game_clock)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (nba_game_id) DO UPDATE SET
			season = EXCLUDED.season,
			season_type = EXCLUDED.season_type,
			game_date = EXCLUDED.game_date,
			home_team_id = EXCLUDED.home_team_id,
			away_team_id = EXCLUDED.away_team_id,
			home_score = COALESCE(EXCLUDED.home_score, games.home_score),
			away_score = COALESCE(EXCLUDED.away_score, games.away_score),
			home_quarters = COALESCE(EXCLUDED.home_quarters, games.home_quarters),
			away_quarters = COALESCE(EXCLUDED.away_quarters, games.away_quarters),
			status = EXCLUDED.status,
			period = COALESCE(EXCLUDED.period, games.period),
			game_clock = EXCLUDED.game_clock,
			updated_at = NOW()
		RETURNING id
	`

	seasonType := g.SeasonType
	if seasonType == "" {
		seasonType = "Regular Season"
	}

	err = r.db.DB().QueryRowContext(ctx, query,
		g.NBAGameID, g.Season, seasonType, g.GameDate, g.HomeTeamID, g.AwayTeamID,
		g.HomeScore, g.AwayScore, homeQ, awayQ, g.Status, g.Period, g.GameClock,
	).Scan(&g.ID)
	if err != nil {
		return 0, fmt.Errorf("upserting game %s: %w", g.NBAGameID, store.Classify(err))
	}

	return g.ID, nil
}

// GetByID finds a game by row id
func (r *GameRepository) GetByID(ctx context.Context, id int) (*store.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE id = $1`

	game, err := scanGame(r.db.DB().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("game not found: %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying game: %w", store.Classify(err))
	}

	return game, nil
}

// GetByNBAID finds a game by the provider game id
func (r *GameRepository) GetByNBAID(ctx context.Context, nbaGameID string) (*store.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE nba_game_id = $1`

	game, err := scanGame(r.db.DB().QueryRowContext(ctx, query, nbaGameID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("game not found: %s: %w", nbaGameID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying game: %w", store.Classify(err))
	}

	return game, nil
}

// ListByDate returns games played on the calendar date of day
func (r *GameRepository) ListByDate(ctx context.Context, day time.Time) ([]*store.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE game_date = $1::date ORDER BY nba_game_id`
	return r.list(ctx, query, day.Format("2006-01-02"))
}

// Count returns the number of stored games
func (r *GameRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM games`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting games: %w", store.Classify(err))
	}
	return n, nil
}

func (r *GameRepository) list(ctx context.Context, query string, args ...interface{}) ([]*store.Game, error) {
	rows, err := r.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying games: %w", store.Classify(err))
	}
	defer rows.Close()

	var games []*store.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning game: %w", err)
		}
		games = append(games, g)
	}

	return games, rows.Err()
}

func scanGame(s scanner) (*store.Game, error) {
	g := &store.Game{}
	var homeQ, awayQ []byte
	err := s.Scan(
		&g.ID, &g.NBAGameID, &g.Season, &g.SeasonType, &g.GameDate, &g.HomeTeamID, &g.AwayTeamID,
		&g.HomeScore, &g.AwayScore, &homeQ, &awayQ, &g.Status, &g.Period, &g.GameClock,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(homeQ, &g.HomeQuarters); err != nil {
		return nil, fmt.Errorf("decoding home quarters: %w", err)
	}
	if err := unmarshalJSONB(awayQ, &g.AwayQuarters); err != nil {
		return nil, fmt.Errorf("decoding away quarters: %w", err)
	}
	return g, nil
}

// marshalJSONB encodes v for a JSONB column; empty slices become NULL.
func marshalJSONB[T any](v []T) (interface{}, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalJSONB[T any](raw []byte, dst *[]T) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
