package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fortuna/courtcast/internal/store"
)

// StatsRepository handles player box-score data access
type StatsRepository struct {
	db *store.Database
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *store.Database) *StatsRepository {
	return &StatsRepository{db: db}
}

const statsColumns = `id, player_id, game_id, team_id, minutes, points, fgm, fga, fg3m, fg3a,
	ftm, fta, oreb, dreb, reb, ast, stl, blk, tov, pf, plus_minus, created_at, updated_at`

// Upsert inserts or overwrites a box-score line keyed by (player_id, game_id)
func (r *StatsRepository) Upsert(ctx context.Context, s *store.PlayerGameStats) (int, error) {
	query := `
		INSERT INTO player_game_stats (player_id, game_id, team_id, minutes, points,
			fgm, fga, fg3m, fg3a, ftm, fta, oreb, dreb, reb, ast, stl, blk, tov, pf, plus_minus)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (player_id, game_id) DO UPDATE SET
			team_id = EXCLUDED.team_id,
			minutes = EXCLUDED.minutes,
			points = EXCLUDED.points,
			fgm = EXCLUDED.fgm,
			fga = EXCLUDED.fga,
			fg3m = EXCLUDED.fg3m,
			fg3a = EXCLUDED.fg3a,
			ftm = EXCLUDED.ftm,
			fta = EXCLUDED.fta,
			oreb = EXCLUDED.oreb,
			dreb = EXCLUDED.dreb,
			reb = EXCLUDED.reb,
			ast = EXCLUDED.ast,
			stl = EXCLUDED.stl,
			blk = EXCLUDED.blk,
			tov = EXCLUDED.tov,
			pf = EXCLUDED.pf,
			plus_minus = EXCLUDED.plus_minus,
			updated_at = NOW()
		RETURNING id
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		s.PlayerID, s.GameID, s.TeamID, s.Minutes, s.Points,
		s.FGM, s.FGA, s.FG3M, s.FG3A, s.FTM, s.FTA,
		s.OREB, s.DREB, s.REB, s.AST, s.STL, s.BLK, s.TOV, s.PF, s.PlusMinus,
	).Scan(&s.ID)
	if err != nil {
		return 0, fmt.Errorf("upserting stats for player %d game %d: %w", s.PlayerID, s.GameID, store.Classify(err))
	}

	return s.ID, nil
}

// ListByGame returns every box-score line recorded for a game
func (r *StatsRepository) ListByGame(ctx context.Context, gameID int) ([]*store.PlayerGameStats, error) {
	query := `SELECT ` + statsColumns + ` FROM player_game_stats WHERE game_id = $1 ORDER BY team_id, points DESC`

	rows, err := r.db.DB().QueryContext(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("querying game stats: %w", store.Classify(err))
	}
	defer rows.Close()

	var lines []*store.PlayerGameStats
	for rows.Next() {
		s := &store.PlayerGameStats{}
		err := rows.Scan(
			&s.ID, &s.PlayerID, &s.GameID, &s.TeamID, &s.Minutes, &s.Points,
			&s.FGM, &s.FGA, &s.FG3M, &s.FG3A, &s.FTM, &s.FTA,
			&s.OREB, &s.DREB, &s.REB, &s.AST, &s.STL, &s.BLK, &s.TOV, &s.PF, &s.PlusMinus,
			&s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning game stats: %w", err)
		}
		lines = append(lines, s)
	}

	return lines, rows.Err()
}

// SeasonAverages aggregates a player's lines from final games of a season.
// Shooting percentages are computed from totals and expressed 0-100.
func (r *StatsRepository) SeasonAverages(ctx context.Context, playerID int, season string) (*store.PlayerSeasonAverages, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(AVG(s.minutes), 0),
			COALESCE(AVG(s.points), 0),
			COALESCE(AVG(s.reb), 0),
			COALESCE(AVG(s.ast), 0),
			COALESCE(AVG(s.stl), 0),
			COALESCE(AVG(s.blk), 0),
			COALESCE(SUM(s.fgm)::float / NULLIF(SUM(s.fga), 0) * 100, 0),
			COALESCE(SUM(s.fg3m)::float / NULLIF(SUM(s.fg3a), 0) * 100, 0),
			COALESCE(SUM(s.ftm)::float / NULLIF(SUM(s.fta), 0) * 100, 0)
		FROM player_game_stats s
		JOIN games g ON g.id = s.game_id
		WHERE s.player_id = $1 AND g.season = $2 AND g.status = $3
	`

	avg := &store.PlayerSeasonAverages{PlayerID: playerID, Season: season}
	err := r.db.DB().QueryRowContext(ctx, query, playerID, season, store.GameStatusFinal).Scan(
		&avg.GamesPlayed, &avg.Minutes, &avg.Points, &avg.Rebounds, &avg.Assists,
		&avg.Steals, &avg.Blocks, &avg.FGPct, &avg.FG3Pct, &avg.FTPct,
	)
	if err == sql.ErrNoRows || (err == nil && avg.GamesPlayed == 0) {
		return nil, fmt.Errorf("no stats for player %d in %s: %w", playerID, season, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying season averages: %w", store.Classify(err))
	}

	return avg, nil
}
