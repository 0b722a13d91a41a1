package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fortuna/courtcast/internal/store"
)

// GameLogRepository handles per-team game log rows
type GameLogRepository struct {
	db *store.Database
}

// NewGameLogRepository creates a new game log repository
func NewGameLogRepository(db *store.Database) *GameLogRepository {
	return &GameLogRepository{db: db}
}

// Upsert overwrites the (team, game) log row
func (r *GameLogRepository) Upsert(ctx context.Context, l *store.TeamGameLog) (int, error) {
	query := `
		INSERT INTO team_game_logs (team_id, nba_game_id, season, game_date, matchup, wl, pts,
			fg_pct, fg3_pct, ft_pct, oreb, dreb, reb, ast, stl, blk, tov, plus_minus)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (team_id, nba_game_id) DO UPDATE SET
			season = EXCLUDED.season,
			game_date = EXCLUDED.game_date,
			matchup = EXCLUDED.matchup,
			wl = EXCLUDED.wl,
			pts = EXCLUDED.pts,
			fg_pct = EXCLUDED.fg_pct,
			fg3_pct = EXCLUDED.fg3_pct,
			ft_pct = EXCLUDED.ft_pct,
			oreb = EXCLUDED.oreb,
			dreb = EXCLUDED.dreb,
			reb = EXCLUDED.reb,
			ast = EXCLUDED.ast,
			stl = EXCLUDED.stl,
			blk = EXCLUDED.blk,
			tov = EXCLUDED.tov,
			plus_minus = EXCLUDED.plus_minus,
			updated_at = NOW()
		RETURNING id
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		l.TeamID, l.NBAGameID, l.Season, l.GameDate, l.Matchup, nullIfEmpty(l.WL), l.PTS,
		l.FGPct, l.FG3Pct, l.FTPct, l.OREB, l.DREB, l.REB, l.AST, l.STL, l.BLK, l.TOV, l.PlusMinus,
	).Scan(&l.ID)
	if err != nil {
		return 0, fmt.Errorf("upserting game log %s for team %d: %w", l.NBAGameID, l.TeamID, store.Classify(err))
	}

	return l.ID, nil
}

// ListForTeamSeason returns a team's logs for a season in chronological order
func (r *GameLogRepository) ListForTeamSeason(ctx context.Context, teamID int, season string) ([]*store.TeamGameLog, error) {
	query := `
		SELECT id, team_id, nba_game_id, season, game_date, matchup, wl, pts, fg_pct, fg3_pct,
			ft_pct, oreb, dreb, reb, ast, stl, blk, tov, plus_minus
		FROM team_game_logs
		WHERE team_id = $1 AND season = $2
		ORDER BY game_date, nba_game_id
	`

	rows, err := r.db.DB().QueryContext(ctx, query, teamID, season)
	if err != nil {
		return nil, fmt.Errorf("querying game logs: %w", store.Classify(err))
	}
	defer rows.Close()

	var logs []*store.TeamGameLog
	for rows.Next() {
		l := &store.TeamGameLog{}
		var matchup, wl sql.NullString
		err := rows.Scan(
			&l.ID, &l.TeamID, &l.NBAGameID, &l.Season, &l.GameDate, &matchup, &wl, &l.PTS,
			&l.FGPct, &l.FG3Pct, &l.FTPct, &l.OREB, &l.DREB, &l.REB, &l.AST, &l.STL, &l.BLK,
			&l.TOV, &l.PlusMinus,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning game log: %w", err)
		}
		l.Matchup = matchup.String
		l.WL = wl.String
		logs = append(logs, l)
	}

	return logs, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
