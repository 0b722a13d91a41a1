package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fortuna/courtcast/internal/store"
)

// SeasonStatsRepository handles team season aggregates
type SeasonStatsRepository struct {
	db *store.Database
}

// NewSeasonStatsRepository creates a new season stats repository
func NewSeasonStatsRepository(db *store.Database) *SeasonStatsRepository {
	return &SeasonStatsRepository{db: db}
}

const seasonStatsColumns = `id, team_id, season, games_played, wins, losses, win_pct, ppg, fg_pct,
	fg3_pct, ft_pct, oreb, ast, tov, oppg, dreb, stl, blk, pace, off_rating, def_rating,
	net_rating, conference_rank, division_rank, playoff_seed, created_at, updated_at`

// Upsert overwrites the (team, season) aggregate row
func (r *SeasonStatsRepository) Upsert(ctx context.Context, s *store.TeamSeasonStats) (int, error) {
	query := `
		INSERT INTO team_season_stats (team_id, season, games_played, wins, losses, win_pct, ppg,
			fg_pct, fg3_pct, ft_pct, oreb, ast, tov, oppg, dreb, stl, blk, pace, off_rating,
			def_rating, net_rating, conference_rank, division_rank, playoff_seed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24)
		ON CONFLICT (team_id, season) DO UPDATE SET
			games_played = EXCLUDED.games_played,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			win_pct = EXCLUDED.win_pct,
			ppg = EXCLUDED.ppg,
			fg_pct = EXCLUDED.fg_pct,
			fg3_pct = EXCLUDED.fg3_pct,
			ft_pct = EXCLUDED.ft_pct,
			oreb = EXCLUDED.oreb,
			ast = EXCLUDED.ast,
			tov = EXCLUDED.tov,
			oppg = EXCLUDED.oppg,
			dreb = EXCLUDED.dreb,
			stl = EXCLUDED.stl,
			blk = EXCLUDED.blk,
			pace = EXCLUDED.pace,
			off_rating = EXCLUDED.off_rating,
			def_rating = EXCLUDED.def_rating,
			net_rating = EXCLUDED.net_rating,
			conference_rank = EXCLUDED.conference_rank,
			division_rank = EXCLUDED.division_rank,
			playoff_seed = EXCLUDED.playoff_seed,
			updated_at = NOW()
		RETURNING id
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		s.TeamID, s.Season, s.GamesPlayed, s.Wins, s.Losses, s.WinPct, s.PPG,
		s.FGPct, s.FG3Pct, s.FTPct, s.OREB, s.AST, s.TOV, s.OPPG, s.DREB, s.STL, s.BLK,
		s.Pace, s.OffRating, s.DefRating, s.NetRating, s.ConferenceRank, s.DivisionRank, s.PlayoffSeed,
	).Scan(&s.ID)
	if err != nil {
		return 0, fmt.Errorf("upserting season stats for team %d %s: %w", s.TeamID, s.Season, store.Classify(err))
	}

	return s.ID, nil
}

// Get returns one team's aggregate for a season
func (r *SeasonStatsRepository) Get(ctx context.Context, teamID int, season string) (*store.TeamSeasonStats, error) {
	query := `SELECT ` + seasonStatsColumns + ` FROM team_season_stats WHERE team_id = $1 AND season = $2`

	s, err := scanSeasonStats(r.db.DB().QueryRowContext(ctx, query, teamID, season))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("season stats not found for team %d in %s: %w", teamID, season, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying season stats: %w", store.Classify(err))
	}

	return s, nil
}

// ListForTeam returns a team's aggregates, newest season first
func (r *SeasonStatsRepository) ListForTeam(ctx context.Context, teamID int) ([]*store.TeamSeasonStats, error) {
	query := `SELECT ` + seasonStatsColumns + ` FROM team_season_stats WHERE team_id = $1 ORDER BY season DESC`

	rows, err := r.db.DB().QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("querying season stats: %w", store.Classify(err))
	}
	defer rows.Close()

	var out []*store.TeamSeasonStats
	for rows.Next() {
		s, err := scanSeasonStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning season stats: %w", err)
		}
		out = append(out, s)
	}

	return out, rows.Err()
}

func scanSeasonStats(sc scanner) (*store.TeamSeasonStats, error) {
	s := &store.TeamSeasonStats{}
	err := sc.Scan(
		&s.ID, &s.TeamID, &s.Season, &s.GamesPlayed, &s.Wins, &s.Losses, &s.WinPct, &s.PPG, &s.FGPct,
		&s.FG3Pct, &s.FTPct, &s.OREB, &s.AST, &s.TOV, &s.OPPG, &s.DREB, &s.STL, &s.BLK, &s.Pace,
		&s.OffRating, &s.DefRating, &s.NetRating, &s.ConferenceRank, &s.DivisionRank, &s.PlayoffSeed,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
