package repository

import (
	"context"
	"fmt"

	"github.com/fortuna/courtcast/internal/store"
)

// StandingsRepository handles team standings data access
type StandingsRepository struct {
	db *store.Database
}

// NewStandingsRepository creates a new standings repository
func NewStandingsRepository(db *store.Database) *StandingsRepository {
	return &StandingsRepository{db: db}
}

const standingColumns = `s.id, s.team_id, s.season, s.wins, s.losses, s.win_pct, s.conference_rank,
	s.division_rank, s.games_back, s.streak, s.last_10, s.home_record, s.away_record,
	s.created_at, s.updated_at`

// Upsert overwrites the (team, season) snapshot with the latest record
func (r *StandingsRepository) Upsert(ctx context.Context, st *store.TeamStanding) (int, error) {
	query := `
		INSERT INTO team_standings (team_id, season, wins, losses, win_pct, conference_rank,
			division_rank, games_back, streak, last_10, home_record, away_record)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (team_id, season) DO UPDATE SET
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			win_pct = EXCLUDED.win_pct,
			conference_rank = EXCLUDED.conference_rank,
			division_rank = EXCLUDED.division_rank,
			games_back = EXCLUDED.games_back,
			streak = EXCLUDED.streak,
			last_10 = EXCLUDED.last_10,
			home_record = EXCLUDED.home_record,
			away_record = EXCLUDED.away_record,
			updated_at = NOW()
		RETURNING id
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		st.TeamID, st.Season, st.Wins, st.Losses, st.WinPct, st.ConferenceRank,
		st.DivisionRank, st.GamesBack, st.Streak, st.Last10, st.HomeRecord, st.AwayRecord,
	).Scan(&st.ID)
	if err != nil {
		return 0, fmt.Errorf("upserting standing for team %d: %w", st.TeamID, store.Classify(err))
	}

	return st.ID, nil
}

// ListBySeason returns a season's standings joined with team identity,
// ordered by conference then conference rank
func (r *StandingsRepository) ListBySeason(ctx context.Context, season string) ([]*store.StandingView, error) {
	query := `
		SELECT ` + standingColumns + `, t.abbreviation, t.name, t.conference
		FROM team_standings s
		JOIN teams t ON t.id = s.team_id
		WHERE s.season = $1
		ORDER BY t.conference, s.conference_rank NULLS LAST, s.win_pct DESC
	`

	rows, err := r.db.DB().QueryContext(ctx, query, season)
	if err != nil {
		return nil, fmt.Errorf("querying standings: %w", store.Classify(err))
	}
	defer rows.Close()

	var views []*store.StandingView
	for rows.Next() {
		v := &store.StandingView{}
		err := rows.Scan(
			&v.ID, &v.TeamID, &v.Season, &v.Wins, &v.Losses, &v.WinPct, &v.ConferenceRank,
			&v.DivisionRank, &v.GamesBack, &v.Streak, &v.Last10, &v.HomeRecord, &v.AwayRecord,
			&v.CreatedAt, &v.UpdatedAt, &v.Abbreviation, &v.TeamName, &v.Conference,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning standing: %w", err)
		}
		views = append(views, v)
	}

	return views, rows.Err()
}

