package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fortuna/courtcast/internal/store"
)

// PredictionRepository handles forecast snapshots
type PredictionRepository struct {
	db *store.Database
}

// NewPredictionRepository creates a new prediction repository
func NewPredictionRepository(db *store.Database) *PredictionRepository {
	return &PredictionRepository{db: db}
}

const predictionColumns = `id, season, team_id, prediction_date, model_version, predicted_wins,
	predicted_losses, predicted_win_pct, predicted_conference_rank, playoff_probability,
	predicted_ppg, predicted_oppg, predicted_pace, predicted_defensive_rating,
	wins_lower_bound, wins_upper_bound, created_at`

// Upsert writes the snapshot for (season, team, prediction_date). A second
// run on the same day replaces the earlier row.
func (r *PredictionRepository) Upsert(ctx context.Context, p *store.TeamPrediction) (int, error) {
	query := `
		INSERT INTO team_predictions (season, team_id, prediction_date, model_version,
			predicted_wins, predicted_losses, predicted_win_pct, predicted_conference_rank,
			playoff_probability, predicted_ppg, predicted_oppg, predicted_pace,
			predicted_defensive_rating, wins_lower_bound, wins_upper_bound)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (season, team_id, prediction_date) DO UPDATE SET
			model_version = EXCLUDED.model_version,
			predicted_wins = EXCLUDED.predicted_wins,
			predicted_losses = EXCLUDED.predicted_losses,
			predicted_win_pct = EXCLUDED.predicted_win_pct,
			predicted_conference_rank = EXCLUDED.predicted_conference_rank,
			playoff_probability = EXCLUDED.playoff_probability,
			predicted_ppg = EXCLUDED.predicted_ppg,
			predicted_oppg = EXCLUDED.predicted_oppg,
			predicted_pace = EXCLUDED.predicted_pace,
			predicted_defensive_rating = EXCLUDED.predicted_defensive_rating,
			wins_lower_bound = EXCLUDED.wins_lower_bound,
			wins_upper_bound = EXCLUDED.wins_upper_bound,
			created_at = NOW()
		RETURNING id
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		p.Season, p.TeamID, p.PredictionDate.Format("2006-01-02"), p.ModelVersion,
		p.PredictedWins, p.PredictedLosses, p.PredictedWinPct, p.PredictedConferenceRank,
		p.PlayoffProbability, p.PredictedPPG, p.PredictedOPPG, p.PredictedPace,
		p.PredictedDefensiveRating, p.WinsLowerBound, p.WinsUpperBound,
	).Scan(&p.ID)
	if err != nil {
		return 0, fmt.Errorf("upserting prediction for team %d: %w", p.TeamID, store.Classify(err))
	}

	return p.ID, nil
}

// LatestDate returns the most recent prediction_date for a season. ok is
// false when the season has no predictions.
func (r *PredictionRepository) LatestDate(ctx context.Context, season string) (time.Time, bool, error) {
	var d sql.NullTime
	err := r.db.DB().QueryRowContext(ctx,
		`SELECT MAX(prediction_date) FROM team_predictions WHERE season = $1`, season,
	).Scan(&d)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying latest prediction date: %w", store.Classify(err))
	}
	return d.Time, d.Valid, nil
}

// ListByDate returns every team's snapshot for one season and date
func (r *PredictionRepository) ListByDate(ctx context.Context, season string, date time.Time) ([]*store.TeamPrediction, error) {
	query := `SELECT ` + predictionColumns + ` FROM team_predictions
		WHERE season = $1 AND prediction_date = $2::date
		ORDER BY predicted_conference_rank, team_id`
	return r.list(ctx, query, season, date.Format("2006-01-02"))
}

// LatestForTeam returns the team's newest snapshot in a season
func (r *PredictionRepository) LatestForTeam(ctx context.Context, teamID int, season string) (*store.TeamPrediction, error) {
	query := `SELECT ` + predictionColumns + ` FROM team_predictions
		WHERE team_id = $1 AND season = $2
		ORDER BY prediction_date DESC LIMIT 1`

	p, err := scanPrediction(r.db.DB().QueryRowContext(ctx, query, teamID, season))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no prediction for team %d in %s: %w", teamID, season, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying team prediction: %w", store.Classify(err))
	}
	return p, nil
}

// History returns up to limit snapshots for a team, newest first
func (r *PredictionRepository) History(ctx context.Context, teamID int, season string, limit int) ([]*store.TeamPrediction, error) {
	query := `SELECT ` + predictionColumns + ` FROM team_predictions
		WHERE team_id = $1 AND season = $2
		ORDER BY prediction_date DESC LIMIT $3`
	return r.list(ctx, query, teamID, season, limit)
}

func (r *PredictionRepository) list(ctx context.Context, query string, args ...interface{}) ([]*store.TeamPrediction, error) {
	rows, err := r.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying predictions: %w", store.Classify(err))
	}
	defer rows.Close()

	var out []*store.TeamPrediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning prediction: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPrediction(s scanner) (*store.TeamPrediction, error) {
	p := &store.TeamPrediction{}
	err := s.Scan(
		&p.ID, &p.Season, &p.TeamID, &p.PredictionDate, &p.ModelVersion, &p.PredictedWins,
		&p.PredictedLosses, &p.PredictedWinPct, &p.PredictedConferenceRank, &p.PlayoffProbability,
		&p.PredictedPPG, &p.PredictedOPPG, &p.PredictedPace, &p.PredictedDefensiveRating,
		&p.WinsLowerBound, &p.WinsUpperBound, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}
