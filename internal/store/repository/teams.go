package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fortuna/courtcast/internal/store"
)

// TeamRepository handles team data access
type TeamRepository struct {
	db *store.Database
}

// NewTeamRepository creates a new team repository
func NewTeamRepository(db *store.Database) *TeamRepository {
	return &TeamRepository{db: db}
}

const teamColumns = `id, nba_id, abbreviation, name, city, conference, division, logo_url, created_at, updated_at`

// Upsert inserts a team or, when its nba_id is already known, overwrites
// the descriptive fields. The row id is preserved and written back to t.
func (r *TeamRepository) Upsert(ctx context.Context, t *store.Team) (int, error) {
	query := `
		INSERT INTO teams (nba_id, abbreviation, name, city, conference, division, logo_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (nba_id) DO UPDATE SET
			abbreviation = EXCLUDED.abbreviation,
			name = EXCLUDED.name,
			city = EXCLUDED.city,
			conference = EXCLUDED.conference,
			division = COALESCE(EXCLUDED.division, teams.division),
			logo_url = COALESCE(EXCLUDED.logo_url, teams.logo_url),
			updated_at = NOW()
		RETURNING id
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		t.NBAID, t.Abbreviation, t.Name, t.City, t.Conference, t.Division, t.LogoURL,
	).Scan(&t.ID)
	if err != nil {
		return 0, fmt.Errorf("upserting team %d: %w", t.NBAID, store.Classify(err))
	}

	return t.ID, nil
}

// GetAll returns all teams ordered by abbreviation
func (r *TeamRepository) GetAll(ctx context.Context) ([]*store.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams ORDER BY abbreviation`

	rows, err := r.db.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying teams: %w", store.Classify(err))
	}
	defer rows.Close()

	var teams []*store.Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning team: %w", err)
		}
		teams = append(teams, team)
	}

	return teams, rows.Err()
}

// GetByID finds a team by its row id
func (r *TeamRepository) GetByID(ctx context.Context, id int) (*store.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`

	team, err := scanTeam(r.db.DB().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("team not found: %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying team: %w", store.Classify(err))
	}

	return team, nil
}

// GetByNBAID finds a team by the provider team id
func (r *TeamRepository) GetByNBAID(ctx context.Context, nbaID int) (*store.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE nba_id = $1`

	team, err := scanTeam(r.db.DB().QueryRowContext(ctx, query, nbaID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("team not found with provider id %d: %w", nbaID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying team: %w", store.Classify(err))
	}

	return team, nil
}

// Count returns the number of stored teams
func (r *TeamRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM teams`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting teams: %w", store.Classify(err))
	}
	return n, nil
}

func scanTeam(s scanner) (*store.Team, error) {
	t := &store.Team{}
	err := s.Scan(
		&t.ID, &t.NBAID, &t.Abbreviation, &t.Name, &t.City,
		&t.Conference, &t.Division, &t.LogoURL, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}
