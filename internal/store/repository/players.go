package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fortuna/courtcast/internal/store"
)

// PlayerRepository handles player data access
type PlayerRepository struct {
	db *store.Database
}

// NewPlayerRepository creates a new player repository
func NewPlayerRepository(db *store.Database) *PlayerRepository {
	return &PlayerRepository{db: db}
}

const playerColumns = `id, nba_id, first_name, last_name, team_id, jersey_number, position,
	height, weight, birth_date, country, years_pro, is_active, created_at, updated_at`

// GetByID finds a player by row id
func (r *PlayerRepository) GetByID(ctx context.Context, id int) (*store.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`

	player, err := scanPlayer(r.db.DB().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("player not found: %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying player: %w", store.Classify(err))
	}

	return player, nil
}

// GetByNBAID finds a player by provider player id
func (r *PlayerRepository) GetByNBAID(ctx context.Context, nbaID int) (*store.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE nba_id = $1`

	player, err := scanPlayer(r.db.DB().QueryRowContext(ctx, query, nbaID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("player not found with provider id %d: %w", nbaID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying player: %w", store.Classify(err))
	}

	return player, nil
}

// Upsert inserts or updates a roster entry keyed by nba_id. Roster data
// is authoritative, so every descriptive column is overwritten.
func (r *PlayerRepository) Upsert(ctx context.Context, p *store.Player) (int, error) {
	query := `
		INSERT INTO players (nba_id, first_name, last_name, team_id, jersey_number, position,
			height, weight, birth_date, country, years_pro, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (nba_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			team_id = EXCLUDED.team_id,
			jersey_number = EXCLUDED.jersey_number,
			position = EXCLUDED.position,
			height = EXCLUDED.height,
			weight = EXCLUDED.weight,
			birth_date = EXCLUDED.birth_date,
			country = COALESCE(EXCLUDED.country, players.country),
			years_pro = EXCLUDED.years_pro,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING id
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		p.NBAID, p.FirstName, p.LastName, p.TeamID, p.JerseyNumber, p.Position,
		p.Height, p.Weight, p.BirthDate, p.Country, p.YearsPro, p.IsActive,
	).Scan(&p.ID)
	if err != nil {
		return 0, fmt.Errorf("upserting player %d: %w", p.NBAID, store.Classify(err))
	}

	return p.ID, nil
}

// EnsureExists returns the id of the player with nbaID, creating a
// minimal row when box-score ingestion meets a player no roster listed.
// An existing row is left untouched.
func (r *PlayerRepository) EnsureExists(ctx context.Context, nbaID int, firstName, lastName string, teamID *int) (int, error) {
	query := `
		INSERT INTO players (nba_id, first_name, last_name, team_id, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (nba_id) DO UPDATE SET nba_id = players.nba_id
		RETURNING id
	`

	var id int
	if err := r.db.DB().QueryRowContext(ctx, query, nbaID, firstName, lastName, teamID).Scan(&id); err != nil {
		return 0, fmt.Errorf("ensuring player %d: %w", nbaID, store.Classify(err))
	}
	return id, nil
}

func scanPlayer(s scanner) (*store.Player, error) {
	p := &store.Player{}
	err := s.Scan(
		&p.ID, &p.NBAID, &p.FirstName, &p.LastName, &p.TeamID, &p.JerseyNumber, &p.Position,
		&p.Height, &p.Weight, &p.BirthDate, &p.Country, &p.YearsPro, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}
