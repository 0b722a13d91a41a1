package repository

import (
	"context"
	"fmt"

	"github.com/fortuna/courtcast/internal/store"
)

// IngestionLogRepository records ingestion runs
type IngestionLogRepository struct {
	db *store.Database
}

// NewIngestionLogRepository creates a new ingestion log repository
func NewIngestionLogRepository(db *store.Database) *IngestionLogRepository {
	return &IngestionLogRepository{db: db}
}

// Start opens a run in the running state
func (r *IngestionLogRepository) Start(ctx context.Context, ingestionType string) (*store.IngestionLog, error) {
	query := `
		INSERT INTO ingestion_logs (ingestion_type, status)
		VALUES ($1, $2)
		RETURNING id, started_at
	`

	l := &store.IngestionLog{IngestionType: ingestionType, Status: store.IngestionRunning}
	if err := r.db.DB().QueryRowContext(ctx, query, ingestionType, l.Status).Scan(&l.ID, &l.StartedAt); err != nil {
		return nil, fmt.Errorf("starting ingestion log: %w", store.Classify(err))
	}
	return l, nil
}

// Finish closes a run with its terminal status. A nil errMsg leaves
// error_message empty.
func (r *IngestionLogRepository) Finish(ctx context.Context, id int, status string, records int, errMsg *string) error {
	query := `
		UPDATE ingestion_logs
		SET status = $2, records_processed = $3, error_message = $4, completed_at = NOW()
		WHERE id = $1
	`

	res, err := r.db.DB().ExecContext(ctx, query, id, status, records, errMsg)
	if err != nil {
		return fmt.Errorf("finishing ingestion log %d: %w", id, store.Classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ingestion log %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// Recent returns the newest runs first
func (r *IngestionLogRepository) Recent(ctx context.Context, limit int) ([]*store.IngestionLog, error) {
	query := `
		SELECT id, ingestion_type, started_at, completed_at, status, records_processed, error_message
		FROM ingestion_logs
		ORDER BY started_at DESC, id DESC
		LIMIT $1
	`

	rows, err := r.db.DB().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying ingestion logs: %w", store.Classify(err))
	}
	defer rows.Close()

	var logs []*store.IngestionLog
	for rows.Next() {
		l := &store.IngestionLog{}
		if err := rows.Scan(&l.ID, &l.IngestionType, &l.StartedAt, &l.CompletedAt, &l.Status, &l.RecordsProcessed, &l.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scanning ingestion log: %w", err)
		}
		logs = append(logs, l)
	}

	return logs, rows.Err()
}
