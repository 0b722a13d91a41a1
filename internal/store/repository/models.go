package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fortuna/courtcast/internal/store"
)

// ModelRepository handles model metadata and the single active model
type ModelRepository struct {
	db *store.Database
}

// NewModelRepository creates a new model repository
func NewModelRepository(db *store.Database) *ModelRepository {
	return &ModelRepository{db: db}
}

const modelColumns = `id, model_version, model_type, trained_at, training_seasons, epochs_trained,
	batch_size, sequence_length, hidden_units, dropout_rate, learning_rate, training_loss,
	validation_loss, mae_wins, mae_ppg, model_path, scaler_path, is_active`

// Active returns the active model. Readers never observe two active rows
// because Activate swaps them inside one transaction.
func (r *ModelRepository) Active(ctx context.Context) (*store.ModelMetadata, error) {
	query := `SELECT ` + modelColumns + ` FROM model_metadata WHERE is_active LIMIT 1`

	m, err := scanModel(r.db.DB().QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("active model: %w", store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying active model: %w", store.Classify(err))
	}
	return m, nil
}

// GetByVersion finds a model by its version string
func (r *ModelRepository) GetByVersion(ctx context.Context, version string) (*store.ModelMetadata, error) {
	query := `SELECT ` + modelColumns + ` FROM model_metadata WHERE model_version = $1`

	m, err := scanModel(r.db.DB().QueryRowContext(ctx, query, version))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("model not found: %s: %w", version, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying model: %w", store.Classify(err))
	}
	return m, nil
}

// List returns every model, newest first
func (r *ModelRepository) List(ctx context.Context) ([]*store.ModelMetadata, error) {
	query := `SELECT ` + modelColumns + ` FROM model_metadata ORDER BY trained_at DESC, id DESC`

	rows, err := r.db.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying models: %w", store.Classify(err))
	}
	defer rows.Close()

	var out []*store.ModelMetadata
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning model: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Activate records m and makes it the only active model in one transaction
func (r *ModelRepository) Activate(ctx context.Context, m *store.ModelMetadata) error {
	seasons, err := marshalJSONB(m.TrainingSeasons)
	if err != nil {
		return fmt.Errorf("encoding training seasons: %w", err)
	}
	hidden, err := marshalJSONB(m.HiddenUnits)
	if err != nil {
		return fmt.Errorf("encoding hidden units: %w", err)
	}

	modelType := m.ModelType
	if modelType == "" {
		modelType = "lstm"
	}

	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE model_metadata SET is_active = FALSE WHERE is_active`); err != nil {
			return fmt.Errorf("deactivating models: %w", err)
		}

		query := `
			INSERT INTO model_metadata (model_version, model_type, trained_at, training_seasons,
				epochs_trained, batch_size, sequence_length, hidden_units, dropout_rate, learning_rate,
				training_loss, validation_loss, mae_wins, mae_ppg, model_path, scaler_path, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, TRUE)
			ON CONFLICT (model_version) DO UPDATE SET
				model_type = EXCLUDED.model_type,
				trained_at = EXCLUDED.trained_at,
				training_seasons = EXCLUDED.training_seasons,
				epochs_trained = EXCLUDED.epochs_trained,
				batch_size = EXCLUDED.batch_size,
				sequence_length = EXCLUDED.sequence_length,
				hidden_units = EXCLUDED.hidden_units,
				dropout_rate = EXCLUDED.dropout_rate,
				learning_rate = EXCLUDED.learning_rate,
				training_loss = EXCLUDED.training_loss,
				validation_loss = EXCLUDED.validation_loss,
				mae_wins = EXCLUDED.mae_wins,
				mae_ppg = EXCLUDED.mae_ppg,
				model_path = EXCLUDED.model_path,
				scaler_path = EXCLUDED.scaler_path,
				is_active = TRUE
			RETURNING id
		`
		return tx.QueryRowContext(ctx, query,
			m.ModelVersion, modelType, m.TrainedAt, seasons, m.EpochsTrained, m.BatchSize,
			m.SequenceLength, hidden, m.DropoutRate, m.LearningRate, m.TrainingLoss,
			m.ValidationLoss, m.MAEWins, m.MAEPPG, m.ModelPath, m.ScalerPath,
		).Scan(&m.ID)
	})
	if err != nil {
		return fmt.Errorf("activating model %s: %w", m.ModelVersion, store.Classify(err))
	}

	m.ModelType = modelType
	m.IsActive = true
	return nil
}

func scanModel(s scanner) (*store.ModelMetadata, error) {
	m := &store.ModelMetadata{}
	var seasons, hidden []byte
	err := s.Scan(
		&m.ID, &m.ModelVersion, &m.ModelType, &m.TrainedAt, &seasons, &m.EpochsTrained,
		&m.BatchSize, &m.SequenceLength, &hidden, &m.DropoutRate, &m.LearningRate, &m.TrainingLoss,
		&m.ValidationLoss, &m.MAEWins, &m.MAEPPG, &m.ModelPath, &m.ScalerPath, &m.IsActive,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(seasons, &m.TrainingSeasons); err != nil {
		return nil, fmt.Errorf("decoding training seasons: %w", err)
	}
	if err := unmarshalJSONB(hidden, &m.HiddenUnits); err != nil {
		return nil, fmt.Errorf("decoding hidden units: %w", err)
	}
	return m, nil
}
