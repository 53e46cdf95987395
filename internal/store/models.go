package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/casegrid-labs/casegrid/internal/loader"
	"github.com/casegrid-labs/casegrid/pkg/core"
)

// SaveModel inserts a model under its ID or updates the existing alias.
func (s *SQLiteStore) SaveModel(model *core.Model) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if model.ID == "" {
		return fmt.Errorf("model has no id")
	}

	spec, err := loader.MarshalModel(model)
	if err != nil {
		return fmt.Errorf("failed to serialize model: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(
		`INSERT INTO models (id, spec, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET spec = excluded.spec, updated_at = excluded.updated_at`,
		model.ID, string(spec), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	return nil
}

// GetModel retrieves a saved model by ID.
func (s *SQLiteStore) GetModel(id string) (*core.Model, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	var spec string
	err := s.db.QueryRow(`SELECT spec FROM models WHERE id = ?`, id).Scan(&spec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}

	model, err := loader.ParseModel([]byte(spec))
	if err != nil {
		return nil, fmt.Errorf("stored model %s: %w", id, err)
	}
	return model, nil
}

// ListModels retrieves all saved models ordered by ID.
func (s *SQLiteStore) ListModels() ([]*core.Model, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(`SELECT id, spec FROM models ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var models []*core.Model
	for rows.Next() {
		var id, spec string
		if err := rows.Scan(&id, &spec); err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		model, err := loader.ParseModel([]byte(spec))
		if err != nil {
			return nil, fmt.Errorf("stored model %s: %w", id, err)
		}
		models = append(models, model)
	}

	return models, rows.Err()
}

// DeleteModel removes a saved model.
func (s *SQLiteStore) DeleteModel(id string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	result, err := s.db.Exec(`DELETE FROM models WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("model not found: %s", id)
	}
	return nil
}
