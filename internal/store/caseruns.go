package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/casegrid-labs/casegrid/pkg/core"
)

// RecordCaseRun records the start of one case within a run.
func (s *SQLiteStore) RecordCaseRun(cr *core.CaseRun) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if cr.ID == "" {
		cr.ID = generateID()
	}
	if cr.StartedAt.IsZero() {
		cr.StartedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO case_runs (id, run_id, case_index, label, status, calculator, command, error, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cr.ID, cr.RunID, cr.CaseIndex, cr.Label, cr.Status, cr.Calculator, cr.Command, cr.Error, cr.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record case run: %w", err)
	}
	return nil
}

// UpdateCaseRun updates a case run with its terminal state.
func (s *SQLiteStore) UpdateCaseRun(id string, status core.CaseStatus, calculator, command, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var endedAt *time.Time
	if status.Terminal() {
		now := time.Now().UTC()
		endedAt = &now
	}

	result, err := s.db.Exec(
		`UPDATE case_runs SET status = ?, calculator = ?, command = ?, error = ?, ended_at = ? WHERE id = ?`,
		status, calculator, command, errMsg, endedAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update case run: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("case run not found: %s", id)
	}
	return nil
}

// GetCaseRunsForRun retrieves the case runs of a run in case-generation
// order.
func (s *SQLiteStore) GetCaseRunsForRun(runID string) ([]*core.CaseRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, run_id, case_index, label, status, calculator, command, error, started_at, ended_at
		 FROM case_runs WHERE run_id = ? ORDER BY case_index`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get case runs: %w", err)
	}
	defer rows.Close()

	var caseRuns []*core.CaseRun
	for rows.Next() {
		cr := &core.CaseRun{}
		var endedAt sql.NullTime

		err := rows.Scan(&cr.ID, &cr.RunID, &cr.CaseIndex, &cr.Label, &cr.Status,
			&cr.Calculator, &cr.Command, &cr.Error, &cr.StartedAt, &endedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case run: %w", err)
		}

		if endedAt.Valid {
			cr.EndedAt = &endedAt.Time
		}
		caseRuns = append(caseRuns, cr)
	}

	return caseRuns, rows.Err()
}
