package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const runColumns = "run_id, started_at, completed_at, queries_executed, items_found, items_analyzed, items_admitted, new_subjects, quota_used, stop_reason, errors_json"

// CreateRun inserts a run record at invocation start.
func (s *Store) CreateRun(ctx context.Context, record *RunRecord) error {
	if record == nil {
		return errors.New("run record is nil")
	}
	if record.RunID == "" {
		return errors.New("run id is required")
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (run_id, started_at) VALUES (?, ?)`,
		record.RunID,
		record.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("create run record: %w", err)
	}
	return nil
}

// UpdateRun persists incremental counters for an in-flight run.
func (s *Store) UpdateRun(ctx context.Context, record *RunRecord) error {
	if record == nil {
		return errors.New("run record is nil")
	}

	var errorsJSON any
	if len(record.Errors) > 0 {
		encoded, err := json.Marshal(record.Errors)
		if err != nil {
			return fmt.Errorf("marshal run errors: %w", err)
		}
		errorsJSON = string(encoded)
	}

	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET
            completed_at = ?, queries_executed = ?, items_found = ?, items_analyzed = ?,
            items_admitted = ?, new_subjects = ?, quota_used = ?, stop_reason = ?, errors_json = ?
         WHERE run_id = ?`,
		nullableTime(record.CompletedAt),
		record.QueriesExecuted,
		record.ItemsFound,
		record.ItemsAnalyzed,
		record.ItemsAdmitted,
		record.NewSubjects,
		record.QuotaUsed,
		nullableString(record.StopReason),
		errorsJSON,
		record.RunID,
	)
	if err != nil {
		return fmt.Errorf("update run record: %w", err)
	}
	return nil
}

// FinalizeRun stamps the completion time and persists final counters.
func (s *Store) FinalizeRun(ctx context.Context, record *RunRecord) error {
	if record == nil {
		return errors.New("run record is nil")
	}
	if record.CompletedAt == nil {
		now := time.Now().UTC()
		record.CompletedAt = &now
	}
	return s.UpdateRun(ctx, record)
}

// RecentRuns returns the most recent run records, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var records []*RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// GetRun fetches a run record by id, or nil when unknown.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	record, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*RunRecord, error) {
	var (
		runID        string
		startedRaw   string
		completedRaw sql.NullString
		queries      int
		found        int
		analyzed     int
		admitted     int
		newSubjects  int
		quotaUsed    int
		stopReason   sql.NullString
		errorsJSON   sql.NullString
	)
	if err := scanner.Scan(
		&runID,
		&startedRaw,
		&completedRaw,
		&queries,
		&found,
		&analyzed,
		&admitted,
		&newSubjects,
		&quotaUsed,
		&stopReason,
		&errorsJSON,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run record: %w", err)
	}

	record := &RunRecord{
		RunID:           runID,
		QueriesExecuted: queries,
		ItemsFound:      found,
		ItemsAnalyzed:   analyzed,
		ItemsAdmitted:   admitted,
		NewSubjects:     newSubjects,
		QuotaUsed:       quotaUsed,
		StopReason:      stopReason.String,
	}
	if t, err := parseTimeString(startedRaw); err == nil {
		record.StartedAt = t
	}
	if completedRaw.Valid {
		if t, err := parseTimeString(completedRaw.String); err == nil {
			record.CompletedAt = &t
		}
	}
	if errorsJSON.Valid && errorsJSON.String != "" {
		if err := json.Unmarshal([]byte(errorsJSON.String), &record.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal run errors: %w", err)
		}
	}
	return record, nil
}
