package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// EnsureRotationCursor returns the singleton rotation cursor, creating the
// row on first use.
func (s *Store) EnsureRotationCursor(ctx context.Context) (RotationCursor, error) {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO rotation_cursor (id, last_query_index) VALUES (1, 0)`); err != nil {
		return RotationCursor{}, fmt.Errorf("ensure rotation cursor: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT last_query_index, last_run_at, quota_used_last_run FROM rotation_cursor WHERE id = 1`)
	var (
		index     int
		lastRun   sql.NullString
		quotaUsed int
	)
	if err := row.Scan(&index, &lastRun, &quotaUsed); err != nil {
		return RotationCursor{}, fmt.Errorf("read rotation cursor: %w", err)
	}

	cursor := RotationCursor{LastQueryIndex: index, QuotaUsedLastRun: quotaUsed}
	if lastRun.Valid {
		if t, err := parseTimeString(lastRun.String); err == nil {
			cursor.LastRunAt = t
		}
	}
	return cursor, nil
}

// SaveRotationCursor persists the singleton rotation cursor.
func (s *Store) SaveRotationCursor(ctx context.Context, cursor RotationCursor) error {
	var lastRun any
	if !cursor.LastRunAt.IsZero() {
		lastRun = cursor.LastRunAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE rotation_cursor SET last_query_index = ?, last_run_at = ?, quota_used_last_run = ? WHERE id = 1`,
		cursor.LastQueryIndex,
		lastRun,
		cursor.QuotaUsedLastRun,
	)
	if err != nil {
		return fmt.Errorf("save rotation cursor: %w", err)
	}
	return nil
}

const progressColumns = "query_hash, query_text, page_offset, continuation_token, times_searched, items_found, items_admitted, exhausted, last_run"

// ProgressByHash fetches pagination state for one query, or nil when the
// query has never been searched.
func (s *Store) ProgressByHash(ctx context.Context, hash string) (*QueryProgress, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+progressColumns+` FROM query_progress WHERE query_hash = ?`, hash)
	progress, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get query progress: %w", err)
	}
	return progress, nil
}

// ProgressByHashes fetches pagination state for many queries in one round trip.
func (s *Store) ProgressByHashes(ctx context.Context, hashes ...string) (map[string]QueryProgress, error) {
	result := make(map[string]QueryProgress, len(hashes))
	if len(hashes) == 0 {
		return result, nil
	}

	placeholders := makePlaceholders(len(hashes))
	args := make([]any, len(hashes))
	for i, hash := range hashes {
		args[i] = hash
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+progressColumns+` FROM query_progress WHERE query_hash IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query progress batch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		progress, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		result[progress.QueryHash] = *progress
	}
	return result, rows.Err()
}

// UpsertProgress inserts or updates pagination state for a query.
func (s *Store) UpsertProgress(ctx context.Context, progress *QueryProgress) error {
	if progress == nil {
		return errors.New("progress is nil")
	}
	progress.LastRun = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO query_progress (`+progressColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(query_hash) DO UPDATE SET
             query_text = excluded.query_text,
             page_offset = excluded.page_offset,
             continuation_token = excluded.continuation_token,
             times_searched = excluded.times_searched,
             items_found = excluded.items_found,
             items_admitted = excluded.items_admitted,
             exhausted = excluded.exhausted,
             last_run = excluded.last_run`,
		progress.QueryHash,
		progress.QueryText,
		progress.PageOffset,
		nullableString(progress.ContinuationToken),
		progress.TimesSearched,
		progress.ItemsFound,
		progress.ItemsAdmitted,
		boolToInt(progress.Exhausted),
		progress.LastRun.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert query progress: %w", err)
	}
	return nil
}

// AddProgressAdmitted advances the cumulative admitted counter for a query
// after its candidates clear the admission pipeline.
func (s *Store) AddProgressAdmitted(ctx context.Context, hash string, admitted int) error {
	if admitted <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `UPDATE query_progress SET items_admitted = items_admitted + ? WHERE query_hash = ?`, admitted, hash)
	if err != nil {
		return fmt.Errorf("add progress admitted: %w", err)
	}
	return nil
}

// ResetProgress clears pagination state for the given query hashes so
// re-synthesized priority queries are never skipped as stale-exhausted.
func (s *Store) ResetProgress(ctx context.Context, hashes ...string) (int64, error) {
	if len(hashes) == 0 {
		return 0, nil
	}
	placeholders := makePlaceholders(len(hashes))
	args := make([]any, len(hashes))
	for i, hash := range hashes {
		args[i] = hash
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE query_progress SET page_offset = 0, continuation_token = NULL, exhausted = 0 WHERE query_hash IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reset query progress: %w", err)
	}
	return res.RowsAffected()
}

func scanProgress(scanner interface{ Scan(dest ...any) error }) (*QueryProgress, error) {
	var (
		hash          string
		text          string
		pageOffset    int
		token         sql.NullString
		timesSearched int
		itemsFound    int
		itemsAdmitted int
		exhausted     sql.NullInt64
		lastRunRaw    sql.NullString
	)
	if err := scanner.Scan(&hash, &text, &pageOffset, &token, &timesSearched, &itemsFound, &itemsAdmitted, &exhausted, &lastRunRaw); err != nil {
		return nil, err
	}

	progress := &QueryProgress{
		QueryHash:         hash,
		QueryText:         text,
		PageOffset:        pageOffset,
		ContinuationToken: token.String,
		TimesSearched:     timesSearched,
		ItemsFound:        itemsFound,
		ItemsAdmitted:     itemsAdmitted,
		Exhausted:         exhausted.Valid && exhausted.Int64 != 0,
	}
	if lastRunRaw.Valid {
		if t, err := parseTimeString(lastRunRaw.String); err == nil {
			progress.LastRun = t
		}
	}
	return progress, nil
}
