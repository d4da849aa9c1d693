package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Topics returns all known topics, core topics first, then by priority.
func (s *Store) Topics(ctx context.Context) ([]Topic, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, video_count, priority, is_core FROM topics ORDER BY is_core DESC, priority DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		var (
			topic  Topic
			isCore int
		)
		if err := rows.Scan(&topic.Name, &topic.VideoCount, &topic.Priority, &isCore); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topic.IsCore = isCore != 0
		topics = append(topics, topic)
	}
	return topics, rows.Err()
}

// UpsertTopic inserts a topic or updates its priority and core flag.
// VideoCount is only ever advanced through IncrementTopicVideoCount.
func (s *Store) UpsertTopic(ctx context.Context, topic Topic) error {
	name := strings.TrimSpace(topic.Name)
	if name == "" {
		return errors.New("topic name is required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO topics (name, video_count, priority, is_core) VALUES (?, ?, ?, ?)
         ON CONFLICT(name) DO UPDATE SET priority = excluded.priority, is_core = excluded.is_core`,
		name,
		topic.VideoCount,
		topic.Priority,
		boolToInt(topic.IsCore),
	)
	if err != nil {
		return fmt.Errorf("upsert topic: %w", err)
	}
	return nil
}

// IncrementTopicVideoCount advances the feedback counter for a topic after an
// admission. Unknown topics are created as non-core entries so the search
// space grows with what the classifier reports.
func (s *Store) IncrementTopicVideoCount(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	res, err := s.db.ExecContext(ctx, `UPDATE topics SET video_count = video_count + 1 WHERE LOWER(name) = LOWER(?)`, name)
	if err != nil {
		return fmt.Errorf("increment topic count: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment topic count rows: %w", err)
	}
	if affected > 0 {
		return nil
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR IGNORE INTO topics (name, video_count, priority, is_core) VALUES (?, 1, 0, 0)`, name)
	if err != nil {
		return fmt.Errorf("insert discovered topic: %w", err)
	}
	return nil
}

// Subjects returns all tracked subjects ordered by credibility.
func (s *Store) Subjects(ctx context.Context) ([]Subject, error) {
	return s.querySubjects(ctx, `SELECT name, credibility, known_since FROM subjects ORDER BY credibility DESC, name`)
}

// TopSubjects returns the highest-credibility subjects, bounded by limit.
func (s *Store) TopSubjects(ctx context.Context, limit int) ([]Subject, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.querySubjects(ctx, `SELECT name, credibility, known_since FROM subjects ORDER BY credibility DESC, name LIMIT ?`, limit)
}

func (s *Store) querySubjects(ctx context.Context, query string, args ...any) ([]Subject, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	var subjects []Subject
	for rows.Next() {
		var (
			subject  Subject
			knownRaw string
		)
		if err := rows.Scan(&subject.Name, &subject.Credibility, &knownRaw); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		if t, err := parseTimeString(knownRaw); err == nil {
			subject.KnownSince = t
		}
		subjects = append(subjects, subject)
	}
	return subjects, rows.Err()
}

// AddSubject tracks a subject, ignoring duplicates by name.
func (s *Store) AddSubject(ctx context.Context, subject Subject) error {
	name := strings.TrimSpace(subject.Name)
	if name == "" {
		return errors.New("subject name is required")
	}
	knownSince := subject.KnownSince
	if knownSince.IsZero() {
		knownSince = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO subjects (name, credibility, known_since) VALUES (?, ?, ?)`,
		name,
		subject.Credibility,
		knownSince.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("add subject: %w", err)
	}
	return nil
}

// SubjectKnown reports whether a subject is already part of the search
// universe: tracked explicitly, already present in the admitted corpus, or
// already waiting in the expansion queue.
func (s *Store) SubjectKnown(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, nil
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM subjects WHERE LOWER(name) = LOWER(?))
             OR EXISTS (SELECT 1 FROM videos WHERE LOWER(subject_name) = LOWER(?))
             OR EXISTS (SELECT 1 FROM subject_queue WHERE LOWER(subject) = LOWER(?))`,
		name, name, name,
	)
	var known int
	if err := row.Scan(&known); err != nil {
		return false, fmt.Errorf("check subject known: %w", err)
	}
	return known != 0, nil
}

// CorpusSubjects returns distinct admitted-video subjects whose best quality
// score clears the given bar. This is the corpus-derived half of the subject
// universe.
func (s *Store) CorpusSubjects(ctx context.Context, minScore float64) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT subject_name FROM videos
         WHERE subject_name IS NOT NULL AND subject_name != ''
         GROUP BY subject_name HAVING MAX(quality_score) >= ?
         ORDER BY subject_name`,
		minScore,
	)
	if err != nil {
		return nil, fmt.Errorf("query corpus subjects: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan corpus subject: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// EnqueueSubject appends a newly discovered subject to the expansion queue.
// Returns false when the subject is already queued.
func (s *Store) EnqueueSubject(ctx context.Context, queued QueuedSubject) (bool, error) {
	subject := strings.TrimSpace(queued.Subject)
	if subject == "" {
		return false, errors.New("queued subject name is required")
	}
	createdAt := queued.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO subject_queue (subject, credibility, discovered_from, processed, created_at) VALUES (?, ?, ?, 0, ?)`,
		subject,
		queued.Credibility,
		nullableString(queued.DiscoveredFrom),
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("enqueue subject: %w", err)
	}
	return true, nil
}

// UnprocessedSubjects returns the oldest unprocessed expansion queue entries,
// bounded by limit.
func (s *Store) UnprocessedSubjects(ctx context.Context, limit int) ([]QueuedSubject, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, subject, credibility, discovered_from, processed, created_at
         FROM subject_queue WHERE processed = 0 ORDER BY credibility DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query subject queue: %w", err)
	}
	defer rows.Close()

	var entries []QueuedSubject
	for rows.Next() {
		var (
			entry      QueuedSubject
			discovered sql.NullString
			processed  int
			createdRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.Subject, &entry.Credibility, &discovered, &processed, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan queued subject: %w", err)
		}
		entry.DiscoveredFrom = discovered.String
		entry.Processed = processed != 0
		if t, err := parseTimeString(createdRaw); err == nil {
			entry.CreatedAt = t
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkSubjectsProcessed flags queue entries as consumed. Entries are marked
// regardless of whether their queries yielded admissions, which is what
// prevents infinite re-queuing.
func (s *Store) MarkSubjectsProcessed(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := makePlaceholders(len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx, `UPDATE subject_queue SET processed = 1 WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("mark subjects processed: %w", err)
	}
	return res.RowsAffected()
}
