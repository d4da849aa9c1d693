package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const videoColumns = "id, source_id, title, subject_name, topic_name, category, duration_seconds, published_at, quality_score, taxonomy_type, taxonomy_position, taxonomy_gi, tags_json, admitted_at"

// HasVideo reports whether a source id is already admitted. This is the
// cheap pre-flight dedup check performed before any paid API call.
func (s *Store) HasVideo(ctx context.Context, sourceID string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM videos WHERE source_id = ?)`, sourceID)
	var exists int
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check video exists: %w", err)
	}
	return exists != 0, nil
}

// CountBySubjectTopic counts admitted videos fuzzily matching both subject
// and topic: case-insensitive, the stored value only needs to contain the
// given text as a substring. Used for saturation checks.
func (s *Store) CountBySubjectTopic(ctx context.Context, subject, topic string) (int, error) {
	subject = strings.TrimSpace(subject)
	topic = strings.TrimSpace(topic)
	if subject == "" || topic == "" {
		return 0, nil
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM videos
         WHERE LOWER(subject_name) LIKE '%' || LOWER(?) || '%'
           AND LOWER(topic_name) LIKE '%' || LOWER(?) || '%'`,
		subject,
		topic,
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count subject/topic videos: %w", err)
	}
	return count, nil
}

// InsertVideo persists an admitted item. Returns ErrDuplicateSource when the
// source id is already present.
func (s *Store) InsertVideo(ctx context.Context, video *Video) error {
	if video == nil {
		return errors.New("video is nil")
	}
	if strings.TrimSpace(video.SourceID) == "" {
		return errors.New("video source id is required")
	}
	if video.AdmittedAt.IsZero() {
		video.AdmittedAt = time.Now().UTC()
	}

	var tagsJSON any
	if len(video.Tags) > 0 {
		encoded, err := json.Marshal(video.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		tagsJSON = string(encoded)
	}

	var publishedAt any
	if !video.PublishedAt.IsZero() {
		publishedAt = video.PublishedAt.UTC().Format(time.RFC3339Nano)
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO videos (
            source_id, title, subject_name, topic_name, category, duration_seconds,
            published_at, quality_score, taxonomy_type, taxonomy_position, taxonomy_gi,
            tags_json, admitted_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		video.SourceID,
		video.Title,
		nullableString(video.SubjectName),
		nullableString(video.TopicName),
		nullableString(video.Category),
		video.DurationSeconds,
		publishedAt,
		video.QualityScore,
		nullableString(video.TaxonomyType),
		nullableString(video.TaxonomyPosition),
		nullableString(video.TaxonomyGi),
		tagsJSON,
		video.AdmittedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSource
		}
		return fmt.Errorf("insert video: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	video.ID = id
	return nil
}

// RecentVideos returns the most recently admitted videos, bounded by limit.
func (s *Store) RecentVideos(ctx context.Context, limit int) ([]*Video, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY admitted_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent videos: %w", err)
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, video)
	}
	return videos, rows.Err()
}

func scanVideo(scanner interface{ Scan(dest ...any) error }) (*Video, error) {
	var (
		id           int64
		sourceID     string
		title        string
		subjectName  sql.NullString
		topicName    sql.NullString
		category     sql.NullString
		duration     int
		publishedRaw sql.NullString
		qualityScore float64
		taxType      sql.NullString
		taxPosition  sql.NullString
		taxGi        sql.NullString
		tagsJSON     sql.NullString
		admittedRaw  string
	)
	if err := scanner.Scan(
		&id,
		&sourceID,
		&title,
		&subjectName,
		&topicName,
		&category,
		&duration,
		&publishedRaw,
		&qualityScore,
		&taxType,
		&taxPosition,
		&taxGi,
		&tagsJSON,
		&admittedRaw,
	); err != nil {
		return nil, fmt.Errorf("scan video: %w", err)
	}

	video := &Video{
		ID:               id,
		SourceID:         sourceID,
		Title:            title,
		SubjectName:      subjectName.String,
		TopicName:        topicName.String,
		Category:         category.String,
		DurationSeconds:  duration,
		QualityScore:     qualityScore,
		TaxonomyType:     taxType.String,
		TaxonomyPosition: taxPosition.String,
		TaxonomyGi:       taxGi.String,
	}
	if publishedRaw.Valid {
		if t, err := parseTimeString(publishedRaw.String); err == nil {
			video.PublishedAt = t
		}
	}
	if t, err := parseTimeString(admittedRaw); err == nil {
		video.AdmittedAt = t
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &video.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	return video, nil
}
