package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"rollscout/internal/catalog"
	"rollscout/internal/testsupport"
)

func TestEnsureRotationCursorCreatesSingleton(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cursor, err := store.EnsureRotationCursor(ctx)
	if err != nil {
		t.Fatalf("EnsureRotationCursor: %v", err)
	}
	if cursor.LastQueryIndex != 0 {
		t.Fatalf("fresh cursor index = %d, want 0", cursor.LastQueryIndex)
	}

	cursor.LastQueryIndex = 17
	cursor.LastRunAt = time.Now().UTC()
	cursor.QuotaUsedLastRun = 420
	if err := store.SaveRotationCursor(ctx, cursor); err != nil {
		t.Fatalf("SaveRotationCursor: %v", err)
	}

	reread, err := store.EnsureRotationCursor(ctx)
	if err != nil {
		t.Fatalf("EnsureRotationCursor reread: %v", err)
	}
	if reread.LastQueryIndex != 17 {
		t.Fatalf("index = %d, want 17", reread.LastQueryIndex)
	}
	if reread.QuotaUsedLastRun != 420 {
		t.Fatalf("quota used = %d, want 420", reread.QuotaUsedLastRun)
	}
	if reread.LastRunAt.IsZero() {
		t.Fatal("last run timestamp was not persisted")
	}
}

func TestQueryProgressRoundTripAndReset(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	hash := catalog.QueryHash("Marcelo Garcia butterfly guard")
	progress := &catalog.QueryProgress{
		QueryHash:         hash,
		QueryText:         "Marcelo Garcia butterfly guard",
		PageOffset:        2,
		ContinuationToken: "token-abc",
		TimesSearched:     3,
		ItemsFound:        40,
		ItemsAdmitted:     5,
		Exhausted:         true,
	}
	if err := store.UpsertProgress(ctx, progress); err != nil {
		t.Fatalf("UpsertProgress: %v", err)
	}

	loaded, err := store.ProgressByHash(ctx, hash)
	if err != nil {
		t.Fatalf("ProgressByHash: %v", err)
	}
	if loaded == nil {
		t.Fatal("progress not found after upsert")
	}
	if !loaded.Exhausted || loaded.ContinuationToken != "token-abc" || loaded.PageOffset != 2 {
		t.Fatalf("unexpected progress: %+v", loaded)
	}

	if _, err := store.ResetProgress(ctx, hash); err != nil {
		t.Fatalf("ResetProgress: %v", err)
	}
	reset, err := store.ProgressByHash(ctx, hash)
	if err != nil {
		t.Fatalf("ProgressByHash after reset: %v", err)
	}
	if reset.Exhausted || reset.PageOffset != 0 || reset.ContinuationToken != "" {
		t.Fatalf("progress not reset: %+v", reset)
	}
	// Cumulative counters survive resets.
	if reset.TimesSearched != 3 || reset.ItemsFound != 40 {
		t.Fatalf("cumulative counters lost on reset: %+v", reset)
	}
}

func TestProgressByHashesMissingRowsOmitted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	known := catalog.QueryHash("known query")
	if err := store.UpsertProgress(ctx, &catalog.QueryProgress{QueryHash: known, QueryText: "known query"}); err != nil {
		t.Fatalf("UpsertProgress: %v", err)
	}

	result, err := store.ProgressByHashes(ctx, known, catalog.QueryHash("never searched"))
	if err != nil {
		t.Fatalf("ProgressByHashes: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("got %d rows, want 1", len(result))
	}
	if _, ok := result[known]; !ok {
		t.Fatal("known hash missing from result")
	}
}

func TestInsertVideoEnforcesUniqueSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	video := &catalog.Video{
		SourceID:    "yt-abc123",
		Title:       "Armbar from closed guard",
		SubjectName: "John Danaher",
		TopicName:   "armbar",
		Tags:        []string{"closed guard", "attack"},
	}
	if err := store.InsertVideo(ctx, video); err != nil {
		t.Fatalf("InsertVideo: %v", err)
	}
	if video.ID == 0 {
		t.Fatal("inserted video id not set")
	}

	dup := &catalog.Video{SourceID: "yt-abc123", Title: "Different title, same source"}
	err := store.InsertVideo(ctx, dup)
	if !errors.Is(err, catalog.ErrDuplicateSource) {
		t.Fatalf("duplicate insert error = %v, want ErrDuplicateSource", err)
	}

	has, err := store.HasVideo(ctx, "yt-abc123")
	if err != nil {
		t.Fatalf("HasVideo: %v", err)
	}
	if !has {
		t.Fatal("HasVideo should report admitted source")
	}
}

func TestCountBySubjectTopicMatchesFuzzily(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	seed := []*catalog.Video{
		{SourceID: "v1", Title: "t1", SubjectName: "Marcelo Garcia", TopicName: "butterfly guard sweep"},
		{SourceID: "v2", Title: "t2", SubjectName: "marcelo garcia", TopicName: "Butterfly Guard"},
		{SourceID: "v3", Title: "t3", SubjectName: "Bernardo Faria", TopicName: "butterfly guard"},
		{SourceID: "v4", Title: "t4", SubjectName: "Marcelo Garcia", TopicName: "x guard"},
	}
	for _, video := range seed {
		if err := store.InsertVideo(ctx, video); err != nil {
			t.Fatalf("InsertVideo %s: %v", video.SourceID, err)
		}
	}

	count, err := store.CountBySubjectTopic(ctx, "marcelo", "butterfly")
	if err != nil {
		t.Fatalf("CountBySubjectTopic: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2 (case-insensitive substring on both facets)", count)
	}
}

func TestTopicCountIncrementCreatesUnknownTopics(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedTopic(t, store, catalog.Topic{Name: "triangle choke", Priority: 5, IsCore: true})

	if err := store.IncrementTopicVideoCount(ctx, "Triangle Choke"); err != nil {
		t.Fatalf("IncrementTopicVideoCount existing: %v", err)
	}
	if err := store.IncrementTopicVideoCount(ctx, "berimbolo"); err != nil {
		t.Fatalf("IncrementTopicVideoCount new: %v", err)
	}

	topics, err := store.Topics(ctx)
	if err != nil {
		t.Fatalf("Topics: %v", err)
	}
	byName := make(map[string]catalog.Topic, len(topics))
	for _, topic := range topics {
		byName[topic.Name] = topic
	}
	if byName["triangle choke"].VideoCount != 1 {
		t.Fatalf("existing topic count = %d, want 1", byName["triangle choke"].VideoCount)
	}
	discovered, ok := byName["berimbolo"]
	if !ok {
		t.Fatal("unknown topic was not created")
	}
	if discovered.VideoCount != 1 || discovered.IsCore {
		t.Fatalf("discovered topic = %+v, want count 1 non-core", discovered)
	}
}

func TestSubjectQueueLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	inserted, err := store.EnqueueSubject(ctx, catalog.QueuedSubject{
		Subject:        "Lachlan Giles",
		Credibility:    60,
		DiscoveredFrom: "yt-src1",
	})
	if err != nil {
		t.Fatalf("EnqueueSubject: %v", err)
	}
	if !inserted {
		t.Fatal("first enqueue should insert")
	}

	again, err := store.EnqueueSubject(ctx, catalog.QueuedSubject{Subject: "Lachlan Giles", Credibility: 70})
	if err != nil {
		t.Fatalf("EnqueueSubject duplicate: %v", err)
	}
	if again {
		t.Fatal("duplicate enqueue should be a no-op")
	}

	entries, err := store.UnprocessedSubjects(ctx, 5)
	if err != nil {
		t.Fatalf("UnprocessedSubjects: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("unprocessed count = %d, want 1", len(entries))
	}

	if _, err := store.MarkSubjectsProcessed(ctx, entries[0].ID); err != nil {
		t.Fatalf("MarkSubjectsProcessed: %v", err)
	}
	entries, err = store.UnprocessedSubjects(ctx, 5)
	if err != nil {
		t.Fatalf("UnprocessedSubjects after mark: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("unprocessed count after mark = %d, want 0", len(entries))
	}
}

func TestSubjectKnownConsultsAllPools(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedSubject(t, store, catalog.Subject{Name: "Gordon Ryan", Credibility: 90})
	if err := store.InsertVideo(ctx, &catalog.Video{SourceID: "v1", Title: "t", SubjectName: "Craig Jones"}); err != nil {
		t.Fatalf("InsertVideo: %v", err)
	}
	if _, err := store.EnqueueSubject(ctx, catalog.QueuedSubject{Subject: "Mikey Musumeci", Credibility: 80}); err != nil {
		t.Fatalf("EnqueueSubject: %v", err)
	}

	for _, name := range []string{"gordon ryan", "CRAIG JONES", "Mikey Musumeci"} {
		known, err := store.SubjectKnown(ctx, name)
		if err != nil {
			t.Fatalf("SubjectKnown(%q): %v", name, err)
		}
		if !known {
			t.Fatalf("SubjectKnown(%q) = false, want true", name)
		}
	}

	known, err := store.SubjectKnown(ctx, "Nobody Newman")
	if err != nil {
		t.Fatalf("SubjectKnown: %v", err)
	}
	if known {
		t.Fatal("unknown subject reported as known")
	}
}

func TestCorpusSubjectsHonorsQualityBar(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	seed := []*catalog.Video{
		{SourceID: "v1", Title: "t", SubjectName: "Andre Galvao", QualityScore: 8.5},
		{SourceID: "v2", Title: "t", SubjectName: "Andre Galvao", QualityScore: 6.0},
		{SourceID: "v3", Title: "t", SubjectName: "Low Quality", QualityScore: 6.1},
	}
	for _, video := range seed {
		if err := store.InsertVideo(ctx, video); err != nil {
			t.Fatalf("InsertVideo: %v", err)
		}
	}

	names, err := store.CorpusSubjects(ctx, 7.0)
	if err != nil {
		t.Fatalf("CorpusSubjects: %v", err)
	}
	if len(names) != 1 || names[0] != "Andre Galvao" {
		t.Fatalf("corpus subjects = %v, want [Andre Galvao]", names)
	}
}

func TestRunRecordLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	record := &catalog.RunRecord{RunID: "run-1"}
	if err := store.CreateRun(ctx, record); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	record.QueriesExecuted = 3
	record.ItemsFound = 25
	record.ItemsAnalyzed = 10
	record.ItemsAdmitted = 4
	record.QuotaUsed = 640
	record.StopReason = catalog.StopQuota
	record.Errors = []string{"details fetch failed for yt-x"}
	if err := store.FinalizeRun(ctx, record); err != nil {
		t.Fatalf("FinalizeRun: %v", err)
	}

	loaded, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if loaded == nil {
		t.Fatal("run record not found")
	}
	if !loaded.Finished() {
		t.Fatal("finalized run should report finished")
	}
	if loaded.StopReason != catalog.StopQuota {
		t.Fatalf("stop reason = %q, want %q", loaded.StopReason, catalog.StopQuota)
	}
	if loaded.QueriesExecuted != 3 || loaded.QuotaUsed != 640 {
		t.Fatalf("counters not persisted: %+v", loaded)
	}
	if len(loaded.Errors) != 1 {
		t.Fatalf("errors = %v, want one entry", loaded.Errors)
	}

	recent, err := store.RecentRuns(ctx, 5)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("recent runs = %d, want 1", len(recent))
	}
}

func TestCheckHealthReportsTables(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable {
		t.Fatalf("health = %+v", health)
	}
	if len(health.MissingTables) != 0 {
		t.Fatalf("missing tables: %v", health.MissingTables)
	}
	if !health.IntegrityCheck {
		t.Fatal("integrity check failed")
	}
}
