package catalog

import "time"

// RotationCursor is the singleton pointer into the query universe used to
// round-robin discovery across runs.
type RotationCursor struct {
	LastQueryIndex   int
	LastRunAt        time.Time
	QuotaUsedLastRun int
}

// QueryProgress tracks per-query pagination state across runs, keyed by a
// stable hash of the query text.
type QueryProgress struct {
	QueryHash         string
	QueryText         string
	PageOffset        int
	ContinuationToken string
	TimesSearched     int
	ItemsFound        int
	ItemsAdmitted     int
	Exhausted         bool
	LastRun           time.Time
}

// Topic is a searched-for technique facet. VideoCount feeds back into query
// sort selection: sparse topics get popularity-sorted discovery, saturated
// ones get recency-sorted discovery.
type Topic struct {
	Name       string
	VideoCount int
	Priority   int
	IsCore     bool
}

// Subject is a tracked instructor.
type Subject struct {
	Name        string
	Credibility int
	KnownSince  time.Time
}

// QueuedSubject is a newly discovered instructor awaiting priority queries.
type QueuedSubject struct {
	ID             int64
	Subject        string
	Credibility    int
	DiscoveredFrom string
	Processed      bool
	CreatedAt      time.Time
}

// Video is an admitted catalog entry. Rows are append-only; this subsystem
// never deletes them.
type Video struct {
	ID               int64
	SourceID         string
	Title            string
	SubjectName      string
	TopicName        string
	Category         string
	DurationSeconds  int
	PublishedAt      time.Time
	QualityScore     float64
	TaxonomyType     string
	TaxonomyPosition string
	TaxonomyGi       string
	Tags             []string
	AdmittedAt       time.Time
}

// Stop reasons recorded on run records. Quota exhaustion is an expected
// outcome, not an error.
const (
	StopCompleted   = "completed"
	StopQuota       = "quota"
	StopErrorBudget = "error_budget"
	StopCanceled    = "canceled"
	StopAborted     = "aborted"
)

// RunRecord captures the audit trail of one pipeline invocation.
type RunRecord struct {
	RunID           string
	StartedAt       time.Time
	CompletedAt     *time.Time
	QueriesExecuted int
	ItemsFound      int
	ItemsAnalyzed   int
	ItemsAdmitted   int
	NewSubjects     int
	QuotaUsed       int
	StopReason      string
	Errors          []string
}

// Finished reports whether the run record has been finalized.
func (r RunRecord) Finished() bool {
	return r.CompletedAt != nil
}

// DatabaseHealth captures diagnostic information about the catalog database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	TotalVideos      int
	Error            string
}
