package logging

// Standardized structured log field names.
const (
	FieldComponent  = "component"
	FieldEventType  = "event_type"
	FieldErrorHint  = "error_hint"
	FieldRunID      = "run_id"
	FieldQuery      = "query"
	FieldQueryHash  = "query_hash"
	FieldSourceID   = "source_id"
	FieldSubject    = "subject"
	FieldTopic      = "topic"
	FieldStopReason = "stop_reason"
	FieldQuotaUsed  = "quota_used"
)
