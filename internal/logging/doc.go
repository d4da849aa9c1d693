// Package logging builds the slog loggers used across rollscout and the
// shared attribute helpers that keep field names consistent.
package logging
