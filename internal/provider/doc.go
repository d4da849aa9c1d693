// Package provider wraps the video platform search and details API. Both
// calls consume quota units; quota exhaustion propagates as the typed
// ErrQuotaExceeded so callers can distinguish it from ordinary failures.
package provider
