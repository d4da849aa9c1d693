// Package catalog manages rollscout persistence backed by SQLite: the
// admitted video corpus, the evolving subject/topic search space, rotation
// state, and run records.
package catalog
