package testsupport

import (
	"context"
	"testing"

	"rollscout/internal/catalog"
	"rollscout/internal/config"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedTopic inserts a topic for tests using the provided store.
func SeedTopic(t testing.TB, store *catalog.Store, topic catalog.Topic) {
	t.Helper()

	if err := store.UpsertTopic(context.Background(), topic); err != nil {
		t.Fatalf("store.UpsertTopic: %v", err)
	}
}

// SeedSubject tracks a subject for tests using the provided store.
func SeedSubject(t testing.TB, store *catalog.Store, subject catalog.Subject) {
	t.Helper()

	if err := store.AddSubject(context.Background(), subject); err != nil {
		t.Fatalf("store.AddSubject: %v", err)
	}
}
