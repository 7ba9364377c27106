package testsupport

import (
	"context"
	"testing"

	"shotline/internal/config"
	"shotline/internal/jobstore"
)

// MustOpenStore opens a jobstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobstore.Store {
	t.Helper()

	store, err := jobstore.Open(cfg)
	if err != nil {
		t.Fatalf("jobstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob inserts a queued job for tests using the provided store.
func NewJob(t testing.TB, store *jobstore.Store, id, source string) *jobstore.Job {
	t.Helper()

	job, err := store.Create(context.Background(), jobstore.Job{ID: id, Source: source, Stack: "product-images"})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}
