package testsupport

import (
	"context"
	"testing"

	"podingest/internal/config"
	"podingest/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// NewSource upserts a new source for tests using the provided store.
func NewSource(t testing.TB, s *store.Store, externalID, title string) *store.Source {
	t.Helper()

	id, err := s.UpsertSource(context.Background(), store.Source{
		ExternalID: externalID,
		Title:      title,
		Status:     store.SourceStatusPending,
	})
	if err != nil {
		t.Fatalf("store.UpsertSource: %v", err)
	}
	src, err := s.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("store.GetByID: %v", err)
	}
	return src
}
