package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"podingest/internal/config"
	"podingest/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.SourceChannelID = "UCtest"
	cfg.StagingDir = filepath.Join(base, "staging")
	cfg.AudioDir = filepath.Join(base, "audio")
	cfg.LogDir = filepath.Join(base, "logs")
	cfg.StoreDir = filepath.Join(base, "store")
	cfg.VoiceProfileDir = filepath.Join(base, "voices")
	return &cfg
}

func TestUpsertSourceInsertsAndUpdates(t *testing.T) {
	cfg := testConfig(t)
	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	id, err := s.UpsertSource(ctx, store.Source{
		ExternalID:         "abc123",
		Title:              "Episode One",
		DurationSec:        600,
		Classification:     store.ClassificationMonologue,
		Status:             store.SourceStatusPending,
		ContentFingerprint: "fp-1",
	})
	if err != nil {
		t.Fatalf("UpsertSource failed: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero source id")
	}

	fetched, err := s.GetByExternalID(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetByExternalID failed: %v", err)
	}
	if fetched == nil || fetched.Title != "Episode One" {
		t.Fatalf("unexpected fetched source: %#v", fetched)
	}

	secondID, err := s.UpsertSource(ctx, store.Source{
		ExternalID:         "abc123",
		Title:              "Episode One (renamed)",
		DurationSec:        600,
		ContentFingerprint: "fp-1",
	})
	if err != nil {
		t.Fatalf("UpsertSource (update) failed: %v", err)
	}
	if secondID != id {
		t.Fatalf("expected same id on update, got %d want %d", secondID, id)
	}

	renamed, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if renamed.Title != "Episode One (renamed)" {
		t.Fatalf("expected title to update, got %q", renamed.Title)
	}
}

func TestUpsertSourceFingerprintChangeResetsToPending(t *testing.T) {
	cfg := testConfig(t)
	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	id, err := s.UpsertSource(ctx, store.Source{
		ExternalID:         "xyz",
		Title:              "Episode Two",
		Status:             store.SourceStatusCompleted,
		ContentFingerprint: "fp-old",
	})
	if err != nil {
		t.Fatalf("UpsertSource failed: %v", err)
	}

	if _, err := s.UpsertSource(ctx, store.Source{
		ExternalID:         "xyz",
		Title:              "Episode Two",
		ContentFingerprint: "fp-new",
	}); err != nil {
		t.Fatalf("UpsertSource (fingerprint change) failed: %v", err)
	}

	src, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if src.Status != store.SourceStatusPending {
		t.Fatalf("expected status reset to pending after fingerprint change, got %s", src.Status)
	}
}

func TestInsertSegmentsUpsertsOnUniquenessKey(t *testing.T) {
	cfg := testConfig(t)
	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	sourceID, err := s.UpsertSource(ctx, store.Source{ExternalID: "seg-src", Title: "Seg Source"})
	if err != nil {
		t.Fatalf("UpsertSource failed: %v", err)
	}

	segments := []store.Segment{
		{Ordinal: 0, StartSec: 0, EndSec: 5, Text: "hello world", SpeakerLabel: "Unknown", TextEmbedding: []float32{0.1, 0.2}},
		{Ordinal: 1, StartSec: 5, EndSec: 10, Text: "second segment", SpeakerLabel: "Chaffee", SpeakerConfidence: 0.9, TextEmbedding: []float32{0.3, 0.4}},
	}
	count, err := s.InsertSegments(ctx, sourceID, segments, 1)
	if err != nil {
		t.Fatalf("InsertSegments failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 inserted rows, got %d", count)
	}

	src, err := s.GetByID(ctx, sourceID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if src.Status != store.SourceStatusCompleted {
		t.Fatalf("expected source to be completed after persist, got %s", src.Status)
	}

	stored, err := s.SegmentsForSource(ctx, sourceID)
	if err != nil {
		t.Fatalf("SegmentsForSource failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored segments, got %d", len(stored))
	}
	if stored[0].StartSec != 0 || stored[1].StartSec != 5 {
		t.Fatalf("expected segments ordered by start_sec, got %+v", stored)
	}

	// Re-insert with an updated speaker label; should update in place, not duplicate.
	segments[0].SpeakerLabel = "Chaffee"
	segments[0].SpeakerConfidence = 0.95
	if _, err := s.InsertSegments(ctx, sourceID, segments[:1], 512); err != nil {
		t.Fatalf("re-insert failed: %v", err)
	}
	stored, err = s.SegmentsForSource(ctx, sourceID)
	if err != nil {
		t.Fatalf("SegmentsForSource failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected upsert to keep row count at 2, got %d", len(stored))
	}
	if stored[0].SpeakerLabel != "Chaffee" || stored[0].SpeakerConfidence != 0.95 {
		t.Fatalf("expected speaker label/confidence to refresh, got %+v", stored[0])
	}
}

func TestInsertSegmentsRejectsInconsistentEmbeddingDimensions(t *testing.T) {
	cfg := testConfig(t)
	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	sourceID, err := s.UpsertSource(ctx, store.Source{ExternalID: "dim-src", Title: "Dim Source"})
	if err != nil {
		t.Fatalf("UpsertSource failed: %v", err)
	}

	segments := []store.Segment{
		{Ordinal: 0, StartSec: 0, EndSec: 5, Text: "a", SpeakerLabel: "Unknown", TextEmbedding: []float32{0.1, 0.2, 0.3}},
		{Ordinal: 1, StartSec: 5, EndSec: 10, Text: "b", SpeakerLabel: "Unknown", TextEmbedding: []float32{0.1, 0.2}},
	}
	if _, err := s.InsertSegments(ctx, sourceID, segments, 512); err == nil {
		t.Fatal("expected an error for inconsistent text_embedding dimensions")
	}
}

func TestCachedVoiceEmbeddingsRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	sourceID, err := s.UpsertSource(ctx, store.Source{ExternalID: "cache-src", Title: "Cache Source"})
	if err != nil {
		t.Fatalf("UpsertSource failed: %v", err)
	}

	if err := s.StoreCachedVoiceEmbedding(ctx, store.CachedVoiceEmbedding{
		SourceID:        sourceID,
		StartSecRounded: 1.004,
		EndSecRounded:   3.996,
		VoiceEmbedding:  []float32{0.5, -0.5},
	}); err != nil {
		t.Fatalf("StoreCachedVoiceEmbedding failed: %v", err)
	}

	cached := s.CachedVoiceEmbeddings(ctx, sourceID)
	if len(cached) != 1 {
		t.Fatalf("expected 1 cached embedding, got %d", len(cached))
	}

	if err := s.InvalidateCachedVoiceEmbeddings(ctx, sourceID); err != nil {
		t.Fatalf("InvalidateCachedVoiceEmbeddings failed: %v", err)
	}
	cached = s.CachedVoiceEmbeddings(ctx, sourceID)
	if len(cached) != 0 {
		t.Fatalf("expected cache to be empty after invalidation, got %d", len(cached))
	}
}

func TestReclaimStaleProcessingResetsExpiredHeartbeats(t *testing.T) {
	cfg := testConfig(t)
	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	id, err := s.UpsertSource(ctx, store.Source{ExternalID: "stale-src", Title: "Stale", Status: store.SourceStatusFetched})
	if err != nil {
		t.Fatalf("UpsertSource failed: %v", err)
	}
	if err := s.AdvanceStatus(ctx, id, store.SourceStatusFetched, ""); err != nil {
		t.Fatalf("AdvanceStatus failed: %v", err)
	}
	if err := s.UpdateHeartbeat(ctx, id); err != nil {
		t.Fatalf("UpdateHeartbeat failed: %v", err)
	}

	affected, err := s.ReclaimStaleProcessing(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStaleProcessing failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 reclaimed source, got %d", affected)
	}

	src, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if src.Status != store.SourceStatusPending {
		t.Fatalf("expected source reset to pending, got %s", src.Status)
	}
}

func TestReingestClearsFailureReason(t *testing.T) {
	cfg := testConfig(t)
	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	id, err := s.UpsertSource(ctx, store.Source{ExternalID: "fail-src", Title: "Failed"})
	if err != nil {
		t.Fatalf("UpsertSource failed: %v", err)
	}
	if err := s.AdvanceStatus(ctx, id, store.SourceStatusFailed, "boom"); err != nil {
		t.Fatalf("AdvanceStatus failed: %v", err)
	}

	affected, err := s.Reingest(ctx, id)
	if err != nil {
		t.Fatalf("Reingest failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 reingested source, got %d", affected)
	}

	src, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if src.Status != store.SourceStatusPending || src.FailureReason != "" {
		t.Fatalf("expected pending status and cleared failure reason, got %+v", src)
	}
}

func TestHealthAggregatesCounts(t *testing.T) {
	cfg := testConfig(t)
	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	if _, err := s.UpsertSource(ctx, store.Source{ExternalID: "h1", Title: "one", Status: store.SourceStatusPending}); err != nil {
		t.Fatalf("UpsertSource failed: %v", err)
	}
	id2, err := s.UpsertSource(ctx, store.Source{ExternalID: "h2", Title: "two"})
	if err != nil {
		t.Fatalf("UpsertSource failed: %v", err)
	}
	if err := s.AdvanceStatus(ctx, id2, store.SourceStatusFailed, "boom"); err != nil {
		t.Fatalf("AdvanceStatus failed: %v", err)
	}

	summary, err := s.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if summary.Total != 2 || summary.Pending != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected health summary: %+v", summary)
	}
}
