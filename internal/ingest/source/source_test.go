package source

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeBackend struct {
	descriptors []Descriptor
	err         error
}

func (f *fakeBackend) ListChannel(ctx context.Context, channelRef string, since *time.Time, limit int) ([]Descriptor, error) {
	return f.descriptors, f.err
}

func TestListDedupesAndFiltersLiveAndMembersOnly(t *testing.T) {
	meta := &fakeBackend{descriptors: []Descriptor{
		{ExternalID: "a", PublishedAt: time.Unix(100, 0)},
		{ExternalID: "a", PublishedAt: time.Unix(100, 0)},
		{ExternalID: "b", PublishedAt: time.Unix(200, 0), IsLiveOrUpcoming: true},
		{ExternalID: "c", PublishedAt: time.Unix(300, 0), IsMembersOnly: true},
		{ExternalID: "d", PublishedAt: time.Unix(400, 0)},
	}}
	l := &Lister{Metadata: meta}

	got, err := l.List(context.Background(), "UCtest", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 descriptors after filtering, got %d: %+v", len(got), got)
	}
	if got[0].ExternalID != "d" || got[1].ExternalID != "a" {
		t.Fatalf("expected newest-first order d,a, got %+v", got)
	}
}

func TestListSkipsShortsWhenRequested(t *testing.T) {
	meta := &fakeBackend{descriptors: []Descriptor{
		{ExternalID: "short", PublishedAt: time.Unix(100, 0), DurationSec: 45},
		{ExternalID: "long", PublishedAt: time.Unix(200, 0), DurationSec: 600},
	}}
	l := &Lister{Metadata: meta}

	got, err := l.List(context.Background(), "UCtest", Options{SkipShorts: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ExternalID != "long" {
		t.Fatalf("expected only the long video, got %+v", got)
	}
}

func TestListFallsBackToScrapeOnMetadataFailure(t *testing.T) {
	meta := &fakeBackend{err: errors.New("api key revoked")}
	scrape := &fakeBackend{descriptors: []Descriptor{{ExternalID: "x", PublishedAt: time.Unix(1, 0)}}}
	l := &Lister{Metadata: meta, Scrape: scrape}

	got, err := l.List(context.Background(), "UCtest", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ExternalID != "x" {
		t.Fatalf("expected scrape fallback result, got %+v", got)
	}
}

func TestListMergesPartialMetadataResultsOnFallback(t *testing.T) {
	meta := &fakeBackend{
		descriptors: []Descriptor{{ExternalID: "partial", PublishedAt: time.Unix(50, 0)}},
		err:         errors.New("connection reset mid-page"),
	}
	scrape := &fakeBackend{descriptors: []Descriptor{{ExternalID: "x", PublishedAt: time.Unix(1, 0)}}}
	l := &Lister{Metadata: meta, Scrape: scrape}

	got, err := l.List(context.Background(), "UCtest", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected partial metadata result merged with scrape fallback, got %+v", got)
	}
	ids := map[string]bool{}
	for _, d := range got {
		ids[d.ExternalID] = true
	}
	if !ids["partial"] || !ids["x"] {
		t.Fatalf("expected both partial and scrape descriptors present, got %+v", got)
	}
}

func TestListFailsWhenBothBackendsFail(t *testing.T) {
	meta := &fakeBackend{err: errors.New("api down")}
	scrape := &fakeBackend{err: errors.New("blocked")}
	l := &Lister{Metadata: meta, Scrape: scrape}

	_, err := l.List(context.Background(), "UCtest", Options{})
	if err == nil {
		t.Fatal("expected an error when both backends fail")
	}
}

func TestContentFingerprintChangesWithModelKeys(t *testing.T) {
	l1 := &Lister{TextEmbeddingModelKey: "text-v1", VoiceEmbeddingModelKey: "voice-v1"}
	l2 := &Lister{TextEmbeddingModelKey: "text-v2", VoiceEmbeddingModelKey: "voice-v1"}

	if l1.ContentFingerprint("abc") == l2.ContentFingerprint("abc") {
		t.Fatal("expected fingerprint to change when text embedding model key changes")
	}
	if l1.ContentFingerprint("abc") != l1.ContentFingerprint("abc") {
		t.Fatal("expected fingerprint to be stable for identical inputs")
	}
}
