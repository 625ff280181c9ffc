package speaker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"podingest/internal/ingest/diarize"
	"podingest/internal/modelrt"
	"podingest/internal/store"
)

type fakeEmbedder struct {
	vectors [][]float32
}

func (f *fakeEmbedder) EmbedWindows(ctx context.Context, audioPath string, windows []modelrt.Window) ([][]float32, error) {
	return f.vectors, nil
}

func writeProfile(t *testing.T, dir, name string, centroid []float32) {
	t.Helper()
	path := filepath.Join(dir, name+".json")
	data := `{"name":"` + name + `","centroid":[`
	for i, v := range centroid {
		if i > 0 {
			data += ","
		}
		data += floatStr(v)
	}
	data += "]}"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
}

func floatStr(v float32) string {
	if v == 1 {
		return "1.0"
	}
	if v == 0 {
		return "0.0"
	}
	return "0.5"
}

func TestIdentifyAssignsPrimaryAboveThresholdWithMargin(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "primary", []float32{1, 0, 0})
	writeProfile(t, dir, "guest", []float32{0, 1, 0})
	repo, err := store.LoadVoiceProfiles(dir)
	if err != nil {
		t.Fatalf("load profiles: %v", err)
	}

	id := &Identifier{
		Embed:       &fakeEmbedder{vectors: [][]float32{{1, 0, 0}}},
		Profiles:    repo,
		PrimaryName: "primary",
		Thresholds:  DefaultThresholds(),
	}

	turns := []diarize.Turn{{StartSec: 0, EndSec: 10, ClusterID: 0}}
	assignments, err := id.Identify(context.Background(), "/tmp/a.wav", turns, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(assignments) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(assignments))
	}
	if assignments[0].Label != "primary" {
		t.Fatalf("expected primary label, got %q", assignments[0].Label)
	}
	if assignments[0].Confidence < 0.5 || assignments[0].Confidence > 1.0 {
		t.Fatalf("confidence out of range: %v", assignments[0].Confidence)
	}
}

func TestIdentifyReturnsUnknownWhenBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "primary", []float32{1, 0, 0})
	repo, err := store.LoadVoiceProfiles(dir)
	if err != nil {
		t.Fatalf("load profiles: %v", err)
	}

	id := &Identifier{
		Embed:       &fakeEmbedder{vectors: [][]float32{{0, 0, 1}}},
		Profiles:    repo,
		PrimaryName: "primary",
		Thresholds:  DefaultThresholds(),
	}

	turns := []diarize.Turn{{StartSec: 0, EndSec: 10, ClusterID: 0}}
	assignments, err := id.Identify(context.Background(), "/tmp/a.wav", turns, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assignments[0].Label != UnknownLabel {
		t.Fatalf("expected Unknown label, got %q", assignments[0].Label)
	}
	if assignments[0].Confidence != 0 {
		t.Fatalf("expected zero confidence for unknown, got %v", assignments[0].Confidence)
	}
}

func TestIdentifyReusesCachedEmbeddings(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "primary", []float32{1, 0, 0})
	repo, err := store.LoadVoiceProfiles(dir)
	if err != nil {
		t.Fatalf("load profiles: %v", err)
	}

	id := &Identifier{
		Embed:       &fakeEmbedder{vectors: nil},
		Profiles:    repo,
		PrimaryName: "primary",
		Thresholds:  DefaultThresholds(),
	}

	turns := []diarize.Turn{{StartSec: 0, EndSec: 10, ClusterID: 0}}
	cache := map[[2]float64][]float32{
		{0, 10}: {1, 0, 0},
	}
	assignments, err := id.Identify(context.Background(), "/tmp/a.wav", turns, cache)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assignments[0].Label != "primary" {
		t.Fatalf("expected primary label from cached embedding, got %q", assignments[0].Label)
	}
}
