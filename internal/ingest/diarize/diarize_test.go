package diarize

import (
	"context"
	"errors"
	"testing"

	"podingest/internal/modelrt"
)

type fakeDiarizerModel struct {
	turns []modelrt.DiarizationTurn
	err   error
}

func (f *fakeDiarizerModel) Diarize(ctx context.Context, audioPath string, minSpeakers, maxSpeakers int) ([]modelrt.DiarizationTurn, error) {
	return f.turns, f.err
}

type fakeEmbedder struct {
	vectors [][]float32
	err     error
}

func (f *fakeEmbedder) EmbedWindows(ctx context.Context, audioPath string, windows []modelrt.Window) ([][]float32, error) {
	return f.vectors, f.err
}

func TestDiarizeAssumeMonologueBypassesModel(t *testing.T) {
	d := &Diarizer{Model: &fakeDiarizerModel{err: errors.New("should not be called")}}
	turns, degraded, err := d.Diarize(context.Background(), "/tmp/a.wav", 300, nil, Options{AssumeMonologue: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if degraded {
		t.Fatal("expected not degraded for assume-monologue bypass")
	}
	if len(turns) != 1 || turns[0].EndSec != 300 {
		t.Fatalf("unexpected turns: %+v", turns)
	}
}

func TestDiarizeFastPathBypassesOnHighSimilarity(t *testing.T) {
	vec := []float32{1, 0, 0}
	d := &Diarizer{
		Model: &fakeDiarizerModel{err: errors.New("should not be called")},
		Embed: &fakeEmbedder{vectors: [][]float32{vec}},
	}
	opts := DefaultOptions()
	turns, degraded, err := d.Diarize(context.Background(), "/tmp/a.wav", 600, vec, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if degraded {
		t.Fatal("expected not degraded")
	}
	if len(turns) != 1 || turns[0].EndSec != 600 {
		t.Fatalf("expected single full-duration turn, got %+v", turns)
	}
}

func TestDiarizeFallsBackOnModelFailure(t *testing.T) {
	d := &Diarizer{Model: &fakeDiarizerModel{err: errors.New("gpu unavailable")}}
	turns, degraded, err := d.Diarize(context.Background(), "/tmp/a.wav", 120, nil, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !degraded {
		t.Fatal("expected degraded result on model failure")
	}
	if len(turns) != 1 || turns[0].ClusterID != 0 || turns[0].EndSec != 120 {
		t.Fatalf("unexpected fallback turns: %+v", turns)
	}
}

func TestDiarizeReturnsModelTurnsOnSuccess(t *testing.T) {
	d := &Diarizer{Model: &fakeDiarizerModel{turns: []modelrt.DiarizationTurn{
		{StartSec: 0, EndSec: 10, ClusterID: 0},
		{StartSec: 10, EndSec: 20, ClusterID: 1},
	}}}
	turns, degraded, err := d.Diarize(context.Background(), "/tmp/a.wav", 20, nil, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if degraded {
		t.Fatal("expected not degraded")
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %+v", turns)
	}
}
