package embed

import (
	"context"
	"errors"
	"testing"

	"podingest/internal/modelrt"
)

type fakeModel struct {
	oomThreshold int // batches with len > threshold return ErrGPUOutOfMemory
	failAlways   error
	calls        [][]string
}

func (f *fakeModel) Embed(ctx context.Context, texts []string) (modelrt.TextEmbeddingResult, error) {
	f.calls = append(f.calls, append([]string{}, texts...))
	if f.failAlways != nil {
		return modelrt.TextEmbeddingResult{}, f.failAlways
	}
	if f.oomThreshold > 0 && len(texts) > f.oomThreshold {
		return modelrt.TextEmbeddingResult{}, modelrt.ErrGPUOutOfMemory
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i)}
	}
	return modelrt.TextEmbeddingResult{Vectors: vectors, ModelKey: "test"}, nil
}

func TestEmbedAllSucceedsInOneBatch(t *testing.T) {
	model := &fakeModel{}
	e := &Embedder{Model: model}
	texts := []string{"a", "b", "c"}
	results, err := e.EmbedAll(context.Background(), texts, Options{BatchSize: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("unexpected per-item error at %d: %v", i, r.Err)
		}
	}
	if len(model.calls) != 1 {
		t.Fatalf("expected a single batch call, got %d", len(model.calls))
	}
}

func TestEmbedAllHalvesBatchOnOOM(t *testing.T) {
	model := &fakeModel{oomThreshold: 2}
	e := &Embedder{Model: model}
	texts := []string{"a", "b", "c", "d"}
	results, err := e.EmbedAll(context.Background(), texts, Options{BatchSize: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("unexpected per-item error at %d: %v", i, r.Err)
		}
	}
	if len(model.calls) < 2 {
		t.Fatalf("expected more than one call due to halving, got %d", len(model.calls))
	}
}

func TestEmbedAllFallsBackPerItemOnNonOOMFailure(t *testing.T) {
	model := &fakeModel{failAlways: errors.New("service unavailable")}
	e := &Embedder{Model: model}
	texts := []string{"a", "b"}
	results, err := e.EmbedAll(context.Background(), texts, Options{BatchSize: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range results {
		if r.Err == nil {
			t.Fatalf("expected per-item error at %d", i)
		}
	}
}
