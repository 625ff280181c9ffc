// Package embed implements the Text Embedder (C7): it batches segment text
// through a configured embedding provider, retrying GPU-OOM failures with a
// halved batch size before falling back to one-at-a-time embedding, per
// spec.md §4.7.
package embed

import (
	"context"
	"errors"
	"fmt"

	"podingest/internal/modelrt"
	"podingest/internal/services"
)

// Options controls batching and retry behavior.
type Options struct {
	BatchSize               int
	PartialPersistOnFailure bool
	// ExpectedDimension, when nonzero, is the configured D_t (spec.md §3
	// invariant 2 / §6): every returned vector must have exactly this many
	// components or the segment fails fast rather than persist a row whose
	// dimension doesn't match the store's embedding column.
	ExpectedDimension int
}

// DefaultOptions mirrors spec.md §4.7's defaults for a GPU-backed model;
// callers using a remote API provider should raise BatchSize (e.g. to 256).
func DefaultOptions() Options {
	return Options{BatchSize: 64}
}

// Result is one text's embedding outcome.
type Result struct {
	Vector []float32
	Err    error
}

// Embedder wraps a modelrt.TextEmbedder with batching and OOM retry.
type Embedder struct {
	Model modelrt.TextEmbedder
}

// EmbedAll embeds every text, returning one Result per input in order. A
// batch that fails with ErrGPUOutOfMemory is retried at half the batch size
// (down to 1); a batch that still fails, for that or any other reason, is
// then embedded one text at a time, and only the texts that fail on their
// own are marked failed.
func (e *Embedder) EmbedAll(ctx context.Context, texts []string, opts Options) ([]Result, error) {
	results := make([]Result, len(texts))
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}

	for start := 0; start < len(texts); {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		vectors, err := e.embedWithRetry(ctx, batch)
		if err == nil {
			for i, v := range vectors {
				if dimErr := checkDimension(v, opts.ExpectedDimension); dimErr != nil {
					results[start+i] = Result{Err: dimErr}
					continue
				}
				results[start+i] = Result{Vector: v}
			}
			start = end
			continue
		}

		// Fall back to one-at-a-time so a single bad item doesn't fail the
		// whole batch.
		for i, text := range batch {
			v, embedErr := e.embedOne(ctx, text)
			if embedErr != nil {
				results[start+i] = Result{Err: services.Wrap(services.ErrEmbeddingFailure, "embed", "embed_one",
					"embedding failed after batch and per-item retry", embedErr)}
				continue
			}
			if dimErr := checkDimension(v, opts.ExpectedDimension); dimErr != nil {
				results[start+i] = Result{Err: dimErr}
				continue
			}
			results[start+i] = Result{Vector: v}
		}
		start = end
	}

	return results, nil
}

// checkDimension enforces spec.md §3 invariant 2: every segment's
// text_embedding dimension must equal the configured D_t, or ingestion fails
// fast rather than persist a row whose dimension doesn't match the store's
// embedding column (spec.md §8's "D_t=768, provider returns 384" scenario).
func checkDimension(vector []float32, expected int) error {
	if expected <= 0 || len(vector) == expected {
		return nil
	}
	return services.WrapHint(services.ErrEmbeddingFailure, "embed", "check_dimension",
		fmt.Sprintf("embedding dimension %d does not match configured dimension %d", len(vector), expected),
		"embedding_dimension_mismatch", "verify the embedding provider/model matches text_embedding_dimensions", nil)
}

// embedWithRetry tries the batch at the given size, halving on GPU OOM until
// it reaches 1, at which point it gives up and lets the caller fall back to
// the individual per-item path.
func (e *Embedder) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	current := batch
	for {
		result, err := e.Model.Embed(ctx, current)
		if err == nil {
			if len(current) == len(batch) {
				return result.Vectors, nil
			}
			// A sub-batch succeeded at reduced size; recombine by
			// recursing over the remainder so the caller still gets one
			// vector per original input.
			vectors := append([][]float32{}, result.Vectors...)
			rest, err := e.embedWithRetry(ctx, batch[len(current):])
			if err != nil {
				return nil, err
			}
			return append(vectors, rest...), nil
		}
		if !errors.Is(err, modelrt.ErrGPUOutOfMemory) {
			return nil, err
		}
		if len(current) <= 1 {
			return nil, err
		}
		half := len(current) / 2
		current = current[:half]
	}
}

func (e *Embedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	result, err := e.Model.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(result.Vectors) == 0 {
		return nil, errors.New("embed: provider returned no vector")
	}
	return result.Vectors[0], nil
}
