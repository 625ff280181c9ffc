package modelrt

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder is the remote-API provider option for the Text Embedder
// (C7), per spec.md §4.7's "Backed by a configurable provider (local GPU
// model or remote API)".
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	modelKey   string
	dimensions int
}

// NewOpenAIEmbedder builds a remote text embedder. baseURL may point at an
// OpenAI-compatible endpoint; modelKey is recorded on every Segment so later
// queries can distinguish vectors produced by different providers/models.
func NewOpenAIEmbedder(apiKey, baseURL, modelKey string, dimensions int) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      openai.EmbeddingModel(modelKey),
		modelKey:   modelKey,
		dimensions: dimensions,
	}
}

// Embed calls the embeddings endpoint once for the whole batch, preserving
// input order as the API itself guarantees.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) (TextEmbeddingResult, error) {
	if len(texts) == 0 {
		return TextEmbeddingResult{ModelKey: e.modelKey, Dimensions: e.dimensions}, nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return TextEmbeddingResult{}, fmt.Errorf("openai embedder: %w", err)
	}
	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return TextEmbeddingResult{}, fmt.Errorf("openai embedder: response index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	dims := e.dimensions
	if dims == 0 && len(vectors) > 0 {
		dims = len(vectors[0])
	}
	return TextEmbeddingResult{Vectors: vectors, ModelKey: e.modelKey, Dimensions: dims}, nil
}
