package modelrt

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIASR is the remote-API fallback tier for the ASR contract, used only
// when no local WhisperX model is configured (spec.md §4.3's ASR tier still
// applies; the provider backing it is swappable, same as the Text Embedder's
// local/remote split in §4.7).
type OpenAIASR struct {
	client *openai.Client
	model  string
}

// NewOpenAIASR builds a remote ASR adapter against the OpenAI-compatible
// audio transcription endpoint.
func NewOpenAIASR(apiKey, baseURL, model string) *OpenAIASR {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIASR{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Transcribe calls the transcription endpoint with word-level timestamp
// granularity and maps the response into word timings.
func (a *OpenAIASR) Transcribe(ctx context.Context, audioPath string, opts ASROptions) (ASRResult, error) {
	req := openai.AudioRequest{
		Model:                  a.model,
		FilePath:               audioPath,
		Format:                 openai.AudioResponseFormatVerboseJSON,
		Language:               opts.Language,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{openai.TranscriptionTimestampGranularityWord},
	}
	resp, err := a.client.CreateTranscription(ctx, req)
	if err != nil {
		return ASRResult{}, fmt.Errorf("openai asr: %w", err)
	}

	words := make([]ASRWord, 0, len(resp.Words))
	for _, w := range resp.Words {
		words = append(words, ASRWord{Text: w.Word, StartSec: w.Start, EndSec: w.End})
	}
	return ASRResult{Words: words}, nil
}
