// Package modelrt defines the narrow capability contracts the ingestion
// pipeline consumes from external model families (spec.md §6: ASR,
// diarization, voice embedding, text embedding), and hosts adapters that
// implement them over subprocess-launched tooling. Selection of a concrete
// adapter is by configuration; there is no inheritance hierarchy (spec.md
// §9's "model as a set of narrow capability contracts").
package modelrt

import "context"

// ASRWord is a single recognized word with its timing.
type ASRWord struct {
	Text     string
	StartSec float64
	EndSec   float64
}

// ASRResult is one ASR pass over an audio file or chunk.
type ASRResult struct {
	Words            []ASRWord
	AvgLogProb       float64
	CompressionRatio float64
}

// ASROptions carries the tuning knobs spec.md §4.3 names for the ASR tier.
type ASROptions struct {
	BeamSize       int
	Temperatures   []float64
	WordTimestamps bool
	Language       string
}

// ASR transcribes an audio file with word-level timestamps.
type ASR interface {
	Transcribe(ctx context.Context, audioPath string, opts ASROptions) (ASRResult, error)
}

// DiarizationTurn is one non-overlapping speaker-attributed time span.
type DiarizationTurn struct {
	StartSec  float64
	EndSec    float64
	ClusterID int
}

// Diarizer produces a sorted, non-overlapping sequence of speaker turns.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string, minSpeakers, maxSpeakers int) ([]DiarizationTurn, error)
}

// Window is a time span to extract a voice embedding for.
type Window struct {
	StartSec float64
	EndSec   float64
}

// VoiceEmbedder extracts fixed-dimension, L2-normalized voice embeddings for
// a batch of time windows in one audio file. A nil entry in the returned
// slice means that window could not be embedded (e.g. below minimum
// duration), matching spec.md §6's "or None for windows that could not be
// embedded."
type VoiceEmbedder interface {
	EmbedWindows(ctx context.Context, audioPath string, windows []Window) ([][]float32, error)
}

// TextEmbeddingResult is one text-embedding batch call.
type TextEmbeddingResult struct {
	Vectors    [][]float32
	ModelKey   string
	Dimensions int
}

// TextEmbedder produces one dense vector per input string, preserving order
// (spec.md §4.7).
type TextEmbedder interface {
	Embed(ctx context.Context, texts []string) (TextEmbeddingResult, error)
}
