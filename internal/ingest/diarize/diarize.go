// Package diarize implements the Diarizer (C4): it segments audio into
// speaker turns, with a fast-path bypass for clear monologues and a
// degraded-but-non-fatal fallback when the diarization model itself fails
// (spec.md §4.4).
package diarize

import (
	"context"
	"log/slog"
	"math"

	"podingest/internal/modelrt"
)

// Turn is a transient speaker-homogeneous time span (spec.md §3's
// SpeakerTurn), not persisted directly — it survives only through the
// segments the Segment Builder derives from it.
type Turn struct {
	StartSec  float64
	EndSec    float64
	ClusterID int
}

// Options controls the fast-path bypass and model invocation.
type Options struct {
	AssumeMonologue       bool
	FastPathMaxSampleSec  float64
	FastPathMinSimilarity float64
	MinSpeakers           int
	MaxSpeakers           int
}

// DefaultOptions mirrors spec.md §4.4's defaults.
func DefaultOptions() Options {
	return Options{
		FastPathMaxSampleSec:  60.0,
		FastPathMinSimilarity: 0.434,
		MinSpeakers:           1,
		MaxSpeakers:           8,
	}
}

// Diarizer produces speaker turns for an audio file.
type Diarizer struct {
	Model  modelrt.Diarizer
	Embed  modelrt.VoiceEmbedder
	Logger *slog.Logger
}

// Diarize returns speaker turns for the given audio file. When
// opts.AssumeMonologue is set, or a short leading sample matches the primary
// profile centroid closely enough, diarization is bypassed entirely and a
// single turn spanning the whole file is returned (spec.md §4.4's fast
// path). If the underlying model fails, a single all-audio turn with
// cluster id 0 is returned instead of failing the source — diarization
// failures are soft (spec.md §7).
func (d *Diarizer) Diarize(ctx context.Context, audioPath string, durationSec float64, primaryCentroid []float32, opts Options) ([]Turn, bool, error) {
	if opts.AssumeMonologue {
		return []Turn{{StartSec: 0, EndSec: durationSec, ClusterID: 0}}, false, nil
	}

	if len(primaryCentroid) > 0 && d.Embed != nil && opts.FastPathMaxSampleSec > 0 {
		sampleEnd := opts.FastPathMaxSampleSec
		if sampleEnd > durationSec {
			sampleEnd = durationSec
		}
		vectors, err := d.Embed.EmbedWindows(ctx, audioPath, []modelrt.Window{{StartSec: 0, EndSec: sampleEnd}})
		if err == nil && len(vectors) == 1 && vectors[0] != nil {
			if cosineSimilarity(vectors[0], primaryCentroid) >= opts.FastPathMinSimilarity {
				return []Turn{{StartSec: 0, EndSec: durationSec, ClusterID: 0}}, false, nil
			}
		}
	}

	minSpeakers, maxSpeakers := opts.MinSpeakers, opts.MaxSpeakers
	if minSpeakers <= 0 {
		minSpeakers = 1
	}
	if maxSpeakers <= 0 {
		maxSpeakers = 8
	}

	modelTurns, err := d.Model.Diarize(ctx, audioPath, minSpeakers, maxSpeakers)
	if err != nil {
		if d.Logger != nil {
			d.Logger.Warn("diarization degraded: falling back to single turn", "error", err, "audio_path", audioPath)
		}
		return []Turn{{StartSec: 0, EndSec: durationSec, ClusterID: 0}}, true, nil
	}

	turns := make([]Turn, 0, len(modelTurns))
	for _, t := range modelTurns {
		turns = append(turns, Turn{StartSec: t.StartSec, EndSec: t.EndSec, ClusterID: t.ClusterID})
	}
	if len(turns) == 0 {
		return []Turn{{StartSec: 0, EndSec: durationSec, ClusterID: 0}}, true, nil
	}
	return turns, false, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
