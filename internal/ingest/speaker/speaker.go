// Package speaker implements the Speaker Identifier (C5): it assigns a
// voice profile label and confidence to each speaker turn by comparing a
// per-turn embedding against enrolled voice profile centroids, per spec.md
// §4.5.
package speaker

import (
	"context"
	"math"

	"podingest/internal/ingest/diarize"
	"podingest/internal/modelrt"
	"podingest/internal/store"
)

const (
	// UnknownLabel marks a turn that could not be confidently attributed.
	UnknownLabel = "Unknown"
)

// Thresholds controls the assignment rule (spec.md §4.5).
type Thresholds struct {
	PrimaryMinSimilarity float64
	GuestMinSimilarity   float64
	Margin               float64
}

// DefaultThresholds mirrors spec.md §4.5's defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PrimaryMinSimilarity: 0.62,
		GuestMinSimilarity:   0.82,
		Margin:               0.05,
	}
}

// Assignment is the outcome of identifying one turn.
type Assignment struct {
	Turn           diarize.Turn
	Label          string
	Confidence     float64
	VoiceEmbedding []float32
}

// Identifier assigns speaker labels to turns.
type Identifier struct {
	Embed      modelrt.VoiceEmbedder
	Profiles   *store.VoiceProfileRepository
	PrimaryName string
	Thresholds Thresholds
}

// Identify embeds each turn and assigns it the best-matching profile label,
// or UnknownLabel when no profile clears its threshold with sufficient
// margin over the runner-up. It reuses cachedEmbeddings by rounded
// (start, end) key where present, to avoid re-extracting embeddings for
// turns unchanged across reruns.
func (id *Identifier) Identify(ctx context.Context, audioPath string, turns []diarize.Turn, cachedEmbeddings map[[2]float64][]float32) ([]Assignment, error) {
	profiles := id.Profiles.All()

	toEmbed := make([]diarize.Turn, 0, len(turns))
	toEmbedIdx := make([]int, 0, len(turns))
	assignments := make([]Assignment, len(turns))
	vectors := make([][]float32, len(turns))

	for i, t := range turns {
		key := cacheKeyFor(t.StartSec, t.EndSec)
		if cachedEmbeddings != nil {
			if v, ok := cachedEmbeddings[key]; ok {
				vectors[i] = v
				continue
			}
		}
		toEmbed = append(toEmbed, t)
		toEmbedIdx = append(toEmbedIdx, i)
	}

	if len(toEmbed) > 0 && id.Embed != nil {
		windows := make([]modelrt.Window, len(toEmbed))
		for i, t := range toEmbed {
			windows[i] = modelrt.Window{StartSec: t.StartSec, EndSec: t.EndSec}
		}
		embedded, err := id.Embed.EmbedWindows(ctx, audioPath, windows)
		if err != nil {
			return nil, err
		}
		for i, v := range embedded {
			if i < len(toEmbedIdx) {
				vectors[toEmbedIdx[i]] = v
			}
		}
	}

	for i, t := range turns {
		label, confidence := id.assign(vectors[i], profiles)
		assignments[i] = Assignment{Turn: t, Label: label, Confidence: confidence, VoiceEmbedding: vectors[i]}
	}
	return assignments, nil
}

// cacheRoundingEpsilon matches internal/store's rounding convention for
// cached_voice_embeddings keys, so lookups here hit entries written there.
const cacheRoundingEpsilon = 0.01

func cacheKeyFor(start, end float64) [2]float64 {
	return [2]float64{roundTo(start), roundTo(end)}
}

func roundTo(v float64) float64 {
	return math.Round(v/cacheRoundingEpsilon) * cacheRoundingEpsilon
}

func (id *Identifier) assign(embedding []float32, profiles []store.VoiceProfile) (string, float64) {
	if len(embedding) == 0 || len(profiles) == 0 {
		return UnknownLabel, 0
	}

	type scored struct {
		profile store.VoiceProfile
		sim     float64
	}
	scoredProfiles := make([]scored, 0, len(profiles))
	for _, p := range profiles {
		scoredProfiles = append(scoredProfiles, scored{profile: p, sim: cosineSimilarity(embedding, p.Centroid)})
	}
	for i := 1; i < len(scoredProfiles); i++ {
		for j := i; j > 0 && scoredProfiles[j].sim > scoredProfiles[j-1].sim; j-- {
			scoredProfiles[j], scoredProfiles[j-1] = scoredProfiles[j-1], scoredProfiles[j]
		}
	}

	best := scoredProfiles[0]
	threshold := id.Thresholds.GuestMinSimilarity
	if best.profile.Name == id.PrimaryName {
		threshold = id.Thresholds.PrimaryMinSimilarity
	}
	if best.sim < threshold {
		return UnknownLabel, 0
	}

	margin := id.Thresholds.Margin
	if len(scoredProfiles) > 1 {
		runnerUp := scoredProfiles[1].sim
		if best.sim-runnerUp < margin {
			return UnknownLabel, 0
		}
	}

	return best.profile.Name, confidenceFromSimilarity(best.sim, threshold)
}

// confidenceFromSimilarity implements the pinned linear mapping from
// [threshold, 1] to [0.5, 1.0], clamped.
func confidenceFromSimilarity(sim, threshold float64) float64 {
	if threshold >= 1 {
		return 0.5
	}
	confidence := 0.5 + 0.5*(sim-threshold)/(1-threshold)
	if confidence < 0.5 {
		return 0.5
	}
	if confidence > 1.0 {
		return 1.0
	}
	return confidence
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
