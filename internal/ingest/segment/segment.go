// Package segment implements the Segment Builder (C6): pure functions that
// combine word timings and speaker turns into persistable text segments,
// per spec.md §4.6. Nothing here touches I/O, the GPU, or the database —
// every function is a deterministic transform over in-memory data so it can
// be tested exhaustively without fakes.
package segment

import (
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"

	"podingest/internal/ingest/speaker"
	"podingest/internal/ingest/transcript"
)

// Geometry controls the target/hard-cap sizing and merge tolerances (spec.md
// §4.6's segment geometry knobs).
type Geometry struct {
	MinChars            int
	MaxChars            int
	HardCapChars        int
	MaxGapSec           float64
	MaxMergeDurationSec float64
}

// DefaultGeometry mirrors spec.md §4.6's defaults.
func DefaultGeometry() Geometry {
	return Geometry{
		MinChars:            200,
		MaxChars:            1200,
		HardCapChars:        1800,
		MaxGapSec:           5.0,
		MaxMergeDurationSec: 120.0,
	}
}

// Draft is a segment before persistence — ordinal is assigned last, once
// the full sequence for a source is known.
type Draft struct {
	StartSec          float64
	EndSec            float64
	Text              string
	SpeakerLabel      string
	SpeakerConfidence float64
}

type attributedWord struct {
	word  transcript.WordTiming
	label string
	confidence float64
}

// Build attaches each word to the nearest speaker turn, then accumulates
// same-speaker runs into segments honoring the geometry's size and gap
// limits, and finally merges any run that falls under MinChars into a
// neighbor (spec.md §4.6's "short segment merge pass").
func Build(words []transcript.WordTiming, assignments []speaker.Assignment, geo Geometry) []Draft {
	attributed := attributeWords(words, assignments)
	drafts := accumulate(attributed, geo)
	drafts = mergeShortSegments(drafts, geo)
	for i := range drafts {
		drafts[i].Text = normalizeText(drafts[i].Text)
		drafts[i].StartSec = round3(drafts[i].StartSec)
		drafts[i].EndSec = round3(drafts[i].EndSec)
	}
	return drafts
}

// orphanMaxDistanceSec is how far a word may sit from the nearest turn
// boundary before it is labeled Unknown instead of attached to that turn
// (spec.md §4.6's "orphan word" rule).
const orphanMaxDistanceSec = 0.5

func attributeWords(words []transcript.WordTiming, assignments []speaker.Assignment) []attributedWord {
	out := make([]attributedWord, 0, len(words))
	for _, w := range words {
		mid := (w.StartSec + w.EndSec) / 2
		label, confidence, distance := nearestTurn(mid, assignments)
		if distance > orphanMaxDistanceSec {
			label = speaker.UnknownLabel
			confidence = 0
		}
		out = append(out, attributedWord{word: w, label: label, confidence: confidence})
	}
	return out
}

func nearestTurn(mid float64, assignments []speaker.Assignment) (label string, confidence, distance float64) {
	if len(assignments) == 0 {
		return speaker.UnknownLabel, 0, math.MaxFloat64
	}
	best := math.MaxFloat64
	bestIdx := 0
	for i, a := range assignments {
		if mid >= a.Turn.StartSec && mid <= a.Turn.EndSec {
			return a.Label, a.Confidence, 0
		}
		d := math.Min(math.Abs(mid-a.Turn.StartSec), math.Abs(mid-a.Turn.EndSec))
		if d < best {
			best = d
			bestIdx = i
		}
	}
	return assignments[bestIdx].Label, assignments[bestIdx].Confidence, best
}

func accumulate(words []attributedWord, geo Geometry) []Draft {
	var drafts []Draft
	var current *Draft
	var currentLabel string
	var currentConfidences []float64
	var builder strings.Builder

	flush := func() {
		if current == nil {
			return
		}
		current.Text = builder.String()
		current.SpeakerConfidence = averageOf(currentConfidences)
		drafts = append(drafts, *current)
		current = nil
		currentConfidences = nil
		builder.Reset()
	}

	for _, aw := range words {
		text := strings.TrimSpace(aw.word.Text)
		if text == "" {
			continue
		}
		if current == nil {
			current = &Draft{StartSec: aw.word.StartSec, EndSec: aw.word.EndSec, SpeakerLabel: aw.label}
			currentLabel = aw.label
			builder.WriteString(text)
			currentConfidences = append(currentConfidences, aw.confidence)
			continue
		}

		gap := aw.word.StartSec - current.EndSec
		duration := aw.word.EndSec - current.StartSec
		projectedChars := builder.Len() + 1 + len(text)

		sameSpeaker := aw.label == currentLabel
		closeEnough := gap <= geo.MaxGapSec
		underTarget := geo.MaxChars <= 0 || builder.Len() < geo.MaxChars
		underHardCap := projectedChars <= geo.HardCapChars
		underMergeDuration := duration <= geo.MaxMergeDurationSec

		if sameSpeaker && closeEnough && underTarget && underHardCap && underMergeDuration {
			builder.WriteByte(' ')
			builder.WriteString(text)
			current.EndSec = aw.word.EndSec
			currentConfidences = append(currentConfidences, aw.confidence)
			continue
		}

		flush()
		current = &Draft{StartSec: aw.word.StartSec, EndSec: aw.word.EndSec, SpeakerLabel: aw.label}
		currentLabel = aw.label
		builder.WriteString(text)
		currentConfidences = append(currentConfidences, aw.confidence)
	}
	flush()
	return drafts
}

// mergeShortSegments folds any segment under MinChars into the next
// same-speaker segment when the combined length does not exceed the hard
// cap and the inter-segment gap does not exceed MaxGapSec; otherwise it is
// left standing (spec.md §4.6 step 3).
func mergeShortSegments(drafts []Draft, geo Geometry) []Draft {
	if len(drafts) == 0 {
		return drafts
	}
	out := make([]Draft, 0, len(drafts))
	i := 0
	for i < len(drafts) {
		d := drafts[i]
		if len(d.Text) >= geo.MinChars || i+1 >= len(drafts) {
			out = append(out, d)
			i++
			continue
		}
		next := drafts[i+1]
		gap := next.StartSec - d.EndSec
		merged := d.Text + " " + next.Text
		if d.SpeakerLabel == next.SpeakerLabel && gap <= geo.MaxGapSec && len(merged) <= geo.HardCapChars {
			out = append(out, Draft{
				StartSec:          d.StartSec,
				EndSec:            next.EndSec,
				Text:              merged,
				SpeakerLabel:      d.SpeakerLabel,
				SpeakerConfidence: (d.SpeakerConfidence + next.SpeakerConfidence) / 2,
			})
			i += 2
			continue
		}
		out = append(out, d)
		i++
	}
	return out
}

func normalizeText(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func averageOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
