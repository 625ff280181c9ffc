package segment

import (
	"testing"

	"podingest/internal/ingest/diarize"
	"podingest/internal/ingest/speaker"
	"podingest/internal/ingest/transcript"
)

func wordsFrom(texts []string, start float64, step float64) []transcript.WordTiming {
	words := make([]transcript.WordTiming, len(texts))
	for i, t := range texts {
		words[i] = transcript.WordTiming{Text: t, StartSec: start, EndSec: start + step}
		start += step
	}
	return words
}

func TestBuildAccumulatesSameSpeakerRun(t *testing.T) {
	words := wordsFrom([]string{"hello", "there", "friend"}, 0, 0.3)
	assignments := []speaker.Assignment{
		{Turn: diarize.Turn{StartSec: 0, EndSec: 10}, Label: "primary", Confidence: 0.9},
	}
	drafts := Build(words, assignments, DefaultGeometry())
	if len(drafts) != 1 {
		t.Fatalf("expected 1 segment, got %d: %+v", len(drafts), drafts)
	}
	if drafts[0].Text != "hello there friend" {
		t.Fatalf("unexpected text: %q", drafts[0].Text)
	}
	if drafts[0].SpeakerLabel != "primary" {
		t.Fatalf("unexpected label: %q", drafts[0].SpeakerLabel)
	}
}

func TestBuildSplitsOnSpeakerChange(t *testing.T) {
	words := []transcript.WordTiming{
		{Text: "hello", StartSec: 0, EndSec: 0.5},
		{Text: "world", StartSec: 0.5, EndSec: 1.0},
		{Text: "reply", StartSec: 5, EndSec: 5.5},
		{Text: "here", StartSec: 5.5, EndSec: 6.0},
	}
	assignments := []speaker.Assignment{
		{Turn: diarize.Turn{StartSec: 0, EndSec: 1}, Label: "primary", Confidence: 0.9},
		{Turn: diarize.Turn{StartSec: 5, EndSec: 6}, Label: "guest", Confidence: 0.8},
	}
	drafts := Build(words, assignments, DefaultGeometry())
	if len(drafts) != 2 {
		t.Fatalf("expected 2 segments, got %d: %+v", len(drafts), drafts)
	}
	if drafts[0].SpeakerLabel != "primary" || drafts[1].SpeakerLabel != "guest" {
		t.Fatalf("unexpected labels: %+v", drafts)
	}
}

func TestBuildSplitsOnLargeGap(t *testing.T) {
	words := []transcript.WordTiming{
		{Text: "hello", StartSec: 0, EndSec: 0.5},
		{Text: "world", StartSec: 0.5, EndSec: 1.0},
		{Text: "later", StartSec: 30, EndSec: 30.5},
	}
	assignments := []speaker.Assignment{
		{Turn: diarize.Turn{StartSec: 0, EndSec: 40}, Label: "primary", Confidence: 0.9},
	}
	geo := DefaultGeometry()
	drafts := Build(words, assignments, geo)
	if len(drafts) != 2 {
		t.Fatalf("expected 2 segments split by gap, got %d: %+v", len(drafts), drafts)
	}
}

func TestBuildOrphanWordsLabeledUnknown(t *testing.T) {
	words := []transcript.WordTiming{
		{Text: "stray", StartSec: 100, EndSec: 100.5},
	}
	assignments := []speaker.Assignment{
		{Turn: diarize.Turn{StartSec: 0, EndSec: 10}, Label: "primary", Confidence: 0.9},
	}
	drafts := Build(words, assignments, DefaultGeometry())
	if len(drafts) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(drafts))
	}
	if drafts[0].SpeakerLabel != speaker.UnknownLabel {
		t.Fatalf("expected Unknown label for orphan word, got %q", drafts[0].SpeakerLabel)
	}
}

func TestMergeShortSegmentsFoldsIntoNeighbor(t *testing.T) {
	geo := Geometry{MinChars: 50, MaxChars: 1200, HardCapChars: 1800, MaxGapSec: 2.5, MaxMergeDurationSec: 45}
	drafts := []Draft{
		{StartSec: 0, EndSec: 1, Text: "a long enough opening segment of text here", SpeakerLabel: "primary", SpeakerConfidence: 0.9},
		{StartSec: 1, EndSec: 2, Text: "short", SpeakerLabel: "primary", SpeakerConfidence: 0.8},
	}
	merged := mergeShortSegments(drafts, geo)
	if len(merged) != 1 {
		t.Fatalf("expected merge into 1 segment, got %d: %+v", len(merged), merged)
	}
}
