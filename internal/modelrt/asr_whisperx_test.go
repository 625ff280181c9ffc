package modelrt

import (
	"testing"

	"podingest/internal/services/whisperx"
)

func TestFlattenWordsUsesWordTimingsWhenPresent(t *testing.T) {
	segments := []whisperx.Segment{
		{
			Text:  "hello world",
			Start: 0,
			End:   1,
			Words: []whisperx.Word{
				{Word: "hello", Start: 0, End: 0.4},
				{Word: "world", Start: 0.4, End: 1},
			},
		},
	}
	words := flattenWords(segments)
	if len(words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(words))
	}
	if words[0].Text != "hello" || words[1].Text != "world" {
		t.Fatalf("unexpected words: %+v", words)
	}
}

func TestFlattenWordsFallsBackToSegmentTextWithoutWordTimings(t *testing.T) {
	segments := []whisperx.Segment{
		{Text: "no word timings", Start: 2, End: 3},
	}
	words := flattenWords(segments)
	if len(words) != 1 {
		t.Fatalf("expected 1 fallback word, got %d", len(words))
	}
	if words[0].Text != "no word timings" || words[0].StartSec != 2 || words[0].EndSec != 3 {
		t.Fatalf("unexpected fallback word: %+v", words[0])
	}
}
