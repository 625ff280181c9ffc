package transcript

import (
	"context"
	"errors"
	"testing"

	"podingest/internal/modelrt"
	"podingest/internal/services"
)

type fakeCaptions struct {
	ownerRaw    []byte
	ownerFound  bool
	platformRaw []byte
	platformFound bool
}

func (f *fakeCaptions) FetchOwnerCaption(ctx context.Context, externalID string) ([]byte, bool, error) {
	return f.ownerRaw, f.ownerFound, nil
}

func (f *fakeCaptions) FetchPlatformCaption(ctx context.Context, externalID string) ([]byte, bool, error) {
	return f.platformRaw, f.platformFound, nil
}

type fakeSubtitles struct {
	fileID int64
	found  bool
	raw    []byte
}

func (f *fakeSubtitles) Search(ctx context.Context, query string, languages []string) (int64, bool, error) {
	return f.fileID, f.found, nil
}

func (f *fakeSubtitles) Download(ctx context.Context, fileID int64) ([]byte, error) {
	return f.raw, nil
}

type fakeASR struct {
	result modelrt.ASRResult
	err    error
}

func (f *fakeASR) Transcribe(ctx context.Context, audioPath string, opts modelrt.ASROptions) (modelrt.ASRResult, error) {
	return f.result, f.err
}

const sampleVTT = `WEBVTT

00:00:00.000 --> 00:00:02.000
hello world

00:00:02.000 --> 00:00:04.000
second cue here
`

func TestAcquirePrefersOwnerCaption(t *testing.T) {
	a := &Acquirer{
		Captions: &fakeCaptions{ownerRaw: []byte(sampleVTT), ownerFound: true},
	}
	result, err := a.Acquire(context.Background(), "vid1", "title", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provenance != ProvenanceOwnerCaption {
		t.Fatalf("expected owner caption provenance, got %v", result.Provenance)
	}
	if len(result.Words) == 0 {
		t.Fatal("expected non-empty words")
	}
}

func TestAcquireFallsBackToPlatformCaption(t *testing.T) {
	a := &Acquirer{
		Captions: &fakeCaptions{platformRaw: []byte(sampleVTT), platformFound: true},
	}
	result, err := a.Acquire(context.Background(), "vid1", "title", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provenance != ProvenancePlatformCaption {
		t.Fatalf("expected platform caption provenance, got %v", result.Provenance)
	}
}

func TestAcquireFallsBackToThirdPartySubtitle(t *testing.T) {
	a := &Acquirer{
		Captions:         &fakeCaptions{},
		Subtitles:        &fakeSubtitles{fileID: 42, found: true, raw: []byte(sampleVTT)},
		SubtitlesEnabled: true,
	}
	result, err := a.Acquire(context.Background(), "vid1", "title", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provenance != ProvenanceThirdParty {
		t.Fatalf("expected third party provenance, got %v", result.Provenance)
	}
}

func TestAcquireFallsBackToASR(t *testing.T) {
	a := &Acquirer{
		Captions: &fakeCaptions{},
		ASR: &fakeASR{result: modelrt.ASRResult{Words: []modelrt.ASRWord{
			{Text: "hi", StartSec: 0, EndSec: 0.5},
		}}},
	}
	result, err := a.Acquire(context.Background(), "vid1", "title", "/tmp/audio.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provenance != ProvenanceASR {
		t.Fatalf("expected ASR provenance, got %v", result.Provenance)
	}
}

func TestAcquireSilentAudioSucceedsWithZeroWords(t *testing.T) {
	a := &Acquirer{
		Captions: &fakeCaptions{},
		ASR:      &fakeASR{result: modelrt.ASRResult{}},
	}
	result, err := a.Acquire(context.Background(), "vid1", "title", "/tmp/audio.wav")
	if err != nil {
		t.Fatalf("silent audio must not be treated as unavailable: %v", err)
	}
	if len(result.Words) != 0 {
		t.Fatalf("expected zero words for silent audio, got %d", len(result.Words))
	}
	if result.Provenance != ProvenanceASR {
		t.Fatalf("expected ASR provenance, got %v", result.Provenance)
	}
}

func TestAcquireFailsWhenAllTiersExhausted(t *testing.T) {
	a := &Acquirer{
		Captions: &fakeCaptions{},
		ASR:      &fakeASR{err: errors.New("model unavailable")},
	}
	_, err := a.Acquire(context.Background(), "vid1", "title", "/tmp/audio.wav")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, services.ErrTranscriptUnavailable) {
		t.Fatalf("expected ErrTranscriptUnavailable, got %v", err)
	}
}

func TestParseCaptionWordsDistributesTimingProportionally(t *testing.T) {
	words := parseCaptionWords([]byte(sampleVTT), ProvenanceOwnerCaption)
	if len(words) != 5 {
		t.Fatalf("expected 5 words, got %d: %+v", len(words), words)
	}
	if words[0].Text != "hello" || words[0].StartSec != 0 {
		t.Fatalf("unexpected first word: %+v", words[0])
	}
	if words[len(words)-1].EndSec > 4.0001 {
		t.Fatalf("last word should not exceed cue end: %+v", words[len(words)-1])
	}
}
