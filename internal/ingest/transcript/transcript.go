// Package transcript implements the Transcript Acquirer (C3): a four-tier
// fallback chain that prefers owner captions, then platform auto-captions,
// then a third-party subtitle index, and finally ASR, per spec.md §4.3.
package transcript

import (
	"context"
	"fmt"

	"podingest/internal/modelrt"
	"podingest/internal/services"
)

// Provenance records which tier produced a WordTiming, for downstream
// quality weighting and debugging.
type Provenance string

const (
	ProvenanceOwnerCaption    Provenance = "owner_caption"
	ProvenancePlatformCaption Provenance = "platform_caption"
	ProvenanceThirdParty      Provenance = "third_party_subtitle"
	ProvenanceASR             Provenance = "asr"
)

// WordTiming is a single transcribed word with its timing and source tier
// (spec.md §3).
type WordTiming struct {
	Text        string
	StartSec    float64
	EndSec      float64
	Provenance  Provenance
}

// CaptionBackend retrieves a caption track for a video, returning the raw
// caption payload (VTT or SRT) and whether one was found at all.
type CaptionBackend interface {
	FetchOwnerCaption(ctx context.Context, externalID string) (raw []byte, found bool, err error)
	FetchPlatformCaption(ctx context.Context, externalID string) (raw []byte, found bool, err error)
}

// SubtitleSearcher is the narrow slice of internal/subtitles.Client this
// package depends on.
type SubtitleSearcher interface {
	Search(ctx context.Context, query string, languages []string) (fileID int64, found bool, err error)
	Download(ctx context.Context, fileID int64) (raw []byte, err error)
}

// Acquirer runs the four-tier fallback chain for one source.
type Acquirer struct {
	Captions         CaptionBackend
	Subtitles        SubtitleSearcher
	SubtitlesEnabled bool
	ASR              modelrt.ASR
	ASROptions       modelrt.ASROptions
}

// Result is the outcome of acquiring a transcript for one source.
type Result struct {
	Words      []WordTiming
	Provenance Provenance
}

// Acquire runs the fallback chain in order. A caption or subtitle tier wins
// only when it yields at least one word; the ASR tier wins whenever it runs
// without error, even with zero words (silent audio). It fails with
// ErrTranscriptUnavailable only when every tier is exhausted (spec.md §4.3).
func (a *Acquirer) Acquire(ctx context.Context, externalID, title string, audioPath string) (Result, error) {
	if a.Captions != nil {
		if raw, found, err := a.Captions.FetchOwnerCaption(ctx, externalID); err == nil && found {
			if words := parseCaptionWords(raw, ProvenanceOwnerCaption); len(words) > 0 {
				return Result{Words: words, Provenance: ProvenanceOwnerCaption}, nil
			}
		}
	}

	if a.Captions != nil {
		if raw, found, err := a.Captions.FetchPlatformCaption(ctx, externalID); err == nil && found {
			if words := parseCaptionWords(raw, ProvenancePlatformCaption); len(words) > 0 {
				return Result{Words: words, Provenance: ProvenancePlatformCaption}, nil
			}
		}
	}

	if a.SubtitlesEnabled && a.Subtitles != nil {
		if fileID, found, err := a.Subtitles.Search(ctx, title, nil); err == nil && found {
			if raw, err := a.Subtitles.Download(ctx, fileID); err == nil {
				if words := parseCaptionWords(raw, ProvenanceThirdParty); len(words) > 0 {
					return Result{Words: words, Provenance: ProvenanceThirdParty}, nil
				}
			}
		}
	}

	if a.ASR != nil {
		asrResult, err := a.ASR.Transcribe(ctx, audioPath, a.ASROptions)
		if err == nil {
			words := make([]WordTiming, 0, len(asrResult.Words))
			for _, w := range asrResult.Words {
				words = append(words, WordTiming{
					Text:       w.Text,
					StartSec:   w.StartSec,
					EndSec:     w.EndSec,
					Provenance: ProvenanceASR,
				})
			}
			// ASR ran and reported no error, so zero words here means the
			// source audio is genuinely silent, not that the tier failed.
			// That is success with an empty transcript, never
			// ErrTranscriptUnavailable (spec.md §8's silent-audio boundary
			// law: zero segments, terminal "completed", not "failed").
			return Result{Words: words, Provenance: ProvenanceASR}, nil
		}
	}

	return Result{}, services.Wrap(services.ErrTranscriptUnavailable, "transcript", externalID,
		fmt.Sprintf("all transcript tiers exhausted for %s", externalID), nil)
}
