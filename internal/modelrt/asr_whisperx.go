package modelrt

import (
	"context"
	"fmt"
	"os"

	"podingest/internal/services/whisperx"
)

// WhisperXASR adapts the teacher's uvx-launched WhisperX service to the ASR
// contract used by the transcript acquirer's ASR tier.
type WhisperXASR struct {
	svc       *whisperx.Service
	workDir   string
	huggingFaceToken string
}

// NewWhisperXASR builds a WhisperX-backed ASR adapter. workDir holds
// per-call scratch output (WhisperX writes .srt/.json next to its input).
func NewWhisperXASR(model string, cudaEnabled bool, vadMethod, ffmpegBinary, workDir, hfToken string) *WhisperXASR {
	cfg := whisperx.Config{
		Model:       model,
		CUDAEnabled: cudaEnabled,
		VADMethod:   vadMethod,
		HFToken:     hfToken,
	}
	return &WhisperXASR{
		svc:              whisperx.NewService(cfg, ffmpegBinary),
		workDir:          workDir,
		huggingFaceToken: hfToken,
	}
}

// Transcribe runs WhisperX up to once per entry in opts.Temperatures (at
// least once), stopping at the first pass that yields at least one word.
// The temperature values are not passed to WhisperX: every pass runs with
// the same arguments, including the fixed whisperx.Temperature, so a later
// pass repeats the earlier one. WhisperX's JSON output does not surface
// per-segment average log-probability or compression ratio, so those two
// ASRResult fields are left at zero, and a further pass is triggered only
// by an error or by a pass that produced no words.
func (a *WhisperXASR) Transcribe(ctx context.Context, audioPath string, opts ASROptions) (ASRResult, error) {
	if err := os.MkdirAll(a.workDir, 0o755); err != nil {
		return ASRResult{}, fmt.Errorf("whisperx asr: ensure work dir: %w", err)
	}

	temperatures := opts.Temperatures
	if len(temperatures) == 0 {
		temperatures = []float64{0.0}
	}

	var lastErr error
	for range temperatures {
		result, err := a.svc.TranscribeFile(ctx, audioPath, a.workDir, opts.Language)
		if err != nil {
			lastErr = err
			continue
		}
		segments, err := whisperx.LoadSegments(result.JSONPath)
		if err != nil {
			lastErr = err
			continue
		}
		words := flattenWords(segments)
		if len(words) > 0 {
			return ASRResult{Words: words}, nil
		}
	}
	if lastErr != nil {
		return ASRResult{}, fmt.Errorf("whisperx asr: all temperature passes failed: %w", lastErr)
	}
	return ASRResult{}, nil
}

func flattenWords(segments []whisperx.Segment) []ASRWord {
	var words []ASRWord
	for _, seg := range segments {
		if len(seg.Words) == 0 && seg.Text != "" {
			words = append(words, ASRWord{Text: seg.Text, StartSec: seg.Start, EndSec: seg.End})
			continue
		}
		for _, w := range seg.Words {
			words = append(words, ASRWord{Text: w.Word, StartSec: w.Start, EndSec: w.End})
		}
	}
	return words
}
