// Package whisperx provides WhisperX transcription utilities for audio analysis.
//
// This package handles:
//   - Audio segment extraction (full file or time-range)
//   - WhisperX transcription invocation
//   - Transcript text extraction from results
//
// In this module the package backs the WhisperX ASR adapter in internal/modelrt
// (TranscribeFile plus LoadSegments for word timings); the extraction helpers
// are generic enough for other transcription needs.
//
// Configuration options (model, CUDA, VAD method) are passed via Config.
package whisperx
