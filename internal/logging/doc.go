// Package logging assembles structured slog loggers and formatting helpers used
// across the ingestion pipeline.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code can automatically
// tag log lines with source IDs, pipeline stages, and correlation IDs. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
//
// # Logging Contract
//
// Level semantics:
//   - INFO: narrative milestones plus decisions that change the persisted
//     segment output (transcript tier selected, speaker label assigned,
//     embedding batch outcome).
//   - WARN: degraded behavior or user action needed (fallbacks, review states).
//   - ERROR: operation failed; will stop or retry.
//   - DEBUG: raw diagnostics, per-candidate scoring, tool payloads, and
//     decisions that do not affect the persisted segments.
//
// # Required Fields by Level
//
// INFO logs must include:
//   - event_type: lifecycle event (e.g., "stage_start", "stage_complete", "status")
//
// WARN logs must include all three fields (the "WARN triad"):
//   - event_type: what happened (e.g., "diarization_degraded")
//   - error_hint: actionable next step (e.g., "check pyannote model cache")
//   - impact: user-facing consequence (e.g., "source treated as single speaker")
//
// Use WarnWithContext() helper to enforce the WARN triad automatically.
//
// ERROR logs must include:
//   - event_type: what failed
//   - error_hint: actionable next step
//   - error (via logging.Error()): the underlying error
//
// Use ErrorWithContext() helper to enforce error fields automatically.
//
// # Decision Logging
//
// Decision logs record choices that affect output. Required fields:
//   - decision_type: category (e.g., "transcript_tier", "speaker_attribution")
//   - decision_result: outcome (e.g., "accepted", "rejected", "applied", "fallback")
//   - decision_reason: why (e.g., "owner_caption_available", "confidence_below_threshold")
//   - decision_options: alternatives considered (e.g., "owner_caption, platform_caption, asr")
//   - decision_selected: chosen value (optional, for explicit selection)
//
// When truncating lists to top-N items, include a *_hidden_count field to
// surface how many entries were omitted (e.g., "failure_reason_hidden_count": 5).
//
// # Common Fields
//
// Events: event_type (stage_start, stage_complete, stage_failure)
// Decision: decision_type, decision_result, decision_reason, decision_options, decision_selected
// Errors: error_kind, error_operation, error_detail_path, error_code, error_hint, impact
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape and routing guarantees as the rest
// of the system.
package logging
