package services

import (
	"errors"
	"fmt"
	"strings"

	"podingest/internal/store"
)

// Sentinel markers for the ingestion error taxonomy (spec.md §7). Each
// component error is wrapped with one of these so the orchestrator can
// classify it without string matching.
var (
	ErrSourceSkipped            = errors.New("source skipped")
	ErrSourceDiscoveryError     = errors.New("source discovery error")
	ErrFetchFailure             = errors.New("fetch failure")
	ErrTranscriptUnavailable    = errors.New("transcript unavailable")
	ErrDiarizationDegraded      = errors.New("diarization degraded")
	ErrIdentificationInconclusive = errors.New("identification inconclusive")
	ErrEmbeddingFailure         = errors.New("embedding failure")
	ErrPersistFailure           = errors.New("persist failure")
	ErrCancelled                = errors.New("cancelled")
)

// ErrorKind captures the taxonomy of pipeline errors named in spec.md §7.
type ErrorKind string

const (
	ErrorKindSourceSkipped            ErrorKind = "source_skipped"
	ErrorKindSourceDiscoveryError     ErrorKind = "source_discovery_error"
	ErrorKindFetchFailure             ErrorKind = "fetch_failure"
	ErrorKindTranscriptUnavailable    ErrorKind = "transcript_unavailable"
	ErrorKindDiarizationDegraded      ErrorKind = "diarization_degraded"
	ErrorKindIdentificationInconclusive ErrorKind = "identification_inconclusive"
	ErrorKindEmbeddingFailure         ErrorKind = "embedding_failure"
	ErrorKindPersistFailure           ErrorKind = "persist_failure"
	ErrorKindCancelled                ErrorKind = "cancelled"
)

// ServiceError provides structured error context for a failed pipeline stage.
type ServiceError struct {
	Marker     error
	Kind       ErrorKind
	Stage      string
	Operation  string
	Message    string
	Code       string
	Hint       string
	DetailPath string
	Cause      error
}

func (e *ServiceError) Error() string {
	if e == nil {
		return ""
	}
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if detail == "" {
		detail = "pipeline stage failure"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", detail, e.Cause)
	}
	return detail
}

func (e *ServiceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *ServiceError) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	if e.Marker != nil && errors.Is(e.Marker, target) {
		return true
	}
	return errors.Is(e.Cause, target)
}

// ErrorDetails exposes a snapshot of a ServiceError for structured logging.
type ErrorDetails struct {
	Kind       ErrorKind
	Stage      string
	Operation  string
	Message    string
	Code       string
	Hint       string
	DetailPath string
	Cause      error
}

// Details extracts structured error information when available.
func Details(err error) ErrorDetails {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr != nil {
		return ErrorDetails{
			Kind:       svcErr.Kind,
			Stage:      svcErr.Stage,
			Operation:  svcErr.Operation,
			Message:    strings.TrimSpace(svcErr.Message),
			Code:       strings.TrimSpace(svcErr.Code),
			Hint:       strings.TrimSpace(svcErr.Hint),
			DetailPath: strings.TrimSpace(svcErr.DetailPath),
			Cause:      svcErr.Cause,
		}
	}
	return ErrorDetails{
		Kind:    ErrorKindPersistFailure,
		Message: strings.TrimSpace(errorMessage(err)),
		Cause:   err,
	}
}

// Wrap builds an error that carries stage context and is tagged with one
// of the sentinel markers above for later classification.
func Wrap(marker error, stage, operation, message string, err error) error {
	return wrapWithOptions(marker, stage, operation, message, err)
}

// WrapDetail attaches a detail path (e.g. a captured subprocess log) to the
// resulting error.
func WrapDetail(marker error, stage, operation, message string, err error, detailPath string) error {
	return wrapWithOptions(marker, stage, operation, message, err, WithDetailPath(detailPath))
}

// WrapHint attaches a stable error code and a human hint to the resulting error.
func WrapHint(marker error, stage, operation, message, code, hint string, err error) error {
	return wrapWithOptions(marker, stage, operation, message, err, WithCode(code), WithHint(hint))
}

type wrapOption func(*ServiceError)

func WithDetailPath(path string) wrapOption {
	return func(err *ServiceError) {
		if err != nil {
			err.DetailPath = strings.TrimSpace(path)
		}
	}
}

func WithCode(code string) wrapOption {
	return func(err *ServiceError) {
		if err != nil {
			err.Code = strings.TrimSpace(code)
		}
	}
}

func WithHint(hint string) wrapOption {
	return func(err *ServiceError) {
		if err != nil {
			err.Hint = strings.TrimSpace(hint)
		}
	}
}

func wrapWithOptions(marker error, stage, operation, message string, err error, opts ...wrapOption) error {
	if marker == nil {
		marker = ErrPersistFailure
	}
	kind, code := classifyMarker(marker)
	serviceErr := &ServiceError{
		Marker:    marker,
		Kind:      kind,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Code:      code,
		Cause:     err,
	}
	if err != nil {
		var nested *ServiceError
		if errors.As(err, &nested) && nested != nil {
			if strings.TrimSpace(serviceErr.DetailPath) == "" {
				serviceErr.DetailPath = nested.DetailPath
			}
			if strings.TrimSpace(serviceErr.Code) == "" {
				serviceErr.Code = nested.Code
			}
			if strings.TrimSpace(serviceErr.Hint) == "" {
				serviceErr.Hint = nested.Hint
			}
		}
	}
	for _, opt := range opts {
		opt(serviceErr)
	}
	return serviceErr
}

// FailureStatus maps a stage error to the source status the orchestrator
// should persist after the stage fails. Soft failures (skip, degraded
// diarization, inconclusive identification) never reach here — those are
// handled inline by their component and never escape as an error; only
// hard failures classify to a terminal status.
func FailureStatus(err error) store.SourceStatus {
	switch {
	case errors.Is(err, ErrSourceSkipped):
		return store.SourceStatusSkipped
	case errors.Is(err, ErrCancelled):
		// Cancellation leaves the source at its last safe boundary; callers
		// must not invoke FailureStatus for a Cancelled error — see
		// spec.md §7 "Cancelled: ... source status is left at its last
		// safe boundary." Returning failed here is a defensive fallback,
		// not the intended path.
		return store.SourceStatusFailed
	default:
		return store.SourceStatusFailed
	}
}

// IsSoft reports whether err represents one of the taxonomy's "soft"
// failures (spec.md §7): the source proceeds or is skipped rather than
// failing outright.
func IsSoft(err error) bool {
	return errors.Is(err, ErrSourceSkipped) ||
		errors.Is(err, ErrDiarizationDegraded) ||
		errors.Is(err, ErrIdentificationInconclusive)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline stage failure"
	}
	return strings.Join(parts, ": ")
}

func classifyMarker(marker error) (ErrorKind, string) {
	switch {
	case errors.Is(marker, ErrSourceSkipped):
		return ErrorKindSourceSkipped, "E_SOURCE_SKIPPED"
	case errors.Is(marker, ErrSourceDiscoveryError):
		return ErrorKindSourceDiscoveryError, "E_SOURCE_DISCOVERY"
	case errors.Is(marker, ErrFetchFailure):
		return ErrorKindFetchFailure, "E_FETCH"
	case errors.Is(marker, ErrTranscriptUnavailable):
		return ErrorKindTranscriptUnavailable, "E_TRANSCRIPT_UNAVAILABLE"
	case errors.Is(marker, ErrDiarizationDegraded):
		return ErrorKindDiarizationDegraded, "E_DIARIZATION_DEGRADED"
	case errors.Is(marker, ErrIdentificationInconclusive):
		return ErrorKindIdentificationInconclusive, "E_IDENTIFICATION_INCONCLUSIVE"
	case errors.Is(marker, ErrEmbeddingFailure):
		return ErrorKindEmbeddingFailure, "E_EMBEDDING"
	case errors.Is(marker, ErrPersistFailure):
		return ErrorKindPersistFailure, "E_PERSIST"
	case errors.Is(marker, ErrCancelled):
		return ErrorKindCancelled, "E_CANCELLED"
	default:
		return ErrorKindPersistFailure, "E_PERSIST"
	}
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
