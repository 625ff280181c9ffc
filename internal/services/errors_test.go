package services_test

import (
	"errors"
	"strings"
	"testing"

	"podingest/internal/services"
	"podingest/internal/store"
)

func TestWrapAndUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrFetchFailure, "fetch", "download", "download failed", base)
	se, ok := err.(*services.ServiceError)
	if !ok {
		t.Fatalf("expected ServiceError, got %T", err)
	}
	if se.Kind != services.ErrorKindFetchFailure {
		t.Fatalf("unexpected kind %q", se.Kind)
	}
	if se.Code != "E_FETCH" {
		t.Fatalf("unexpected code %q", se.Code)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected errors.Is to match wrapped error")
	}
	if !errors.Is(err, services.ErrFetchFailure) {
		t.Fatalf("expected errors.Is to match the fetch-failure marker")
	}
	if got := err.Error(); !strings.Contains(got, "fetch") || !strings.Contains(got, "boom") {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestWrapDetailAndHint(t *testing.T) {
	err := services.WrapDetail(services.ErrTranscriptUnavailable, "transcribe", "asr", "all tiers failed", nil, "/tmp/asr.log")
	details := services.Details(err)
	if details.DetailPath != "/tmp/asr.log" {
		t.Fatalf("expected detail path to round-trip, got %q", details.DetailPath)
	}

	hinted := services.WrapHint(services.ErrEmbeddingFailure, "embed", "batch", "oom", "E_CUSTOM", "halve batch size", nil)
	d := services.Details(hinted)
	if d.Hint != "halve batch size" || d.Code != "E_CUSTOM" {
		t.Fatalf("expected custom code/hint to be preserved, got %+v", d)
	}
}

func TestFailureStatusMapsSkippedAndFailed(t *testing.T) {
	skipErr := services.Wrap(services.ErrSourceSkipped, "fetch", "duration", "too long", nil)
	if got := services.FailureStatus(skipErr); got != store.SourceStatusSkipped {
		t.Fatalf("expected skipped status, got %s", got)
	}

	persistErr := services.Wrap(services.ErrPersistFailure, "persist", "insert", "batch error", nil)
	if got := services.FailureStatus(persistErr); got != store.SourceStatusFailed {
		t.Fatalf("expected failed status, got %s", got)
	}
}

func TestIsSoftClassifiesDegradedAndInconclusive(t *testing.T) {
	degraded := services.Wrap(services.ErrDiarizationDegraded, "diarize", "cluster", "diarizer errored", nil)
	if !services.IsSoft(degraded) {
		t.Fatal("expected diarization-degraded to be soft")
	}
	inconclusive := services.Wrap(services.ErrIdentificationInconclusive, "identify", "assign", "no profile cleared", nil)
	if !services.IsSoft(inconclusive) {
		t.Fatal("expected identification-inconclusive to be soft")
	}
	hard := services.Wrap(services.ErrPersistFailure, "persist", "insert", "batch error", nil)
	if services.IsSoft(hard) {
		t.Fatal("expected persist failure to be hard")
	}
}
