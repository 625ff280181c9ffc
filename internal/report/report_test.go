package report_test

import (
	"bytes"
	"context"
	"testing"

	"podingest/internal/report"
	"podingest/internal/store"
	"podingest/internal/testsupport"
)

func TestBuildCountsStatusesAndTopFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	for i, s := range []store.Source{
		{ExternalID: "a", Status: store.SourceStatusCompleted},
		{ExternalID: "b", Status: store.SourceStatusCompleted},
		{ExternalID: "c", Status: store.SourceStatusFailed, FailureReason: "fetch failure: timeout"},
		{ExternalID: "d", Status: store.SourceStatusFailed, FailureReason: "fetch failure: timeout"},
		{ExternalID: "e", Status: store.SourceStatusFailed, FailureReason: "transcript unavailable"},
	} {
		s.ContentFingerprint = "fp" + string(rune('0'+i))
		if _, err := db.UpsertSource(ctx, s); err != nil {
			t.Fatalf("upsert source %d: %v", i, err)
		}
	}

	summary, err := report.Build(ctx, db, 1)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if summary.StatusCounts[store.SourceStatusCompleted] != 2 {
		t.Fatalf("expected 2 completed, got %d", summary.StatusCounts[store.SourceStatusCompleted])
	}
	if summary.StatusCounts[store.SourceStatusFailed] != 3 {
		t.Fatalf("expected 3 failed, got %d", summary.StatusCounts[store.SourceStatusFailed])
	}
	if len(summary.TopFailures) != 1 {
		t.Fatalf("expected topN=1 to truncate, got %d", len(summary.TopFailures))
	}
	if summary.TopFailures[0].Reason != "fetch failure: timeout" || summary.TopFailures[0].Count != 2 {
		t.Fatalf("unexpected top failure: %+v", summary.TopFailures[0])
	}

	var buf bytes.Buffer
	report.Render(&buf, summary)
	if buf.Len() == 0 {
		t.Fatal("expected rendered output")
	}
}
