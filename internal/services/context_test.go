package services_test

import (
	"context"
	"testing"

	"podingest/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSourceID(ctx, 42)
	ctx = services.WithStage(ctx, "transcribe")
	ctx = services.WithPool(ctx, "gpu")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.SourceIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected source id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "transcribe" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if pool, ok := services.PoolFromContext(ctx); !ok || pool != "gpu" {
		t.Fatalf("unexpected pool: %v %v", pool, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}

func TestPoolBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithPool(ctx, "")
	if _, ok := services.PoolFromContext(ctx); ok {
		t.Fatal("expected no pool value")
	}
}
