package stage

import (
	"context"
	"log/slog"

	"podingest/internal/store"
)

// Handler describes the contract the pipeline orchestrator needs from each
// pipeline stage (fetch, transcribe, diarize, identify, segment, embed,
// persist) to run it against a source.
type Handler interface {
	Prepare(context.Context, *store.Source) error
	Execute(context.Context, *store.Source) error
	HealthCheck(context.Context) Health
}

// LoggerAware is implemented by stages that accept a per-source logger.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
