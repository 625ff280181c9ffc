// Package orchestrator implements the Pipeline Orchestrator (C9): it drives
// every source through C1-C8 across three bounded worker pools (I/O, GPU,
// DB), serializing GPU model access with a mutual-exclusion lock, per
// spec.md §5.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"podingest/internal/ingest/diarize"
	"podingest/internal/ingest/embed"
	"podingest/internal/ingest/fetch"
	"podingest/internal/ingest/segment"
	"podingest/internal/ingest/source"
	"podingest/internal/ingest/speaker"
	"podingest/internal/ingest/transcript"
	"podingest/internal/logging"
	"podingest/internal/services"
	"podingest/internal/store"
)

// Timeouts controls the per-tier deadlines of spec.md §5.
type Timeouts struct {
	Fetch              time.Duration
	TranscribePerSec   time.Duration // multiplied by source duration
	DiarizePerSec      time.Duration
	IdentifyPerSec     time.Duration
	EmbedPerBatch      time.Duration
	PersistPerBatch    time.Duration
}

// DefaultTimeouts mirrors spec.md §5's multipliers.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Fetch:           20 * time.Minute,
		EmbedPerBatch:   5 * time.Minute,
		PersistPerBatch: 2 * time.Minute,
	}
}

// Pools sizes the three worker pools.
type Pools struct {
	IOWorkers  int
	GPUWorkers int
	DBWorkers  int
}

// Orchestrator wires the C1-C8 components together and drives sources
// through the pipeline under bounded concurrency.
type Orchestrator struct {
	Store        *store.Store
	Lister       *source.Lister
	Fetcher      *fetch.Fetcher
	Transcripts  *transcript.Acquirer
	Diarizer     *diarize.Diarizer
	Identifier   *speaker.Identifier
	Segmenter    segment.Geometry
	Embedder     *embed.Embedder
	EmbedOptions embed.Options

	Logger   *slog.Logger
	Pools    Pools
	Timeouts Timeouts

	PrimaryProfileCentroid []float32
	DiarizeOptions         diarize.Options

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// OnSourceComplete, if set, is called once per source after
	// processSource returns (success, failure, or skip alike), so a caller
	// can drive a progress indicator against the discovered source count.
	OnSourceComplete func()

	ioSem    *semaphore.Weighted
	gpuSem   *semaphore.Weighted
	modelSem *semaphore.Weighted
	dbSem    *semaphore.Weighted
}

func (o *Orchestrator) init() {
	if o.ioSem == nil {
		workers := o.Pools.IOWorkers
		if workers <= 0 {
			workers = 4
		}
		o.ioSem = semaphore.NewWeighted(int64(workers))
	}
	if o.gpuSem == nil {
		workers := o.Pools.GPUWorkers
		if workers <= 0 {
			workers = 1
		}
		o.gpuSem = semaphore.NewWeighted(int64(workers))
	}
	if o.modelSem == nil {
		// Exactly one GPU model may run at a time regardless of GPUWorkers,
		// since ASR/diarization/voice-embedding models cannot share device
		// memory concurrently (spec.md §5's "GPU-model mutual exclusion").
		o.modelSem = semaphore.NewWeighted(1)
	}
	if o.dbSem == nil {
		workers := o.Pools.DBWorkers
		if workers <= 0 {
			workers = 2
		}
		o.dbSem = semaphore.NewWeighted(int64(workers))
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
}

// ensureRunID stamps a correlation identifier onto ctx if one isn't already
// present, so every log line emitted for this invocation (across all worker
// goroutines) carries the same correlation_id.
func ensureRunID(ctx context.Context) context.Context {
	if _, ok := services.RequestIDFromContext(ctx); ok {
		return ctx
	}
	return services.WithRequestID(ctx, uuid.NewString())
}

// Run discovers sources for channelRef and processes every pending one
// through the full pipeline, bounded by the configured worker pools.
func (o *Orchestrator) Run(ctx context.Context, channelRef string, listOpts source.Options) error {
	o.init()
	ctx = ensureRunID(ctx)

	if o.HeartbeatTimeout > 0 {
		cutoff := time.Now().Add(-o.HeartbeatTimeout)
		if _, err := o.Store.ReclaimStaleProcessing(ctx, cutoff); err != nil {
			logging.WithContext(ctx, o.Logger).Warn("reclaim stale processing failed", logging.Error(err))
		}
	}

	descriptors, err := o.Lister.List(ctx, channelRef, listOpts)
	if err != nil {
		return fmt.Errorf("orchestrator: list sources: %w", err)
	}

	return o.RunSources(ctx, descriptors)
}

// RunSources processes an already-discovered descriptor list, bounded by the
// configured worker pools. Callers that need the source count up front
// (e.g. to size a progress indicator) can call Lister.List themselves and
// pass the result here instead of using Run.
func (o *Orchestrator) RunSources(ctx context.Context, descriptors []source.Descriptor) error {
	o.init()
	ctx = ensureRunID(ctx)

	group, groupCtx := errgroup.WithContext(ctx)
	for _, d := range descriptors {
		d := d
		if err := o.ioSem.Acquire(groupCtx, 1); err != nil {
			break
		}
		group.Go(func() error {
			defer o.ioSem.Release(1)
			if o.OnSourceComplete != nil {
				defer o.OnSourceComplete()
			}
			if err := o.processSource(groupCtx, d); err != nil {
				logging.WithContext(groupCtx, o.Logger).Error("source processing failed", logging.String("external_id", d.ExternalID), logging.Error(err))
			}
			return nil
		})
	}
	return group.Wait()
}

// processSource drives one source through fetch -> transcript -> diarize ->
// identify -> segment -> embed -> persist, updating its status at each
// stage boundary so a crash mid-pipeline resumes from the last completed
// stage (spec.md §4.9's resumability requirement).
func (o *Orchestrator) processSource(ctx context.Context, d source.Descriptor) error {
	fingerprint := o.Lister.ContentFingerprint(d.ExternalID)
	sourceID, err := o.Store.UpsertSource(ctx, store.Source{
		ExternalID:         d.ExternalID,
		Title:              d.Title,
		PublishedAt:        d.PublishedAt,
		DurationSec:        d.DurationSec,
		Status:             store.SourceStatusPending,
		ContentFingerprint: fingerprint,
	})
	if err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}

	src, err := o.Store.GetByID(ctx, sourceID)
	if err != nil || src == nil {
		return fmt.Errorf("load source after upsert: %w", err)
	}
	if src.IsTerminal() {
		return nil
	}

	ctx = services.WithSourceID(ctx, sourceID)
	log := logging.WithContext(ctx, o.Logger)

	stopHeartbeat := o.startHeartbeat(ctx, sourceID)
	defer stopHeartbeat()

	artifact, err := o.fetchStage(ctx, d.ExternalID)
	if err != nil {
		return o.fail(ctx, sourceID, err)
	}
	if err := o.Store.AdvanceStatus(ctx, sourceID, store.SourceStatusFetched, ""); err != nil {
		return fmt.Errorf("advance status to fetched: %w", err)
	}

	words, err := o.transcriptStage(ctx, d, artifact)
	if err != nil {
		return o.fail(ctx, sourceID, err)
	}
	if err := o.Store.AdvanceStatus(ctx, sourceID, store.SourceStatusTranscribed, ""); err != nil {
		return fmt.Errorf("advance status to transcribed: %w", err)
	}

	turns, degraded, err := o.diarizeStage(ctx, artifact)
	if err != nil {
		return o.fail(ctx, sourceID, err)
	}
	if degraded {
		log.Warn("diarization degraded for source", logging.String("external_id", d.ExternalID))
	}

	assignments, err := o.identifyStage(ctx, sourceID, artifact, turns)
	if err != nil {
		return o.fail(ctx, sourceID, err)
	}
	if err := o.Store.AdvanceStatus(ctx, sourceID, store.SourceStatusDiarized, ""); err != nil {
		return fmt.Errorf("advance status to diarized: %w", err)
	}

	drafts := segment.Build(words, assignments, o.Segmenter)

	embedResults, err := o.embedStage(ctx, drafts)
	if err != nil {
		return o.fail(ctx, sourceID, err)
	}

	segments := make([]store.Segment, 0, len(drafts))
	var embedFailures int
	for i, d := range drafts {
		if embedResults[i].Err != nil {
			embedFailures++
			continue
		}
		segments = append(segments, store.Segment{
			SourceID:              sourceID,
			Ordinal:               i,
			StartSec:              d.StartSec,
			EndSec:                d.EndSec,
			Text:                  d.Text,
			SpeakerLabel:          d.SpeakerLabel,
			SpeakerConfidence:     d.SpeakerConfidence,
			TextEmbedding:         embedResults[i].Vector,
			TextEmbeddingModelKey: o.Lister.TextEmbeddingModelKey,
		})
	}
	if embedFailures > 0 && !o.EmbedOptions.PartialPersistOnFailure {
		return o.fail(ctx, sourceID, services.Wrap(services.ErrEmbeddingFailure, "embed", d.ExternalID,
			fmt.Sprintf("%d of %d segments failed embedding", embedFailures, len(drafts)), nil))
	}

	if err := o.persistStage(ctx, sourceID, segments); err != nil {
		return o.fail(ctx, sourceID, err)
	}

	finalStatus := store.SourceStatusCompleted
	if embedFailures > 0 {
		finalStatus = store.SourceStatusEmbedded
	}
	if err := o.Store.AdvanceStatus(ctx, sourceID, finalStatus, ""); err != nil {
		return fmt.Errorf("advance status to %s: %w", finalStatus, err)
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, sourceID int64, err error) error {
	if services.IsSoft(err) {
		return nil
	}
	status := services.FailureStatus(err)
	if advanceErr := o.Store.AdvanceStatus(ctx, sourceID, status, err.Error()); advanceErr != nil {
		logging.WithContext(ctx, o.Logger).Error("failed to record failure status", logging.Error(advanceErr))
	}
	return err
}

func (o *Orchestrator) fetchStage(ctx context.Context, externalID string) (fetch.Artifact, error) {
	ctx = services.WithStage(ctx, "fetch")
	ctx = services.WithPool(ctx, "io")
	stageCtx, cancel := context.WithTimeout(ctx, timeoutOrDefault(o.Timeouts.Fetch, 20*time.Minute))
	defer cancel()
	return o.Fetcher.Fetch(stageCtx, externalID)
}

func (o *Orchestrator) transcriptStage(ctx context.Context, d source.Descriptor, artifact fetch.Artifact) ([]transcript.WordTiming, error) {
	ctx = services.WithStage(ctx, "transcribe")
	ctx = services.WithPool(ctx, "gpu")
	if err := o.gpuSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.gpuSem.Release(1)
	if err := o.modelSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.modelSem.Release(1)

	timeout := time.Duration(float64(o.Timeouts.TranscribePerSec) * artifact.DurationSec)
	if timeout <= 0 {
		timeout = 2 * time.Duration(artifact.DurationSec) * time.Second
	}
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := o.Transcripts.Acquire(stageCtx, d.ExternalID, d.Title, artifact.Path)
	if err != nil {
		return nil, err
	}
	return result.Words, nil
}

func (o *Orchestrator) diarizeStage(ctx context.Context, artifact fetch.Artifact) ([]diarize.Turn, bool, error) {
	ctx = services.WithStage(ctx, "diarize")
	ctx = services.WithPool(ctx, "gpu")
	if err := o.gpuSem.Acquire(ctx, 1); err != nil {
		return nil, false, err
	}
	defer o.gpuSem.Release(1)
	if err := o.modelSem.Acquire(ctx, 1); err != nil {
		return nil, false, err
	}
	defer o.modelSem.Release(1)

	timeout := time.Duration(artifact.DurationSec) * time.Second
	if o.Timeouts.DiarizePerSec > 0 {
		timeout = time.Duration(float64(o.Timeouts.DiarizePerSec) * artifact.DurationSec)
	}
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return o.Diarizer.Diarize(stageCtx, artifact.Path, artifact.DurationSec, o.PrimaryProfileCentroid, o.DiarizeOptions)
}

func (o *Orchestrator) identifyStage(ctx context.Context, sourceID int64, artifact fetch.Artifact, turns []diarize.Turn) ([]speaker.Assignment, error) {
	ctx = services.WithStage(ctx, "identify")
	ctx = services.WithPool(ctx, "gpu")
	if err := o.gpuSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.gpuSem.Release(1)
	if err := o.modelSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.modelSem.Release(1)

	timeout := time.Duration(artifact.DurationSec/2) * time.Second
	if o.Timeouts.IdentifyPerSec > 0 {
		timeout = time.Duration(float64(o.Timeouts.IdentifyPerSec) * artifact.DurationSec)
	}
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cached := o.Store.CachedVoiceEmbeddings(stageCtx, sourceID)
	assignments, err := o.Identifier.Identify(stageCtx, artifact.Path, turns, cached)
	if err != nil {
		return nil, err
	}
	for _, a := range assignments {
		if len(a.VoiceEmbedding) == 0 {
			continue
		}
		sample := store.CachedVoiceEmbedding{
			SourceID:        sourceID,
			StartSecRounded: a.Turn.StartSec,
			EndSecRounded:   a.Turn.EndSec,
			VoiceEmbedding:  a.VoiceEmbedding,
		}
		if err := o.Store.StoreCachedVoiceEmbedding(stageCtx, sample); err != nil {
			logging.WithContext(stageCtx, o.Logger).Warn("cache voice embedding failed", logging.Error(err))
		}
	}
	return assignments, nil
}

func (o *Orchestrator) embedStage(ctx context.Context, drafts []segment.Draft) ([]embed.Result, error) {
	if err := o.gpuSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.gpuSem.Release(1)
	if err := o.modelSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.modelSem.Release(1)

	timeout := timeoutOrDefault(o.Timeouts.EmbedPerBatch, 5*time.Minute)
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	texts := make([]string, len(drafts))
	for i, d := range drafts {
		texts[i] = d.Text
	}
	return o.Embedder.EmbedAll(stageCtx, texts, o.EmbedOptions)
}

func (o *Orchestrator) persistStage(ctx context.Context, sourceID int64, segments []store.Segment) error {
	if err := o.dbSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer o.dbSem.Release(1)

	timeout := timeoutOrDefault(o.Timeouts.PersistPerBatch, 2*time.Minute)
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if len(segments) == 0 {
		return nil
	}
	if _, err := o.Store.InsertSegments(stageCtx, sourceID, segments, 512); err != nil {
		return services.Wrap(services.ErrPersistFailure, "persist", fmt.Sprintf("source_%d", sourceID),
			"insert segments", err)
	}
	return nil
}

func timeoutOrDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
