package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"podingest/internal/config"
	"podingest/internal/ingest/diarize"
	"podingest/internal/ingest/embed"
	"podingest/internal/ingest/fetch"
	"podingest/internal/ingest/segment"
	"podingest/internal/ingest/source"
	"podingest/internal/ingest/speaker"
	"podingest/internal/ingest/transcript"
	"podingest/internal/media/ffprobe"
	"podingest/internal/modelrt"
	"podingest/internal/services"
	"podingest/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.StagingDir = filepath.Join(base, "staging")
	cfg.AudioDir = filepath.Join(base, "audio")
	cfg.LogDir = filepath.Join(base, "logs")
	cfg.StoreDir = filepath.Join(base, "store")
	cfg.VoiceProfileDir = filepath.Join(base, "voices")
	if err := os.MkdirAll(cfg.VoiceProfileDir, 0o755); err != nil {
		t.Fatalf("mkdir voice profile dir: %v", err)
	}
	s, err := store.Open(&cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type fakeDownloader struct {
	audioBytes []byte
}

func (f *fakeDownloader) Download(ctx context.Context, externalID, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(destDir, externalID+".wav")
	payload := f.audioBytes
	if payload == nil {
		payload = []byte("fake-audio-bytes")
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type fixedProber struct {
	durationSec float64
}

func (p fixedProber) Inspect(ctx context.Context, binary, path string) (ffprobe.Result, error) {
	return ffprobe.Result{
		Streams: []ffprobe.Stream{
			{CodecType: "audio", SampleRate: "16000", Channels: 1},
		},
		Format: ffprobe.Format{Duration: strconvDuration(p.durationSec)},
	}, nil
}

func strconvDuration(d float64) string {
	return strconv.FormatFloat(d, 'f', -1, 64)
}

type fakeASR struct {
	words []modelrt.ASRWord
	err   error
}

func (f *fakeASR) Transcribe(ctx context.Context, audioPath string, opts modelrt.ASROptions) (modelrt.ASRResult, error) {
	if f.err != nil {
		return modelrt.ASRResult{}, f.err
	}
	return modelrt.ASRResult{Words: f.words}, nil
}

type fakeTextEmbedder struct {
	dimension int
	err       error
}

func (f *fakeTextEmbedder) Embed(ctx context.Context, texts []string) (modelrt.TextEmbeddingResult, error) {
	if f.err != nil {
		return modelrt.TextEmbeddingResult{}, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, f.dimension)
	}
	return modelrt.TextEmbeddingResult{Vectors: vectors, Dimensions: f.dimension}, nil
}

// buildTestOrchestrator wires a full pipeline against a real (temp-file)
// sqlite store, with fakes standing in for every external tool/model
// boundary, so processSource exercises real status transitions and real
// segment persistence without touching the network, a GPU, or a binary.
func buildTestOrchestrator(t *testing.T, asr *fakeASR, embedder *fakeTextEmbedder) (*Orchestrator, *store.Store) {
	t.Helper()
	db := testStore(t)

	profiles, err := store.LoadVoiceProfiles(t.TempDir())
	if err != nil {
		t.Fatalf("load voice profiles: %v", err)
	}

	base := t.TempDir()
	fetcher := &fetch.Fetcher{
		Downloader:     &fakeDownloader{},
		Prober:         fixedProber{durationSec: 2},
		FFprobeBinary:  "ffprobe",
		StagingDir:     filepath.Join(base, "staging"),
		AudioDir:       filepath.Join(base, "audio"),
		MaxDurationSec: 3600,
		MaxRetries:     1,
	}

	acquirer := &transcript.Acquirer{ASR: asr}

	identifier := &speaker.Identifier{
		Profiles:    profiles,
		PrimaryName: "Chaffee",
		Thresholds:  speaker.DefaultThresholds(),
	}

	embedOpts := embed.DefaultOptions()
	embedOpts.ExpectedDimension = 0
	if embedder != nil {
		embedOpts.ExpectedDimension = embedder.dimension
	}

	return &Orchestrator{
		Store:          db,
		Lister:         &source.Lister{},
		Fetcher:        fetcher,
		Transcripts:    acquirer,
		Diarizer:       &diarize.Diarizer{},
		Identifier:     identifier,
		Segmenter:      segment.DefaultGeometry(),
		Embedder:       &embed.Embedder{Model: embedder},
		EmbedOptions:   embedOpts,
		Pools:          Pools{IOWorkers: 2, GPUWorkers: 2, DBWorkers: 2},
		Timeouts:       DefaultTimeouts(),
		DiarizeOptions: diarize.Options{AssumeMonologue: true},
	}, db
}

func sourceDescriptor(externalID string) source.Descriptor {
	return source.Descriptor{
		ExternalID:  externalID,
		Title:       "episode " + externalID,
		PublishedAt: time.Now(),
		DurationSec: 2,
	}
}

func TestInitBoundsGPUModelSemaphoreToOneRegardlessOfPoolSize(t *testing.T) {
	o := &Orchestrator{Pools: Pools{IOWorkers: 4, GPUWorkers: 4, DBWorkers: 4}}
	o.init()

	if !o.modelSem.TryAcquire(1) {
		t.Fatal("expected to acquire the model semaphore once")
	}
	if o.modelSem.TryAcquire(1) {
		t.Fatal("expected a second concurrent model acquire to block regardless of GPUWorkers=4")
	}
	o.modelSem.Release(1)

	if !o.gpuSem.TryAcquire(4) {
		t.Fatal("expected GPUWorkers=4 concurrent gpu-pool slots to be available")
	}
}

func TestProcessSourceHappyPathPersistsSegmentsAndCompletes(t *testing.T) {
	asr := &fakeASR{words: []modelrt.ASRWord{
		{Text: "hello", StartSec: 0, EndSec: 0.4},
		{Text: "world", StartSec: 0.4, EndSec: 0.8},
	}}
	embedder := &fakeTextEmbedder{dimension: 8}
	o, db := buildTestOrchestrator(t, asr, embedder)
	o.init()

	d := sourceDescriptor("vid1")
	if err := o.processSource(context.Background(), d); err != nil {
		t.Fatalf("processSource returned unexpected error: %v", err)
	}

	src, err := db.GetByExternalID(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("GetByExternalID: %v", err)
	}
	if src == nil || src.Status != store.SourceStatusCompleted {
		t.Fatalf("expected status completed, got %+v", src)
	}

	segments, err := db.SegmentsForSource(context.Background(), src.ID)
	if err != nil {
		t.Fatalf("SegmentsForSource: %v", err)
	}
	if len(segments) == 0 {
		t.Fatal("expected at least one persisted segment")
	}
}

func TestProcessSourceSilentAudioCompletesWithZeroSegments(t *testing.T) {
	asr := &fakeASR{words: nil}
	o, db := buildTestOrchestrator(t, asr, &fakeTextEmbedder{dimension: 8})
	o.init()

	d := sourceDescriptor("silent1")
	if err := o.processSource(context.Background(), d); err != nil {
		t.Fatalf("silent audio must not fail the source: %v", err)
	}

	src, err := db.GetByExternalID(context.Background(), "silent1")
	if err != nil {
		t.Fatalf("GetByExternalID: %v", err)
	}
	if src == nil || src.Status != store.SourceStatusCompleted {
		t.Fatalf("expected a silent source to reach completed with zero segments, got %+v", src)
	}

	segments, err := db.SegmentsForSource(context.Background(), src.ID)
	if err != nil {
		t.Fatalf("SegmentsForSource: %v", err)
	}
	if len(segments) != 0 {
		t.Fatalf("expected zero segments for silent audio, got %d", len(segments))
	}
}

func TestProcessSourceHardFetchFailureMarksFailedWithReason(t *testing.T) {
	o, db := buildTestOrchestrator(t, &fakeASR{}, &fakeTextEmbedder{dimension: 8})
	o.Fetcher.Downloader = &failingDownloader{err: errors.New("network unreachable")}
	o.init()

	d := sourceDescriptor("vid-broken")
	err := o.processSource(context.Background(), d)
	if err == nil {
		t.Fatal("expected a hard fetch failure to propagate")
	}

	src, getErr := db.GetByExternalID(context.Background(), "vid-broken")
	if getErr != nil {
		t.Fatalf("GetByExternalID: %v", getErr)
	}
	if src == nil || src.Status != store.SourceStatusFailed {
		t.Fatalf("expected status failed, got %+v", src)
	}
	if src.FailureReason == "" {
		t.Fatal("expected a non-empty failure reason recorded")
	}
}

type failingDownloader struct {
	err error
}

func (f *failingDownloader) Download(ctx context.Context, externalID, destDir string) (string, error) {
	return "", f.err
}

func TestProcessSourceSkipsAlreadyTerminalSource(t *testing.T) {
	o, db := buildTestOrchestrator(t, &fakeASR{}, &fakeTextEmbedder{dimension: 8})
	o.init()

	ctx := context.Background()
	sourceID, err := db.UpsertSource(ctx, store.Source{
		ExternalID:         "vid-term",
		Title:              "already failed",
		Status:             store.SourceStatusFailed,
		ContentFingerprint: o.Lister.ContentFingerprint("vid-term"),
		FailureReason:      "previous run failed",
	})
	if err != nil {
		t.Fatalf("seed terminal source: %v", err)
	}

	// A downloader that would panic if invoked proves processSource returns
	// before touching any stage for a source already at a terminal status
	// (spec.md §4.9's resumability boundary: a terminal source is only
	// reprocessed via an explicit reingest, never implicitly).
	o.Fetcher.Downloader = &panicDownloader{}

	d := sourceDescriptor("vid-term")
	if err := o.processSource(ctx, d); err != nil {
		t.Fatalf("unexpected error re-processing a terminal source: %v", err)
	}

	src, err := db.GetByID(ctx, sourceID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if src.Status != store.SourceStatusFailed || src.FailureReason != "previous run failed" {
		t.Fatalf("expected terminal source to be left untouched, got %+v", src)
	}
}

type panicDownloader struct{}

func (panicDownloader) Download(ctx context.Context, externalID, destDir string) (string, error) {
	panic("fetch stage must not run for an already-terminal source")
}

func TestProcessSourceEmbeddingDimensionMismatchFailsSource(t *testing.T) {
	asr := &fakeASR{words: []modelrt.ASRWord{{Text: "hi", StartSec: 0, EndSec: 0.3}}}
	// Configured dimension (8) deliberately does not match what the fake
	// provider returns (4), exercising spec.md §8's "D_t configured, provider
	// returns a different dimension" fail-fast scenario end to end.
	o, db := buildTestOrchestrator(t, asr, &fakeTextEmbedder{dimension: 4})
	o.EmbedOptions.ExpectedDimension = 8
	o.init()

	d := sourceDescriptor("vid-dim-mismatch")
	err := o.processSource(context.Background(), d)
	if err == nil {
		t.Fatal("expected embedding dimension mismatch to fail the source")
	}
	if !errors.Is(err, services.ErrEmbeddingFailure) {
		t.Fatalf("expected ErrEmbeddingFailure, got %v", err)
	}

	src, getErr := db.GetByExternalID(context.Background(), "vid-dim-mismatch")
	if getErr != nil {
		t.Fatalf("GetByExternalID: %v", getErr)
	}
	if src == nil || src.Status != store.SourceStatusFailed {
		t.Fatalf("expected status failed, got %+v", src)
	}

	segments, segErr := db.SegmentsForSource(context.Background(), src.ID)
	if segErr != nil {
		t.Fatalf("SegmentsForSource: %v", segErr)
	}
	if len(segments) != 0 {
		t.Fatalf("expected nothing persisted when embedding fails fast, got %d segments", len(segments))
	}
}

func TestRunSourcesDrainsImmediatelyOnCancelledContext(t *testing.T) {
	o, _ := buildTestOrchestrator(t, &fakeASR{}, &fakeTextEmbedder{dimension: 8})
	o.Fetcher.Downloader = &panicDownloader{}
	o.Pools.IOWorkers = 1
	o.init()

	// Exhaust the only io slot so the next Acquire call must wait rather
	// than taking the semaphore's uncontended fast path, guaranteeing it
	// observes ctx cancellation instead of racing it.
	if err := o.ioSem.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("pre-acquire io slot: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := o.RunSources(ctx, []source.Descriptor{sourceDescriptor("vid-a")})
	if err != nil {
		t.Fatalf("RunSources on a pre-cancelled context should drain without error, got: %v", err)
	}
}
