package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"podingest/internal/media/ffprobe"
	"podingest/internal/services"
)

type fakeDownloader struct {
	calls   int
	failN   int
	content string
}

func (f *fakeDownloader) Download(ctx context.Context, externalID, destDir string) (string, error) {
	f.calls++
	if f.calls <= f.failN {
		return "", errors.New("transient network error")
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(destDir, externalID+".wav")
	if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type fakeProber struct {
	result ffprobe.Result
	err    error
}

func (f *fakeProber) Inspect(ctx context.Context, binary, path string) (ffprobe.Result, error) {
	return f.result, f.err
}

func probeResultWithDuration(t *testing.T, seconds string) ffprobe.Result {
	t.Helper()
	return ffprobe.Result{
		Format: ffprobe.Format{Duration: seconds},
		Streams: []ffprobe.Stream{
			{CodecType: "audio", SampleRate: "16000", Channels: 1},
		},
	}
}

func TestFetchRetriesOnTransientFailure(t *testing.T) {
	dl := &fakeDownloader{failN: 2, content: "audio-bytes"}
	f := &Fetcher{
		Downloader:     dl,
		Prober:         &fakeProber{result: probeResultWithDuration(t, "120.0")},
		StagingDir:     t.TempDir(),
		AudioDir:       t.TempDir(),
		MaxDurationSec: 0,
		MaxRetries:     5,
	}
	f.BackoffBase = 0

	artifact, err := f.Fetch(context.Background(), "vid123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dl.calls != 3 {
		t.Fatalf("expected 3 download attempts, got %d", dl.calls)
	}
	if artifact.DurationSec != 120.0 {
		t.Fatalf("unexpected duration: %v", artifact)
	}
	if _, err := os.Stat(artifact.Path); err != nil {
		t.Fatalf("expected final audio file to exist: %v", err)
	}
}

func TestFetchExceedsMaxDurationSkipsSource(t *testing.T) {
	dl := &fakeDownloader{content: "audio-bytes"}
	f := &Fetcher{
		Downloader:     dl,
		Prober:         &fakeProber{result: probeResultWithDuration(t, "99999")},
		StagingDir:     t.TempDir(),
		AudioDir:       t.TempDir(),
		MaxDurationSec: 3600,
		MaxRetries:     1,
	}

	_, err := f.Fetch(context.Background(), "vid123")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, services.ErrSourceSkipped) {
		t.Fatalf("expected ErrSourceSkipped, got %v", err)
	}
}

func TestFetchFailsAfterExhaustingRetries(t *testing.T) {
	dl := &fakeDownloader{failN: 10}
	f := &Fetcher{
		Downloader: dl,
		Prober:     &fakeProber{},
		StagingDir: t.TempDir(),
		AudioDir:   t.TempDir(),
		MaxRetries: 3,
	}
	f.BackoffBase = 0

	_, err := f.Fetch(context.Background(), "vid123")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, services.ErrFetchFailure) {
		t.Fatalf("expected ErrFetchFailure, got %v", err)
	}
	if dl.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", dl.calls)
	}
}
