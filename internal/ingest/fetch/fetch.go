// Package fetch implements the Audio Fetcher (C2): it retrieves a single
// normalized audio file and its media metadata for one Source, enforcing the
// maximum-duration cap and retrying transient network failures with
// backoff, the way spec.md §4.2 requires.
package fetch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"podingest/internal/fileutil"
	"podingest/internal/media/ffprobe"
	"podingest/internal/services"
	"podingest/internal/textutil"
)

func copyVerified(src, dst string) error {
	return fileutil.CopyFileVerified(src, dst)
}

// Artifact is the transient, on-disk result of a fetch: a normalized audio
// file plus the media metadata needed by downstream stages. It is never
// persisted directly (spec.md §3 does not list it as a stored entity); only
// its duration and a cleanup path survive into the Source record.
type Artifact struct {
	Path        string
	DurationSec float64
	SampleRate  int
	Channels    int
	SizeBytes   int64
}

// Downloader shells out to an external tool to retrieve raw audio for an
// external video id. It returns the path to whatever file it wrote.
type Downloader interface {
	Download(ctx context.Context, externalID, destDir string) (string, error)
}

// Prober inspects a media file. Satisfied by ffprobe.Inspect.
type Prober interface {
	Inspect(ctx context.Context, binary, path string) (ffprobe.Result, error)
}

type defaultProber struct{}

func (defaultProber) Inspect(ctx context.Context, binary, path string) (ffprobe.Result, error) {
	return ffprobe.Inspect(ctx, binary, path)
}

// YtDlpDownloader shells out to yt-dlp to retrieve the best available audio
// stream for a video id, mirroring the teacher's pattern of wrapping a
// single external binary behind a narrow Go interface.
type YtDlpDownloader struct {
	Binary string
}

// NewYtDlpDownloader builds a Downloader backed by the named yt-dlp binary.
func NewYtDlpDownloader(binary string) *YtDlpDownloader {
	return &YtDlpDownloader{Binary: binary}
}

func (d *YtDlpDownloader) Download(ctx context.Context, externalID, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("yt-dlp downloader: ensure dest dir: %w", err)
	}
	outputTemplate := filepath.Join(destDir, "%(id)s.%(ext)s")
	url := fmt.Sprintf("https://www.youtube.com/watch?v=%s", externalID)

	cmd := exec.CommandContext(ctx, d.Binary,
		"-f", "bestaudio/best",
		"--extract-audio",
		"--audio-format", "wav",
		"-o", outputTemplate,
		"--no-playlist",
		"--no-progress",
		url,
	)
	cmd.Dir = destDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("yt-dlp downloader: %w: %s", err, string(out))
	}

	matches, err := filepath.Glob(filepath.Join(destDir, externalID+".*"))
	if err != nil {
		return "", fmt.Errorf("yt-dlp downloader: glob output: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("yt-dlp downloader: no output file found for %s", externalID)
	}
	return matches[0], nil
}

// Fetcher retrieves audio for a Source and normalizes it to a known-good
// working copy with verified integrity.
type Fetcher struct {
	Downloader     Downloader
	Prober         Prober
	FFprobeBinary  string
	StagingDir     string
	AudioDir       string
	MaxDurationSec float64
	MaxRetries     int
	BackoffBase    time.Duration
}

// NewFetcher builds a Fetcher with the default ffprobe-backed prober.
func NewFetcher(downloader Downloader, ffprobeBinary, stagingDir, audioDir string, maxDurationSec float64, maxRetries int) *Fetcher {
	return &Fetcher{
		Downloader:     downloader,
		Prober:         defaultProber{},
		FFprobeBinary:  ffprobeBinary,
		StagingDir:     stagingDir,
		AudioDir:       audioDir,
		MaxDurationSec: maxDurationSec,
		MaxRetries:     maxRetries,
		BackoffBase:    2 * time.Second,
	}
}

// Fetch downloads audio for externalID, inspects it, and enforces the
// max-duration policy. On success, the returned Artifact's Path lives under
// the Fetcher's AudioDir and is safe to hand to the Transcript Acquirer.
func (f *Fetcher) Fetch(ctx context.Context, externalID string) (Artifact, error) {
	stagingSubdir := filepath.Join(f.StagingDir, textutil.SanitizeFileName(externalID))

	var (
		rawPath string
		lastErr error
	)
	attempts := f.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Artifact{}, services.Wrap(services.ErrCancelled, "fetch", externalID, "context cancelled during retry backoff", ctx.Err())
			case <-time.After(f.BackoffBase * time.Duration(1<<uint(attempt-1))):
			}
		}
		rawPath, lastErr = f.Downloader.Download(ctx, externalID, stagingSubdir)
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		return Artifact{}, services.Wrap(services.ErrFetchFailure, "fetch", externalID,
			fmt.Sprintf("download failed after %d attempts", attempts), lastErr)
	}

	info, err := os.Stat(rawPath)
	if err != nil {
		return Artifact{}, services.Wrap(services.ErrFetchFailure, "fetch", externalID, "stat downloaded file", err)
	}
	if info.Size() == 0 {
		return Artifact{}, services.Wrap(services.ErrFetchFailure, "fetch", externalID, "downloaded file is empty", nil)
	}

	probeResult, err := f.Prober.Inspect(ctx, f.FFprobeBinary, rawPath)
	if err != nil {
		return Artifact{}, services.Wrap(services.ErrFetchFailure, "fetch", externalID, "inspect downloaded audio", err)
	}
	duration := probeResult.DurationSeconds()
	if f.MaxDurationSec > 0 && duration > f.MaxDurationSec {
		return Artifact{}, services.Wrap(services.ErrSourceSkipped, "fetch", externalID,
			fmt.Sprintf("duration %.0fs exceeds max_audio_duration_sec %.0fs", duration, f.MaxDurationSec), nil)
	}

	finalDir := filepath.Join(f.AudioDir, textutil.SanitizeFileName(externalID))
	if err := os.MkdirAll(finalDir, 0o755); err != nil {
		return Artifact{}, services.Wrap(services.ErrFetchFailure, "fetch", externalID, "ensure audio dir", err)
	}
	finalPath := filepath.Join(finalDir, "audio"+filepath.Ext(rawPath))
	if err := copyVerified(rawPath, finalPath); err != nil {
		return Artifact{}, services.Wrap(services.ErrFetchFailure, "fetch", externalID, "copy audio to final location", err)
	}
	_ = os.RemoveAll(stagingSubdir)

	sampleRate, channels := 0, 0
	for _, stream := range probeResult.Streams {
		if stream.CodecType == "audio" {
			fmt.Sscanf(stream.SampleRate, "%d", &sampleRate)
			channels = stream.Channels
			break
		}
	}

	finalInfo, err := os.Stat(finalPath)
	if err != nil {
		return Artifact{}, services.Wrap(services.ErrFetchFailure, "fetch", externalID, "stat final audio", err)
	}

	return Artifact{
		Path:        finalPath,
		DurationSec: duration,
		SampleRate:  sampleRate,
		Channels:    channels,
		SizeBytes:   finalInfo.Size(),
	}, nil
}
