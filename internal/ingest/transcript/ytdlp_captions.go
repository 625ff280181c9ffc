package transcript

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
)

// YtDlpCaptionBackend retrieves owner-authored and platform auto-generated
// caption tracks via yt-dlp's subtitle flags, writing to a scratch
// directory and reading back whatever file it produced.
type YtDlpCaptionBackend struct {
	Binary  string
	WorkDir string
}

// NewYtDlpCaptionBackend builds a CaptionBackend backed by the named yt-dlp
// binary.
func NewYtDlpCaptionBackend(binary, workDir string) *YtDlpCaptionBackend {
	return &YtDlpCaptionBackend{Binary: binary, WorkDir: workDir}
}

func (b *YtDlpCaptionBackend) FetchOwnerCaption(ctx context.Context, externalID string) ([]byte, bool, error) {
	return b.fetch(ctx, externalID, "--write-subs")
}

func (b *YtDlpCaptionBackend) FetchPlatformCaption(ctx context.Context, externalID string) ([]byte, bool, error) {
	return b.fetch(ctx, externalID, "--write-auto-subs")
}

func (b *YtDlpCaptionBackend) fetch(ctx context.Context, externalID, subtitleFlag string) ([]byte, bool, error) {
	destDir := filepath.Join(b.WorkDir, externalID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, false, err
	}
	url := "https://www.youtube.com/watch?v=" + externalID

	cmd := exec.CommandContext(ctx, b.Binary,
		subtitleFlag,
		"--sub-langs", "en.*",
		"--sub-format", "vtt",
		"--skip-download",
		"--no-progress",
		"-o", filepath.Join(destDir, "%(id)s.%(ext)s"),
		url,
	)
	if _, err := cmd.CombinedOutput(); err != nil {
		// yt-dlp exits non-zero when no caption track of the requested kind
		// exists; that is "not found", not a hard failure.
		return nil, false, nil
	}

	matches, err := filepath.Glob(filepath.Join(destDir, externalID+"*.vtt"))
	if err != nil {
		return nil, false, err
	}
	if len(matches) == 0 {
		return nil, false, nil
	}
	raw, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}
