package orchestrator

import (
	"fmt"

	"golang.org/x/sys/unix"

	"podingest/internal/config"
	"podingest/internal/deps"
	"podingest/internal/stage"
)

// HealthChecks reports readiness of the external binaries the pipeline
// shells out to and the directories it reads/writes, for cmd/ingestctl's
// doctor output.
func HealthChecks(cfg *config.Config) []stage.Health {
	checks := []stage.Health{
		binaryHealth("ffmpeg", deps.CheckFFmpeg(cfg.FFmpegBinary())),
		binaryHealth("ffprobe", binaryStatus("ffprobe", cfg.FFprobeBinary())),
		binaryHealth("yt-dlp", binaryStatus("yt-dlp", cfg.YtDlpBinary())),
		binaryHealth("whisperx", binaryStatus("whisperx", cfg.WhisperXBinary())),
		dirHealth("staging_dir", cfg.StagingDir),
		dirHealth("store_dir", cfg.StoreDir),
		dirHealth("log_dir", cfg.LogDir),
	}
	return checks
}

func binaryStatus(name, command string) deps.Status {
	results := deps.CheckBinaries([]deps.Requirement{{Name: name, Command: command}})
	return results[0]
}

func binaryHealth(name string, status deps.Status) stage.Health {
	if status.Available {
		return stage.Healthy(name)
	}
	return stage.Unhealthy(name, status.Detail)
}

// dirHealth checks that path exists and is readable/writable/searchable by
// this process, surfacing permission problems before a run fails mid-pipeline.
func dirHealth(name, path string) stage.Health {
	if path == "" {
		return stage.Unhealthy(name, "not configured")
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("%s: %v", path, err))
	}
	return stage.Healthy(name)
}
