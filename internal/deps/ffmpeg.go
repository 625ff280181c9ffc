package deps

import (
	"fmt"
	"os/exec"
)

// CheckFFmpeg reports whether the ffmpeg binary the audio fetcher shells out
// to for normalization is resolvable on PATH.
func CheckFFmpeg(binary string) Status {
	if binary == "" {
		binary = "ffmpeg"
	}
	result := Status{
		Name:        "FFmpeg",
		Command:     binary,
		Description: "Used by the audio fetcher to normalize downloaded audio",
	}
	if path, err := exec.LookPath(binary); err == nil {
		result.Command = path
		result.Available = true
		return result
	}
	result.Available = false
	result.Detail = fmt.Sprintf("binary %q not found", binary)
	return result
}
