package modelrt

import (
	"context"
	"os"
	"os/exec"
)

// execCommandContext builds an *exec.Cmd with the same torch-compatibility
// environment override the teacher applies around every uvx-launched
// PyTorch/WhisperX/pyannote subprocess (internal/services/whisperx.Service.run):
// Torch 2.6 changed torch.load's default to weights_only=true, which breaks
// loading WhisperX/pyannote checkpoints unless explicitly disabled.
func execCommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	return cmd
}
