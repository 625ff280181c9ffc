package modelrt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// diarizeScript is an embedded Python script generalized from the teacher's
// speaker-comparison script (internal/media/commentary/speaker_embedding.go)
// into a single-file diarization pass: it loads one audio file, runs the
// pyannote diarization pipeline, and prints the resulting turns as JSON.
const diarizeScript = `#!/usr/bin/env python3
import argparse
import json
import sys
import warnings

warnings.filterwarnings("ignore", message=".*torchcodec.*")

import torch
import torchaudio
from pyannote.audio import Pipeline


def load_audio(audio_path, sample_rate=16000):
    waveform, sr = torchaudio.load(audio_path)
    if sr != sample_rate:
        resampler = torchaudio.transforms.Resample(sr, sample_rate)
        waveform = resampler(waveform)
    if waveform.shape[0] > 1:
        waveform = waveform.mean(dim=0, keepdim=True)
    return {"waveform": waveform, "sample_rate": sample_rate}


def main():
    parser = argparse.ArgumentParser()
    parser.add_argument("--audio", required=True)
    parser.add_argument("--hf-token", required=True)
    parser.add_argument("--min-speakers", type=int, default=0)
    parser.add_argument("--max-speakers", type=int, default=0)
    parser.add_argument("--clustering-threshold", type=float, default=0.3)
    args = parser.parse_args()

    try:
        device = torch.device("cuda" if torch.cuda.is_available() else "cpu")
        pipeline = Pipeline.from_pretrained(
            "pyannote/speaker-diarization-3.1", token=args.hf_token
        ).to(device)

        kwargs = {}
        if args.min_speakers > 0:
            kwargs["min_speakers"] = args.min_speakers
        if args.max_speakers > 0:
            kwargs["max_speakers"] = args.max_speakers

        result = pipeline(load_audio(args.audio), **kwargs)
        diarization = result.speaker_diarization if hasattr(result, "speaker_diarization") else result

        labels = {}
        turns = []
        for turn, _, speaker in diarization.itertracks(yield_label=True):
            cluster_id = labels.setdefault(speaker, len(labels))
            turns.append({"start": turn.start, "end": turn.end, "cluster_id": cluster_id})
        turns.sort(key=lambda t: t["start"])
        print(json.dumps({"turns": turns}))
    except Exception as e:
        print(json.dumps({"error": str(e)}), file=sys.stderr)
        sys.exit(1)


if __name__ == "__main__":
    main()
`

// PyannoteDiarizer adapts pyannote's speaker-diarization pipeline, launched
// via uvx exactly as the teacher launches its embedded speaker-comparison
// script, to the Diarizer contract.
type PyannoteDiarizer struct {
	huggingFaceToken string
	cudaEnabled      bool
	workDir          string
	clusterThreshold float64
	runner           scriptRunner
}

// NewPyannoteDiarizer builds a diarizer that shells out to pyannote via uvx.
func NewPyannoteDiarizer(hfToken string, cudaEnabled bool, clusterThreshold float64, workDir string) *PyannoteDiarizer {
	return &PyannoteDiarizer{
		huggingFaceToken: hfToken,
		cudaEnabled:      cudaEnabled,
		workDir:          workDir,
		clusterThreshold: clusterThreshold,
		runner:           runUVXScript,
	}
}

type diarizeOutput struct {
	Turns []struct {
		Start     float64 `json:"start"`
		End       float64 `json:"end"`
		ClusterID int     `json:"cluster_id"`
	} `json:"turns"`
	Error string `json:"error"`
}

func (d *PyannoteDiarizer) Diarize(ctx context.Context, audioPath string, minSpeakers, maxSpeakers int) ([]DiarizationTurn, error) {
	if err := os.MkdirAll(d.workDir, 0o755); err != nil {
		return nil, fmt.Errorf("pyannote diarizer: ensure work dir: %w", err)
	}
	scriptPath := filepath.Join(d.workDir, "diarize.py")
	if err := os.WriteFile(scriptPath, []byte(diarizeScript), 0o644); err != nil {
		return nil, fmt.Errorf("pyannote diarizer: write script: %w", err)
	}

	args := []string{
		scriptPath,
		"--audio", audioPath,
		"--hf-token", d.huggingFaceToken,
		"--clustering-threshold", strconv.FormatFloat(d.clusterThreshold, 'f', -1, 64),
	}
	if minSpeakers > 0 {
		args = append(args, "--min-speakers", strconv.Itoa(minSpeakers))
	}
	if maxSpeakers > 0 {
		args = append(args, "--max-speakers", strconv.Itoa(maxSpeakers))
	}

	stdout, err := d.runner(ctx, pyannoteDeps, d.cudaEnabled, args...)
	if err != nil {
		return nil, fmt.Errorf("pyannote diarizer: %w", err)
	}

	var out diarizeOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		return nil, fmt.Errorf("pyannote diarizer: parse output: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("pyannote diarizer: %s", out.Error)
	}

	turns := make([]DiarizationTurn, 0, len(out.Turns))
	for _, t := range out.Turns {
		turns = append(turns, DiarizationTurn{StartSec: t.Start, EndSec: t.End, ClusterID: t.ClusterID})
	}
	return turns, nil
}

// pyannoteDeps are the uvx --with packages the diarization and voice
// embedding scripts both depend on.
var pyannoteDeps = []string{"pyannote.audio", "numpy", "torchaudio", "soundfile", "omegaconf"}

// scriptRunner invokes a uvx python script with the given extra dependencies
// and returns captured stdout. Abstracted for testing.
type scriptRunner func(ctx context.Context, deps []string, cudaEnabled bool, args ...string) ([]byte, error)

func runUVXScript(ctx context.Context, deps []string, cudaEnabled bool, args ...string) ([]byte, error) {
	uvxArgs := make([]string, 0, len(deps)*2+len(args)+6)
	uvxArgs = append(uvxArgs, "--quiet")
	for _, dep := range deps {
		uvxArgs = append(uvxArgs, "--with", dep)
	}
	if cudaEnabled {
		uvxArgs = append(uvxArgs,
			"--index-url", "https://download.pytorch.org/whl/cu128",
			"--extra-index-url", "https://pypi.org/simple",
		)
	}
	uvxArgs = append(uvxArgs, "python")
	uvxArgs = append(uvxArgs, args...)

	cmd := execCommandContext(ctx, "uvx", uvxArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}
