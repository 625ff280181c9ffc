package modelrt

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// embedWindowsScript is generalized from the teacher's "find longest segment
// per speaker and embed it" routine into "embed exactly the windows the
// caller supplies" — this is the shape the Speaker Identifier (C5) needs:
// batch-extracting a per-turn or per-segment voice embedding rather than one
// embedding per detected speaker.
const embedWindowsScript = `#!/usr/bin/env python3
import argparse
import json
import sys
import warnings

warnings.filterwarnings("ignore", message=".*torchcodec.*")

import torch
import torchaudio
from pyannote.audio import Inference, Model


def load_audio(audio_path, sample_rate=16000):
    waveform, sr = torchaudio.load(audio_path)
    if sr != sample_rate:
        resampler = torchaudio.transforms.Resample(sr, sample_rate)
        waveform = resampler(waveform)
    if waveform.shape[0] > 1:
        waveform = waveform.mean(dim=0, keepdim=True)
    return waveform, sample_rate


def main():
    parser = argparse.ArgumentParser()
    parser.add_argument("--audio", required=True)
    parser.add_argument("--hf-token", required=True)
    parser.add_argument("--windows", required=True, help="JSON list of [start, end]")
    args = parser.parse_args()

    try:
        windows = json.loads(args.windows)
        waveform, sr = load_audio(args.audio)
        device = torch.device("cuda" if torch.cuda.is_available() else "cpu")
        emb_model = Model.from_pretrained("pyannote/embedding", token=args.hf_token).to(device)
        embedding = Inference(emb_model, window="whole")

        vectors = []
        for start, end in windows:
            start_sample = int(start * sr)
            end_sample = int(end * sr)
            if end_sample <= start_sample:
                vectors.append(None)
                continue
            clip = waveform[:, start_sample:end_sample]
            emb = embedding({"waveform": clip, "sample_rate": sr})
            vectors.append(emb.flatten().tolist())

        print(json.dumps({"vectors": vectors}))
    except Exception as e:
        print(json.dumps({"error": str(e)}), file=sys.stderr)
        sys.exit(1)


if __name__ == "__main__":
    main()
`

// PyannoteVoiceEmbedder adapts pyannote's embedding model to the
// VoiceEmbedder contract, batch-extracting one vector per requested window
// in a single subprocess invocation.
type PyannoteVoiceEmbedder struct {
	huggingFaceToken string
	cudaEnabled      bool
	workDir          string
	runner           scriptRunner
}

// NewPyannoteVoiceEmbedder builds a voice embedder backed by pyannote/embedding.
func NewPyannoteVoiceEmbedder(hfToken string, cudaEnabled bool, workDir string) *PyannoteVoiceEmbedder {
	return &PyannoteVoiceEmbedder{
		huggingFaceToken: hfToken,
		cudaEnabled:      cudaEnabled,
		workDir:          workDir,
		runner:           runUVXScript,
	}
}

type embedWindowsOutput struct {
	Vectors [][]float32 `json:"vectors"`
	Error   string      `json:"error"`
}

func (e *PyannoteVoiceEmbedder) EmbedWindows(ctx context.Context, audioPath string, windows []Window) ([][]float32, error) {
	if len(windows) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(e.workDir, 0o755); err != nil {
		return nil, fmt.Errorf("pyannote voice embedder: ensure work dir: %w", err)
	}
	scriptPath := filepath.Join(e.workDir, "embed_windows.py")
	if err := os.WriteFile(scriptPath, []byte(embedWindowsScript), 0o644); err != nil {
		return nil, fmt.Errorf("pyannote voice embedder: write script: %w", err)
	}

	rawWindows := make([][2]float64, len(windows))
	for i, w := range windows {
		rawWindows[i] = [2]float64{w.StartSec, w.EndSec}
	}
	windowsJSON, err := json.Marshal(rawWindows)
	if err != nil {
		return nil, fmt.Errorf("pyannote voice embedder: encode windows: %w", err)
	}

	stdout, err := e.runner(ctx, pyannoteDeps, e.cudaEnabled,
		scriptPath,
		"--audio", audioPath,
		"--hf-token", e.huggingFaceToken,
		"--windows", string(windowsJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("pyannote voice embedder: %w", err)
	}

	var out embedWindowsOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		return nil, fmt.Errorf("pyannote voice embedder: parse output: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("pyannote voice embedder: %s", out.Error)
	}
	if len(out.Vectors) != len(windows) {
		return nil, fmt.Errorf("pyannote voice embedder: expected %d vectors, got %d", len(windows), len(out.Vectors))
	}
	// L2-normalize each vector per the VoiceEmbedder contract; nil entries stay nil.
	for _, vec := range out.Vectors {
		var sum float64
		for _, v := range vec {
			sum += float64(v) * float64(v)
		}
		if sum > 0 {
			scale := float32(1 / math.Sqrt(sum))
			for i := range vec {
				vec[i] *= scale
			}
		}
	}
	return out.Vectors, nil
}
