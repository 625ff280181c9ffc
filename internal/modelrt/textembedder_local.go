package modelrt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// embedTextsScript loads a local sentence-embedding model once per process
// invocation and embeds a batch of strings, mirroring the teacher's
// uvx-launched single-purpose script pattern (one script, one job, JSON in
// on argv, JSON out on stdout).
const embedTextsScript = `#!/usr/bin/env python3
import argparse
import json
import sys

from sentence_transformers import SentenceTransformer


def main():
    parser = argparse.ArgumentParser()
    parser.add_argument("--model", required=True)
    parser.add_argument("--texts-path", required=True)
    args = parser.parse_args()

    try:
        with open(args.texts_path, "r", encoding="utf-8") as f:
            texts = json.load(f)
        model = SentenceTransformer(args.model)
        vectors = model.encode(texts, normalize_embeddings=True, show_progress_bar=False)
        print(json.dumps({"vectors": vectors.tolist(), "dimensions": vectors.shape[1] if len(vectors) else 0}))
    except Exception as e:
        print(json.dumps({"error": str(e)}), file=sys.stderr)
        sys.exit(1)


if __name__ == "__main__":
    main()
`

// ErrGPUOutOfMemory is returned by LocalTextEmbedder.Embed when the
// subprocess reports a CUDA out-of-memory condition, so callers can
// implement spec.md §4.7's halved-batch-size retry policy.
var ErrGPUOutOfMemory = errors.New("gpu out of memory")

// LocalTextEmbedder is the local-GPU-model provider option for the Text
// Embedder (C7), launched the same way the teacher launches WhisperX and
// pyannote: via uvx, with dependencies declared inline.
type LocalTextEmbedder struct {
	model      string
	dimensions int
	cudaEnabled bool
	workDir    string
	runner     scriptRunner
}

// NewLocalTextEmbedder builds a local text embedder backed by
// sentence-transformers via uvx.
func NewLocalTextEmbedder(model string, dimensions int, cudaEnabled bool, workDir string) *LocalTextEmbedder {
	return &LocalTextEmbedder{
		model:       model,
		dimensions:  dimensions,
		cudaEnabled: cudaEnabled,
		workDir:     workDir,
		runner:      runUVXScript,
	}
}

type embedTextsOutput struct {
	Vectors    [][]float32 `json:"vectors"`
	Dimensions int         `json:"dimensions"`
	Error      string      `json:"error"`
}

func (e *LocalTextEmbedder) Embed(ctx context.Context, texts []string) (TextEmbeddingResult, error) {
	if len(texts) == 0 {
		return TextEmbeddingResult{ModelKey: e.model, Dimensions: e.dimensions}, nil
	}
	if err := os.MkdirAll(e.workDir, 0o755); err != nil {
		return TextEmbeddingResult{}, fmt.Errorf("local text embedder: ensure work dir: %w", err)
	}
	scriptPath := filepath.Join(e.workDir, "embed_texts.py")
	if err := os.WriteFile(scriptPath, []byte(embedTextsScript), 0o644); err != nil {
		return TextEmbeddingResult{}, fmt.Errorf("local text embedder: write script: %w", err)
	}
	textsPath := filepath.Join(e.workDir, "embed_texts_input.json")
	payload, err := json.Marshal(texts)
	if err != nil {
		return TextEmbeddingResult{}, fmt.Errorf("local text embedder: encode input: %w", err)
	}
	if err := os.WriteFile(textsPath, payload, 0o600); err != nil {
		return TextEmbeddingResult{}, fmt.Errorf("local text embedder: write input: %w", err)
	}

	stdout, err := e.runner(ctx, []string{"sentence-transformers"}, e.cudaEnabled,
		scriptPath, "--model", e.model, "--texts-path", textsPath,
	)
	if err != nil {
		if strings.Contains(err.Error(), "CUDA out of memory") || strings.Contains(err.Error(), "OutOfMemoryError") {
			return TextEmbeddingResult{}, fmt.Errorf("local text embedder: %w: %v", ErrGPUOutOfMemory, err)
		}
		return TextEmbeddingResult{}, fmt.Errorf("local text embedder: %w", err)
	}

	var out embedTextsOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		return TextEmbeddingResult{}, fmt.Errorf("local text embedder: parse output: %w", err)
	}
	if out.Error != "" {
		if strings.Contains(out.Error, "CUDA out of memory") || strings.Contains(out.Error, "OutOfMemoryError") {
			return TextEmbeddingResult{}, fmt.Errorf("local text embedder: %w: %s", ErrGPUOutOfMemory, out.Error)
		}
		return TextEmbeddingResult{}, fmt.Errorf("local text embedder: %s", out.Error)
	}
	dims := e.dimensions
	if dims == 0 {
		dims = out.Dimensions
	}
	return TextEmbeddingResult{Vectors: out.Vectors, ModelKey: e.model, Dimensions: dims}, nil
}
