package modelrt

import (
	"context"
	"errors"
	"testing"
)

func TestLocalTextEmbedderClassifiesOOMFromExecError(t *testing.T) {
	e := NewLocalTextEmbedder("test-model", 384, false, t.TempDir())
	e.runner = func(ctx context.Context, deps []string, cudaEnabled bool, args ...string) ([]byte, error) {
		return nil, errors.New("exit status 1: RuntimeError: CUDA out of memory. Tried to allocate 2.00 GiB")
	}

	_, err := e.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, ErrGPUOutOfMemory) {
		t.Fatalf("expected ErrGPUOutOfMemory, got %v", err)
	}
}

func TestLocalTextEmbedderParsesVectors(t *testing.T) {
	e := NewLocalTextEmbedder("test-model", 3, false, t.TempDir())
	e.runner = func(ctx context.Context, deps []string, cudaEnabled bool, args ...string) ([]byte, error) {
		return []byte(`{"vectors":[[0.1,0.2,0.3],[0.4,0.5,0.6]],"dimensions":3}`), nil
	}

	result, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Vectors) != 2 || result.Dimensions != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.ModelKey != "test-model" {
		t.Fatalf("unexpected model key: %q", result.ModelKey)
	}
}

func TestLocalTextEmbedderEmptyInputShortCircuits(t *testing.T) {
	e := NewLocalTextEmbedder("test-model", 3, false, t.TempDir())
	e.runner = func(ctx context.Context, deps []string, cudaEnabled bool, args ...string) ([]byte, error) {
		t.Fatal("runner should not be invoked for empty input")
		return nil, nil
	}
	result, err := e.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Vectors) != 0 {
		t.Fatalf("expected no vectors, got %d", len(result.Vectors))
	}
}
