package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func stubModelPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ggml-test.bin")
	if err := os.WriteFile(path, []byte("model"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStubEngineCreateMissingModel(t *testing.T) {
	_, err := StubEngine{}.Create(context.Background(), "/nonexistent/model.bin")
	if !errors.Is(err, ErrLoadFailed) {
		t.Fatalf("Create() error = %v, want ErrLoadFailed", err)
	}
}

func TestStubEngineCreateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := StubEngine{}.Create(ctx, stubModelPath(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Create() error = %v, want context.Canceled", err)
	}
}

func TestStubEngineTranscribes(t *testing.T) {
	ctx := context.Background()
	h, err := StubEngine{}.Create(ctx, stubModelPath(t))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer h.Destroy()

	// Three seconds of audio in two chunks.
	if _, err := h.Feed(ctx, make([]float32, sampleRate)); err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	p, err := h.Feed(ctx, make([]float32, 2*sampleRate))
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if !strings.Contains(p.Text, "48000") {
		t.Errorf("Partial.Text = %q, want running sample count", p.Text)
	}

	tr, err := h.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if tr.Empty() {
		t.Fatal("Finalize() returned empty transcript for 3s of audio")
	}
	if len(tr.Segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(tr.Segments))
	}
	if tr.Segments[0].End != 3*time.Second {
		t.Errorf("segment end = %v, want 3s", tr.Segments[0].End)
	}
}

func TestStubEngineEmptyAudio(t *testing.T) {
	ctx := context.Background()
	h, err := StubEngine{}.Create(ctx, stubModelPath(t))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer h.Destroy()

	tr, err := h.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if !tr.Empty() {
		t.Errorf("Finalize() with no audio = %q, want empty", tr.Text)
	}
}
