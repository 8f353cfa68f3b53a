package engine

import (
	"context"
	"fmt"
	"os"
	"time"
)

// sampleRate is the fixed capture format shared across the project.
const sampleRate = 16000

// StubEngine is a deterministic in-process engine for tests and builds
// without a whisper binary. It reports how much audio it was fed
// instead of transcribing it.
type StubEngine struct{}

// Create validates the model path and returns a fresh stub handle.
func (StubEngine) Create(ctx context.Context, modelPath string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	return &stubHandle{}, nil
}

type stubHandle struct {
	total int
}

func (h *stubHandle) Feed(ctx context.Context, samples []float32) (Partial, error) {
	if err := ctx.Err(); err != nil {
		return Partial{}, err
	}
	h.total += len(samples)
	return Partial{Text: fmt.Sprintf("[%d samples]", h.total)}, nil
}

func (h *stubHandle) Finalize(ctx context.Context) (Transcript, error) {
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}
	if h.total == 0 {
		return Transcript{}, nil
	}
	dur := time.Duration(h.total) * time.Second / sampleRate
	text := fmt.Sprintf("heard %.1fs of audio", dur.Seconds())
	return Transcript{
		Text:     text,
		Segments: []Segment{{Start: 0, End: dur, Text: text}},
	}, nil
}

func (h *stubHandle) Destroy() {}
