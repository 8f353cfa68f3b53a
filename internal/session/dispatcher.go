package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/larsjn/voxkey/internal/engine"
)

// ErrBusy indicates a transcription request arrived while another was
// in flight against the same handle. Requests are rejected, not queued;
// an interactive session has nothing useful to do with a backlog.
var ErrBusy = errors.New("session: transcription already in flight")

// Dispatcher serializes work against one engine handle so at most one
// feed/finalize operation is in flight at any time, no matter how many
// goroutines ask.
type Dispatcher struct {
	busy int32
}

func (d *Dispatcher) acquire() bool {
	return atomic.CompareAndSwapInt32(&d.busy, 0, 1)
}

func (d *Dispatcher) release() {
	atomic.StoreInt32(&d.busy, 0)
}

// Feed pushes one chunk through the handle.
func (d *Dispatcher) Feed(ctx context.Context, h engine.Handle, chunk []float32) (engine.Partial, error) {
	if !d.acquire() {
		return engine.Partial{}, ErrBusy
	}
	defer d.release()
	return h.Feed(ctx, chunk)
}

// Finalize produces the definitive transcript from the handle.
func (d *Dispatcher) Finalize(ctx context.Context, h engine.Handle) (engine.Transcript, error) {
	if !d.acquire() {
		return engine.Transcript{}, ErrBusy
	}
	defer d.release()
	return h.Finalize(ctx)
}

// Process transcribes a whole utterance as one cancellable unit: a
// single feed of the complete buffer followed by finalize.
func (d *Dispatcher) Process(ctx context.Context, h engine.Handle, samples []float32) (engine.Transcript, error) {
	if !d.acquire() {
		return engine.Transcript{}, ErrBusy
	}
	defer d.release()

	if _, err := h.Feed(ctx, samples); err != nil {
		return engine.Transcript{}, fmt.Errorf("feeding %d samples: %w", len(samples), err)
	}
	return h.Finalize(ctx)
}
