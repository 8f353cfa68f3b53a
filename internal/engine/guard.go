package engine

import (
	"context"
	"sync"
)

// guard enforces the handle lifecycle at runtime: no feed after
// finalize or destroy, no finalize after destroy, and the wrapped
// Destroy runs at most once no matter how many exit paths reach it.
// The mutex also serializes calls, so two goroutines racing on the
// same handle cannot reach the underlying engine concurrently.
type guard struct {
	mu        sync.Mutex
	h         Handle
	finalized bool
	destroyed bool
}

// Guard wraps h with lifecycle enforcement. Wrapping an already
// guarded handle returns it unchanged.
func Guard(h Handle) Handle {
	if g, ok := h.(*guard); ok {
		return g
	}
	return &guard{h: h}
}

func (g *guard) Feed(ctx context.Context, samples []float32) (Partial, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.finalized || g.destroyed {
		return Partial{}, ErrHandleDone
	}
	return g.h.Feed(ctx, samples)
}

func (g *guard) Finalize(ctx context.Context) (Transcript, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.finalized || g.destroyed {
		return Transcript{}, ErrHandleDone
	}
	// The handle may still be destroyed after a failed finalize, but
	// never fed again.
	g.finalized = true
	return g.h.Finalize(ctx)
}

func (g *guard) Destroy() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.destroyed {
		return
	}
	g.destroyed = true
	g.h.Destroy()
}
