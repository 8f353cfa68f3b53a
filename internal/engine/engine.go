// Package engine defines the speech-recognition engine boundary.
//
// An Engine loads a model into a Handle; a Handle accepts audio through
// Feed, produces the definitive Transcript through Finalize, and must
// be destroyed exactly once on every exit path. The strict ordering
//
//	Create -> Feed* -> Finalize -> Destroy
//
// is enforced at runtime by Guard, which every caller should wrap new
// handles with.
package engine

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLoadFailed indicates the engine could not load the model.
	ErrLoadFailed = errors.New("engine: model load failed")

	// ErrProcessFailed indicates feed or finalize failed inside the engine.
	ErrProcessFailed = errors.New("engine: processing failed")

	// ErrHandleDone indicates an operation on a finalized or destroyed handle.
	ErrHandleDone = errors.New("engine: handle finalized or destroyed")
)

// Engine creates stateful handles bound to a model artifact. Loading is
// blocking and may be CPU- and memory-heavy; implementations honor ctx.
type Engine interface {
	Create(ctx context.Context, modelPath string) (Handle, error)
}

// Handle is one loaded model+runtime instance. It has a single owner;
// calls must never overlap and must follow the ordering documented on
// the package. Destroy is the only call permitted after Finalize.
type Handle interface {
	// Feed processes one chunk of mono 16kHz float32 samples.
	Feed(ctx context.Context, samples []float32) (Partial, error)
	// Finalize produces the definitive transcript. The handle must not
	// be fed afterwards.
	Finalize(ctx context.Context) (Transcript, error)
	// Destroy releases the underlying instance.
	Destroy()
}

// Partial is an incremental result produced while feeding. Engines that
// do not emit incremental text return a zero Partial.
type Partial struct {
	Text string
}

// Segment is one timestamped span of a transcript.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Transcript is the final result of a session. The final transcript
// supersedes all partials emitted before it.
type Transcript struct {
	Text     string
	Segments []Segment
}

// Empty reports whether the transcript carries no text.
func (t Transcript) Empty() bool {
	return t.Text == ""
}
