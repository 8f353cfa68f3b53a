// Package session drives the speech-to-text session lifecycle: the
// idle -> listening -> transcribing -> done state machine, ownership of
// the engine handle, and cancellation. One Controller owns at most one
// engine handle at a time; independent sessions need independent
// controllers.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/larsjn/voxkey/internal/audio"
	"github.com/larsjn/voxkey/internal/engine"
	"github.com/larsjn/voxkey/internal/model"
)

// Session modes. Batch creates the engine handle when capture stops and
// feeds the whole utterance at once; stream creates it eagerly while
// listening and feeds chunks as they arrive.
const (
	ModeBatch  = "batch"
	ModeStream = "stream"
)

// DefaultDisplayInterval is how long Done stays visible before the
// automatic reset to Idle.
const DefaultDisplayInterval = 2 * time.Second

// ErrNotListening indicates Stop was called outside Listening.
var ErrNotListening = errors.New("session: not listening")

// ModelEnsurer is the slice of the model store the controller needs.
type ModelEnsurer interface {
	Ensure(ctx context.Context, desc model.Descriptor, progress model.ProgressFunc) (model.CachedModel, error)
}

// Options configures a Controller.
type Options struct {
	Descriptor      model.Descriptor
	Mode            string        // ModeBatch (default) or ModeStream
	DisplayInterval time.Duration // Done display time; default 2s
}

// Controller is the state machine an interactive caller drives through
// Start, Stop, and Cancel. All transitions go through the controller;
// there is no other mutation path.
type Controller struct {
	store ModelEnsurer
	eng   engine.Engine
	src   audio.Source
	disp  *Dispatcher

	desc    model.Descriptor
	mode    string
	display time.Duration

	mu         sync.Mutex
	state      State
	cur        *session
	transcript engine.Transcript
	lastErr    error
	resetTimer *time.Timer

	updates chan Snapshot
}

// session is the state owned by one Start..settle cycle. The fields
// below ready are written by the listening goroutine before ready
// closes and read only after it closes.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}

	err        error
	modelPath  string
	handle     engine.Handle // guarded; nil until created
	chunks     chan []float32
	feederDone chan struct{} // nil unless the feeder goroutine started
	feedErr    error         // written before feederDone closes
}

// New creates a Controller. The engine handle lifecycle is fully owned
// by the controller; callers only ever see states and transcripts.
func New(store ModelEnsurer, eng engine.Engine, src audio.Source, opts Options) *Controller {
	mode := opts.Mode
	if mode == "" {
		mode = ModeBatch
	}
	display := opts.DisplayInterval
	if display <= 0 {
		display = DefaultDisplayInterval
	}
	return &Controller{
		store:   store,
		eng:     eng,
		src:     src,
		disp:    &Dispatcher{},
		desc:    opts.Descriptor,
		mode:    mode,
		display: display,
		updates: make(chan Snapshot, 16),
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the current state with the transcript when Done.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// LastError returns the error that ended the most recent session, or
// nil. Cancellation is not an error.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Updates returns a channel of state snapshots. Sends never block; a
// slow reader misses intermediate states, never the latest poll.
func (c *Controller) Updates() <-chan Snapshot {
	return c.updates
}

// Start begins a session: Idle (or Done, cutting the display short)
// moves to Listening while the model is ensured and capture starts in
// the background. Starting while Listening or Transcribing is rejected
// with ErrBusy; a second concurrent engine handle is never created.
func (c *Controller) Start() error {
	c.mu.Lock()
	switch c.state {
	case Listening, Transcribing:
		c.mu.Unlock()
		return ErrBusy
	case Done:
		c.stopResetTimerLocked()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		ctx:    ctx,
		cancel: cancel,
		ready:  make(chan struct{}),
	}
	if c.mode == ModeStream {
		s.chunks = make(chan []float32, 256)
	}
	c.cur = s
	c.state = Listening
	c.transcript = engine.Transcript{}
	c.lastErr = nil
	c.notifyLocked()
	c.mu.Unlock()

	go c.listen(s)
	return nil
}

// Stop ends capture and transcribes the utterance. The session settles
// in Done on success or Idle on error, with the handle destroyed either
// way.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state != Listening {
		c.mu.Unlock()
		return ErrNotListening
	}
	s := c.cur
	c.state = Transcribing
	c.notifyLocked()
	c.mu.Unlock()

	buf := c.src.StopCapture()
	go c.transcribe(s, buf)
	return nil
}

// Cancel aborts a Listening session: capture stops, the model fetch is
// interrupted, and any eagerly created handle is destroyed before the
// state settles back in Idle. Cancelling is a normal outcome, not an
// error; outside Listening it is a no-op.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.state != Listening {
		c.mu.Unlock()
		return
	}
	s := c.cur
	c.mu.Unlock()

	s.cancel()
	c.src.StopCapture()

	<-s.ready
	s.teardown()

	c.mu.Lock()
	if c.cur == s {
		c.cur = nil
		c.state = Idle
		c.notifyLocked()
	}
	c.mu.Unlock()
}

// listen runs the Listening phase: ensure the model, create the handle
// eagerly in stream mode, start capture. Any failure sends the session
// back to Idle with the error surfaced.
func (c *Controller) listen(s *session) {
	cm, err := c.store.Ensure(s.ctx, c.desc, nil)
	if err != nil {
		s.err = err
		close(s.ready)
		c.fail(s, err)
		return
	}
	s.modelPath = cm.Path

	if c.mode == ModeStream {
		h, err := c.eng.Create(s.ctx, cm.Path)
		if err != nil {
			s.err = err
			close(s.ready)
			c.fail(s, err)
			return
		}
		s.handle = engine.Guard(h)
		s.feederDone = make(chan struct{})
		go c.feedLoop(s)
	}

	// The session may have been stopped or cancelled while the model
	// was being ensured; only a still-listening session starts capture.
	c.mu.Lock()
	listening := c.cur == s && c.state == Listening
	c.mu.Unlock()

	if listening && s.ctx.Err() == nil {
		if err := c.src.StartCapture(s.sink()); err != nil {
			s.err = err
			close(s.ready)
			c.fail(s, err)
			return
		}
		// Stop or Cancel may have landed while StartCapture was in
		// flight; their StopCapture found nothing running, so the
		// capture just started belongs to no one and must not leave
		// the mic hot. Stop it here before ready closes.
		c.mu.Lock()
		stillListening := c.cur == s && c.state == Listening
		c.mu.Unlock()
		if !stillListening || s.ctx.Err() != nil {
			c.src.StopCapture()
		}
	}

	close(s.ready)
}

// sink returns the capture callback bound to this session. Chunks are
// dropped once the session context ends, so audio from one session can
// never reach another session's handle.
func (s *session) sink() audio.Sink {
	return func(chunk []float32) {
		if len(chunk) == 0 || s.chunks == nil || s.ctx.Err() != nil {
			return
		}
		select {
		case s.chunks <- chunk:
		default:
			log.Printf("session: dropping %d samples, feeder behind", len(chunk))
		}
	}
}

// feedLoop feeds captured chunks to the eager handle in capture order
// and aborts the session if the engine rejects a chunk: a handle that
// failed mid-stream will not produce a transcript at Stop, so the
// failure surfaces now instead.
func (c *Controller) feedLoop(s *session) {
	err := c.feedChunks(s)
	s.feedErr = err
	close(s.feederDone)

	if err != nil {
		c.src.StopCapture()
		c.fail(s, err)
	}
}

// feedChunks drains the chunk channel into the handle. A nil chunk
// marks the end of the utterance; cancellation and lifecycle ends are
// normal exits, any other feed error is returned.
func (c *Controller) feedChunks(s *session) error {
	for {
		select {
		case <-s.ctx.Done():
			return nil
		case chunk := <-s.chunks:
			if chunk == nil {
				return nil
			}
			if _, err := c.disp.Feed(s.ctx, s.handle, chunk); err != nil {
				if errors.Is(err, engine.ErrHandleDone) || errors.Is(err, context.Canceled) {
					return nil
				}
				return fmt.Errorf("feeding %d samples: %w", len(chunk), err)
			}
		}
	}
}

// transcribe runs the Transcribing phase after capture has stopped.
func (c *Controller) transcribe(s *session, buf []float32) {
	<-s.ready
	if s.err != nil {
		c.fail(s, s.err)
		return
	}

	var tr engine.Transcript
	var err error

	switch c.mode {
	case ModeStream:
		// Capture has stopped; mark the end of the utterance and wait
		// for the feeder to drain before finalizing.
		select {
		case s.chunks <- nil:
		case <-s.feederDone:
		}
		<-s.feederDone
		if s.feedErr != nil {
			c.fail(s, s.feedErr)
			return
		}
		tr, err = c.disp.Finalize(s.ctx, s.handle)

	default:
		if len(buf) == 0 {
			log.Printf("session: no audio captured")
			c.settleIdle(s)
			return
		}
		var h engine.Handle
		h, err = c.eng.Create(s.ctx, s.modelPath)
		if err != nil {
			c.fail(s, err)
			return
		}
		s.handle = engine.Guard(h)
		tr, err = c.disp.Process(s.ctx, s.handle, buf)
	}

	// The handle never outlives the session, success or not.
	s.teardown()

	if err != nil {
		c.fail(s, err)
		return
	}
	if tr.Empty() {
		log.Printf("session: no speech detected")
		c.settleIdle(s)
		return
	}
	c.settleDone(s, tr)
}

// fail tears the session down and settles in Idle. Context cancellation
// is the expected cancel path and is not surfaced as an error.
func (c *Controller) fail(s *session, err error) {
	s.teardown()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != s {
		return // Cancel owns the transition
	}
	c.cur = nil
	c.state = Idle
	if !errors.Is(err, context.Canceled) {
		c.lastErr = err
		log.Printf("session: %v", err)
	}
	c.notifyLocked()
}

// settleIdle ends a session without a transcript and without an error.
func (c *Controller) settleIdle(s *session) {
	s.teardown()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != s {
		return
	}
	c.cur = nil
	c.state = Idle
	c.notifyLocked()
}

// settleDone exposes the transcript and arms the display-interval reset.
// The session stays current through Done so a stale timer can never
// reset a newer session.
func (c *Controller) settleDone(s *session, tr engine.Transcript) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != s {
		return
	}
	c.transcript = tr
	c.state = Done
	c.notifyLocked()
	c.resetTimer = time.AfterFunc(c.display, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.cur != s || c.state != Done {
			return
		}
		c.cur = nil
		c.state = Idle
		c.transcript = engine.Transcript{}
		c.notifyLocked()
	})
}

func (c *Controller) stopResetTimerLocked() {
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{State: c.state, Err: c.lastErr}
	if c.state == Done {
		snap.Transcript = c.transcript
	}
	return snap
}

func (c *Controller) notifyLocked() {
	select {
	case c.updates <- c.snapshotLocked():
	default: // don't block transitions on a slow reader
	}
}

// teardown releases everything the session owns: the context, the
// feeder goroutine, and the engine handle. Safe to call more than once;
// the guard wrapper forwards Destroy to the engine exactly once.
func (s *session) teardown() {
	s.cancel()
	if s.feederDone != nil {
		<-s.feederDone
	}
	if s.handle != nil {
		s.handle.Destroy()
	}
}
