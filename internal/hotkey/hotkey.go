// Package hotkey turns global key events into session commands using
// gohook. "hold" mode maps press/release to start/stop; "toggle" mode
// flips between them on each press. An optional cancel key aborts the
// session regardless of mode.
package hotkey

import (
	"sync"

	hook "github.com/robotn/gohook"
)

// EventType is the session command a key gesture maps to.
type EventType int

const (
	// EventStart begins a dictation session.
	EventStart EventType = iota
	// EventStop ends capture and requests transcription.
	EventStop
	// EventCancel aborts the session without transcribing.
	EventCancel
)

func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Event is emitted on the channel returned by Events.
type Event struct {
	Type EventType
}

// Listener owns the global hook and emits session commands.
type Listener struct {
	keys      []string
	mode      string // "hold" or "toggle"
	cancelKey string // empty disables the cancel gesture

	ch   chan Event
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	engaged bool // toggle mode: a press already started a session
}

// NewListener creates a Listener for the given key combo and mode.
// keys are lowercase key names (e.g., ["ctrl", "shift", "r"]);
// cancelKey may be "" to disable cancellation.
func NewListener(keys []string, mode, cancelKey string) *Listener {
	return &Listener{
		keys:      keys,
		mode:      mode,
		cancelKey: cancelKey,
		ch:        make(chan Event, 16),
		done:      make(chan struct{}),
	}
}

// Events returns the channel that receives session commands.
// The channel is closed when Stop is called.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Start begins listening for global key events. It blocks until Stop
// is called; run it in a goroutine.
func (l *Listener) Start() {
	if l.mode == "toggle" {
		hook.Register(hook.KeyDown, l.keys, func(e hook.Event) {
			l.togglePress()
		})
	} else {
		hook.Register(hook.KeyDown, l.keys, func(e hook.Event) {
			l.emit(EventStart)
		})
		hook.Register(hook.KeyUp, l.keys, func(e hook.Event) {
			l.emit(EventStop)
		})
	}

	if l.cancelKey != "" {
		hook.Register(hook.KeyDown, []string{l.cancelKey}, func(e hook.Event) {
			l.mu.Lock()
			l.engaged = false
			l.mu.Unlock()
			l.emit(EventCancel)
		})
	}

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// togglePress flips between start and stop on successive presses.
func (l *Listener) togglePress() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engaged {
		l.engaged = false
		l.emit(EventStop)
	} else {
		l.engaged = true
		l.emit(EventStart)
	}
}

func (l *Listener) emit(t EventType) {
	select {
	case l.ch <- Event{Type: t}:
	default: // don't block the hook thread if the channel is full
	}
}

// Stop terminates the listener. Safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
