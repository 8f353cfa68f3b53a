package session

import "github.com/larsjn/voxkey/internal/engine"

// State is the session lifecycle position. Transitions happen only
// through Controller methods and session completion.
type State int

const (
	// Idle means no session is active.
	Idle State = iota
	// Listening means the model is being ensured and audio is being captured.
	Listening
	// Transcribing means capture has stopped and the engine is working.
	Transcribing
	// Done means a transcript is available until the display interval expires.
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Transcribing:
		return "transcribing"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time view of the session for callers. The
// transcript is only meaningful in Done; Err carries the error that sent
// the session back to Idle, if any.
type Snapshot struct {
	State      State
	Transcript engine.Transcript
	Err        error
}
