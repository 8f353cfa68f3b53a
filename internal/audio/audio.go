// Package audio provides the session's audio sources: a malgo-backed
// microphone recorder and a WAV file replay source. Both produce mono
// 16kHz float32 samples, the fixed format the engine boundary expects.
package audio

import "errors"

// SampleRate is the fixed capture sample rate in Hz.
const SampleRate = 16000

// ErrAlreadyCapturing indicates StartCapture on an active source.
var ErrAlreadyCapturing = errors.New("audio: already capturing")

// Sink receives chunks of samples in capture order. A chunk belongs to
// exactly one utterance; the callee must not block.
type Sink func(chunk []float32)

// Source produces one continuous utterance of PCM samples. StartCapture
// begins delivery of chunks to sink; StopCapture ends the utterance and
// returns the complete buffer in capture order.
type Source interface {
	StartCapture(sink Sink) error
	StopCapture() []float32
}
