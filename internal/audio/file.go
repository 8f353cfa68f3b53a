package audio

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/wav"
)

// fileChunk is the replay chunk size: 200ms at 16kHz.
const fileChunk = SampleRate / 5

// FileSource replays a mono 16kHz WAV file as one utterance. It is the
// whole-buffer flavor of the capture boundary and backs one-shot
// transcription of existing recordings.
type FileSource struct {
	path string

	mu        sync.Mutex
	buf       []float32
	capturing bool
}

// NewFileSource creates a source that will replay the WAV file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// StartCapture decodes the file and delivers it to sink in capture-order
// chunks. Decoding happens synchronously; when StartCapture returns, the
// utterance is fully buffered.
func (f *FileSource) StartCapture(sink Sink) error {
	f.mu.Lock()
	if f.capturing {
		f.mu.Unlock()
		return ErrAlreadyCapturing
	}
	f.capturing = true
	f.mu.Unlock()

	samples, err := decodeWAV(f.path)
	if err != nil {
		f.mu.Lock()
		f.capturing = false
		f.mu.Unlock()
		return err
	}

	f.mu.Lock()
	f.buf = samples
	f.mu.Unlock()

	if sink != nil {
		for start := 0; start < len(samples); start += fileChunk {
			end := start + fileChunk
			if end > len(samples) {
				end = len(samples)
			}
			sink(samples[start:end])
		}
	}

	return nil
}

// StopCapture returns the decoded utterance.
func (f *FileSource) StopCapture() []float32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.capturing {
		return nil
	}
	f.capturing = false
	return f.buf
}

// decodeWAV loads a WAV file and converts it to mono 16kHz float32.
func decodeWAV(path string) ([]float32, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: opening %s: %w", path, err)
	}
	defer fh.Close()

	dec := wav.NewDecoder(fh)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: decoding %s: %w", path, err)
	}

	if dec.NumChans != 1 {
		return nil, fmt.Errorf("audio: %s has %d channels, want mono", path, dec.NumChans)
	}
	if dec.SampleRate != SampleRate {
		return nil, fmt.Errorf("audio: %s sample rate %d, want %d", path, dec.SampleRate, SampleRate)
	}

	// Convert int samples to float32 normalized to [-1.0, 1.0]
	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float32(s) / 32768.0
	}
	return samples, nil
}
