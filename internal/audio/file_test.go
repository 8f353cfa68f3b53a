package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeTestWAV writes n samples of a 440Hz tone as mono 16kHz 16-bit PCM.
func writeTestWAV(t *testing.T, n int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, SampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: SampleRate},
		Data:           make([]int, n),
		SourceBitDepth: 16,
	}
	for i := range buf.Data {
		buf.Data[i] = int(16000 * math.Sin(2*math.Pi*440*float64(i)/SampleRate))
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileSourceReplaysUtterance(t *testing.T) {
	n := SampleRate // one second
	path := writeTestWAV(t, n)

	src := NewFileSource(path)

	var chunks [][]float32
	var streamed int
	err := src.StartCapture(func(chunk []float32) {
		chunks = append(chunks, chunk)
		streamed += len(chunk)
	})
	if err != nil {
		t.Fatalf("StartCapture() error = %v", err)
	}

	buf := src.StopCapture()
	if len(buf) != n {
		t.Fatalf("StopCapture() returned %d samples, want %d", len(buf), n)
	}
	if streamed != n {
		t.Errorf("sink received %d samples, want %d", streamed, n)
	}

	// Chunk order matches capture order: concatenating chunks
	// reproduces the buffer.
	var pos int
	for i, chunk := range chunks {
		for j, s := range chunk {
			if buf[pos] != s {
				t.Fatalf("chunk %d sample %d = %v, want %v (out of order?)", i, j, s, buf[pos])
			}
			pos++
		}
	}

	// Samples are normalized to [-1, 1].
	for _, s := range buf[:100] {
		if s < -1 || s > 1 {
			t.Fatalf("sample %v outside [-1, 1]", s)
		}
	}
}

func TestFileSourceRejectsDoubleStart(t *testing.T) {
	path := writeTestWAV(t, 100)
	src := NewFileSource(path)

	if err := src.StartCapture(nil); err != nil {
		t.Fatalf("StartCapture() error = %v", err)
	}
	if err := src.StartCapture(nil); !errors.Is(err, ErrAlreadyCapturing) {
		t.Errorf("second StartCapture() error = %v, want ErrAlreadyCapturing", err)
	}
}

func TestFileSourceMissingFile(t *testing.T) {
	src := NewFileSource("/nonexistent.wav")
	if err := src.StartCapture(nil); err == nil {
		t.Fatal("StartCapture() with missing file should return error")
	}
	// A failed start leaves the source reusable.
	if got := src.StopCapture(); got != nil {
		t.Errorf("StopCapture() after failed start = %d samples, want nil", len(got))
	}
}
