package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// CLIEngine adapts an external whisper-cli binary to the Engine
// boundary. Fed samples accumulate in memory and are handed to the
// binary as a 16kHz mono WAV at finalize time.
type CLIEngine struct {
	Bin      string // binary name or path; default "whisper-cli"
	Language string // optional language hint, e.g. "en"
	Threads  int    // 0 leaves the binary's default
}

// Create verifies the binary and the model file exist and returns a
// handle bound to them. No process is started until Finalize.
func (e CLIEngine) Create(ctx context.Context, modelPath string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bin := e.Bin
	if bin == "" {
		bin = "whisper-cli"
	}
	binPath, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	return &cliHandle{
		bin:       binPath,
		modelPath: modelPath,
		language:  e.Language,
		threads:   e.Threads,
	}, nil
}

type cliHandle struct {
	bin       string
	modelPath string
	language  string
	threads   int
	samples   []float32
}

func (h *cliHandle) Feed(ctx context.Context, samples []float32) (Partial, error) {
	if err := ctx.Err(); err != nil {
		return Partial{}, err
	}
	h.samples = append(h.samples, samples...)
	// The binary runs once over the whole utterance; no incremental text.
	return Partial{}, nil
}

func (h *cliHandle) Finalize(ctx context.Context) (Transcript, error) {
	if len(h.samples) == 0 {
		return Transcript{}, nil
	}

	f, err := os.CreateTemp("", "voxkey-*.wav")
	if err != nil {
		return Transcript{}, fmt.Errorf("%w: creating temp wav: %v", ErrProcessFailed, err)
	}
	wavPath := f.Name()
	defer os.Remove(wavPath)

	if err := writeWAV(f, h.samples); err != nil {
		f.Close()
		return Transcript{}, fmt.Errorf("%w: writing wav: %v", ErrProcessFailed, err)
	}
	if err := f.Close(); err != nil {
		return Transcript{}, fmt.Errorf("%w: closing wav: %v", ErrProcessFailed, err)
	}

	args := []string{"-m", h.modelPath, "-f", wavPath, "--no-prints"}
	if h.language != "" {
		args = append(args, "--language", h.language)
	}
	if h.threads > 0 {
		args = append(args, "--threads", strconv.Itoa(h.threads))
	}

	cmd := exec.CommandContext(ctx, h.bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Transcript{}, ctx.Err()
		}
		return Transcript{}, fmt.Errorf("%w: %s: %v (%s)",
			ErrProcessFailed, h.bin, err, strings.TrimSpace(stderr.String()))
	}

	return parseTranscript(stdout.String()), nil
}

func (h *cliHandle) Destroy() {
	h.samples = nil
}

// segmentLine matches whisper-cli's timestamped output, e.g.
// [00:00:00.000 --> 00:00:02.500]   hello world
var segmentLine = regexp.MustCompile(
	`^\[(\d{2}):(\d{2}):(\d{2})[.,](\d{3}) --> (\d{2}):(\d{2}):(\d{2})[.,](\d{3})\]\s*(.*)$`)

// parseTranscript converts whisper-cli stdout into a Transcript.
// Timestamped lines become segments; anything else is kept as bare text.
func parseTranscript(out string) Transcript {
	var tr Transcript
	var parts []string

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := segmentLine.FindStringSubmatch(line)
		if m == nil {
			parts = append(parts, line)
			continue
		}
		text := strings.TrimSpace(m[9])
		tr.Segments = append(tr.Segments, Segment{
			Start: stamp(m[1], m[2], m[3], m[4]),
			End:   stamp(m[5], m[6], m[7], m[8]),
			Text:  text,
		})
		if text != "" {
			parts = append(parts, text)
		}
	}

	tr.Text = strings.TrimSpace(strings.Join(parts, " "))
	return tr
}

func stamp(hh, mm, ss, ms string) time.Duration {
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	s, _ := strconv.Atoi(ss)
	f, _ := strconv.Atoi(ms)
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(f)*time.Millisecond
}

// writeWAV encodes mono float32 samples as 16-bit PCM.
func writeWAV(f *os.File, samples []float32) error {
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		buf.Data[i] = pcm16(s)
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// pcm16 converts a [-1, 1] float sample to int16 range with clamping.
func pcm16(s float32) int {
	v := int(s * 32767)
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return v
}
