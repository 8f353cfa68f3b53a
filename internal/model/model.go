// Package model acquires, verifies, and caches whisper model artifacts.
//
// A model is identified by a Descriptor. Ensure downloads the artifact
// once, validates it against a minimum-size integrity floor, and caches
// it on disk; later calls find the cached file and perform no network
// I/O at all.
package model

import (
	"errors"
	"fmt"
	"path/filepath"
)

const (
	// srcURL is where the ggml models live on HuggingFace.
	srcURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

	// DefaultRetries is the number of download attempts before giving up.
	DefaultRetries = 3
)

var (
	// ErrIntegrity indicates a downloaded artifact was at or below the
	// descriptor's integrity floor and has been discarded.
	ErrIntegrity = errors.New("model: artifact below integrity floor")

	// ErrExhausted indicates every download attempt failed.
	ErrExhausted = errors.New("model: download attempts exhausted")

	// ErrUnknownModel indicates a model name with no known source.
	ErrUnknownModel = errors.New("model: unknown model name")
)

// Descriptor identifies a model artifact: where it comes from, where it
// is cached, and how acquisition is bounded. Immutable after construction.
type Descriptor struct {
	Name       string
	URL        string
	CachePath  string
	MinSize    int64 // integrity floor in bytes; size <= MinSize is corrupt
	MaxRetries int
}

// CachedModel is the evidence that a verified artifact exists on disk.
type CachedModel struct {
	Path string
	Size int64
}

// minSizes holds the minimum expected byte size for each known ggml
// model. A downloaded file at or below this is an incomplete transfer.
var minSizes = map[string]int64{
	"tiny":           70_000_000,
	"tiny.en":        70_000_000,
	"base":           130_000_000,
	"base.en":        130_000_000,
	"small":          450_000_000,
	"small.en":       450_000_000,
	"medium":         1_400_000_000,
	"medium.en":      1_400_000_000,
	"large-v1":       2_900_000_000,
	"large-v2":       2_900_000_000,
	"large-v3":       2_900_000_000,
	"large-v3-turbo": 1_500_000_000,
}

// KnownModels returns the names this package can build descriptors for.
func KnownModels() []string {
	names := make([]string, 0, len(minSizes))
	for name := range minSizes {
		names = append(names, name)
	}
	return names
}

// DescriptorFor builds the Descriptor for a known model name, cached
// under dir as ggml-<name>.bin.
func DescriptorFor(name, dir string) (Descriptor, error) {
	minSize, ok := minSizes[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	file := "ggml-" + name + ".bin"
	return Descriptor{
		Name:       name,
		URL:        srcURL + file,
		CachePath:  filepath.Join(dir, file),
		MinSize:    minSize,
		MaxRetries: DefaultRetries,
	}, nil
}
