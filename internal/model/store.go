package model

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// bufSize is the copy buffer used while streaming a download to disk.
// Memory use stays constant regardless of artifact size.
const bufSize = 64 * 1024

// ProgressFunc receives download progress. total is -1 when the server
// does not report a content length.
type ProgressFunc func(written, total int64)

// Store resolves model descriptors to verified local files.
//
// Concurrent callers may share one Store; the cache directory is only
// ever mutated through a temp-file-then-rename sequence, so a partially
// written artifact is never visible at the final cache path.
type Store struct {
	client *http.Client
}

// NewStore creates a Store. timeout bounds each download attempt; zero
// means no per-attempt bound (cancellation still applies).
func NewStore(timeout time.Duration) *Store {
	return &Store{
		client: &http.Client{Timeout: timeout},
	}
}

// Ensure returns a verified cached model for desc, downloading it if
// needed. A file already present at the cache path and above the
// integrity floor is accepted without any network I/O; an undersized
// leftover is removed and re-downloaded.
//
// Acquisition makes up to desc.MaxRetries attempts. Every failed
// attempt removes its partial file before the next one; exhaustion
// returns ErrExhausted with nothing left on disk. Ensure may block for
// a long time and honors ctx cancellation without corrupting the cache.
func (s *Store) Ensure(ctx context.Context, desc Descriptor, progress ProgressFunc) (CachedModel, error) {
	if info, err := os.Stat(desc.CachePath); err == nil {
		if info.Size() > desc.MinSize {
			return CachedModel{Path: desc.CachePath, Size: info.Size()}, nil
		}
		// Stale undersized file from an interrupted run; remove it so
		// the download below starts clean.
		log.Printf("model: removing incomplete %s (%d bytes, expected > %d)",
			desc.CachePath, info.Size(), desc.MinSize)
		if err := os.Remove(desc.CachePath); err != nil {
			return CachedModel{}, fmt.Errorf("model: removing stale artifact: %w", err)
		}
	}

	retries := desc.MaxRetries
	if retries < 1 {
		retries = DefaultRetries
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return CachedModel{}, err
		}

		cached, err := s.download(ctx, desc, progress)
		if err == nil {
			return cached, nil
		}
		if ctx.Err() != nil {
			return CachedModel{}, ctx.Err()
		}
		log.Printf("model: attempt %d/%d for %s failed: %v", attempt, retries, desc.Name, err)
		lastErr = err
	}

	return CachedModel{}, fmt.Errorf("%w: %d attempts for %s, last error: %v",
		ErrExhausted, retries, desc.Name, lastErr)
}

// download performs one fetch attempt. The body streams to a temporary
// path next to the cache path; only a complete, verified file is
// renamed into place. Any failure removes the temporary file.
func (s *Store) download(ctx context.Context, desc Descriptor, progress ProgressFunc) (CachedModel, error) {
	if err := os.MkdirAll(filepath.Dir(desc.CachePath), 0755); err != nil {
		return CachedModel{}, fmt.Errorf("creating cache dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.URL, nil)
	if err != nil {
		return CachedModel{}, fmt.Errorf("building request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return CachedModel{}, fmt.Errorf("fetching %s: %w", desc.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CachedModel{}, fmt.Errorf("fetching %s: HTTP %d", desc.URL, resp.StatusCode)
	}

	tmpPath := desc.CachePath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return CachedModel{}, fmt.Errorf("creating temp file: %w", err)
	}

	written, err := copyWithContext(ctx, f, resp.Body, resp.ContentLength, progress)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return CachedModel{}, fmt.Errorf("writing model file: %w", err)
	}

	if written <= desc.MinSize {
		os.Remove(tmpPath)
		return CachedModel{}, fmt.Errorf("%w: got %d bytes, expected > %d",
			ErrIntegrity, written, desc.MinSize)
	}

	if err := os.Rename(tmpPath, desc.CachePath); err != nil {
		os.Remove(tmpPath)
		return CachedModel{}, fmt.Errorf("moving model file: %w", err)
	}

	return CachedModel{Path: desc.CachePath, Size: written}, nil
}

// copyWithContext streams src to dst with a fixed-size buffer, checking
// ctx between reads so a cancelled session never waits out a stuck fetch.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress ProgressFunc) (int64, error) {
	buf := make([]byte, bufSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, err := src.Read(buf)
		if n > 0 {
			m, werr := dst.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
			if progress != nil {
				progress(written, total)
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

