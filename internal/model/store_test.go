package model

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testDescriptor(t *testing.T, url string, minSize int64, retries int) Descriptor {
	t.Helper()
	return Descriptor{
		Name:       "test",
		URL:        url,
		CachePath:  filepath.Join(t.TempDir(), "ggml-test.bin"),
		MinSize:    minSize,
		MaxRetries: retries,
	}
}

func TestEnsureDownloadsAndCaches(t *testing.T) {
	payload := strings.Repeat("x", 2048)
	var fetches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	store := NewStore(0)
	desc := testDescriptor(t, srv.URL, 1000, 3)

	cached, err := store.Ensure(context.Background(), desc, nil)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if cached.Path != desc.CachePath {
		t.Errorf("cached.Path = %q, want %q", cached.Path, desc.CachePath)
	}
	if cached.Size != int64(len(payload)) {
		t.Errorf("cached.Size = %d, want %d", cached.Size, len(payload))
	}
	if fetches != 1 {
		t.Errorf("fetches = %d, want 1", fetches)
	}
	if _, err := os.Stat(desc.CachePath + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind at %s", desc.CachePath+".tmp")
	}
}

func TestEnsureWarmCacheSkipsNetwork(t *testing.T) {
	var fetches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
	}))
	defer srv.Close()

	store := NewStore(0)
	desc := testDescriptor(t, srv.URL, 1000, 3)

	if err := os.WriteFile(desc.CachePath, make([]byte, 1500), 0644); err != nil {
		t.Fatal(err)
	}

	cached, err := store.Ensure(context.Background(), desc, nil)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if fetches != 0 {
		t.Errorf("fetches = %d, want 0 for warm cache", fetches)
	}
	if cached.Size != 1500 {
		t.Errorf("cached.Size = %d, want 1500", cached.Size)
	}
}

func TestEnsureExhaustsRetriesOnUndersizedArtifact(t *testing.T) {
	for _, retries := range []int{1, 3, 5} {
		var fetches int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fetches++
			w.Write(make([]byte, 500)) // always below the floor
		}))

		store := NewStore(0)
		desc := testDescriptor(t, srv.URL, 1000, retries)

		_, err := store.Ensure(context.Background(), desc, nil)
		srv.Close()

		if !errors.Is(err, ErrExhausted) {
			t.Fatalf("retries=%d: Ensure() error = %v, want ErrExhausted", retries, err)
		}
		if fetches != retries {
			t.Errorf("retries=%d: fetches = %d, want %d", retries, fetches, retries)
		}
		if _, err := os.Stat(desc.CachePath); !os.IsNotExist(err) {
			t.Errorf("retries=%d: file left at cache path after exhaustion", retries)
		}
		if _, err := os.Stat(desc.CachePath + ".tmp"); !os.IsNotExist(err) {
			t.Errorf("retries=%d: temp file left after exhaustion", retries)
		}
	}
}

func TestEnsureSucceedsOnThirdAttempt(t *testing.T) {
	// First two fetches produce 500-byte files, the third 1200 bytes.
	var fetches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		if fetches < 3 {
			w.Write(make([]byte, 500))
			return
		}
		w.Write(make([]byte, 1200))
	}))
	defer srv.Close()

	store := NewStore(0)
	desc := testDescriptor(t, srv.URL, 1000, 3)

	cached, err := store.Ensure(context.Background(), desc, nil)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if fetches != 3 {
		t.Errorf("fetches = %d, want 3", fetches)
	}
	if cached.Size != 1200 {
		t.Errorf("cached.Size = %d, want 1200", cached.Size)
	}
}

func TestEnsureRetriesOnHTTPError(t *testing.T) {
	var fetches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		if fetches == 1 {
			http.Error(w, "nope", http.StatusServiceUnavailable)
			return
		}
		w.Write(make([]byte, 1500))
	}))
	defer srv.Close()

	store := NewStore(0)
	desc := testDescriptor(t, srv.URL, 1000, 3)

	cached, err := store.Ensure(context.Background(), desc, nil)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if fetches != 2 {
		t.Errorf("fetches = %d, want 2", fetches)
	}
	if cached.Size != 1500 {
		t.Errorf("cached.Size = %d, want 1500", cached.Size)
	}
}

func TestEnsureRemovesStaleUndersizedFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 1500))
	}))
	defer srv.Close()

	store := NewStore(0)
	desc := testDescriptor(t, srv.URL, 1000, 3)

	// Leftover from an interrupted run, below the floor.
	if err := os.WriteFile(desc.CachePath, make([]byte, 200), 0644); err != nil {
		t.Fatal(err)
	}

	cached, err := store.Ensure(context.Background(), desc, nil)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if cached.Size != 1500 {
		t.Errorf("cached.Size = %d, want fresh 1500", cached.Size)
	}
}

func TestEnsureCancelledMidDownload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 600))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		cancel()
		<-release // hold the body open until the client has gone away
	}))
	defer srv.Close()
	defer close(release)

	store := NewStore(0)
	desc := testDescriptor(t, srv.URL, 1000, 3)

	_, err := store.Ensure(ctx, desc, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Ensure() error = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(desc.CachePath); !os.IsNotExist(err) {
		t.Error("cancelled download must not leave a file at the cache path")
	}
	if _, err := os.Stat(desc.CachePath + ".tmp"); !os.IsNotExist(err) {
		t.Error("cancelled download must clean up its temp file")
	}
}

func TestEnsureCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewStore(0)
	desc := testDescriptor(t, "http://127.0.0.1:1/model.bin", 1000, 3)

	_, err := store.Ensure(ctx, desc, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Ensure() error = %v, want context.Canceled", err)
	}
}

func TestEnsureReportsProgress(t *testing.T) {
	payload := make([]byte, 200*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	store := NewStore(time.Minute)
	desc := testDescriptor(t, srv.URL, 1000, 3)

	var calls int
	var last, total int64
	_, err := store.Ensure(context.Background(), desc, func(written, tot int64) {
		calls++
		if written < last {
			t.Errorf("progress went backwards: %d after %d", written, last)
		}
		last = written
		total = tot
	})
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if calls == 0 {
		t.Fatal("progress callback never invoked")
	}
	if last != int64(len(payload)) {
		t.Errorf("final progress = %d, want %d", last, len(payload))
	}
	if total != int64(len(payload)) {
		t.Errorf("reported total = %d, want %d", total, len(payload))
	}
}

func TestDescriptorFor(t *testing.T) {
	desc, err := DescriptorFor("base.en", "/tmp/models")
	if err != nil {
		t.Fatalf("DescriptorFor() error = %v", err)
	}
	if desc.CachePath != "/tmp/models/ggml-base.en.bin" {
		t.Errorf("CachePath = %q, want %q", desc.CachePath, "/tmp/models/ggml-base.en.bin")
	}
	if !strings.HasSuffix(desc.URL, "/ggml-base.en.bin") {
		t.Errorf("URL = %q, want ggml-base.en.bin suffix", desc.URL)
	}
	if desc.MinSize != 130_000_000 {
		t.Errorf("MinSize = %d, want 130000000", desc.MinSize)
	}
	if desc.MaxRetries != DefaultRetries {
		t.Errorf("MaxRetries = %d, want %d", desc.MaxRetries, DefaultRetries)
	}

	if _, err := DescriptorFor("colossal-v9", "/tmp/models"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("DescriptorFor(colossal-v9) error = %v, want ErrUnknownModel", err)
	}
}
