// Command voxkey-model downloads and verifies whisper model artifacts
// into the local cache, so the first dictation session doesn't have to.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/larsjn/voxkey/internal/config"
	"github.com/larsjn/voxkey/internal/model"
)

func main() {
	name := flag.String("model", "base.en", "model to download")
	dir := flag.String("dir", config.DefaultModelDir(), "model cache directory")
	retries := flag.Int("retries", model.DefaultRetries, "download attempts before giving up")
	timeout := flag.Duration("timeout", 30*time.Minute, "per-request timeout")
	list := flag.Bool("list", false, "list known models and exit")
	flag.Parse()

	if *list {
		names := model.KnownModels()
		sort.Strings(names)
		fmt.Println(strings.Join(names, "\n"))
		return
	}

	desc, err := model.DescriptorFor(*name, *dir)
	if err != nil {
		log.Fatalf("%v\nKnown models: %s", err, strings.Join(model.KnownModels(), ", "))
	}
	if *retries > 0 {
		desc.MaxRetries = *retries
	}

	// Ctrl+C aborts the download; partial artifacts are discarded.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := model.NewStore(*timeout)

	log.Printf("Ensuring %s in %s", desc.Name, *dir)
	start := time.Now()
	cm, err := store.Ensure(ctx, desc, printProgress)
	fmt.Fprintln(os.Stderr) // finish the progress line
	if err != nil {
		log.Fatalf("download failed: %v", err)
	}

	log.Printf("Model ready: %s (%s, %s)", cm.Path, formatBytes(cm.Size), time.Since(start).Round(time.Millisecond))
}

// printProgress rewrites one status line as bytes arrive.
func printProgress(written, total int64) {
	if total > 0 {
		fmt.Fprintf(os.Stderr, "\r%s / %s (%3.0f%%)", formatBytes(written), formatBytes(total), float64(written)/float64(total)*100)
	} else {
		fmt.Fprintf(os.Stderr, "\r%s", formatBytes(written))
	}
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.2f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
