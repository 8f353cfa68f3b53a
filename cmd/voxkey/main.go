package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/larsjn/voxkey/internal/audio"
	"github.com/larsjn/voxkey/internal/config"
	"github.com/larsjn/voxkey/internal/engine"
	"github.com/larsjn/voxkey/internal/hotkey"
	"github.com/larsjn/voxkey/internal/inject"
	"github.com/larsjn/voxkey/internal/model"
	"github.com/larsjn/voxkey/internal/session"
)

const downloadTimeout = 30 * time.Minute

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/voxkey/config.yaml)")
	filePath := flag.String("file", "", "transcribe a 16kHz mono WAV file and exit")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	desc, err := buildDescriptor(cfg)
	if err != nil {
		log.Fatalf("model: %v (known models: %s)", err, strings.Join(model.KnownModels(), ", "))
	}

	store := model.NewStore(downloadTimeout)
	eng := buildEngine(cfg)

	if *filePath != "" {
		if err := runFile(cfg, store, eng, desc, *filePath); err != nil {
			log.Fatalf("transcribe %s: %v", *filePath, err)
		}
		return
	}

	printBanner(cfg)

	// Initialize audio recorder
	recorder, err := audio.NewRecorder(cfg.Audio.SampleRate, cfg.Audio.Channels)
	if err != nil {
		log.Fatalf("Failed to initialize audio recorder: %v\n\nEnsure microphone access is granted in your system privacy settings.", err)
	}
	log.Println("Audio recorder ready")

	ctrl := session.New(store, eng, recorder, session.Options{
		Descriptor:      desc,
		Mode:            cfg.Session.Mode,
		DisplayInterval: cfg.Session.DisplayInterval(),
	})

	// Initialize text injector
	injector := inject.NewInjector(cfg.Inject.Method, cfg.Inject.PasteModifier)
	log.Printf("Text injector ready (method: %s)", cfg.Inject.Method)

	// Initialize hotkey listener
	listener := hotkey.NewListener(cfg.Hotkey.Keys, cfg.Hotkey.Mode, cfg.Hotkey.CancelKey)
	log.Printf("Hotkey listener ready (%s, mode: %s)", strings.Join(cfg.Hotkey.Keys, "+"), cfg.Hotkey.Mode)

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start hotkey listener in background
	go listener.Start()

	log.Println("Ready! Press", strings.Join(cfg.Hotkey.Keys, "+"), "to dictate. Ctrl+C to quit.")

	// Main event loop: hotkey gestures drive the session state machine,
	// session snapshots drive logging and injection.
	events := listener.Events()
	updates := ctrl.Updates()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				log.Println("Hotkey listener stopped")
				ctrl.Cancel()
				recorder.Close()
				return
			}

			switch ev.Type {
			case hotkey.EventStart:
				if err := ctrl.Start(); err != nil {
					if errors.Is(err, session.ErrBusy) {
						log.Println("Session already active, ignoring start")
					} else {
						log.Printf("ERROR: start: %v", err)
					}
				}

			case hotkey.EventStop:
				if err := ctrl.Stop(); err != nil && !errors.Is(err, session.ErrNotListening) {
					log.Printf("ERROR: stop: %v", err)
				}

			case hotkey.EventCancel:
				ctrl.Cancel()
			}

		case snap := <-updates:
			switch snap.State {
			case session.Listening:
				log.Println("Recording...")
			case session.Transcribing:
				log.Println("Transcribing...")
			case session.Done:
				text := strings.TrimSpace(snap.Transcript.Text)
				log.Printf("Transcribed: %q", text)
				if err := injector.Inject(text); err != nil {
					log.Printf("ERROR: text injection failed: %v", err)
				}
			case session.Idle:
				if snap.Err != nil {
					log.Printf("ERROR: session: %v", snap.Err)
				}
			}

		case sig := <-sigCh:
			log.Printf("Received %s, shutting down...", sig)
			ctrl.Cancel()
			recorder.Close()
			log.Println("Goodbye!")
			// Exit directly to avoid gohook's C cleanup crash.
			// The OS reclaims the event hook on process exit.
			os.Exit(0)
		}
	}
}

// notifyingSource signals when the file replay has finished, so the
// one-shot path knows the full utterance is captured before stopping.
type notifyingSource struct {
	*audio.FileSource
	captured chan struct{}
}

func (s *notifyingSource) StartCapture(sink audio.Sink) error {
	err := s.FileSource.StartCapture(sink)
	if err == nil {
		close(s.captured)
	}
	return err
}

// runFile transcribes one WAV file through the full session machinery
// and prints the transcript to stdout.
func runFile(cfg *config.Config, store *model.Store, eng engine.Engine, desc model.Descriptor, path string) error {
	src := &notifyingSource{
		FileSource: audio.NewFileSource(path),
		captured:   make(chan struct{}),
	}
	ctrl := session.New(store, eng, src, session.Options{
		Descriptor: desc,
		Mode:       cfg.Session.Mode,
	})

	if err := ctrl.Start(); err != nil {
		return err
	}

	updates := ctrl.Updates()
wait:
	for {
		select {
		case <-src.captured:
			break wait
		case snap := <-updates:
			// Model acquisition or capture startup failed.
			if snap.State == session.Idle {
				if snap.Err != nil {
					return snap.Err
				}
				return errors.New("session ended before capture")
			}
		}
	}

	if err := ctrl.Stop(); err != nil {
		return err
	}

	for snap := range updates {
		switch snap.State {
		case session.Done:
			fmt.Println(strings.TrimSpace(snap.Transcript.Text))
			return nil
		case session.Idle:
			if snap.Err != nil {
				return snap.Err
			}
			return errors.New("no speech detected")
		}
	}
	return errors.New("session ended without a result")
}

// buildDescriptor resolves the configured model into a Descriptor,
// applying the config's URL, size-floor, and retry overrides.
func buildDescriptor(cfg *config.Config) (model.Descriptor, error) {
	desc, err := model.DescriptorFor(cfg.Model.Name, cfg.Model.Dir)
	if err != nil {
		// An unknown name is usable when the config supplies the source.
		if !errors.Is(err, model.ErrUnknownModel) || cfg.Model.URL == "" {
			return model.Descriptor{}, err
		}
		desc = model.Descriptor{
			Name:       cfg.Model.Name,
			CachePath:  filepath.Join(cfg.Model.Dir, "ggml-"+cfg.Model.Name+".bin"),
			MaxRetries: model.DefaultRetries,
		}
	}
	if cfg.Model.URL != "" {
		desc.URL = cfg.Model.URL
	}
	if cfg.Model.MinSizeBytes > 0 {
		desc.MinSize = cfg.Model.MinSizeBytes
	}
	if cfg.Model.Retries > 0 {
		desc.MaxRetries = cfg.Model.Retries
	}
	return desc, nil
}

// buildEngine selects the transcription backend from the config.
func buildEngine(cfg *config.Config) engine.Engine {
	if cfg.Session.Engine == "stub" {
		return engine.StubEngine{}
	}
	return engine.CLIEngine{
		Bin:      cfg.Session.EngineBin,
		Language: cfg.Session.Language,
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== voxkey ===")
	fmt.Printf("  Model:   %s (cache: %s)\n", cfg.Model.Name, cfg.Model.Dir)
	fmt.Printf("  Engine:  %s\n", cfg.Session.Engine)
	fmt.Printf("  Hotkey:  %s (%s mode, cancel: %s)\n", strings.Join(cfg.Hotkey.Keys, "+"), cfg.Hotkey.Mode, cfg.Hotkey.CancelKey)
	fmt.Printf("  Audio:   %dHz, %dch\n", cfg.Audio.SampleRate, cfg.Audio.Channels)
	fmt.Printf("  Session: %s, %.1fs display\n", cfg.Session.Mode, cfg.Session.DisplaySeconds)
	fmt.Printf("  Inject:  %s\n", cfg.Inject.Method)
	fmt.Println("==============")
}
