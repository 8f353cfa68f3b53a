package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelDirEnv overrides the model cache directory when set.
const ModelDirEnv = "VOXKEY_MODEL_DIR"

// Config holds all application configuration.
type Config struct {
	Model    ModelConfig   `yaml:"model"`
	Hotkey   HotkeyConfig  `yaml:"hotkey"`
	Audio    AudioConfig   `yaml:"audio"`
	Inject   InjectConfig  `yaml:"inject"`
	Session  SessionConfig `yaml:"session"`
	LogLevel string        `yaml:"log_level"`
}

// ModelConfig describes the whisper model artifact to acquire and cache.
type ModelConfig struct {
	Name string `yaml:"name"` // known model name, e.g. "base.en"
	URL  string `yaml:"url"`  // optional source override
	Dir  string `yaml:"dir"`  // cache directory; VOXKEY_MODEL_DIR wins
	// MinSizeBytes overrides the integrity floor for unknown models.
	MinSizeBytes int64 `yaml:"min_size_bytes"`
	Retries      int   `yaml:"retries"`
}

// HotkeyConfig holds hotkey-related settings.
type HotkeyConfig struct {
	Keys      []string `yaml:"keys"`
	Mode      string   `yaml:"mode"`       // "hold" or "toggle"
	CancelKey string   `yaml:"cancel_key"` // single key that aborts a session
}

// AudioConfig holds audio capture settings.
type AudioConfig struct {
	SampleRate uint32 `yaml:"sample_rate"`
	Channels   uint32 `yaml:"channels"`
}

// InjectConfig holds text injection settings.
type InjectConfig struct {
	Method        string `yaml:"method"`         // "type" or "paste"
	PasteModifier string `yaml:"paste_modifier"` // "ctrl" or "cmd"
}

// SessionConfig holds session state-machine settings.
type SessionConfig struct {
	Mode string `yaml:"mode"` // "batch" or "stream"
	// DisplaySeconds is how long a finished transcript stays visible
	// before the session resets to idle.
	DisplaySeconds float64 `yaml:"display_seconds"`
	Engine         string  `yaml:"engine"`     // "whisper-cli" or "stub"
	EngineBin      string  `yaml:"engine_bin"` // path to the whisper-cli binary
	Language       string  `yaml:"language"`   // engine language hint
}

// DisplayInterval returns the Done-state display duration.
func (s SessionConfig) DisplayInterval() time.Duration {
	return time.Duration(s.DisplaySeconds * float64(time.Second))
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "voxkey")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultModelDir returns the model cache directory, honoring the
// VOXKEY_MODEL_DIR environment override. Resolved once at startup.
func DefaultModelDir() string {
	if dir := os.Getenv(ModelDirEnv); dir != "" {
		return expandTilde(dir)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "voxkey", "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Name:    "base.en",
			Dir:     DefaultModelDir(),
			Retries: 3,
		},
		Hotkey: HotkeyConfig{
			Keys:      []string{"ctrl", "shift", "r"},
			Mode:      "hold",
			CancelKey: "esc",
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
		},
		Inject: InjectConfig{
			Method:        "type",
			PasteModifier: "ctrl",
		},
		Session: SessionConfig{
			Mode:           "batch",
			DisplaySeconds: 2,
			Engine:         "whisper-cli",
			EngineBin:      "whisper-cli",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in the model dir is expanded to the user's
// home directory, and VOXKEY_MODEL_DIR still wins over the file value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Model.Dir = expandTilde(cfg.Model.Dir)
	if dir := os.Getenv(ModelDirEnv); dir != "" {
		cfg.Model.Dir = expandTilde(dir)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Model.Name == "" && c.Model.URL == "" {
		return fmt.Errorf("model.name or model.url must be set")
	}

	if c.Model.Dir == "" {
		return fmt.Errorf("model.dir must not be empty")
	}

	if c.Model.Retries < 1 {
		return fmt.Errorf("model.retries must be >= 1, got %d", c.Model.Retries)
	}

	if len(c.Hotkey.Keys) == 0 {
		return fmt.Errorf("hotkey.keys must not be empty")
	}

	switch c.Hotkey.Mode {
	case "hold", "toggle":
	default:
		return fmt.Errorf("hotkey.mode must be \"hold\" or \"toggle\", got %q", c.Hotkey.Mode)
	}

	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}

	if c.Audio.Channels == 0 {
		return fmt.Errorf("audio.channels must be > 0")
	}

	switch c.Inject.Method {
	case "type", "paste":
	default:
		return fmt.Errorf("inject.method must be \"type\" or \"paste\", got %q", c.Inject.Method)
	}

	switch c.Inject.PasteModifier {
	case "ctrl", "cmd":
	default:
		return fmt.Errorf("inject.paste_modifier must be \"ctrl\" or \"cmd\", got %q", c.Inject.PasteModifier)
	}

	switch c.Session.Mode {
	case "batch", "stream":
	default:
		return fmt.Errorf("session.mode must be \"batch\" or \"stream\", got %q", c.Session.Mode)
	}

	if c.Session.DisplaySeconds < 0 {
		return fmt.Errorf("session.display_seconds must be >= 0, got %v", c.Session.DisplaySeconds)
	}

	switch c.Session.Engine {
	case "whisper-cli", "stub":
	default:
		return fmt.Errorf("session.engine must be \"whisper-cli\" or \"stub\", got %q", c.Session.Engine)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
