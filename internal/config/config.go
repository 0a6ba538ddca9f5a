package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	NotesDir   string           `yaml:"notes_dir"`
	Audio      AudioConfig      `yaml:"audio"`
	Recognize  RecognizeConfig  `yaml:"recognize"`
	LLM        LLMConfig        `yaml:"llm"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Hotkey     HotkeyConfig     `yaml:"hotkey"`
	LogLevel   string           `yaml:"log_level"`
}

// AudioConfig holds audio capture settings.
type AudioConfig struct {
	SampleRate uint32 `yaml:"sample_rate"`
	Channels   uint32 `yaml:"channels"`
	// SystemSource selects where the "other speaker" stream comes from:
	// "loopback" for system-audio capture, or a path to a WAV file to replay.
	SystemSource string `yaml:"system_source"`
}

// RecognizeConfig holds speech-recognition backend settings.
type RecognizeConfig struct {
	Backend         string   `yaml:"backend"` // "http" or "realtime"
	Endpoint        string   `yaml:"endpoint"`
	APIKey          string   `yaml:"api_key"`
	Model           string   `yaml:"model"`
	Language        string   `yaml:"language"`
	PartialInterval Duration `yaml:"partial_interval"`
	SilenceHold     Duration `yaml:"silence_hold"`
}

// LLMConfig holds the chat-completion settings used for action extraction.
// All three keys must be present for extraction to be enabled.
type LLMConfig struct {
	Endpoint string `yaml:"llm_endpoint"`
	APIKey   string `yaml:"llm_api_key"`
	Model    string `yaml:"llm_model"`
}

// ExtractionConfig holds action-extraction tunables.
type ExtractionConfig struct {
	WindowLines  int      `yaml:"window_lines"`
	GraceDelay   Duration `yaml:"grace_delay"`
	DrainTimeout Duration `yaml:"drain_timeout"`
}

// HotkeyConfig holds the session toggle hotkey.
type HotkeyConfig struct {
	Keys []string `yaml:"keys"`
}

// Duration is a time.Duration that marshals to/from YAML as a string
// like "250ms" or "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "murmur")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		NotesDir: filepath.Join(home, "murmur"),
		Audio: AudioConfig{
			SampleRate:   16000,
			Channels:     1,
			SystemSource: "loopback",
		},
		Recognize: RecognizeConfig{
			Backend:         "http",
			Endpoint:        "http://127.0.0.1:8090",
			Model:           "whisper-1",
			Language:        "en",
			PartialInterval: Duration(1500 * time.Millisecond),
			SilenceHold:     Duration(900 * time.Millisecond),
		},
		Extraction: ExtractionConfig{
			WindowLines:  12,
			GraceDelay:   Duration(500 * time.Millisecond),
			DrainTimeout: Duration(30 * time.Second),
		},
		Hotkey: HotkeyConfig{
			Keys: []string{"ctrl", "shift", "n"},
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled with
// defaults, then environment variables are applied on top. Tilde (~) in
// notes_dir is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.NotesDir = expandTilde(cfg.NotesDir)
	cfg.ApplyEnv()

	return cfg, nil
}

// FromEnv returns the default config with environment overrides applied.
func FromEnv() *Config {
	cfg := Default()
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv overlays environment variables onto the config. A .env file in
// the working directory is loaded first if present.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load() // absent .env is fine

	if v := os.Getenv("MURMUR_NOTES_DIR"); v != "" {
		c.NotesDir = expandTilde(v)
	}
	if v := os.Getenv("MURMUR_STT_ENDPOINT"); v != "" {
		c.Recognize.Endpoint = v
	}
	if v := os.Getenv("MURMUR_STT_API_KEY"); v != "" {
		c.Recognize.APIKey = v
	}
	if v := os.Getenv("MURMUR_LLM_ENDPOINT"); v != "" {
		c.LLM.Endpoint = v
	}
	if v := os.Getenv("MURMUR_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("MURMUR_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
}

// Lookup implements the settings-store contract used by the extraction
// service. Known keys are llm_endpoint, llm_api_key and llm_model; an empty
// value reports as absent.
func (c *Config) Lookup(key string) (string, bool) {
	var v string
	switch key {
	case "llm_endpoint":
		v = c.LLM.Endpoint
	case "llm_api_key":
		v = c.LLM.APIKey
	case "llm_model":
		v = c.LLM.Model
	default:
		return "", false
	}
	return v, v != ""
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.NotesDir == "" {
		return fmt.Errorf("notes_dir must not be empty")
	}

	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}

	if c.Audio.Channels == 0 {
		return fmt.Errorf("audio.channels must be > 0")
	}

	if c.Audio.SystemSource == "" {
		return fmt.Errorf("audio.system_source must be \"loopback\" or a WAV path")
	}

	switch c.Recognize.Backend {
	case "http", "realtime":
	default:
		return fmt.Errorf("recognize.backend must be \"http\" or \"realtime\", got %q", c.Recognize.Backend)
	}

	if c.Recognize.Endpoint == "" {
		return fmt.Errorf("recognize.endpoint must not be empty")
	}

	if c.Recognize.PartialInterval.Std() <= 0 {
		return fmt.Errorf("recognize.partial_interval must be > 0")
	}

	if c.Recognize.SilenceHold.Std() <= 0 {
		return fmt.Errorf("recognize.silence_hold must be > 0")
	}

	if c.Extraction.WindowLines <= 0 {
		return fmt.Errorf("extraction.window_lines must be > 0")
	}

	if c.Extraction.DrainTimeout.Std() <= 0 {
		return fmt.Errorf("extraction.drain_timeout must be > 0")
	}

	if len(c.Hotkey.Keys) == 0 {
		return fmt.Errorf("hotkey.keys must not be empty")
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
