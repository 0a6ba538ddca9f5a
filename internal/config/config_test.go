package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.NotesDir == "" {
		t.Error("NotesDir should not be empty")
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("Audio.SampleRate = %d, want 16000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 1 {
		t.Errorf("Audio.Channels = %d, want 1", cfg.Audio.Channels)
	}
	if cfg.Audio.SystemSource != "loopback" {
		t.Errorf("Audio.SystemSource = %q, want %q", cfg.Audio.SystemSource, "loopback")
	}
	if cfg.Recognize.Backend != "http" {
		t.Errorf("Recognize.Backend = %q, want %q", cfg.Recognize.Backend, "http")
	}
	if cfg.Extraction.WindowLines != 12 {
		t.Errorf("Extraction.WindowLines = %d, want 12", cfg.Extraction.WindowLines)
	}
	if cfg.Extraction.DrainTimeout.Std() != 30*time.Second {
		t.Errorf("Extraction.DrainTimeout = %v, want 30s", cfg.Extraction.DrainTimeout.Std())
	}
	if len(cfg.Hotkey.Keys) != 3 {
		t.Errorf("Hotkey.Keys length = %d, want 3", len(cfg.Hotkey.Keys))
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
notes_dir: /tmp/murmur-notes
audio:
  sample_rate: 44100
  channels: 2
  system_source: /tmp/test.wav
recognize:
  backend: realtime
  endpoint: https://stt.example.com
  model: whisper-large
  partial_interval: 2s
  silence_hold: 1200ms
extraction:
  window_lines: 20
  drain_timeout: 10s
hotkey:
  keys: ["alt", "m"]
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.NotesDir != "/tmp/murmur-notes" {
		t.Errorf("NotesDir = %q, want %q", cfg.NotesDir, "/tmp/murmur-notes")
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("Audio.SampleRate = %d, want 44100", cfg.Audio.SampleRate)
	}
	if cfg.Audio.SystemSource != "/tmp/test.wav" {
		t.Errorf("Audio.SystemSource = %q, want %q", cfg.Audio.SystemSource, "/tmp/test.wav")
	}
	if cfg.Recognize.Backend != "realtime" {
		t.Errorf("Recognize.Backend = %q, want %q", cfg.Recognize.Backend, "realtime")
	}
	if cfg.Recognize.PartialInterval.Std() != 2*time.Second {
		t.Errorf("Recognize.PartialInterval = %v, want 2s", cfg.Recognize.PartialInterval.Std())
	}
	if cfg.Recognize.SilenceHold.Std() != 1200*time.Millisecond {
		t.Errorf("Recognize.SilenceHold = %v, want 1.2s", cfg.Recognize.SilenceHold.Std())
	}
	if cfg.Extraction.WindowLines != 20 {
		t.Errorf("Extraction.WindowLines = %d, want 20", cfg.Extraction.WindowLines)
	}
	if len(cfg.Hotkey.Keys) != 2 || cfg.Hotkey.Keys[0] != "alt" || cfg.Hotkey.Keys[1] != "m" {
		t.Errorf("Hotkey.Keys = %v, want [alt m]", cfg.Hotkey.Keys)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}

	// Unset fields keep defaults.
	if cfg.Recognize.Language != "en" {
		t.Errorf("Recognize.Language = %q, want default %q", cfg.Recognize.Language, "en")
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	yamlContent := `
notes_dir: ~/notes
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	expected := filepath.Join(home, "notes")
	if cfg.NotesDir != expected {
		t.Errorf("NotesDir = %q, want %q", cfg.NotesDir, expected)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MURMUR_STT_ENDPOINT", "https://stt.env.example.com")
	t.Setenv("MURMUR_LLM_ENDPOINT", "https://llm.env.example.com")
	t.Setenv("MURMUR_LLM_API_KEY", "sk-test")
	t.Setenv("MURMUR_LLM_MODEL", "gpt-test")

	cfg := FromEnv()

	if cfg.Recognize.Endpoint != "https://stt.env.example.com" {
		t.Errorf("Recognize.Endpoint = %q, want env override", cfg.Recognize.Endpoint)
	}
	if cfg.LLM.Endpoint != "https://llm.env.example.com" {
		t.Errorf("LLM.Endpoint = %q, want env override", cfg.LLM.Endpoint)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("LLM.APIKey = %q, want %q", cfg.LLM.APIKey, "sk-test")
	}
	if cfg.LLM.Model != "gpt-test" {
		t.Errorf("LLM.Model = %q, want %q", cfg.LLM.Model, "gpt-test")
	}
}

func TestLookup(t *testing.T) {
	cfg := Default()
	cfg.LLM = LLMConfig{
		Endpoint: "https://llm.example.com",
		APIKey:   "sk-abc",
		Model:    "gpt-4o-mini",
	}

	tests := []struct {
		key   string
		want  string
		found bool
	}{
		{"llm_endpoint", "https://llm.example.com", true},
		{"llm_api_key", "sk-abc", true},
		{"llm_model", "gpt-4o-mini", true},
		{"unknown_key", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, found := cfg.Lookup(tt.key)
			if got != tt.want || found != tt.found {
				t.Errorf("Lookup(%q) = (%q, %v), want (%q, %v)", tt.key, got, found, tt.want, tt.found)
			}
		})
	}
}

func TestLookupEmptyValueReportsAbsent(t *testing.T) {
	cfg := Default()
	cfg.LLM.Model = ""

	if _, found := cfg.Lookup("llm_model"); found {
		t.Error("Lookup of an empty value should report absent")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty notes dir",
			modify:  func(c *Config) { c.NotesDir = "" },
			wantErr: true,
		},
		{
			name:    "zero sample rate",
			modify:  func(c *Config) { c.Audio.SampleRate = 0 },
			wantErr: true,
		},
		{
			name:    "zero channels",
			modify:  func(c *Config) { c.Audio.Channels = 0 },
			wantErr: true,
		},
		{
			name:    "empty system source",
			modify:  func(c *Config) { c.Audio.SystemSource = "" },
			wantErr: true,
		},
		{
			name:    "invalid backend",
			modify:  func(c *Config) { c.Recognize.Backend = "grpc" },
			wantErr: true,
		},
		{
			name:    "empty recognize endpoint",
			modify:  func(c *Config) { c.Recognize.Endpoint = "" },
			wantErr: true,
		},
		{
			name:    "zero partial interval",
			modify:  func(c *Config) { c.Recognize.PartialInterval = 0 },
			wantErr: true,
		},
		{
			name:    "zero window lines",
			modify:  func(c *Config) { c.Extraction.WindowLines = 0 },
			wantErr: true,
		},
		{
			name:    "zero drain timeout",
			modify:  func(c *Config) { c.Extraction.DrainTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "empty hotkey keys",
			modify:  func(c *Config) { c.Hotkey.Keys = nil },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurationRoundTrip(t *testing.T) {
	type wrapper struct {
		D Duration `yaml:"d"`
	}

	in := wrapper{D: Duration(1500 * time.Millisecond)}
	data, err := yaml.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var out wrapper
	if err := yaml.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out.D.Std() != 1500*time.Millisecond {
		t.Errorf("round trip = %v, want 1.5s", out.D.Std())
	}
}

func TestDurationRejectsGarbage(t *testing.T) {
	var d Duration
	err := yaml.Unmarshal([]byte(`"not-a-duration"`), &d)
	if err == nil {
		t.Error("Unmarshal should reject an unparseable duration")
	}
}
