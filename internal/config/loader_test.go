package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/voxbridge/voxbridge/internal/config"
)

const validYAML = `
server:
  listen_addr: ":9090"
  log_level: info
devices:
  microphone:
    hardware_id: "hw:1,0"
    buffer_frames: 50
    overflow: drop_oldest
  speaker:
    overflow: reject_new
  virtual_microphone: voxbridge-mic
  loopback: voxbridge-loopback
languages:
  user: en
  peer: de
vad:
  engine: energy
  speech_threshold: 500
  hangover: 300ms
translate:
  provider:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
    options:
      voice: alloy
  fallbacks:
    - name: relay
      base_url: "wss://relay.example.com/translate"
  breaker:
    max_failures: 3
    reset_timeout: 10s
pipeline:
  min_utterance: 300ms
  max_utterance: 10s
  inference_timeout: 2s
  drain_timeout: 2s
  pending_depth: 2
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Devices.Microphone.HardwareID != "hw:1,0" {
		t.Errorf("microphone.hardware_id = %q, want %q", cfg.Devices.Microphone.HardwareID, "hw:1,0")
	}
	if cfg.Devices.Microphone.BufferFrames != 50 {
		t.Errorf("microphone.buffer_frames = %d, want 50", cfg.Devices.Microphone.BufferFrames)
	}
	if cfg.Languages.User != "en" || cfg.Languages.Peer != "de" {
		t.Errorf("languages = %+v, want en/de", cfg.Languages)
	}
	if got := cfg.VAD.Hangover.Std(); got != 300*time.Millisecond {
		t.Errorf("vad.hangover = %v, want 300ms", got)
	}
	if cfg.Translate.Provider.Name != "openai" {
		t.Errorf("translate.provider.name = %q, want openai", cfg.Translate.Provider.Name)
	}
	if got := cfg.Translate.Provider.Options["voice"]; got != "alloy" {
		t.Errorf("translate.provider.options.voice = %v, want alloy", got)
	}
	if len(cfg.Translate.Fallbacks) != 1 || cfg.Translate.Fallbacks[0].Name != "relay" {
		t.Errorf("translate.fallbacks = %+v, want one relay entry", cfg.Translate.Fallbacks)
	}
	if got := cfg.Translate.Breaker.ResetTimeout.Std(); got != 10*time.Second {
		t.Errorf("breaker.reset_timeout = %v, want 10s", got)
	}
	if got := cfg.Pipeline.MaxUtterance.Std(); got != 10*time.Second {
		t.Errorf("pipeline.max_utterance = %v, want 10s", got)
	}
}

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	t.Parallel()
	minimal := `
languages:
  user: en
  peer: de
translate:
  provider:
    name: mock
`
	cfg, err := config.LoadFromReader(strings.NewReader(minimal))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr = %q, want default %q", cfg.Server.ListenAddr, config.DefaultListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Devices.VirtualMicrophone != config.DefaultVirtualMicrophone {
		t.Errorf("virtual_microphone = %q, want default", cfg.Devices.VirtualMicrophone)
	}
	if cfg.Devices.Loopback != config.DefaultLoopback {
		t.Errorf("loopback = %q, want default", cfg.Devices.Loopback)
	}
	if cfg.Devices.Microphone.Overflow != config.OverflowDropOldest {
		t.Errorf("microphone.overflow = %q, want drop_oldest", cfg.Devices.Microphone.Overflow)
	}
	if cfg.Devices.Speaker.Overflow != config.OverflowRejectNew {
		t.Errorf("speaker.overflow = %q, want reject_new", cfg.Devices.Speaker.Overflow)
	}
	if cfg.VAD.Engine != config.DefaultVADEngine {
		t.Errorf("vad.engine = %q, want %q", cfg.VAD.Engine, config.DefaultVADEngine)
	}
	// Tuning knobs stay zero; the consuming packages own those defaults.
	if cfg.Pipeline.PendingDepth != 0 {
		t.Errorf("pending_depth = %d, want 0", cfg.Pipeline.PendingDepth)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := `
languages:
  user: en
  peer: de
translate:
  provider:
    name: mock
frobnicate: true
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantSub string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = "bananas" },
			wantSub: "server.log_level",
		},
		{
			name:    "missing user language",
			mutate:  func(c *config.Config) { c.Languages.User = "" },
			wantSub: "languages.user",
		},
		{
			name:    "missing peer language",
			mutate:  func(c *config.Config) { c.Languages.Peer = "" },
			wantSub: "languages.peer",
		},
		{
			name:    "negative buffer frames",
			mutate:  func(c *config.Config) { c.Devices.Microphone.BufferFrames = -1 },
			wantSub: "devices.microphone.buffer_frames",
		},
		{
			name:    "bad overflow policy",
			mutate:  func(c *config.Config) { c.Devices.Speaker.Overflow = "sideways" },
			wantSub: "devices.speaker.overflow",
		},
		{
			name: "virtual device name collision",
			mutate: func(c *config.Config) {
				c.Devices.VirtualMicrophone = "same"
				c.Devices.Loopback = "same"
			},
			wantSub: "distinct names",
		},
		{
			name:    "missing translate provider",
			mutate:  func(c *config.Config) { c.Translate.Provider.Name = "" },
			wantSub: "translate.provider.name",
		},
		{
			name:    "openai without api key",
			mutate:  func(c *config.Config) { c.Translate.Provider.APIKey = "" },
			wantSub: "api_key",
		},
		{
			name: "relay without url",
			mutate: func(c *config.Config) {
				c.Translate.Fallbacks = []config.ProviderEntry{{Name: "relay"}}
			},
			wantSub: "base_url",
		},
		{
			name: "min utterance above max",
			mutate: func(c *config.Config) {
				c.Pipeline.MinUtterance = config.Duration(20 * time.Second)
			},
			wantSub: "min_utterance",
		},
		{
			name:    "negative pending depth",
			mutate:  func(c *config.Config) { c.Pipeline.PendingDepth = -2 },
			wantSub: "pending_depth",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
			if err != nil {
				t.Fatalf("base config should be valid: %v", err)
			}
			tt.mutate(cfg)
			err = config.Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors for empty config")
	}
	for _, want := range []string{"languages.user", "languages.peer", "translate.provider.name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error %q missing %q", err, want)
		}
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "voxbridge.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Languages.Peer != "de" {
		t.Errorf("languages.peer = %q, want de", cfg.Languages.Peer)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want wrapped os.ErrNotExist", err)
	}
}
