package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr        = ":9090"
	DefaultVirtualMicrophone = "voxbridge-mic"
	DefaultLoopback          = "voxbridge-loopback"
	DefaultVADEngine         = "energy"
)

// KnownTranslateProviders lists backend names with built-in constructors.
// [Validate] warns about names outside this list; third-party registrations
// are still honoured.
var KnownTranslateProviders = []string{"openai", "relay", "mock"}

// KnownVADEngines lists VAD engine names with built-in constructors.
var KnownVADEngines = []string{"energy"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-value fields that have non-zero defaults. Duration
// and count tuning knobs are left at zero; the consuming packages apply their
// own defaults for those.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Devices.VirtualMicrophone == "" {
		cfg.Devices.VirtualMicrophone = DefaultVirtualMicrophone
	}
	if cfg.Devices.Loopback == "" {
		cfg.Devices.Loopback = DefaultLoopback
	}
	if cfg.Devices.Microphone.Overflow == "" {
		// Capture favours freshness, playback completeness.
		cfg.Devices.Microphone.Overflow = OverflowDropOldest
	}
	if cfg.Devices.Speaker.Overflow == "" {
		cfg.Devices.Speaker.Overflow = OverflowRejectNew
	}
	if cfg.VAD.Engine == "" {
		cfg.VAD.Engine = DefaultVADEngine
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Devices
	errs = append(errs, validateDevice("devices.microphone", cfg.Devices.Microphone)...)
	errs = append(errs, validateDevice("devices.speaker", cfg.Devices.Speaker)...)
	if cfg.Devices.VirtualMicrophone != "" && cfg.Devices.VirtualMicrophone == cfg.Devices.Loopback {
		errs = append(errs, fmt.Errorf("devices.virtual_microphone and devices.loopback must have distinct names (both %q)", cfg.Devices.Loopback))
	}

	// Languages
	if cfg.Languages.User == "" {
		errs = append(errs, errors.New("languages.user is required"))
	}
	if cfg.Languages.Peer == "" {
		errs = append(errs, errors.New("languages.peer is required"))
	}
	if cfg.Languages.User != "" && cfg.Languages.User == cfg.Languages.Peer {
		slog.Warn("languages.user equals languages.peer; the bridge will translate into the same language",
			"language", cfg.Languages.User)
	}

	// VAD
	if cfg.VAD.Engine != "" && !slices.Contains(KnownVADEngines, cfg.VAD.Engine) {
		slog.Warn("unknown vad engine, may be a typo or third-party registration",
			"name", cfg.VAD.Engine, "known", KnownVADEngines)
	}
	if cfg.VAD.SpeechThreshold < 0 {
		errs = append(errs, fmt.Errorf("vad.speech_threshold %v must not be negative", cfg.VAD.SpeechThreshold))
	}
	if cfg.VAD.Hangover < 0 {
		errs = append(errs, fmt.Errorf("vad.hangover %v must not be negative", cfg.VAD.Hangover.Std()))
	}

	// Translate
	if cfg.Translate.Provider.Name == "" {
		errs = append(errs, errors.New("translate.provider.name is required"))
	} else {
		errs = append(errs, validateProvider("translate.provider", cfg.Translate.Provider)...)
	}
	for i, entry := range cfg.Translate.Fallbacks {
		prefix := fmt.Sprintf("translate.fallbacks[%d]", i)
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		errs = append(errs, validateProvider(prefix, entry)...)
	}
	if cfg.Translate.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("translate.breaker.max_failures %d must not be negative", cfg.Translate.Breaker.MaxFailures))
	}

	// Pipeline
	errs = append(errs, validatePipeline(cfg.Pipeline)...)

	return errors.Join(errs...)
}

// validateDevice checks one physical endpoint block.
func validateDevice(prefix string, d DeviceConfig) []error {
	var errs []error
	if d.BufferFrames < 0 {
		errs = append(errs, fmt.Errorf("%s.buffer_frames %d must not be negative", prefix, d.BufferFrames))
	}
	if d.Overflow != "" && !d.Overflow.IsValid() {
		errs = append(errs, fmt.Errorf("%s.overflow %q is invalid; valid values: drop_oldest, reject_new", prefix, d.Overflow))
	}
	return errs
}

// validateProvider checks one translation backend entry.
func validateProvider(prefix string, entry ProviderEntry) []error {
	var errs []error
	if !slices.Contains(KnownTranslateProviders, entry.Name) {
		slog.Warn("unknown translate provider, may be a typo or third-party registration",
			"name", entry.Name, "known", KnownTranslateProviders)
	}
	switch entry.Name {
	case "openai":
		if entry.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s.api_key is required for the openai backend", prefix))
		}
	case "relay":
		if entry.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required for the relay backend", prefix))
		}
	}
	return errs
}

// validatePipeline checks the channel tuning block.
func validatePipeline(p PipelineConfig) []error {
	var errs []error
	for _, f := range []struct {
		name string
		d    Duration
	}{
		{"pipeline.min_utterance", p.MinUtterance},
		{"pipeline.max_utterance", p.MaxUtterance},
		{"pipeline.inference_timeout", p.InferenceTimeout},
		{"pipeline.drain_timeout", p.DrainTimeout},
	} {
		if f.d < 0 {
			errs = append(errs, fmt.Errorf("%s %v must not be negative", f.name, f.d.Std()))
		}
	}
	if p.MinUtterance > 0 && p.MaxUtterance > 0 && p.MinUtterance >= p.MaxUtterance {
		errs = append(errs, fmt.Errorf("pipeline.min_utterance %v must be shorter than pipeline.max_utterance %v",
			p.MinUtterance.Std(), p.MaxUtterance.Std()))
	}
	if p.PendingDepth < 0 {
		errs = append(errs, fmt.Errorf("pipeline.pending_depth %d must not be negative", p.PendingDepth))
	}
	return errs
}
