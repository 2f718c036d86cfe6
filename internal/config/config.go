// Package config provides the configuration schema, loader, and provider
// registry for the voxbridge translation bridge.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voxbridge/voxbridge/pkg/audio"
)

// LogLevel controls log verbosity for the voxbridge daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps the level to its [slog.Level]. Unrecognised levels map to Info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OverflowPolicy selects frame buffer behaviour at capacity.
type OverflowPolicy string

const (
	// OverflowDropOldest evicts the oldest buffered frame. Favours freshness.
	OverflowDropOldest OverflowPolicy = "drop_oldest"

	// OverflowRejectNew refuses the incoming frame. Favours completeness.
	OverflowRejectNew OverflowPolicy = "reject_new"
)

// IsValid reports whether p is a recognised overflow policy.
func (p OverflowPolicy) IsValid() bool {
	return p == OverflowDropOldest || p == OverflowRejectNew
}

// Audio maps the policy to its [audio.OverflowPolicy].
func (p OverflowPolicy) Audio() audio.OverflowPolicy {
	if p == OverflowRejectNew {
		return audio.RejectNew
	}
	return audio.DropOldest
}

// Duration wraps [time.Duration] with YAML support for strings like "300ms".
type Duration time.Duration

// UnmarshalYAML parses a duration from a YAML scalar via [time.ParseDuration].
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in [time.Duration.String] form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for voxbridge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Devices   DevicesConfig   `yaml:"devices"`
	Languages LanguagesConfig `yaml:"languages"`
	VAD       VADConfig       `yaml:"vad"`
	Translate TranslateConfig `yaml:"translate"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// ServerConfig holds the telemetry/health listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /metrics, /healthz, and /readyz
	// (e.g., ":9090").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DevicesConfig selects the physical endpoints the bridge attaches to and
// names the virtual devices it creates for the conferencing application.
type DevicesConfig struct {
	// Microphone is the physical capture device carrying the user's voice.
	Microphone DeviceConfig `yaml:"microphone"`

	// Speaker is the physical playback device for translated peer speech.
	Speaker DeviceConfig `yaml:"speaker"`

	// VirtualMicrophone names the virtual input device the conferencing
	// application selects as its microphone.
	VirtualMicrophone string `yaml:"virtual_microphone"`

	// Loopback names the virtual output device that taps the peer's audio
	// out of the conferencing application.
	Loopback string `yaml:"loopback"`
}

// DeviceConfig describes one physical audio endpoint.
type DeviceConfig struct {
	// HardwareID selects a specific device. Empty means the system default.
	HardwareID string `yaml:"hardware_id"`

	// BufferFrames is the endpoint frame buffer capacity, in 20 ms frames.
	// Zero means the built-in default.
	BufferFrames int `yaml:"buffer_frames"`

	// Overflow selects what happens when the buffer is full.
	Overflow OverflowPolicy `yaml:"overflow"`
}

// LanguagesConfig is the session language pair.
type LanguagesConfig struct {
	// User is the language the local user speaks (e.g., "en").
	User string `yaml:"user"`

	// Peer is the language the remote party speaks (e.g., "de").
	Peer string `yaml:"peer"`
}

// VADConfig selects and tunes the voice activity detection engine.
type VADConfig struct {
	// Engine selects the registered VAD engine (e.g., "energy").
	Engine string `yaml:"engine"`

	// SpeechThreshold is the engine-specific activation score above which a
	// frame counts as speech. Zero means the engine default.
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// Hangover is how much trailing silence is tolerated inside a speech
	// segment before it is declared ended. Zero means the engine default.
	Hangover Duration `yaml:"hangover"`
}

// TranslateConfig selects the speech translation backend chain.
type TranslateConfig struct {
	// Provider is the primary translation backend.
	Provider ProviderEntry `yaml:"provider"`

	// Fallbacks are tried in order when the primary fails or its circuit
	// breaker is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Breaker tunes the per-backend circuit breakers.
	Breaker BreakerConfig `yaml:"breaker"`
}

// ProviderEntry is the common configuration block shared by all translation
// backends. The Name field selects the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered backend (e.g., "openai", "relay").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the backend's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default endpoint, or is the endpoint
	// itself for backends without a default (the relay).
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the backend.
	Model string `yaml:"model"`

	// Options holds backend-specific values not covered by the standard
	// fields above (e.g., the openai voice or transcribe model).
	Options map[string]any `yaml:"options"`
}

// BreakerConfig tunes the circuit breaker guarding each translation backend.
// Zero-value fields use the breaker's built-in defaults.
type BreakerConfig struct {
	MaxFailures  int      `yaml:"max_failures"`
	ResetTimeout Duration `yaml:"reset_timeout"`
	HalfOpenMax  int      `yaml:"half_open_max"`
}

// PipelineConfig tunes the per-direction translation channels.
// Zero-value fields use the pipeline's built-in defaults.
type PipelineConfig struct {
	// MinUtterance discards detected segments shorter than this.
	MinUtterance Duration `yaml:"min_utterance"`

	// MaxUtterance force-dispatches a segment that grows past this.
	MaxUtterance Duration `yaml:"max_utterance"`

	// InferenceTimeout bounds each translation call.
	InferenceTimeout Duration `yaml:"inference_timeout"`

	// DrainTimeout bounds how long shutdown waits for in-flight work.
	DrainTimeout Duration `yaml:"drain_timeout"`

	// PendingDepth is how many dispatched utterances may queue behind an
	// in-flight translation before the oldest is dropped.
	PendingDepth int `yaml:"pending_depth"`
}
