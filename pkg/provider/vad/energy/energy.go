// Package energy implements a mean-square energy gate as a [vad.Engine].
//
// The detector classifies a frame as speech when its mean-square sample
// energy exceeds the configured threshold, and closes a segment once the
// hangover window of consecutive silence frames elapses. It is deliberately
// simple — no model files, no cgo — which makes it the default engine and
// the one used in tests. Deployments with noisy capture paths should swap in
// a model-backed engine via the provider registry.
package energy

import (
	"fmt"
	"time"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/provider/vad"
)

const (
	// DefaultThreshold is the default mean-square energy above which a
	// frame counts as speech. Tuned against 16-bit PCM speech recordings;
	// raise it for noisy capture paths.
	DefaultThreshold = 1000.0

	// DefaultHangover is the default trailing-silence window before a
	// segment is declared over.
	DefaultHangover = 800 * time.Millisecond

	// scoreCeiling scales the reported score: energy at threshold×5 or
	// above maps to a score of 1.0.
	scoreCeiling = 5.0
)

// Engine creates energy-gate detectors.
type Engine struct{}

// New returns an energy VAD engine.
func New() *Engine { return &Engine{} }

// NewDetector creates a detector with cfg. Zero-value fields get the package
// defaults; a negative threshold or hangover is rejected.
func (e *Engine) NewDetector(cfg vad.Config) (vad.Detector, error) {
	if cfg.SpeechThreshold < 0 {
		return nil, fmt.Errorf("energy: speech threshold must not be negative, got %v", cfg.SpeechThreshold)
	}
	if cfg.Hangover < 0 {
		return nil, fmt.Errorf("energy: hangover must not be negative, got %v", cfg.Hangover)
	}
	if cfg.SpeechThreshold == 0 {
		cfg.SpeechThreshold = DefaultThreshold
	}
	if cfg.Hangover == 0 {
		cfg.Hangover = DefaultHangover
	}
	hangoverFrames := int(cfg.Hangover / audio.FrameDuration)
	if hangoverFrames < 1 {
		hangoverFrames = 1
	}
	return &detector{
		threshold:      cfg.SpeechThreshold,
		hangoverFrames: hangoverFrames,
	}, nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

type detector struct {
	threshold      float64
	hangoverFrames int

	inSpeech   bool
	silenceRun int
	closed     bool
}

// ProcessFrame classifies f by mean-square energy and advances the segment
// state machine.
func (d *detector) ProcessFrame(f audio.Frame) (vad.Event, error) {
	if d.closed {
		return vad.Event{}, fmt.Errorf("energy: detector is closed")
	}

	var sum float64
	for _, s := range f.Samples {
		fs := float64(s)
		sum += fs * fs
	}
	en := sum / float64(len(f.Samples))

	score := en / (d.threshold * scoreCeiling)
	if score > 1 {
		score = 1
	}
	ev := vad.Event{Score: score}

	speech := en > d.threshold
	switch {
	case speech && !d.inSpeech:
		d.inSpeech = true
		d.silenceRun = 0
		ev.Type = vad.SpeechStart
	case speech:
		d.silenceRun = 0
		ev.Type = vad.SpeechContinue
	case d.inSpeech:
		d.silenceRun++
		if d.silenceRun >= d.hangoverFrames {
			d.inSpeech = false
			ev.Type = vad.SpeechEnd
			ev.TrailingSilence = d.silenceRun
			d.silenceRun = 0
		} else {
			// Silence inside the hangover window stays in-segment.
			ev.Type = vad.SpeechContinue
		}
	default:
		ev.Type = vad.Silence
	}
	return ev, nil
}

// Reset clears segment state.
func (d *detector) Reset() {
	d.inSpeech = false
	d.silenceRun = 0
}

// Close marks the detector unusable. Idempotent.
func (d *detector) Close() error {
	d.closed = true
	return nil
}

// Ensure detector implements vad.Detector at compile time.
var _ vad.Detector = (*detector)(nil)
