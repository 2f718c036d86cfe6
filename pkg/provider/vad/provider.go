// Package vad defines the Engine interface for voice activity detection
// backends.
//
// A VAD engine wraps a frame-level speech detector (an energy gate, WebRTC
// VAD, or a neural model) and surfaces it as a stateful per-stream detector.
// Each detector maintains its own smoothing and hangover state so the two
// pipeline directions can be processed independently.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a
// classification, making it callable at the 20 ms frame cadence inside a
// channel loop without adding latency.
//
// Implementations must be safe for concurrent use across different
// detectors. A single Detector must not be shared across goroutines.
package vad

import (
	"time"

	"github.com/voxbridge/voxbridge/pkg/audio"
)

// Config holds the parameters for a detector. Zero-value fields are replaced
// with engine defaults.
type Config struct {
	// SpeechThreshold is the engine-specific activation score above which a
	// frame counts as speech. For the energy engine this is a mean-square
	// sample energy; for probabilistic engines it is a probability in
	// [0, 1].
	SpeechThreshold float64

	// Hangover is how much trailing silence the detector tolerates inside a
	// speech segment before declaring the segment ended. Longer hangover
	// bridges short pauses at the cost of end-of-utterance latency.
	Hangover time.Duration
}

// EventType classifies the detector's verdict for one frame.
type EventType int

const (
	// Silence: no speech segment is active and this frame is not speech.
	Silence EventType = iota

	// SpeechStart: this frame opens a new speech segment.
	SpeechStart

	// SpeechContinue: a segment is active and includes this frame. Emitted
	// for speech frames and for silence frames still inside the hangover
	// window.
	SpeechContinue

	// SpeechEnd: the hangover elapsed and the active segment is over. The
	// event's TrailingSilence reports how many frames at the tail of the
	// segment (this one included) were hangover silence.
	SpeechEnd
)

// String returns the event type name used in logs.
func (t EventType) String() string {
	switch t {
	case Silence:
		return "silence"
	case SpeechStart:
		return "speech-start"
	case SpeechContinue:
		return "speech-continue"
	case SpeechEnd:
		return "speech-end"
	default:
		return "unknown"
	}
}

// Event is the detection result for a single frame.
type Event struct {
	// Type is the frame's classification relative to the segment state.
	Type EventType

	// Score is the engine's activation score for this frame, in the scale
	// documented by the engine.
	Score float64

	// TrailingSilence is set only on SpeechEnd: the number of frames at the
	// end of the segment that were hangover silence rather than speech.
	// Accumulators trim this many frames so a dispatched utterance ends on
	// its last speech frame.
	TrailingSilence int
}

// Detector is a stateful per-stream speech detector. It is not safe for
// concurrent use; each channel loop owns exactly one.
type Detector interface {
	// ProcessFrame classifies one frame and advances the segment state
	// machine. It must not block.
	ProcessFrame(f audio.Frame) (Event, error)

	// Reset clears segment state without closing the detector. Use when the
	// input stream is interrupted so stale hangover state cannot bleed into
	// the next segment.
	Reset()

	// Close releases detector resources. Calling Close more than once is
	// safe and returns nil.
	Close() error
}

// Engine is the factory for detectors, implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: both pipeline directions
// create their detectors from the same engine.
type Engine interface {
	// NewDetector creates a detector with the given configuration, ready to
	// accept frames. Returns an error if the configuration is invalid.
	NewDetector(cfg Config) (Detector, error)
}
