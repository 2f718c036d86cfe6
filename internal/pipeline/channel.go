// Package pipeline implements the translation channel: the directional path
// that pulls frames from a capture endpoint, segments them into utterances
// with a VAD detector, runs each utterance through the translate chain, and
// writes the synthesised frames to a playback endpoint.
//
// A channel runs two goroutines. The accumulate loop owns the VAD state
// machine (Idle → Listening → Accumulating → Dispatching, with Degraded as a
// side state and Closed terminal) and never blocks on inference. Completed
// utterances go through a small bounded queue to the dispatch worker, which
// serialises inference calls so output frames of different utterances are
// never interleaved. When the queue is full the oldest pending utterance is
// dropped and counted — bounded latency wins over completeness.
//
// Wiring is never held directly: the channel reads its current input/output
// endpoints from a [Router] snapshot on every iteration, so switchboard
// reconfiguration is atomic from the channel's point of view.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxbridge/voxbridge/internal/observe"
	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/provider/translate"
	"github.com/voxbridge/voxbridge/pkg/provider/vad"
)

// State is the lifecycle state of a channel.
type State int32

const (
	// StateIdle: the channel has no wiring and is waiting for a route.
	StateIdle State = iota

	// StateListening: frames flow and are classified, no segment is active.
	StateListening

	// StateAccumulating: a speech segment is active and frames are being
	// appended to the utterance buffer.
	StateAccumulating

	// StateDispatching: an utterance is in flight to the translate chain.
	// Accumulation of the next utterance continues concurrently.
	StateDispatching

	// StateDegraded: an endpoint reported Disconnected. Input is discarded
	// until the endpoint recovers.
	StateDegraded

	// StateClosed is terminal.
	StateClosed
)

// String returns the state name used in logs and health reports.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateAccumulating:
		return "accumulating"
	case StateDispatching:
		return "dispatching"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Router exposes the switchboard's current wiring to a channel. Wiring must
// return a consistent snapshot: both endpoints from the same routing table
// version, never a half-updated pair.
type Router interface {
	Wiring(channelID string) (in audio.CaptureEndpoint, out audio.PlaybackEndpoint, ok bool)
}

// Defaults for the tunable channel parameters. Overflow policies and these
// durations are configuration, not constants of the design.
const (
	DefaultMinUtterance     = 300 * time.Millisecond
	DefaultMaxUtterance     = 10 * time.Second
	DefaultInferenceTimeout = 2 * time.Second
	DefaultDrainTimeout     = 2 * time.Second
	DefaultPendingDepth     = 2
)

// Loop cadence constants. Frame waits and degraded-state polls are bounded
// so the loop always observes cancellation promptly.
const (
	frameWaitTimeout     = 100 * time.Millisecond
	degradedPollInterval = 100 * time.Millisecond
)

// Config configures one channel.
type Config struct {
	// Name identifies the channel ("outbound", "inbound") and keys its
	// wiring in the router.
	Name string

	// Router supplies the current endpoint wiring.
	Router Router

	// Detector is the channel's private VAD detector.
	Detector vad.Detector

	// Translator runs the ASR→MT→TTS chain for completed utterances.
	Translator translate.Provider

	// Languages returns the (source, target) pair. It is called once per
	// dispatch, so a swapped pair takes effect at the next utterance and
	// never mid-utterance.
	Languages func() (source, target string)

	// MinUtterance filters out segments shorter than this; they are
	// discarded and counted, not translated.
	MinUtterance time.Duration

	// MaxUtterance forces dispatch of a segment that reaches this length.
	// Accumulation of the continuation resumes immediately.
	MaxUtterance time.Duration

	// InferenceTimeout bounds one Translate call.
	InferenceTimeout time.Duration

	// DrainTimeout bounds how long shutdown waits for in-flight and pending
	// dispatches before cancelling them.
	DrainTimeout time.Duration

	// PendingDepth is the dispatch queue capacity.
	PendingDepth int

	// Logger receives channel events. Nil means slog.Default.
	Logger *slog.Logger

	// Metrics, when non-nil, receives utterance and overrun counts.
	Metrics *observe.Metrics
}

// Validate reports all configuration errors joined together.
func (c *Config) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if c.Router == nil {
		errs = append(errs, errors.New("router is required"))
	}
	if c.Detector == nil {
		errs = append(errs, errors.New("detector is required"))
	}
	if c.Translator == nil {
		errs = append(errs, errors.New("translator is required"))
	}
	if c.Languages == nil {
		errs = append(errs, errors.New("languages func is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) applyDefaults() {
	if c.MinUtterance <= 0 {
		c.MinUtterance = DefaultMinUtterance
	}
	if c.MaxUtterance <= 0 {
		c.MaxUtterance = DefaultMaxUtterance
	}
	if c.InferenceTimeout <= 0 {
		c.InferenceTimeout = DefaultInferenceTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.PendingDepth <= 0 {
		c.PendingDepth = DefaultPendingDepth
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Channel is one directional translation path. Create with [New], drive
// with [Channel.Run].
type Channel struct {
	cfg Config
	log *slog.Logger

	state    atomic.Int32 // State, owned by the accumulate loop
	inflight atomic.Bool  // a dispatch is running on the worker

	pending  chan *utterance
	overruns atomic.Uint64
}

// New creates a channel. The channel does nothing until Run.
func New(cfg Config) (*Channel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: invalid config: %w", err)
	}
	cfg.applyDefaults()
	return &Channel{
		cfg:     cfg,
		log:     cfg.Logger.With("channel", cfg.Name),
		pending: make(chan *utterance, cfg.PendingDepth),
	}, nil
}

// Name returns the channel identifier.
func (c *Channel) Name() string { return c.cfg.Name }

// State reports the channel's current state. While the accumulate loop is
// between segments but the worker still has an utterance in flight, the
// reported state is Dispatching.
func (c *Channel) State() State {
	s := State(c.state.Load())
	if (s == StateListening || s == StateAccumulating) && c.inflight.Load() {
		return StateDispatching
	}
	return s
}

// Overruns reports how many pending utterances were dropped because the
// dispatch queue was full.
func (c *Channel) Overruns() uint64 { return c.overruns.Load() }

// Run drives the channel until ctx is cancelled, then drains in-flight
// dispatches for up to DrainTimeout and closes the detector. Run always
// returns nil; audio-path errors are absorbed locally.
func (c *Channel) Run(ctx context.Context) error {
	defer c.setState(StateClosed)
	defer func() { _ = c.cfg.Detector.Close() }()

	// The worker outlives ctx by up to DrainTimeout so a dispatch already
	// in flight can finish instead of being cut off mid-synthesis.
	wctx, wcancel := context.WithCancel(context.WithoutCancel(ctx))
	defer wcancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.dispatchLoop(wctx)
	}()

	c.accumulate(ctx)

	close(c.pending)
	forced := time.AfterFunc(c.cfg.DrainTimeout, wcancel)
	wg.Wait()
	forced.Stop()

	c.log.Info("channel closed")
	return nil
}

// accumulate is the channel's main loop: poll wiring, watch endpoint
// health, classify frames, and cut utterances.
func (c *Channel) accumulate(ctx context.Context) {
	var utt *utterance

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		in, out, ok := c.cfg.Router.Wiring(c.cfg.Name)
		if !ok {
			if utt != nil {
				utt = nil
				c.cfg.Detector.Reset()
			}
			c.setState(StateIdle)
			sleepCtx(ctx, degradedPollInterval)
			continue
		}

		if in.State() != audio.StateActive || out.State() != audio.StateActive {
			if c.enterDegraded(in, out) {
				utt = nil
				c.cfg.Detector.Reset()
			}
			// Discard whatever arrived so stale audio cannot burst out
			// on recovery.
			for {
				if _, ok := in.Frames().Pop(); !ok {
					break
				}
			}
			sleepCtx(ctx, degradedPollInterval)
			continue
		}
		c.exitDegraded()

		if utt == nil {
			c.setState(StateListening)
		}

		f, ok := in.Frames().PopWait(frameWaitTimeout)
		if !ok {
			continue
		}

		ev, err := c.cfg.Detector.ProcessFrame(f)
		if err != nil {
			c.log.Warn("vad error, frame skipped", "error", err)
			continue
		}

		switch ev.Type {
		case vad.SpeechStart:
			utt = &utterance{}
			utt.append(f)
			c.setState(StateAccumulating)

		case vad.SpeechContinue:
			if utt != nil {
				utt.append(f)
			}

		case vad.SpeechEnd:
			if utt == nil {
				break
			}
			utt.append(f)
			utt.trim(ev.TrailingSilence)
			c.finish(ctx, utt)
			utt = nil
			c.setState(StateListening)

		case vad.Silence:
			// No active segment; nothing to do.
		}

		// Forced dispatch: the segment hit the length cap. Hand it off and
		// keep accumulating the continuation without resetting the
		// detector — the speaker has not stopped.
		if utt != nil && utt.duration() >= c.cfg.MaxUtterance {
			c.log.Debug("utterance length cap reached, forcing dispatch",
				"duration", utt.duration())
			c.enqueue(utt)
			utt = &utterance{}
		}
	}
}

// finish applies the minimum-length filter and queues the utterance.
func (c *Channel) finish(ctx context.Context, u *utterance) {
	if u.duration() < c.cfg.MinUtterance {
		c.log.Debug("utterance below minimum length, discarded",
			"duration", u.duration())
		c.recordUtterance(ctx, "discarded")
		return
	}
	c.enqueue(u)
}

// enqueue hands an utterance to the dispatch worker. A full queue drops the
// oldest pending utterance (never the newest) and counts the overrun.
func (c *Channel) enqueue(u *utterance) {
	for {
		select {
		case c.pending <- u:
			return
		default:
		}
		select {
		case <-c.pending:
			c.overruns.Add(1)
			c.log.Warn("dispatch queue full, dropped oldest pending utterance")
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.DispatchOverruns.Add(context.Background(), 1,
					c.channelAttrs())
			}
		default:
		}
	}
}

// enterDegraded transitions into Degraded if not already there. Returns
// true on the transition so the caller can drop segment state once.
func (c *Channel) enterDegraded(in audio.CaptureEndpoint, out audio.PlaybackEndpoint) bool {
	if State(c.state.Load()) == StateDegraded {
		return false
	}
	c.state.Store(int32(StateDegraded))
	c.log.Warn("channel degraded",
		"input_state", in.State().String(),
		"output_state", out.State().String())
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.DegradedChannels.Add(context.Background(), 1)
	}
	return true
}

// exitDegraded recovers to Listening if currently Degraded.
func (c *Channel) exitDegraded() {
	if !c.state.CompareAndSwap(int32(StateDegraded), int32(StateListening)) {
		return
	}
	c.log.Info("channel recovered")
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.DegradedChannels.Add(context.Background(), -1)
	}
}

func (c *Channel) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Channel) recordUtterance(ctx context.Context, status string) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordUtterance(ctx, c.cfg.Name, status)
	}
}

// sleepCtx pauses for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
