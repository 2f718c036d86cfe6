// Package translator composes the two translation channels of a session
// into one bidirectional unit: outbound carries the user's speech to the
// peer (physical microphone → virtual microphone), inbound carries the
// peer's speech back (loopback capture → physical playback).
//
// Both channels share a single language pair held behind an atomic pointer.
// A swap publishes a complete new pair in one step; each channel observes it
// at its next dispatch, never mid-utterance. The channels run and fail
// independently: a stalled inference call or lost device on one side never
// blocks the other.
package translator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxbridge/voxbridge/internal/observe"
	"github.com/voxbridge/voxbridge/internal/pipeline"
	"github.com/voxbridge/voxbridge/pkg/provider/translate"
	"github.com/voxbridge/voxbridge/pkg/provider/vad"
)

// Channel identifiers used as routing keys on the switchboard.
const (
	ChannelOutbound = "outbound"
	ChannelInbound  = "inbound"
)

// LanguagePair is the session's language configuration: what the user
// speaks and what the peer speaks. Outbound translates User → Peer, inbound
// translates Peer → User.
type LanguagePair struct {
	User string
	Peer string
}

// Config configures a bidirectional translator.
type Config struct {
	// Router supplies both channels' wiring, normally the switchboard.
	Router pipeline.Router

	// VAD creates the per-channel speech detectors.
	VAD vad.Engine

	// VADConfig is shared by both detectors.
	VADConfig vad.Config

	// Translator runs the inference chain. Both channels share it; the
	// provider must be safe for concurrent use.
	Translator translate.Provider

	// Languages is the initial pair.
	Languages LanguagePair

	// Channel tuning, passed through to both channels. Zero values take
	// the pipeline defaults.
	MinUtterance     time.Duration
	MaxUtterance     time.Duration
	InferenceTimeout time.Duration
	DrainTimeout     time.Duration
	PendingDepth     int

	// Logger receives translator events. Nil means slog.Default.
	Logger *slog.Logger

	// Metrics is passed through to both channels.
	Metrics *observe.Metrics
}

// Validate reports all configuration errors joined together.
func (c *Config) Validate() error {
	var errs []error
	if c.Router == nil {
		errs = append(errs, errors.New("router is required"))
	}
	if c.VAD == nil {
		errs = append(errs, errors.New("vad engine is required"))
	}
	if c.Translator == nil {
		errs = append(errs, errors.New("translate provider is required"))
	}
	if c.Languages.User == "" || c.Languages.Peer == "" {
		errs = append(errs, errors.New("both languages are required"))
	}
	return errors.Join(errs...)
}

// Translator drives the two channels of one session.
type Translator struct {
	log  *slog.Logger
	pair atomic.Pointer[LanguagePair]

	outbound *pipeline.Channel
	inbound  *pipeline.Channel

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	started bool
	stopped bool
}

// New builds the translator and its two channels. Nothing runs until Start.
func New(cfg Config) (*Translator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("translator: invalid config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	t := &Translator{log: cfg.Logger}
	pair := cfg.Languages
	t.pair.Store(&pair)

	// Each channel gets its own detector: VAD segment state is per stream.
	mk := func(name string, languages func() (string, string)) (*pipeline.Channel, error) {
		det, err := cfg.VAD.NewDetector(cfg.VADConfig)
		if err != nil {
			return nil, fmt.Errorf("translator: create %s detector: %w", name, err)
		}
		return pipeline.New(pipeline.Config{
			Name:             name,
			Router:           cfg.Router,
			Detector:         det,
			Translator:       cfg.Translator,
			Languages:        languages,
			MinUtterance:     cfg.MinUtterance,
			MaxUtterance:     cfg.MaxUtterance,
			InferenceTimeout: cfg.InferenceTimeout,
			DrainTimeout:     cfg.DrainTimeout,
			PendingDepth:     cfg.PendingDepth,
			Logger:           cfg.Logger,
			Metrics:          cfg.Metrics,
		})
	}

	var err error
	if t.outbound, err = mk(ChannelOutbound, func() (string, string) {
		p := t.pair.Load()
		return p.User, p.Peer
	}); err != nil {
		return nil, err
	}
	if t.inbound, err = mk(ChannelInbound, func() (string, string) {
		p := t.pair.Load()
		return p.Peer, p.User
	}); err != nil {
		return nil, err
	}
	return t, nil
}

// SetLanguagePair swaps the shared pair atomically. Each channel picks the
// new pair up at its next dispatch; an utterance already in flight finishes
// with the pair it observed.
func (t *Translator) SetLanguagePair(user, peer string) error {
	if user == "" || peer == "" {
		return errors.New("translator: both languages are required")
	}
	t.pair.Store(&LanguagePair{User: user, Peer: peer})
	t.log.Info("language pair swapped", "user", user, "peer", peer)
	return nil
}

// Languages returns the current pair.
func (t *Translator) Languages() LanguagePair {
	return *t.pair.Load()
}

// Outbound returns the user→peer channel, for health checks and stats.
func (t *Translator) Outbound() *pipeline.Channel { return t.outbound }

// Inbound returns the peer→user channel.
func (t *Translator) Inbound() *pipeline.Channel { return t.inbound }

// Start launches both channel loops. They run until Stop or ctx
// cancellation. Starting twice is an error.
func (t *Translator) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return errors.New("translator: already started")
	}
	t.started = true

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	// Channel Run always returns nil, so the group never cancels one
	// direction because of the other; it only joins their shutdown.
	g, gctx := errgroup.WithContext(runCtx)
	t.group = g
	g.Go(func() error { return t.outbound.Run(gctx) })
	g.Go(func() error { return t.inbound.Run(gctx) })

	t.log.Info("translator started",
		"user", t.Languages().User, "peer", t.Languages().Peer)
	return nil
}

// Stop shuts both channels down and waits for their bounded drain. Safe to
// call once after Start; further calls are no-ops.
func (t *Translator) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started || t.stopped {
		return nil
	}
	t.stopped = true

	t.cancel()
	err := t.group.Wait()
	t.log.Info("translator stopped")
	return err
}
