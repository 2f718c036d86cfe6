// Package app wires all voxbridge subsystems into a running bridge.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run starts the endpoints and the translator and blocks until
// the context is cancelled, and Shutdown tears everything down in order.
//
// For testing, inject mock endpoints via functional options (WithMicrophone,
// WithSpeaker). When an option is not provided, New opens the real devices
// from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/device"
	"github.com/voxbridge/voxbridge/internal/health"
	"github.com/voxbridge/voxbridge/internal/observe"
	"github.com/voxbridge/voxbridge/internal/switchboard"
	"github.com/voxbridge/voxbridge/internal/translator"
	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/provider/translate"
	"github.com/voxbridge/voxbridge/pkg/provider/vad"
)

// httpShutdownTimeout bounds the telemetry server drain during Run teardown.
const httpShutdownTimeout = 5 * time.Second

// Providers holds the pluggable backends. Populated by main.go via the
// config registry; the translate provider is normally a resilience.Fallback
// wrapping the configured chain.
type Providers struct {
	VAD       vad.Engine
	Translate translate.Provider
}

// App owns all subsystem lifetimes and orchestrates the audio bridge.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	metrics   *observe.Metrics

	// Subsystems — initialised in New, torn down in Shutdown.
	backend    *device.Backend
	manager    *device.Manager
	mic        audio.CaptureEndpoint
	speaker    audio.PlaybackEndpoint
	virtualMic *device.Handle
	loopback   *device.Handle
	board      *switchboard.Switchboard
	bridge     *translator.Translator
	httpSrv    *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLogger sets the logger. The default is [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// WithMetrics injects the metrics instruments. Nil (the default) disables
// instrumentation.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMicrophone injects a capture endpoint instead of opening the physical
// microphone from config.
func WithMicrophone(ep audio.CaptureEndpoint) Option {
	return func(a *App) { a.mic = ep }
}

// WithSpeaker injects a playback endpoint instead of opening the physical
// speaker from config.
func WithSpeaker(ep audio.PlaybackEndpoint) Option {
	return func(a *App) { a.speaker = ep }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together: physical endpoints,
// virtual devices, switchboard routes, the bidirectional translator, and the
// telemetry server. Nothing runs until Run.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Physical endpoints ────────────────────────────────────────────
	if err := a.initPhysical(); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init physical endpoints: %w", err)
	}

	// ── 2. Virtual devices ───────────────────────────────────────────────
	if err := a.initVirtual(); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init virtual devices: %w", err)
	}

	// ── 3. Switchboard routes ────────────────────────────────────────────
	if err := a.initRoutes(); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init routes: %w", err)
	}

	// ── 4. Translator ────────────────────────────────────────────────────
	if err := a.initTranslator(); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init translator: %w", err)
	}

	// ── 5. Telemetry server ──────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initPhysical opens the configured microphone and speaker unless endpoints
// were injected. Both injected or neither: a single malgo context backs both
// real devices.
func (a *App) initPhysical() error {
	if a.mic != nil && a.speaker != nil {
		return nil
	}

	backend, err := device.NewBackend(a.log)
	if err != nil {
		return err
	}
	a.backend = backend
	a.closers = append(a.closers, backend.Close)

	if a.mic == nil {
		a.mic = device.NewCapture(backend, device.PhysicalConfig{
			Name:         "microphone",
			HardwareID:   a.cfg.Devices.Microphone.HardwareID,
			BufferFrames: a.cfg.Devices.Microphone.BufferFrames,
			Policy:       a.cfg.Devices.Microphone.Overflow.Audio(),
			Logger:       a.log,
			Metrics:      a.metrics,
		})
	}
	if a.speaker == nil {
		a.speaker = device.NewPlayback(backend, device.PhysicalConfig{
			Name:         "speaker",
			HardwareID:   a.cfg.Devices.Speaker.HardwareID,
			BufferFrames: a.cfg.Devices.Speaker.BufferFrames,
			Policy:       a.cfg.Devices.Speaker.Overflow.Audio(),
			Logger:       a.log,
			Metrics:      a.metrics,
		})
	}
	return nil
}

// initVirtual creates the virtual microphone and loopback devices and pins
// them for the lifetime of the bridge.
func (a *App) initVirtual() error {
	a.manager = device.NewManager(a.log)
	a.closers = append(a.closers, func() error {
		a.manager.Close()
		return nil
	})

	vmic, err := a.manager.CreateVirtualInput(a.cfg.Devices.VirtualMicrophone)
	if err != nil {
		return err
	}
	vmic.Acquire()
	a.virtualMic = vmic

	loop, err := a.manager.CreateVirtualOutput(a.cfg.Devices.Loopback)
	if err != nil {
		return err
	}
	loop.Acquire()
	a.loopback = loop

	a.log.Info("virtual devices created",
		"virtual_microphone", vmic.ID(), "loopback", loop.ID())
	return nil
}

// initRoutes wires both directions on the switchboard. Outbound feeds the
// physical microphone into the virtual microphone; inbound feeds the loopback
// tap into the physical speaker.
func (a *App) initRoutes() error {
	a.board = switchboard.New(a.log)

	if err := a.board.Route(translator.ChannelOutbound, a.mic, a.virtualMic.Sink()); err != nil {
		return err
	}
	if err := a.board.Route(translator.ChannelInbound, a.loopback.Source(), a.speaker); err != nil {
		return err
	}
	return nil
}

// initTranslator builds the bidirectional translator from config.
func (a *App) initTranslator() error {
	bridge, err := translator.New(translator.Config{
		Router: a.board,
		VAD:    a.providers.VAD,
		VADConfig: vad.Config{
			SpeechThreshold: a.cfg.VAD.SpeechThreshold,
			Hangover:        a.cfg.VAD.Hangover.Std(),
		},
		Translator: a.providers.Translate,
		Languages: translator.LanguagePair{
			User: a.cfg.Languages.User,
			Peer: a.cfg.Languages.Peer,
		},
		MinUtterance:     a.cfg.Pipeline.MinUtterance.Std(),
		MaxUtterance:     a.cfg.Pipeline.MaxUtterance.Std(),
		InferenceTimeout: a.cfg.Pipeline.InferenceTimeout.Std(),
		DrainTimeout:     a.cfg.Pipeline.DrainTimeout.Std(),
		PendingDepth:     a.cfg.Pipeline.PendingDepth,
		Logger:           a.log,
		Metrics:          a.metrics,
	})
	if err != nil {
		return err
	}
	a.bridge = bridge
	return nil
}

// initHTTP assembles the telemetry mux: Prometheus metrics plus health and
// readiness probes over the live endpoint and channel states.
func (a *App) initHTTP() {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	h := health.New(
		health.EndpointChecker("microphone", a.mic),
		health.EndpointChecker("speaker", a.speaker),
		health.EndpointChecker("virtual_microphone", a.virtualMic.Sink()),
		health.EndpointChecker("loopback", a.loopback.Source()),
		health.ChannelChecker(translator.ChannelOutbound, a.bridge.Outbound()),
		health.ChannelChecker(translator.ChannelInbound, a.bridge.Inbound()),
	)
	h.Register(mux)

	var handler http.Handler = mux
	if a.metrics != nil {
		handler = observe.Middleware(a.metrics)(mux)
	}
	a.httpSrv = &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: handler,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the endpoints, the translator, and the telemetry server, then
// blocks until ctx is cancelled or the telemetry server fails. When ctx is
// done, Run returns context.Canceled (or the underlying cause). On return
// the translator is stopped and the server drained; device teardown happens
// in Shutdown.
func (a *App) Run(ctx context.Context) error {
	if err := a.startEndpoints(ctx); err != nil {
		return fmt.Errorf("app: start endpoints: %w", err)
	}

	if err := a.bridge.Start(ctx); err != nil {
		return fmt.Errorf("app: start translator: %w", err)
	}
	defer func() {
		if err := a.bridge.Stop(); err != nil {
			a.log.Warn("translator stop error", "err", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("telemetry server listening", "addr", a.httpSrv.Addr)
		if err := a.httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("telemetry server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("telemetry server shutdown error", "err", err)
		}
		return gctx.Err()
	})

	a.log.Info("bridge running",
		"user_language", a.cfg.Languages.User,
		"peer_language", a.cfg.Languages.Peer,
	)
	return g.Wait()
}

// startEndpoints brings up the four endpoints the routes reference.
func (a *App) startEndpoints(ctx context.Context) error {
	for _, ep := range []audio.Endpoint{
		a.mic,
		a.speaker,
		a.virtualMic.Sink(),
		a.loopback.Source(),
	} {
		if err := ep.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", ep.Name(), err)
		}
	}
	return nil
}

// SetLanguagePair swaps the session language pair atomically; in-flight
// utterances finish under the pair they started with. Driven by the config
// watcher on live reloads.
func (a *App) SetLanguagePair(user, peer string) error {
	return a.bridge.SetLanguagePair(user, peer)
}

// Languages returns the currently active language pair.
func (a *App) Languages() translator.LanguagePair {
	return a.bridge.Languages()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down the endpoints and devices in reverse-init order. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down")

		if err := a.bridge.Stop(); err != nil {
			a.log.Warn("translator stop error", "err", err)
		}

		if err := a.mic.Stop(); err != nil {
			a.log.Warn("microphone stop error", "err", err)
		}
		if err := a.speaker.Stop(); err != nil {
			a.log.Warn("speaker stop error", "err", err)
		}
		a.virtualMic.Release()
		a.loopback.Release()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// runClosers unwinds partially-initialised state when New fails.
func (a *App) runClosers() {
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			a.log.Warn("cleanup error", "err", err)
		}
	}
}
