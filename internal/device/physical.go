package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxbridge/voxbridge/internal/observe"
	"github.com/voxbridge/voxbridge/pkg/audio"
)

// ErrEndpointClosed is returned by Start and Write on an endpoint that has
// already been stopped.
var ErrEndpointClosed = errors.New("device: endpoint closed")

// Recovery backoff bounds for a disconnected physical device.
const (
	recoveryInitialBackoff = 500 * time.Millisecond
	recoveryMaxBackoff     = 5 * time.Second
)

// PhysicalConfig configures one physical endpoint.
type PhysicalConfig struct {
	// Name is the endpoint's unique name within the session.
	Name string

	// HardwareID selects a specific device. Empty selects the system
	// default for the endpoint's direction.
	HardwareID string

	// BufferFrames is the frame buffer capacity. Zero means
	// [audio.DefaultBufferFrames].
	BufferFrames int

	// Policy is the buffer overflow policy.
	Policy audio.OverflowPolicy

	// Logger receives endpoint lifecycle events. Nil means slog.Default.
	Logger *slog.Logger

	// Metrics, when non-nil, receives active-endpoint and disconnect
	// counts.
	Metrics *observe.Metrics
}

func (c *PhysicalConfig) applyDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.BufferFrames <= 0 {
		c.BufferFrames = audio.DefaultBufferFrames
	}
}

// physical carries the state shared by both directions of hardware endpoint.
type physical struct {
	backend   *Backend
	cfg       PhysicalConfig
	direction audio.Direction
	buf       *audio.FrameBuffer

	state   atomic.Int32 // audio.EndpointState
	closing atomic.Bool

	mu  sync.Mutex // guards dev and open/stop transitions
	dev *malgo.Device

	onData malgo.DataProc
}

func newPhysical(backend *Backend, cfg PhysicalConfig, dir audio.Direction) *physical {
	cfg.applyDefaults()
	return &physical{
		backend:   backend,
		cfg:       cfg,
		direction: dir,
		buf:       audio.NewFrameBuffer(cfg.BufferFrames, cfg.Policy),
	}
}

func (p *physical) Name() string               { return p.cfg.Name }
func (p *physical) Direction() audio.Direction { return p.direction }
func (p *physical) Kind() audio.Kind           { return audio.KindPhysical }

// DeviceID identifies the hardware path for feedback-cycle detection. Two
// endpoints opened on the same hardware share an ID.
func (p *physical) DeviceID() string {
	if p.cfg.HardwareID != "" {
		return p.cfg.HardwareID
	}
	return "system-default-" + p.direction.String()
}

func (p *physical) State() audio.EndpointState {
	return audio.EndpointState(p.state.Load())
}

// Start opens the hardware device and begins the callback loop. The endpoint
// stops when ctx is cancelled or Stop is called.
func (p *physical) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case audio.StateActive:
		return nil
	case audio.StateClosed:
		return ErrEndpointClosed
	}

	if err := p.open(); err != nil {
		return err
	}
	p.setState(audio.StateActive)
	p.cfg.Logger.Info("endpoint started",
		"endpoint", p.cfg.Name,
		"direction", p.direction.String(),
		"device", p.DeviceID())

	go func() {
		<-ctx.Done()
		_ = p.Stop()
	}()
	return nil
}

// open initialises and starts the malgo device. Caller holds p.mu.
func (p *physical) open() error {
	cfg := malgo.DefaultDeviceConfig(malgoType(p.direction))
	cfg.SampleRate = uint32(audio.SampleRate)
	cfg.PeriodSizeInFrames = uint32(audio.SamplesPerFrame)
	cfg.Alsa.NoMMap = 1
	switch p.direction {
	case audio.DirectionCapture:
		cfg.Capture.Format = malgo.FormatS16
		cfg.Capture.Channels = uint32(audio.Channels)
	case audio.DirectionPlayback:
		cfg.Playback.Format = malgo.FormatS16
		cfg.Playback.Channels = uint32(audio.Channels)
	}

	dev, err := malgo.InitDevice(p.backend.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: p.onData,
		Stop: p.onDeviceStopped,
	})
	if err != nil {
		return fmt.Errorf("device: init %s device %q: %w", p.direction, p.cfg.Name, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("device: start %s device %q: %w", p.direction, p.cfg.Name, err)
	}
	p.dev = dev
	return nil
}

// onDeviceStopped fires from the audio thread when the device stops. A stop
// we did not request means the hardware vanished: degrade and begin
// recovery.
func (p *physical) onDeviceStopped() {
	if p.closing.Load() {
		return
	}
	p.setState(audio.StateDisconnected)
	p.cfg.Logger.Warn("endpoint disconnected",
		"endpoint", p.cfg.Name,
		"direction", p.direction.String())
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.DeviceDisconnects.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("endpoint", p.cfg.Name)))
	}
	go p.recover()
}

// recover retries opening the device with exponential backoff until it
// succeeds or the endpoint is stopped.
func (p *physical) recover() {
	backoff := recoveryInitialBackoff
	for {
		time.Sleep(backoff)
		if p.closing.Load() {
			return
		}

		p.mu.Lock()
		if p.dev != nil {
			p.dev.Uninit()
			p.dev = nil
		}
		err := p.open()
		if err == nil {
			p.setState(audio.StateActive)
			p.mu.Unlock()
			p.cfg.Logger.Info("endpoint recovered", "endpoint", p.cfg.Name)
			return
		}
		p.mu.Unlock()

		p.cfg.Logger.Debug("endpoint recovery attempt failed",
			"endpoint", p.cfg.Name, "error", err, "backoff", backoff)
		if backoff *= 2; backoff > recoveryMaxBackoff {
			backoff = recoveryMaxBackoff
		}
	}
}

// Stop halts the device loop and closes the endpoint. Safe to call more
// than once.
func (p *physical) Stop() error {
	if !p.closing.CompareAndSwap(false, true) {
		return nil
	}

	p.mu.Lock()
	if p.dev != nil {
		_ = p.dev.Stop()
		p.dev.Uninit()
		p.dev = nil
	}
	wasActive := p.State() == audio.StateActive
	p.state.Store(int32(audio.StateClosed))
	p.mu.Unlock()

	p.buf.Close()
	if wasActive && p.cfg.Metrics != nil {
		p.cfg.Metrics.ActiveEndpoints.Add(context.Background(), -1, p.endpointAttrs())
	}
	p.cfg.Logger.Info("endpoint stopped", "endpoint", p.cfg.Name)
	return nil
}

// setState transitions the lifecycle state and keeps the active-endpoint
// gauge in step.
func (p *physical) setState(s audio.EndpointState) {
	prev := audio.EndpointState(p.state.Swap(int32(s)))
	if p.cfg.Metrics == nil || prev == s {
		return
	}
	ctx := context.Background()
	if s == audio.StateActive {
		p.cfg.Metrics.ActiveEndpoints.Add(ctx, 1, p.endpointAttrs())
	} else if prev == audio.StateActive {
		p.cfg.Metrics.ActiveEndpoints.Add(ctx, -1, p.endpointAttrs())
	}
}

func (p *physical) endpointAttrs() metric.AddOption {
	return metric.WithAttributes(
		attribute.String("direction", p.direction.String()),
		attribute.String("kind", audio.KindPhysical.String()),
	)
}

func malgoType(d audio.Direction) malgo.DeviceType {
	if d == audio.DirectionPlayback {
		return malgo.Playback
	}
	return malgo.Capture
}

// ── Capture ──

// Capture is a physical capture endpoint: a hardware microphone producing
// frames into its buffer from the device callback.
type Capture struct {
	*physical
	asm frameAssembler
}

var _ audio.CaptureEndpoint = (*Capture)(nil)

// NewCapture creates a capture endpoint against the given backend. The
// device is not opened until Start.
func NewCapture(backend *Backend, cfg PhysicalConfig) *Capture {
	c := &Capture{physical: newPhysical(backend, cfg, audio.DirectionCapture)}
	c.onData = func(_, in []byte, _ uint32) {
		c.asm.feed(in, func(f audio.Frame) {
			if err := c.buf.Push(f); err != nil && c.cfg.Metrics != nil {
				c.cfg.Metrics.RecordFrameDrops(context.Background(),
					c.cfg.Name, c.buf.Policy().String(), 1)
			}
		})
	}
	return c
}

// Frames returns the endpoint's frame buffer.
func (c *Capture) Frames() *audio.FrameBuffer { return c.buf }

// ── Playback ──

// Playback is a physical playback endpoint: frames written by the channel
// are queued in its buffer and rendered to hardware by the device callback.
type Playback struct {
	*physical
	leftover []byte // partial frame bytes between callbacks
}

var _ audio.PlaybackEndpoint = (*Playback)(nil)

// NewPlayback creates a playback endpoint against the given backend. The
// device is not opened until Start.
func NewPlayback(backend *Backend, cfg PhysicalConfig) *Playback {
	p := &Playback{physical: newPhysical(backend, cfg, audio.DirectionPlayback)}
	p.onData = p.render
	return p
}

// Write queues one frame for playback. It never blocks; the buffer's
// overflow policy applies at capacity.
func (p *Playback) Write(f audio.Frame) error {
	if p.State() == audio.StateClosed {
		return ErrEndpointClosed
	}
	err := p.buf.Push(f)
	if err != nil && p.cfg.Metrics != nil && !errors.Is(err, audio.ErrBufferClosed) {
		p.cfg.Metrics.RecordFrameDrops(context.Background(),
			p.cfg.Name, p.buf.Policy().String(), 1)
	}
	return err
}

// render fills the hardware output buffer from queued frames, zero-filling
// on underrun. Runs on the audio thread.
func (p *Playback) render(out, _ []byte, _ uint32) {
	n := copy(out, p.leftover)
	p.leftover = p.leftover[n:]

	for n < len(out) {
		f, ok := p.buf.Pop()
		if !ok {
			// Underrun: the rest of the period plays silence.
			for i := n; i < len(out); i++ {
				out[i] = 0
			}
			return
		}
		pcm := f.AppendPCM(nil)
		c := copy(out[n:], pcm)
		n += c
		if c < len(pcm) {
			p.leftover = pcm[c:]
		}
	}
}
