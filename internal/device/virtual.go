package device

import (
	"context"
	"sync/atomic"

	"github.com/voxbridge/voxbridge/pkg/audio"
)

// Cable is an in-process virtual loopback device: one shared frame buffer
// with a playback endpoint on its write side and a capture endpoint on its
// read side. Whatever is written to the sink becomes readable at the source,
// exactly as a loopback driver would expose it.
//
// Both ends report the same DeviceID, so the switchboard can detect a route
// that would feed a channel's own output back into the opposite channel.
type Cable struct {
	id   string
	name string
	buf  *audio.FrameBuffer

	sink   *cableEndpoint
	source *cableEndpoint
}

// NewCable creates a cable with the given buffer capacity and overflow
// policy. The id must be unique within the session; the [Manager] guarantees
// that for cables it creates.
func NewCable(id, name string, capacity int, policy audio.OverflowPolicy) *Cable {
	c := &Cable{
		id:   id,
		name: name,
		buf:  audio.NewFrameBuffer(capacity, policy),
	}
	c.sink = &cableEndpoint{cable: c, direction: audio.DirectionPlayback}
	c.source = &cableEndpoint{cable: c, direction: audio.DirectionCapture}
	return c
}

// ID returns the cable's session-unique identifier.
func (c *Cable) ID() string { return c.id }

// Name returns the human-facing device name.
func (c *Cable) Name() string { return c.name }

// Sink returns the write side of the cable.
func (c *Cable) Sink() audio.PlaybackEndpoint { return c.sink }

// Source returns the read side of the cable.
func (c *Cable) Source() audio.CaptureEndpoint { return c.source }

// Close stops both ends and closes the shared buffer. Buffered frames stay
// poppable so the consumer can drain.
func (c *Cable) Close() {
	_ = c.sink.Stop()
	_ = c.source.Stop()
	c.buf.Close()
}

// cableEndpoint is one end of a Cable. Virtual endpoints have no hardware
// loop: Start and Stop only move the lifecycle state, and data flows through
// the shared buffer synchronously with Write and Pop.
type cableEndpoint struct {
	cable     *Cable
	direction audio.Direction
	state     atomic.Int32 // audio.EndpointState
}

var (
	_ audio.PlaybackEndpoint = (*cableEndpoint)(nil)
	_ audio.CaptureEndpoint  = (*cableEndpoint)(nil)
)

func (e *cableEndpoint) Name() string {
	return e.cable.name + "." + e.direction.String()
}

func (e *cableEndpoint) Direction() audio.Direction { return e.direction }
func (e *cableEndpoint) Kind() audio.Kind           { return audio.KindVirtual }
func (e *cableEndpoint) DeviceID() string           { return e.cable.id }

func (e *cableEndpoint) State() audio.EndpointState {
	return audio.EndpointState(e.state.Load())
}

func (e *cableEndpoint) Start(ctx context.Context) error {
	switch e.State() {
	case audio.StateClosed:
		return ErrEndpointClosed
	default:
		e.state.Store(int32(audio.StateActive))
		return nil
	}
}

func (e *cableEndpoint) Stop() error {
	e.state.Store(int32(audio.StateClosed))
	return nil
}

// Write queues one frame on the cable. Only meaningful on the sink side,
// but harmless on either.
func (e *cableEndpoint) Write(f audio.Frame) error {
	if e.State() == audio.StateClosed {
		return ErrEndpointClosed
	}
	return e.cable.buf.Push(f)
}

// Frames returns the cable's shared buffer.
func (e *cableEndpoint) Frames() *audio.FrameBuffer { return e.cable.buf }
