package audio

import "context"

// Direction distinguishes capture endpoints (audio flows in from a device)
// from playback endpoints (audio flows out to a device).
type Direction int

const (
	// DirectionCapture marks an endpoint that produces frames.
	DirectionCapture Direction = iota

	// DirectionPlayback marks an endpoint that consumes frames.
	DirectionPlayback
)

// String returns the direction name as used in configuration and logs.
func (d Direction) String() string {
	switch d {
	case DirectionCapture:
		return "capture"
	case DirectionPlayback:
		return "playback"
	default:
		return "unknown"
	}
}

// Kind distinguishes physical hardware devices from software-defined virtual
// devices exposed to third-party applications.
type Kind int

const (
	// KindPhysical marks an endpoint backed by real hardware.
	KindPhysical Kind = iota

	// KindVirtual marks a software-defined loopback endpoint.
	KindVirtual
)

// String returns the kind name as used in configuration and logs.
func (k Kind) String() string {
	switch k {
	case KindPhysical:
		return "physical"
	case KindVirtual:
		return "virtual"
	default:
		return "unknown"
	}
}

// EndpointState is the lifecycle state of an endpoint.
//
// The transitions are Uninitialized → Active → Disconnected → Active (on
// recovery) and any state → Closed (terminal). Disconnection is reported,
// not fatal: the owning channel observes it and degrades until the endpoint
// comes back.
type EndpointState int32

const (
	// StateUninitialized is the state before Start.
	StateUninitialized EndpointState = iota

	// StateActive means the endpoint's device loop is running.
	StateActive

	// StateDisconnected means the underlying device vanished or errored.
	// The endpoint stays in this state until the device recovers or the
	// endpoint is closed.
	StateDisconnected

	// StateClosed is terminal.
	StateClosed
)

// String returns the state name used in logs and health reports.
func (s EndpointState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Endpoint is the common surface of every audio endpoint, capture or
// playback, physical or virtual.
//
// Implementations must be safe for concurrent use: State is polled by
// channel loops and health checks while the device loop runs.
type Endpoint interface {
	// Name is the endpoint's unique name within the session.
	Name() string

	// Direction reports whether this endpoint captures or plays audio.
	Direction() Direction

	// Kind reports whether this endpoint is physical or virtual.
	Kind() Kind

	// DeviceID identifies the underlying device or virtual cable. Two
	// endpoints with the same DeviceID touch the same audio path; the
	// switchboard uses this to detect feedback cycles at route time.
	DeviceID() string

	// State reports the current lifecycle state.
	State() EndpointState

	// Start brings the endpoint to Active and launches its device loop.
	// The loop stops when ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop halts the device loop and moves the endpoint to Closed. It is
	// safe to call more than once.
	Stop() error
}

// CaptureEndpoint produces frames into its buffer at the fixed frame
// cadence. The endpoint's device loop is the buffer's sole producer; the
// channel wired to this endpoint is the sole consumer.
type CaptureEndpoint interface {
	Endpoint

	// Frames returns the endpoint's frame buffer. Consumers read with
	// [FrameBuffer.Pop] or [FrameBuffer.PopWait].
	Frames() *FrameBuffer
}

// PlaybackEndpoint consumes frames written by its channel and renders them
// to the device at the fixed frame cadence. The channel is the sole writer.
type PlaybackEndpoint interface {
	Endpoint

	// Write queues one frame for playback. It never blocks: when the
	// playback buffer is at capacity the endpoint's overflow policy
	// applies and [ErrBufferFull] may be returned.
	Write(Frame) error
}
