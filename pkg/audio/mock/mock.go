// Package mock provides test doubles for the audio endpoint interfaces.
//
// CaptureEndpoint carries a real [audio.FrameBuffer] so tests can feed frames
// through the same path production code uses. PlaybackEndpoint records every
// written frame in order. Both expose SetState so tests can simulate device
// loss and recovery.
//
// Example:
//
//	in := mock.NewCaptureEndpoint("mic")
//	in.Frames().Push(frame)
//	out := mock.NewPlaybackEndpoint("speakers")
//	// ... run the component under test, then inspect out.Written().
package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/voxbridge/voxbridge/pkg/audio"
)

// CaptureEndpoint is a mock implementation of [audio.CaptureEndpoint].
type CaptureEndpoint struct {
	// EndpointName is returned by Name. Also used as DeviceID unless
	// Device is set.
	EndpointName string

	// Device, if non-empty, is returned by DeviceID.
	Device string

	// EndpointKind is returned by Kind. Zero value is KindPhysical.
	EndpointKind audio.Kind

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	state atomic.Int32
	buf   *audio.FrameBuffer

	mu              sync.Mutex
	StartCallCount  int
	StopCallCount   int
}

// NewCaptureEndpoint creates a mock capture endpoint in the Active state with
// a default-sized drop-oldest buffer.
func NewCaptureEndpoint(name string) *CaptureEndpoint {
	e := &CaptureEndpoint{
		EndpointName: name,
		buf:          audio.NewFrameBuffer(audio.DefaultBufferFrames, audio.DropOldest),
	}
	e.state.Store(int32(audio.StateActive))
	return e
}

// Name returns EndpointName.
func (e *CaptureEndpoint) Name() string { return e.EndpointName }

// Direction returns DirectionCapture.
func (e *CaptureEndpoint) Direction() audio.Direction { return audio.DirectionCapture }

// Kind returns EndpointKind.
func (e *CaptureEndpoint) Kind() audio.Kind { return e.EndpointKind }

// DeviceID returns Device when set, otherwise EndpointName.
func (e *CaptureEndpoint) DeviceID() string {
	if e.Device != "" {
		return e.Device
	}
	return e.EndpointName
}

// State returns the current mock state (settable via SetState).
func (e *CaptureEndpoint) State() audio.EndpointState {
	return audio.EndpointState(e.state.Load())
}

// SetState overrides the reported state. Use this to simulate device loss
// (StateDisconnected) and recovery (StateActive).
func (e *CaptureEndpoint) SetState(s audio.EndpointState) {
	e.state.Store(int32(s))
}

// Start records the call and returns StartErr.
func (e *CaptureEndpoint) Start(_ context.Context) error {
	e.mu.Lock()
	e.StartCallCount++
	e.mu.Unlock()
	if e.StartErr != nil {
		return e.StartErr
	}
	e.SetState(audio.StateActive)
	return nil
}

// Stop records the call and moves the endpoint to Closed.
func (e *CaptureEndpoint) Stop() error {
	e.mu.Lock()
	e.StopCallCount++
	e.mu.Unlock()
	e.SetState(audio.StateClosed)
	return nil
}

// Frames returns the endpoint's real frame buffer. Tests push frames here.
func (e *CaptureEndpoint) Frames() *audio.FrameBuffer { return e.buf }

// Ensure CaptureEndpoint implements audio.CaptureEndpoint at compile time.
var _ audio.CaptureEndpoint = (*CaptureEndpoint)(nil)

// PlaybackEndpoint is a mock implementation of [audio.PlaybackEndpoint].
type PlaybackEndpoint struct {
	// EndpointName is returned by Name. Also used as DeviceID unless
	// Device is set.
	EndpointName string

	// Device, if non-empty, is returned by DeviceID.
	Device string

	// EndpointKind is returned by Kind. Zero value is KindPhysical.
	EndpointKind audio.Kind

	// WriteErr, if non-nil, is returned by every Write call.
	WriteErr error

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	state atomic.Int32

	mu             sync.Mutex
	written        []audio.Frame
	StartCallCount int
	StopCallCount  int
}

// NewPlaybackEndpoint creates a mock playback endpoint in the Active state.
func NewPlaybackEndpoint(name string) *PlaybackEndpoint {
	e := &PlaybackEndpoint{EndpointName: name}
	e.state.Store(int32(audio.StateActive))
	return e
}

// Name returns EndpointName.
func (e *PlaybackEndpoint) Name() string { return e.EndpointName }

// Direction returns DirectionPlayback.
func (e *PlaybackEndpoint) Direction() audio.Direction { return audio.DirectionPlayback }

// Kind returns EndpointKind.
func (e *PlaybackEndpoint) Kind() audio.Kind { return e.EndpointKind }

// DeviceID returns Device when set, otherwise EndpointName.
func (e *PlaybackEndpoint) DeviceID() string {
	if e.Device != "" {
		return e.Device
	}
	return e.EndpointName
}

// State returns the current mock state (settable via SetState).
func (e *PlaybackEndpoint) State() audio.EndpointState {
	return audio.EndpointState(e.state.Load())
}

// SetState overrides the reported state.
func (e *PlaybackEndpoint) SetState(s audio.EndpointState) {
	e.state.Store(int32(s))
}

// Start records the call and returns StartErr.
func (e *PlaybackEndpoint) Start(_ context.Context) error {
	e.mu.Lock()
	e.StartCallCount++
	e.mu.Unlock()
	if e.StartErr != nil {
		return e.StartErr
	}
	e.SetState(audio.StateActive)
	return nil
}

// Stop records the call and moves the endpoint to Closed.
func (e *PlaybackEndpoint) Stop() error {
	e.mu.Lock()
	e.StopCallCount++
	e.mu.Unlock()
	e.SetState(audio.StateClosed)
	return nil
}

// Write records the frame and returns WriteErr.
func (e *PlaybackEndpoint) Write(f audio.Frame) error {
	if e.WriteErr != nil {
		return e.WriteErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.written = append(e.written, f)
	return nil
}

// Written returns a copy of all frames written so far, in order.
func (e *PlaybackEndpoint) Written() []audio.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]audio.Frame, len(e.written))
	copy(out, e.written)
	return out
}

// ResetCalls clears recorded frames and call counts. Thread-safe.
func (e *PlaybackEndpoint) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.written = nil
	e.StartCallCount = 0
	e.StopCallCount = 0
}

// Ensure PlaybackEndpoint implements audio.PlaybackEndpoint at compile time.
var _ audio.PlaybackEndpoint = (*PlaybackEndpoint)(nil)
