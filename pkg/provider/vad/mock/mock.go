// Package mock provides test doubles for the vad package interfaces.
//
// Use Detector with a scripted event sequence to drive a channel loop
// through exact segment boundaries:
//
//	det := &mock.Detector{Script: []vad.Event{
//	    {Type: vad.Silence},
//	    {Type: vad.SpeechStart},
//	    {Type: vad.SpeechEnd, TrailingSilence: 1},
//	}}
//	eng := &mock.Engine{Detector: det}
package mock

import (
	"sync"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Detector is returned by NewDetector. If nil, a new default Detector
	// is returned.
	Detector vad.Detector

	// NewDetectorErr, if non-nil, is returned as the error from NewDetector.
	NewDetectorErr error

	// NewDetectorCalls records the Config of every NewDetector call in order.
	NewDetectorCalls []vad.Config
}

// NewDetector records the call and returns Detector, NewDetectorErr.
func (e *Engine) NewDetector(cfg vad.Config) (vad.Detector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewDetectorCalls = append(e.NewDetectorCalls, cfg)
	if e.NewDetectorErr != nil {
		return nil, e.NewDetectorErr
	}
	if e.Detector != nil {
		return e.Detector, nil
	}
	return &Detector{}, nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// Detector is a mock implementation of vad.Detector. Every ProcessFrame call
// consumes the next scripted event; when the script is exhausted the detector
// keeps returning the zero event (Silence).
type Detector struct {
	mu sync.Mutex

	// Script is the sequence of events to return, one per ProcessFrame call.
	Script []vad.Event

	// ProcessFrameErr, if non-nil, is returned by every ProcessFrame call.
	ProcessFrameErr error

	// Frames records a copy of every frame passed to ProcessFrame.
	Frames []audio.Frame

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	next int
}

// ProcessFrame records the frame and returns the next scripted event.
func (d *Detector) ProcessFrame(f audio.Frame) (vad.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Frames = append(d.Frames, f)
	if d.ProcessFrameErr != nil {
		return vad.Event{}, d.ProcessFrameErr
	}
	if d.next < len(d.Script) {
		ev := d.Script[d.next]
		d.next++
		return ev, nil
	}
	return vad.Event{Type: vad.Silence}, nil
}

// Reset records the call.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResetCallCount++
}

// Close records the call and returns nil.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCallCount++
	return nil
}

// Ensure Detector implements vad.Detector at compile time.
var _ vad.Detector = (*Detector)(nil)
