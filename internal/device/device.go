// Package device implements the audio endpoints of VoxBridge: physical
// capture and playback devices backed by miniaudio, and virtual loopback
// cables that third-party applications select as their microphone or
// speaker.
//
// Physical endpoints run callback-driven device loops that produce into or
// consume from a [audio.FrameBuffer] at the fixed 20 ms frame cadence. A
// device that vanishes mid-session moves the endpoint to Disconnected and
// starts a background recovery loop; the owning channel observes the state
// and degrades rather than crashing.
//
// Virtual endpoints are created and reference-counted by the [Manager].
package device

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/malgo"
)

// Backend wraps the shared miniaudio context. All physical endpoints of a
// session are created against one Backend; virtual endpoints do not need it.
type Backend struct {
	ctx *malgo.AllocatedContext
	log *slog.Logger
}

// NewBackend initialises the platform audio subsystem.
func NewBackend(log *slog.Logger) (*Backend, error) {
	if log == nil {
		log = slog.Default()
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("device: init audio context: %w", err)
	}
	return &Backend{ctx: ctx, log: log}, nil
}

// Close tears the audio context down. All endpoints created against this
// backend must be stopped first.
func (b *Backend) Close() error {
	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	if err != nil {
		return fmt.Errorf("device: uninit audio context: %w", err)
	}
	return nil
}
