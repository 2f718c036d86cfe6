package device

import (
	"time"

	"github.com/voxbridge/voxbridge/pkg/audio"
)

// frameAssembler re-slices the arbitrarily sized byte chunks a hardware
// callback delivers into fixed 320-sample frames. It is touched only from
// the device's data callback, so it needs no locking.
type frameAssembler struct {
	pending []byte
	elapsed time.Duration
}

// feed appends pcm to the pending bytes and emits one call to push per
// complete frame. A trailing partial frame stays pending until the next
// callback.
func (a *frameAssembler) feed(pcm []byte, push func(audio.Frame)) {
	a.pending = append(a.pending, pcm...)
	off := 0
	for len(a.pending)-off >= audio.BytesPerFrame {
		f := audio.FrameFromPCM(a.pending[off:off+audio.BytesPerFrame], a.elapsed)
		a.elapsed += audio.FrameDuration
		off += audio.BytesPerFrame
		push(f)
	}
	// Shift the remainder to the front so the backing array stays bounded
	// at just under one frame plus one callback chunk.
	a.pending = append(a.pending[:0], a.pending[off:]...)
}

// reset discards pending bytes, keeping the elapsed clock. Used when the
// device reconnects and the partial frame no longer lines up.
func (a *frameAssembler) reset() {
	a.pending = a.pending[:0]
}
