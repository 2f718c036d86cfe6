package device

import (
	"context"
	"errors"
	"testing"

	"github.com/voxbridge/voxbridge/pkg/audio"
)

func TestCable_LoopsSinkToSource(t *testing.T) {
	t.Parallel()

	c := NewCable("vox-test-mic", "test-mic", 4, audio.RejectNew)
	if err := c.Sink().Start(context.Background()); err != nil {
		t.Fatalf("Start sink: %v", err)
	}
	if err := c.Source().Start(context.Background()); err != nil {
		t.Fatalf("Start source: %v", err)
	}

	var f audio.Frame
	f.Samples[0] = 42
	if err := c.Sink().Write(f); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, ok := c.Source().Frames().Pop()
	if !ok {
		t.Fatal("Pop returned no frame")
	}
	if got.Samples[0] != 42 {
		t.Errorf("sample = %d, want 42", got.Samples[0])
	}
}

func TestCable_SharedDeviceID(t *testing.T) {
	t.Parallel()

	c := NewCable("vox-test-spk", "test-spk", 4, audio.DropOldest)
	if c.Sink().DeviceID() != c.Source().DeviceID() {
		t.Errorf("sink DeviceID %q != source DeviceID %q",
			c.Sink().DeviceID(), c.Source().DeviceID())
	}
	if c.Sink().Kind() != audio.KindVirtual || c.Source().Kind() != audio.KindVirtual {
		t.Error("cable ends must be virtual")
	}
	if c.Sink().Direction() != audio.DirectionPlayback {
		t.Error("sink must be a playback endpoint")
	}
	if c.Source().Direction() != audio.DirectionCapture {
		t.Error("source must be a capture endpoint")
	}
}

func TestCable_CloseRejectsWritesKeepsDrain(t *testing.T) {
	t.Parallel()

	c := NewCable("vox-test-close", "test-close", 4, audio.RejectNew)
	if err := c.Sink().Write(audio.Frame{}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	c.Close()

	if err := c.Sink().Write(audio.Frame{}); !errors.Is(err, ErrEndpointClosed) {
		t.Errorf("Write after Close = %v, want ErrEndpointClosed", err)
	}
	if c.Sink().State() != audio.StateClosed || c.Source().State() != audio.StateClosed {
		t.Error("cable ends not closed")
	}
	if _, ok := c.Source().Frames().Pop(); !ok {
		t.Error("buffered frame not drainable after Close")
	}
}

func TestCable_StartAfterCloseFails(t *testing.T) {
	t.Parallel()

	c := NewCable("vox-test-restart", "test-restart", 4, audio.DropOldest)
	c.Close()
	if err := c.Sink().Start(context.Background()); !errors.Is(err, ErrEndpointClosed) {
		t.Errorf("Start after Close = %v, want ErrEndpointClosed", err)
	}
}
