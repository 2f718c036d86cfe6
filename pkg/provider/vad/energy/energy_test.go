package energy_test

import (
	"testing"
	"time"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/provider/vad"
	"github.com/voxbridge/voxbridge/pkg/provider/vad/energy"
)

// loudFrame returns a frame whose mean-square energy is well above the test
// threshold; quietFrame one well below it.
func loudFrame() audio.Frame {
	var f audio.Frame
	for i := range f.Samples {
		f.Samples[i] = 2000
	}
	return f
}

func quietFrame() audio.Frame {
	return audio.Frame{}
}

func newDetector(t *testing.T, hangoverFrames int) vad.Detector {
	t.Helper()
	d, err := energy.New().NewDetector(vad.Config{
		SpeechThreshold: 1000,
		Hangover:        time.Duration(hangoverFrames) * audio.FrameDuration,
	})
	if err != nil {
		t.Fatalf("NewDetector() error: %v", err)
	}
	return d
}

func mustProcess(t *testing.T, d vad.Detector, f audio.Frame) vad.Event {
	t.Helper()
	ev, err := d.ProcessFrame(f)
	if err != nil {
		t.Fatalf("ProcessFrame() error: %v", err)
	}
	return ev
}

func TestDetector_SegmentLifecycle(t *testing.T) {
	t.Parallel()

	const hangover = 3
	d := newDetector(t, hangover)

	if ev := mustProcess(t, d, quietFrame()); ev.Type != vad.Silence {
		t.Errorf("quiet frame before segment = %v, want Silence", ev.Type)
	}

	if ev := mustProcess(t, d, loudFrame()); ev.Type != vad.SpeechStart {
		t.Errorf("first loud frame = %v, want SpeechStart", ev.Type)
	}
	if ev := mustProcess(t, d, loudFrame()); ev.Type != vad.SpeechContinue {
		t.Errorf("second loud frame = %v, want SpeechContinue", ev.Type)
	}

	// Hangover: the first hangover-1 silence frames stay in-segment.
	for i := 0; i < hangover-1; i++ {
		if ev := mustProcess(t, d, quietFrame()); ev.Type != vad.SpeechContinue {
			t.Errorf("hangover frame %d = %v, want SpeechContinue", i, ev.Type)
		}
	}

	ev := mustProcess(t, d, quietFrame())
	if ev.Type != vad.SpeechEnd {
		t.Fatalf("final hangover frame = %v, want SpeechEnd", ev.Type)
	}
	if ev.TrailingSilence != hangover {
		t.Errorf("TrailingSilence = %d, want %d", ev.TrailingSilence, hangover)
	}

	// Back to plain silence once the segment is closed.
	if ev := mustProcess(t, d, quietFrame()); ev.Type != vad.Silence {
		t.Errorf("frame after segment end = %v, want Silence", ev.Type)
	}
}

func TestDetector_SpeechResumesWithinHangover(t *testing.T) {
	t.Parallel()

	d := newDetector(t, 4)

	mustProcess(t, d, loudFrame())
	mustProcess(t, d, quietFrame())
	mustProcess(t, d, quietFrame())

	// Resuming speech inside the hangover must not restart the segment.
	if ev := mustProcess(t, d, loudFrame()); ev.Type != vad.SpeechContinue {
		t.Errorf("resumed speech = %v, want SpeechContinue", ev.Type)
	}
}

func TestDetector_ResetClearsSegment(t *testing.T) {
	t.Parallel()

	d := newDetector(t, 2)
	mustProcess(t, d, loudFrame())
	d.Reset()

	if ev := mustProcess(t, d, quietFrame()); ev.Type != vad.Silence {
		t.Errorf("quiet frame after Reset = %v, want Silence", ev.Type)
	}
	if ev := mustProcess(t, d, loudFrame()); ev.Type != vad.SpeechStart {
		t.Errorf("loud frame after Reset = %v, want SpeechStart", ev.Type)
	}
}

func TestNewDetector_Validation(t *testing.T) {
	t.Parallel()

	eng := energy.New()

	if _, err := eng.NewDetector(vad.Config{SpeechThreshold: -1}); err == nil {
		t.Error("negative threshold should be rejected")
	}
	if _, err := eng.NewDetector(vad.Config{Hangover: -time.Second}); err == nil {
		t.Error("negative hangover should be rejected")
	}

	// Zero config falls back to defaults.
	d, err := eng.NewDetector(vad.Config{})
	if err != nil {
		t.Fatalf("NewDetector(zero config) error: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if _, err := d.ProcessFrame(audio.Frame{}); err == nil {
		t.Error("ProcessFrame after Close should return an error")
	}
}
