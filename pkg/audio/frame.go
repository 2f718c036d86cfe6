// Package audio defines the frame format, the bounded frame buffer, and the
// endpoint interfaces that everything else in VoxBridge is built on.
//
// All audio inside the pipeline is mono 16 kHz signed 16-bit PCM, sliced into
// fixed 20 ms frames of 320 samples. A [Frame] is a value type: it moves from
// producer to consumer through a [FrameBuffer] and is never shared between
// goroutines after hand-off. Devices that operate at other rates or channel
// counts convert at the edge, before frames enter the pipeline.
//
// This package lives under pkg/ because external device adapters are expected
// to implement [CaptureEndpoint] and [PlaybackEndpoint].
package audio

import "time"

const (
	// SampleRate is the pipeline-wide sample rate in Hz.
	SampleRate = 16000

	// Channels is the pipeline-wide channel count. Everything is mono.
	Channels = 1

	// FrameDuration is the fixed time slice each frame represents.
	FrameDuration = 20 * time.Millisecond

	// SamplesPerFrame is the number of samples in one frame:
	// SampleRate × FrameDuration = 16000 × 0.02 = 320.
	SamplesPerFrame = SampleRate / (int(time.Second / FrameDuration))

	// BytesPerFrame is the size of one frame as little-endian PCM bytes.
	BytesPerFrame = SamplesPerFrame * 2
)

// Frame is a single 20 ms slice of PCM audio — the atomic unit of transport
// in the pipeline. The fixed-size sample array gives frames value semantics:
// pushing a frame into a [FrameBuffer] copies it, so the producer may reuse
// its own storage immediately and the consumer owns the popped copy outright.
type Frame struct {
	// Samples holds the PCM payload.
	Samples [SamplesPerFrame]int16

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// FrameFromPCM builds a Frame from little-endian 16-bit PCM bytes. Short
// input is zero-padded; excess input is truncated. Capture endpoints use this
// at the hardware boundary.
func FrameFromPCM(pcm []byte, ts time.Duration) Frame {
	f := Frame{Timestamp: ts}
	n := len(pcm) / 2
	if n > SamplesPerFrame {
		n = SamplesPerFrame
	}
	for i := 0; i < n; i++ {
		f.Samples[i] = int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
	}
	return f
}

// AppendPCM appends the frame's samples to dst as little-endian bytes and
// returns the extended slice. Playback endpoints use this at the hardware
// boundary.
func (f *Frame) AppendPCM(dst []byte) []byte {
	for _, s := range f.Samples {
		dst = append(dst, byte(uint16(s)), byte(uint16(s)>>8))
	}
	return dst
}

// FramesFromSamples slices a flat sample buffer into frames with timestamps
// starting at base and advancing by [FrameDuration] per frame. A trailing
// partial frame is zero-padded. Used to frame synthesis output before it is
// written to a playback endpoint.
func FramesFromSamples(samples []int16, base time.Duration) []Frame {
	if len(samples) == 0 {
		return nil
	}
	n := (len(samples) + SamplesPerFrame - 1) / SamplesPerFrame
	frames := make([]Frame, n)
	for i := range frames {
		frames[i].Timestamp = base + time.Duration(i)*FrameDuration
		copy(frames[i].Samples[:], samples[i*SamplesPerFrame:])
	}
	return frames
}
