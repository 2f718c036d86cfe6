package audio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrBufferFull is returned by [FrameBuffer.Push] under the [RejectNew]
// policy when the buffer is at capacity.
var ErrBufferFull = errors.New("audio: frame buffer full")

// ErrBufferClosed is returned by [FrameBuffer.Push] after [FrameBuffer.Close].
var ErrBufferClosed = errors.New("audio: frame buffer closed")

// OverflowPolicy selects how a [FrameBuffer] behaves when a push arrives
// while the buffer is at capacity.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest buffered frame to make room for the new
	// one. This favours freshness and is the default for capture paths,
	// where a stale frame is worth less than a current one.
	DropOldest OverflowPolicy = iota

	// RejectNew refuses the incoming frame and returns [ErrBufferFull],
	// leaving the buffer contents intact. Used where completeness matters
	// more than freshness, such as playback of synthesised speech.
	RejectNew
)

// String returns the policy name as used in configuration files.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case RejectNew:
		return "reject-new"
	default:
		return "unknown"
	}
}

// DefaultBufferFrames is the default capacity of a frame buffer: ten frames,
// roughly 200 ms of audio.
const DefaultBufferFrames = 10

// FrameBuffer is a bounded FIFO queue of frames between exactly one producer
// goroutine and exactly one consumer goroutine. The single-producer/
// single-consumer discipline is a contract, not an enforcement: each endpoint
// owns one buffer, its device loop is the sole producer (or consumer), and
// its channel loop is the sole counterpart.
//
// Overflow is never silent — every evicted or rejected frame increments the
// counter reported by [FrameBuffer.Dropped]. Popping from an empty buffer is
// a normal "no data yet" condition, not an error.
type FrameBuffer struct {
	mu     sync.Mutex
	frames []Frame // ring storage, len == capacity
	head   int     // index of oldest frame
	count  int
	closed bool

	policy  OverflowPolicy
	dropped atomic.Uint64

	// notEmpty carries at most one pending wakeup for the single consumer.
	notEmpty chan struct{}
}

// NewFrameBuffer creates a buffer holding at most capacity frames with the
// given overflow policy. A capacity below one is raised to
// [DefaultBufferFrames].
func NewFrameBuffer(capacity int, policy OverflowPolicy) *FrameBuffer {
	if capacity < 1 {
		capacity = DefaultBufferFrames
	}
	return &FrameBuffer{
		frames:   make([]Frame, capacity),
		policy:   policy,
		notEmpty: make(chan struct{}, 1),
	}
}

// Push appends a frame. At capacity the overflow policy decides: DropOldest
// evicts the head frame and succeeds, RejectNew returns [ErrBufferFull].
// Both overflow outcomes increment the drop counter. Push never blocks.
func (b *FrameBuffer) Push(f Frame) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBufferClosed
	}
	if b.count == len(b.frames) {
		if b.policy == RejectNew {
			b.mu.Unlock()
			b.dropped.Add(1)
			return ErrBufferFull
		}
		// DropOldest: evict the head slot and reuse it.
		b.head = (b.head + 1) % len(b.frames)
		b.count--
		b.dropped.Add(1)
	}
	b.frames[(b.head+b.count)%len(b.frames)] = f
	b.count++
	b.mu.Unlock()

	select {
	case b.notEmpty <- struct{}{}:
	default:
	}
	return nil
}

// Pop removes and returns the oldest frame. The second result is false when
// the buffer is empty.
func (b *FrameBuffer) Pop() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return Frame{}, false
	}
	f := b.frames[b.head]
	b.head = (b.head + 1) % len(b.frames)
	b.count--
	return f, true
}

// PopWait removes and returns the oldest frame, blocking up to timeout for
// one to arrive. Expiry returns (Frame{}, false) and is normal control flow.
// A closed buffer still yields its remaining frames before reporting empty.
func (b *FrameBuffer) PopWait(timeout time.Duration) (Frame, bool) {
	if f, ok := b.Pop(); ok {
		return f, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-b.notEmpty:
			if f, ok := b.Pop(); ok {
				return f, true
			}
			// Wakeup raced with a concurrent Pop; keep waiting.
		case <-timer.C:
			return b.Pop()
		}
	}
}

// Len reports the number of buffered frames.
func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap reports the fixed capacity.
func (b *FrameBuffer) Cap() int {
	return len(b.frames)
}

// Policy reports the overflow policy fixed at construction.
func (b *FrameBuffer) Policy() OverflowPolicy {
	return b.policy
}

// Dropped reports the total number of frames lost to overflow since
// construction.
func (b *FrameBuffer) Dropped() uint64 {
	return b.dropped.Load()
}

// Close marks the buffer closed. Subsequent pushes fail with
// [ErrBufferClosed]; already-buffered frames remain poppable. Close also
// wakes a consumer blocked in [FrameBuffer.PopWait] so it can observe the
// drained state. Closing twice is a no-op.
func (b *FrameBuffer) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	select {
	case b.notEmpty <- struct{}{}:
	default:
	}
}

// Closed reports whether Close has been called.
func (b *FrameBuffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
