// Package switchboard maintains the wiring between channels and endpoints:
// which capture endpoint feeds which channel and which playback endpoint
// receives its output.
//
// The routing table is published as a versioned atomic snapshot. Channel
// loops read it continuously without locking and always observe a complete,
// consistent table; reconfiguration swaps in a new version in one step.
//
// Route enforces the directional-isolation invariant at configuration time:
// a wiring under which one channel's output device feeds another channel's
// input (or its own) would loop translated speech back into the pipeline.
// Such a route is rejected and the previous table stays in force untouched.
package switchboard

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/voxbridge/voxbridge/pkg/audio"
)

// ErrIsolationViolation is returned by Route when the requested wiring would
// create a feedback cycle. The prior routing remains intact.
var ErrIsolationViolation = errors.New("switchboard: directional isolation violated")

// route is one channel's wiring.
type route struct {
	in  audio.CaptureEndpoint
	out audio.PlaybackEndpoint
}

// table is an immutable snapshot of the routing state. Never mutated after
// publication.
type table struct {
	version uint64
	routes  map[string]route
}

// Switchboard wires channels to endpoints. Safe for concurrent use: readers
// load the current snapshot, writers serialise on an internal mutex and
// publish copy-on-write.
type Switchboard struct {
	log *slog.Logger

	mu      sync.Mutex // serialises writers
	current atomic.Pointer[table]
}

// New creates an empty switchboard.
func New(log *slog.Logger) *Switchboard {
	if log == nil {
		log = slog.Default()
	}
	s := &Switchboard{log: log}
	s.current.Store(&table{routes: map[string]route{}})
	return s
}

// Route wires a channel to an input and output endpoint, replacing any
// existing wiring for that channel. It fails with [ErrIsolationViolation]
// if the wiring would alias this channel's output device with any channel's
// input device or vice versa; on failure nothing changes.
func (s *Switchboard) Route(channelID string, in audio.CaptureEndpoint, out audio.PlaybackEndpoint) error {
	if channelID == "" {
		return errors.New("switchboard: empty channel id")
	}
	if in == nil || out == nil {
		return errors.New("switchboard: route requires both endpoints")
	}
	if in.Direction() != audio.DirectionCapture {
		return fmt.Errorf("switchboard: input endpoint %q is not a capture endpoint", in.Name())
	}
	if out.Direction() != audio.DirectionPlayback {
		return fmt.Errorf("switchboard: output endpoint %q is not a playback endpoint", out.Name())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if err := checkIsolation(cur, channelID, in, out); err != nil {
		return err
	}

	next := &table{
		version: cur.version + 1,
		routes:  make(map[string]route, len(cur.routes)+1),
	}
	for id, r := range cur.routes {
		next.routes[id] = r
	}
	next.routes[channelID] = route{in: in, out: out}
	s.current.Store(next)

	s.log.Info("channel routed",
		"channel", channelID,
		"input", in.Name(),
		"output", out.Name(),
		"version", next.version)
	return nil
}

// checkIsolation validates the candidate wiring against every other routed
// channel and against itself.
func checkIsolation(cur *table, channelID string, in audio.CaptureEndpoint, out audio.PlaybackEndpoint) error {
	if in.DeviceID() == out.DeviceID() {
		return fmt.Errorf("%w: channel %q would capture its own output device %q",
			ErrIsolationViolation, channelID, out.DeviceID())
	}
	for id, r := range cur.routes {
		if id == channelID {
			continue
		}
		if out.DeviceID() == r.in.DeviceID() {
			return fmt.Errorf("%w: output device %q of channel %q is the input device of channel %q",
				ErrIsolationViolation, out.DeviceID(), channelID, id)
		}
		if in.DeviceID() == r.out.DeviceID() {
			return fmt.Errorf("%w: input device %q of channel %q is the output device of channel %q",
				ErrIsolationViolation, in.DeviceID(), channelID, id)
		}
	}
	return nil
}

// Unroute removes a channel's wiring. Unknown channels are a no-op.
func (s *Switchboard) Unroute(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if _, ok := cur.routes[channelID]; !ok {
		return
	}
	next := &table{
		version: cur.version + 1,
		routes:  make(map[string]route, len(cur.routes)-1),
	}
	for id, r := range cur.routes {
		if id != channelID {
			next.routes[id] = r
		}
	}
	s.current.Store(next)
	s.log.Info("channel unrouted", "channel", channelID, "version", next.version)
}

// Wiring returns the channel's current endpoints from the latest snapshot.
// This is the read side used by channel loops.
func (s *Switchboard) Wiring(channelID string) (audio.CaptureEndpoint, audio.PlaybackEndpoint, bool) {
	r, ok := s.current.Load().routes[channelID]
	if !ok {
		return nil, nil, false
	}
	return r.in, r.out, true
}

// Version reports the routing table version, bumped on every successful
// Route or Unroute.
func (s *Switchboard) Version() uint64 {
	return s.current.Load().version
}

// Channels lists the currently routed channel IDs.
func (s *Switchboard) Channels() []string {
	cur := s.current.Load()
	ids := make([]string, 0, len(cur.routes))
	for id := range cur.routes {
		ids = append(ids, id)
	}
	return ids
}
