package device

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxbridge/voxbridge/pkg/audio"
)

// ErrDeviceCreation is returned when a virtual device cannot be created,
// for example because the name is already taken this session. It is
// surfaced to the caller, never retried automatically.
var ErrDeviceCreation = errors.New("device: virtual device creation failed")

// ErrDeviceInUse is returned by Destroy when the handle still has holders
// and the wait deadline expires.
var ErrDeviceInUse = errors.New("device: endpoint in use")

// destroyPollInterval is how often Destroy re-checks the reference count
// while waiting for holders to release.
const destroyPollInterval = 20 * time.Millisecond

// Handle identifies one virtual device created by a [Manager]. Channels
// that wire a handle's endpoints must Acquire it first and Release it when
// unrouted, so the manager never destroys a device out from under a running
// channel.
type Handle struct {
	m     *Manager
	cable *Cable

	// appSide is the direction the virtual device presents to third-party
	// applications: capture for a virtual microphone, playback for a
	// virtual speaker.
	appSide audio.Direction
}

// ID returns the session-unique device identifier.
func (h *Handle) ID() string { return h.cable.ID() }

// Name returns the device name visible to applications.
func (h *Handle) Name() string { return h.cable.Name() }

// Sink returns the playback end of the device's cable.
func (h *Handle) Sink() audio.PlaybackEndpoint { return h.cable.Sink() }

// Source returns the capture end of the device's cable.
func (h *Handle) Source() audio.CaptureEndpoint { return h.cable.Source() }

// Acquire marks the handle in use. Each Acquire must be paired with a
// Release.
func (h *Handle) Acquire() { h.m.addRef(h.ID(), 1) }

// Release undoes one Acquire.
func (h *Handle) Release() { h.m.addRef(h.ID(), -1) }

// Manager creates, tracks, and tears down the virtual devices of one
// session. Names are unique per session; the session nonce in the device ID
// keeps IDs from colliding with stale devices of a previous run.
type Manager struct {
	log     *slog.Logger
	session string

	mu      sync.Mutex
	devices map[string]*managed // keyed by cable ID
	names   map[string]struct{}
}

type managed struct {
	handle *Handle
	refs   int
}

// NewManager creates a manager with a fresh session nonce.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	nonce := make([]byte, 4)
	_, _ = rand.Read(nonce)
	return &Manager{
		log:     log,
		session: hex.EncodeToString(nonce),
		devices: make(map[string]*managed),
		names:   make(map[string]struct{}),
	}
}

// CreateVirtualInput creates a virtual microphone: applications capture
// from it, VoxBridge writes translated speech into its sink. The cable
// rejects new frames at capacity so synthesised speech is never cut mid-
// utterance by its own transport.
func (m *Manager) CreateVirtualInput(name string) (*Handle, error) {
	return m.create(name, audio.DirectionCapture, audio.RejectNew)
}

// CreateVirtualOutput creates a virtual speaker: applications play into it,
// VoxBridge captures the loopback from its source. The cable drops oldest
// at capacity, favouring freshness on the capture path.
func (m *Manager) CreateVirtualOutput(name string) (*Handle, error) {
	return m.create(name, audio.DirectionPlayback, audio.DropOldest)
}

func (m *Manager) create(name string, appSide audio.Direction, policy audio.OverflowPolicy) (*Handle, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrDeviceCreation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.names[name]; taken {
		return nil, fmt.Errorf("%w: name %q already in use this session", ErrDeviceCreation, name)
	}

	id := fmt.Sprintf("vox-%s-%s", m.session, name)
	cable := NewCable(id, name, audio.DefaultBufferFrames, policy)
	h := &Handle{m: m, cable: cable, appSide: appSide}

	m.devices[id] = &managed{handle: h}
	m.names[name] = struct{}{}

	m.log.Info("virtual device created",
		"device", id,
		"name", name,
		"app_side", appSide.String())
	return h, nil
}

// Lookup returns the handle for a device ID, or nil.
func (m *Manager) Lookup(id string) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		return d.handle
	}
	return nil
}

// Destroy removes the device once all holders have released it, waiting up
// to the context deadline. On expiry the device is left intact and
// [ErrDeviceInUse] is returned; use [Manager.ForceDestroy] to tear it down
// regardless.
func (m *Manager) Destroy(ctx context.Context, h *Handle) error {
	for {
		m.mu.Lock()
		d, ok := m.devices[h.ID()]
		if !ok {
			m.mu.Unlock()
			return nil
		}
		if d.refs == 0 {
			m.removeLocked(h)
			m.mu.Unlock()
			return nil
		}
		refs := d.refs
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %q held by %d user(s)", ErrDeviceInUse, h.ID(), refs)
		case <-time.After(destroyPollInterval):
		}
	}
}

// ForceDestroy removes the device immediately. Holders see the cable's
// buffer close and degrade on their next push or pop.
func (m *Manager) ForceDestroy(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[h.ID()]; !ok {
		return
	}
	m.removeLocked(h)
}

// Close force-destroys every remaining device. Called on session teardown.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		d.handle.cable.Close()
		m.log.Info("virtual device destroyed", "device", d.handle.ID())
	}
	m.devices = make(map[string]*managed)
	m.names = make(map[string]struct{})
}

// removeLocked unregisters and closes one device. Caller holds m.mu.
func (m *Manager) removeLocked(h *Handle) {
	delete(m.devices, h.ID())
	delete(m.names, h.Name())
	h.cable.Close()
	m.log.Info("virtual device destroyed", "device", h.ID())
}

func (m *Manager) addRef(id string, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		d.refs += delta
		if d.refs < 0 {
			d.refs = 0
		}
	}
}
