// Package bridge implements the synchronization state machine between the
// local playback engine and the remote Connect session: the local event
// listener, the remote command handler, the per-device state model, and the
// playback history cache.
package bridge

import (
	"context"
	"sync"
	"time"

	"git.home.luguber.info/inful/connectbridge/internal/remoteapi"
)

// ConnectState holds the per-device flags shared by the listener and the
// remote command handler.
type ConnectState struct {
	// Active is true while local playback mirrors the remote session.
	Active bool
	// PendingNewTrack suppresses the echo caused by the bridge's own track
	// advance: the next inbound daemon command is the expected reflection of
	// something the bridge already did.
	PendingNewTrack bool
}

// Song is the bridge's view of one local stream. A zero URL means no song.
type Song struct {
	URL string
	// ConnectActive marks the song as belonging to the Connect session.
	ConnectActive bool
	// ConnectStartedAt is set when the song begins under Connect mode and
	// cleared on a new track. Zero means unset.
	ConnectStartedAt time.Time
}

// Device is one bridged playback device.
type Device struct {
	ID             string // local id, typically the MAC
	Name           string
	Account        string
	ConnectEnabled bool
	RemoteID       string // remote API device id, empty until reconciled

	Connect ConnectState
	Current Song
	Next    Song

	// Volume is the last known local mixer volume for the device.
	Volume int
}

// RemoteAPI is the remote control surface the bridge consumes. remoteapi
// provides the HTTP implementation; tests substitute fakes.
type RemoteAPI interface {
	Player(ctx context.Context) (*remoteapi.PlayerState, error)
	PlayerNext(ctx context.Context) error
	PlayerPause(ctx context.Context, remoteDeviceID string) error
	PlayerVolume(ctx context.Context, remoteDeviceID string, percent int) error
	Devices(ctx context.Context) ([]remoteapi.Device, error)
	IDFromMac(ctx context.Context, deviceID string) (string, bool, error)
}

// HelperControl is the slice of the helper process manager the bridge needs
// when a device goes away.
type HelperControl interface {
	StopHelper(deviceID string) error
}

// Registry is the owning table of per-device state. All mutation goes through
// Update so reads and writes stay consistent regardless of which goroutine a
// scheduled task fires on.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
}

func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]*Device)}
}

// Add registers a device. An existing entry with the same id is replaced.
func (r *Registry) Add(dev Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := dev
	r.devices[dev.ID] = &d
}

// Remove deletes a device. Returns false if it was not present.
func (r *Registry) Remove(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[deviceID]; !ok {
		return false
	}
	delete(r.devices, deviceID)
	return true
}

// Get returns a copy of the device state.
func (r *Registry) Get(deviceID string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// Update applies fn to the device under the registry lock. It is a no-op when
// the device is unknown; the return value reports whether fn ran.
func (r *Registry) Update(deviceID string, fn func(*Device)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return false
	}
	fn(d)
	return true
}

// List returns copies of all devices.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}
	return out
}

// Len returns the number of known devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
