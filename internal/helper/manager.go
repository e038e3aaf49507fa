package helper

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	ferrors "git.home.luguber.info/inful/connectbridge/internal/foundation/errors"
	"git.home.luguber.info/inful/connectbridge/internal/logfields"
	"git.home.luguber.info/inful/connectbridge/internal/metrics"
)

// DefaultBitrateKbps is the fixed audio bitrate handed to the helper.
const DefaultBitrateKbps = 96

// LaunchConfig describes how helper daemons are spawned.
type LaunchConfig struct {
	// Binary is the helper executable path.
	Binary string
	// CacheRoot is the parent of the per-account cache directories.
	CacheRoot string
	// BitrateKbps defaults to DefaultBitrateKbps when zero.
	BitrateKbps int
	// ServerAddr is the "host:port" of the controlling server the helper
	// reports back to.
	ServerAddr string
}

// DeviceInfo is the slice of device state the helper manager needs.
type DeviceInfo struct {
	ID             string
	Name           string
	Account        string
	RemoteID       string
	ConnectEnabled bool
}

// Manager owns all helper daemon handles, keyed by device id.
type Manager struct {
	cfg     LaunchConfig
	metrics metrics.Recorder

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewManager creates a helper manager. rec may be nil.
func NewManager(cfg LaunchConfig, rec metrics.Recorder) *Manager {
	if cfg.BitrateKbps <= 0 {
		cfg.BitrateKbps = DefaultBitrateKbps
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Manager{
		cfg:     cfg,
		metrics: rec,
		handles: make(map[string]*Handle),
	}
}

// launchArgs builds the helper daemon's command line for a device.
func (m *Manager) launchArgs(dev DeviceInfo) []string {
	cacheDir := filepath.Join(m.cfg.CacheRoot, dev.Account)
	return []string{
		"--cache", cacheDir,
		"--name", dev.Name,
		"--disable-discovery",
		"--disable-audio-cache",
		"--bitrate", strconv.Itoa(m.cfg.BitrateKbps),
		"--device-id", dev.ID,
		"--server", m.cfg.ServerAddr,
	}
}

// StartHelper spawns the helper for a device. If an alive handle already
// exists, this is a successful no-op. On spawn failure the device stays "not
// running"; the watchdog retries on its next pass.
func (m *Manager) StartHelper(dev DeviceInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.handles[dev.ID]; ok && h.Alive() {
		return nil
	}

	cacheDir := filepath.Join(m.cfg.CacheRoot, dev.Account)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		m.metrics.IncHelperStart("failure")
		return ferrors.WrapError(err, ferrors.CategoryHelper, "creating helper cache directory").
			WithContext("device_id", dev.ID).
			Build()
	}

	h, err := spawn(dev.ID, m.cfg.Binary, m.launchArgs(dev))
	if err != nil {
		slog.Error("helper spawn failed",
			logfields.DeviceID(dev.ID),
			logfields.DeviceName(dev.Name),
			logfields.Error(err))
		m.metrics.IncHelperStart("failure")
		delete(m.handles, dev.ID)
		return ferrors.WrapError(err, ferrors.CategoryHelper, "spawning helper daemon").
			WithContext("device_id", dev.ID).
			NextPass().
			Build()
	}

	m.handles[dev.ID] = h
	m.metrics.IncHelperStart("success")
	slog.Info("helper started",
		logfields.DeviceID(dev.ID),
		logfields.DeviceName(dev.Name),
		logfields.Account(dev.Account),
		logfields.PID(h.PID()))
	return nil
}

// StopHelper terminates a device's helper. Idempotent: stopping a device with
// no running helper is a no-op.
func (m *Manager) StopHelper(deviceID string) error {
	m.mu.Lock()
	h, ok := m.handles[deviceID]
	if ok {
		delete(m.handles, deviceID)
	}
	m.mu.Unlock()

	if !ok || !h.Alive() {
		return nil
	}

	h.Terminate()
	m.metrics.IncHelperStop()
	slog.Info("helper stopped", logfields.DeviceID(deviceID), logfields.PID(h.PID()))
	return nil
}

// ShutdownHelpers stops all handles. With inactiveOnly, devices for which
// isLive returns true are skipped.
func (m *Manager) ShutdownHelpers(inactiveOnly bool, isLive func(deviceID string) bool) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if inactiveOnly && isLive != nil && isLive(id) {
			continue
		}
		_ = m.StopHelper(id)
	}
}

// Alive reports whether a device has a live helper.
func (m *Manager) Alive(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[deviceID]
	return ok && h.Alive()
}

// DeviceIDs returns the ids of all devices holding a handle, live or not.
func (m *Manager) DeviceIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	return ids
}

// LiveCount returns the number of live helpers.
func (m *Manager) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, h := range m.handles {
		if h.Alive() {
			n++
		}
	}
	return n
}
