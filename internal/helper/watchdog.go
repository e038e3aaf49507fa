package helper

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/connectbridge/internal/logfields"
	"git.home.luguber.info/inful/connectbridge/internal/metrics"
	"git.home.luguber.info/inful/connectbridge/internal/remoteapi"
	"git.home.luguber.info/inful/connectbridge/internal/sched"
)

const (
	// watchdogInterval is the delay between passes. The watchdog reschedules
	// itself after each pass completes instead of running on a fixed-period
	// timer, so passes never overlap.
	watchdogInterval = 60 * time.Second

	// reconcileDelay gives a freshly started helper time to register with the
	// remote API before the device-id mapping query runs.
	reconcileDelay = 5 * time.Second

	passTimeout = 30 * time.Second
)

// HelperControl is the manager surface the watchdog drives. *Manager
// implements it; tests substitute fakes.
type HelperControl interface {
	StartHelper(dev DeviceInfo) error
	StopHelper(deviceID string) error
	Alive(deviceID string) bool
	DeviceIDs() []string
	LiveCount() int
}

// DeviceView exposes the device table to the watchdog.
type DeviceView interface {
	Snapshot() []DeviceInfo
	SetRemoteID(deviceID, remoteID string)
}

// RemoteDirectory is the remote API surface the watchdog consults.
type RemoteDirectory interface {
	Devices(ctx context.Context) ([]remoteapi.Device, error)
	IDFromMac(ctx context.Context, deviceID string) (string, bool, error)
}

// Watchdog keeps the helper fleet aligned with the device table: it restarts
// dead or remotely-unknown helpers for Connect-enabled devices, stops helpers
// for disabled or vanished devices, and reconciles device-id mappings.
type Watchdog struct {
	helpers  HelperControl
	devices  DeviceView
	remote   RemoteDirectory
	tasks    *sched.Scheduler
	metrics  metrics.Recorder
	interval time.Duration
	settle   time.Duration
}

// NewWatchdog wires a watchdog. rec may be nil.
func NewWatchdog(helpers HelperControl, devices DeviceView, remote RemoteDirectory, tasks *sched.Scheduler, rec metrics.Recorder) *Watchdog {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Watchdog{
		helpers:  helpers,
		devices:  devices,
		remote:   remote,
		tasks:    tasks,
		metrics:  rec,
		interval: watchdogInterval,
		settle:   reconcileDelay,
	}
}

// Start schedules the first pass immediately. Every pass reschedules the next
// one after it completes.
func (w *Watchdog) Start() error {
	return w.tasks.Schedule("", sched.TaskWatchdog, 0, w.runPass)
}

// Stop cancels the pending pass.
func (w *Watchdog) Stop() {
	w.tasks.Cancel("", sched.TaskWatchdog)
}

func (w *Watchdog) runPass() {
	ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
	w.Pass(ctx)
	cancel()

	if err := w.tasks.Schedule("", sched.TaskWatchdog, w.interval, w.runPass); err != nil {
		slog.Error("rescheduling watchdog failed", logfields.Error(err))
	}
}

// Pass runs one watchdog sweep. Exported for tests and for a forced sweep on
// config reload.
func (w *Watchdog) Pass(ctx context.Context) {
	snapshot := w.devices.Snapshot()

	// A failed device-list query is not an error state: we just skip the
	// remote-presence check this pass rather than restarting every helper.
	remoteKnown, remoteListOK := w.remoteDeviceSet(ctx)

	known := make(map[string]bool, len(snapshot))
	for _, dev := range snapshot {
		known[dev.ID] = true

		if !dev.ConnectEnabled {
			_ = w.helpers.StopHelper(dev.ID)
			continue
		}

		alive := w.helpers.Alive(dev.ID)
		present := dev.RemoteID != "" && (!remoteListOK || remoteKnown[dev.RemoteID])

		if alive && present {
			continue
		}

		slog.Info("watchdog restarting helper",
			logfields.DeviceID(dev.ID),
			slog.Bool("alive", alive),
			slog.Bool("remote_present", present))

		_ = w.helpers.StopHelper(dev.ID)
		if err := w.helpers.StartHelper(dev); err != nil {
			// Already logged; retried on the next pass.
			continue
		}

		w.scheduleReconcile(dev.ID)
	}

	// Orphan sweep: helpers for devices that no longer exist locally.
	for _, id := range w.helpers.DeviceIDs() {
		if !known[id] {
			slog.Info("watchdog stopping orphaned helper", logfields.DeviceID(id))
			_ = w.helpers.StopHelper(id)
		}
	}

	w.metrics.SetLiveHelpers(w.helpers.LiveCount())
}

func (w *Watchdog) remoteDeviceSet(ctx context.Context) (map[string]bool, bool) {
	devices, err := w.remote.Devices(ctx)
	if err != nil {
		slog.Warn("querying remote device list failed", logfields.Error(err))
		return nil, false
	}
	set := make(map[string]bool, len(devices))
	for _, d := range devices {
		set[d.ID] = true
	}
	return set, true
}

// scheduleReconcile queues a one-shot delayed lookup of the device's remote
// id, giving the new helper time to announce itself.
func (w *Watchdog) scheduleReconcile(deviceID string) {
	err := w.tasks.Schedule(deviceID, sched.TaskReconcileDevices, w.settle, func() {
		ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
		defer cancel()

		remoteID, ok, err := w.remote.IDFromMac(ctx, deviceID)
		if err != nil {
			slog.Warn("device id reconciliation failed",
				logfields.DeviceID(deviceID), logfields.Error(err))
			return
		}
		if !ok {
			// Helper not registered yet; the next watchdog pass follows up.
			slog.Debug("device not yet known to remote", logfields.DeviceID(deviceID))
			return
		}

		w.devices.SetRemoteID(deviceID, remoteID)
		slog.Info("device id reconciled",
			logfields.DeviceID(deviceID), logfields.RemoteID(remoteID))
	})
	if err != nil {
		slog.Warn("scheduling reconciliation failed",
			logfields.DeviceID(deviceID), logfields.Error(err))
	}
}
