package bridge

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/connectbridge/internal/events"
	"git.home.luguber.info/inful/connectbridge/internal/logfields"
	"git.home.luguber.info/inful/connectbridge/internal/metrics"
	"git.home.luguber.info/inful/connectbridge/internal/player"
	"git.home.luguber.info/inful/connectbridge/internal/sched"
)

const (
	// volumeDebounce is the quiet window for local volume bursts; only the
	// final value is pushed to the remote API.
	volumeDebounce = 500 * time.Millisecond

	// startGrace suppresses pause/stop reactions within this window of the
	// song's Connect start. Transition artifacts from the bridge's own track
	// advance land here.
	startGrace = 5 * time.Second
)

// DeviceSettings resolves the configured account and Connect enablement for a
// device the local engine just announced.
type DeviceSettings func(deviceID, name string) (account string, connectEnabled bool)

// Listener reacts to local playback-engine events and forwards them to the
// remote API. It never reacts to events triggered by the bridge's own
// commands: the origin tag breaks the feedback loop.
type Listener struct {
	devices  *Registry
	remote   RemoteAPI
	player   player.LocalPlayer
	tasks    *sched.Scheduler
	helpers  HelperControl
	settings DeviceSettings
	metrics  metrics.Recorder
}

// NewListener wires a listener. metrics may be nil.
func NewListener(devices *Registry, remote RemoteAPI, lp player.LocalPlayer, tasks *sched.Scheduler, helpers HelperControl, settings DeviceSettings, rec metrics.Recorder) *Listener {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Listener{
		devices:  devices,
		remote:   remote,
		player:   lp,
		tasks:    tasks,
		helpers:  helpers,
		settings: settings,
		metrics:  rec,
	}
}

// HandleTrackStarted processes a local track start.
func (l *Listener) HandleTrackStarted(ctx context.Context, evt events.TrackStarted) {
	if evt.Origin == events.OriginBridge {
		// Our own play command coming back; just timestamp the song.
		l.devices.Update(evt.DeviceID, func(d *Device) {
			if d.Current.URL == evt.TrackURI && d.Current.ConnectStartedAt.IsZero() {
				d.Current.ConnectStartedAt = evt.StartedAt
			}
		})
		l.metrics.IncLocalEvent("track_started", metrics.OutcomeEcho)
		return
	}

	dev, ok := l.devices.Get(evt.DeviceID)
	if !ok {
		slog.Debug("track start for unknown device", logfields.DeviceID(evt.DeviceID))
		return
	}

	// Natural advance into the track the bridge queued for the session.
	if dev.Next.URL != "" && dev.Next.URL == evt.TrackURI {
		l.devices.Update(evt.DeviceID, func(d *Device) {
			d.Current = d.Next
			d.Current.ConnectStartedAt = evt.StartedAt
			d.Next = Song{}
		})
		l.metrics.IncLocalEvent("track_started", metrics.OutcomeHandled)
		return
	}

	// The current session track re-announced (e.g. a seek); keep the flags.
	if dev.Connect.Active && l.startedSongIsConnect(dev, evt.TrackURI) {
		l.metrics.IncLocalEvent("track_started", metrics.OutcomeIgnored)
		return
	}

	// The newly started song lacks the Connect flag: if the device was
	// Connect-active, the session ended locally.
	endedSession := dev.Connect.Active

	l.devices.Update(evt.DeviceID, func(d *Device) {
		if endedSession {
			d.Connect = ConnectState{}
		}
		d.Current = Song{URL: evt.TrackURI}
		d.Next = Song{}
	})

	if endedSession {
		// The user started something else locally; end the remote session.
		slog.Info("local track start ended Connect session",
			logfields.DeviceID(dev.ID), logfields.TrackURI(evt.TrackURI))
		if err := l.remote.PlayerPause(ctx, dev.RemoteID); err != nil {
			slog.Warn("pausing remote session failed",
				logfields.DeviceID(dev.ID), logfields.Error(err))
		}
	}
	l.metrics.IncLocalEvent("track_started", metrics.OutcomeHandled)
}

func (l *Listener) startedSongIsConnect(dev Device, uri string) bool {
	return dev.Current.URL == uri && dev.Current.ConnectActive
}

// HandlePaused processes a local pause.
func (l *Listener) HandlePaused(ctx context.Context, evt events.Paused) {
	l.handleHalt(ctx, evt.DeviceID, evt.Origin, "paused")
}

// HandleStopped processes a local stop.
func (l *Listener) HandleStopped(ctx context.Context, evt events.Stopped) {
	l.handleHalt(ctx, evt.DeviceID, evt.Origin, "stopped")
}

func (l *Listener) handleHalt(ctx context.Context, deviceID string, origin events.Origin, kind string) {
	if origin == events.OriginBridge {
		l.metrics.IncLocalEvent(kind, metrics.OutcomeEcho)
		return
	}

	dev, ok := l.devices.Get(deviceID)
	if !ok || !dev.Connect.Active {
		l.metrics.IncLocalEvent(kind, metrics.OutcomeIgnored)
		return
	}

	// A halt right after the Connect start is a transition artifact of the
	// bridge's own track advance, not a user action.
	if !dev.Current.ConnectStartedAt.IsZero() && time.Since(dev.Current.ConnectStartedAt) < startGrace {
		slog.Debug("ignoring halt within start grace",
			logfields.DeviceID(deviceID), logfields.TrackURI(dev.Current.URL))
		l.metrics.IncLocalEvent(kind, metrics.OutcomeIgnored)
		return
	}

	if err := l.remote.PlayerPause(ctx, dev.RemoteID); err != nil {
		slog.Warn("forwarding pause to remote failed",
			logfields.DeviceID(deviceID), logfields.Error(err))
		l.metrics.IncLocalEvent(kind, metrics.OutcomeError)
		return
	}
	l.metrics.IncLocalEvent(kind, metrics.OutcomeHandled)
}

// HandleVolumeChanged debounces local volume bursts and pushes only the final
// value to the remote API.
func (l *Listener) HandleVolumeChanged(ctx context.Context, evt events.VolumeChanged) {
	l.devices.Update(evt.DeviceID, func(d *Device) {
		d.Volume = evt.Percent
	})

	if evt.Origin == events.OriginBridge {
		l.metrics.IncLocalEvent("volume", metrics.OutcomeEcho)
		return
	}

	dev, ok := l.devices.Get(evt.DeviceID)
	if !ok || !dev.Connect.Active {
		l.metrics.IncLocalEvent("volume", metrics.OutcomeIgnored)
		return
	}

	deviceID, remoteID, percent := evt.DeviceID, dev.RemoteID, evt.Percent
	err := l.tasks.Schedule(deviceID, sched.TaskVolumePush, volumeDebounce, func() {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := l.remote.PlayerVolume(pushCtx, remoteID, percent); err != nil {
			slog.Warn("pushing volume to remote failed",
				logfields.DeviceID(deviceID), logfields.Error(err))
			return
		}
		l.metrics.IncVolumePush()
	})
	if err != nil {
		slog.Warn("scheduling volume push failed",
			logfields.DeviceID(deviceID), logfields.Error(err))
		l.metrics.IncLocalEvent("volume", metrics.OutcomeError)
		return
	}
	l.metrics.IncLocalEvent("volume", metrics.OutcomeHandled)
}

// HandleDeviceConnected registers a device announced by the local engine.
func (l *Listener) HandleDeviceConnected(ctx context.Context, evt events.DeviceConnected) {
	account, enabled := l.settings(evt.DeviceID, evt.Name)
	l.devices.Add(Device{
		ID:             evt.DeviceID,
		Name:           evt.Name,
		Account:        account,
		ConnectEnabled: enabled,
		Volume:         -1,
	})
	slog.Info("device connected",
		logfields.DeviceID(evt.DeviceID),
		logfields.DeviceName(evt.Name),
		logfields.Account(account),
		slog.Bool("connect_enabled", enabled))
}

// HandleDeviceDisconnected removes a device, cancels its pending tasks, and
// stops its helper daemon.
func (l *Listener) HandleDeviceDisconnected(ctx context.Context, evt events.DeviceDisconnected) {
	l.tasks.CancelDevice(evt.DeviceID)

	if !l.devices.Remove(evt.DeviceID) {
		return
	}

	if err := l.helpers.StopHelper(evt.DeviceID); err != nil {
		slog.Warn("stopping helper on disconnect failed",
			logfields.DeviceID(evt.DeviceID), logfields.Error(err))
	}
	slog.Info("device disconnected", logfields.DeviceID(evt.DeviceID))
}
