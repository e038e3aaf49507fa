package bridge

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/connectbridge/internal/events"
	"git.home.luguber.info/inful/connectbridge/internal/logfields"
	"git.home.luguber.info/inful/connectbridge/internal/metrics"
	"git.home.luguber.info/inful/connectbridge/internal/player"
	"git.home.luguber.info/inful/connectbridge/internal/remoteapi"
	"git.home.luguber.info/inful/connectbridge/internal/sched"
)

const (
	// driftThreshold is the maximum tolerated gap between remote progress and
	// local elapsed time before a corrective seek. Playback clocks are never
	// perfectly aligned; smaller drift is ignored.
	driftThreshold = 3 * time.Second

	// initialSeekThreshold: when a session starts mid-track, only seek if the
	// remote is already past this point.
	initialSeekThreshold = 10 * time.Second
)

// Handler reconciles local playback state against inbound daemon commands and
// the remote-reported player state. It also owns the history-dedup workflow
// that breaks end-of-context repeat loops.
type Handler struct {
	devices *Registry
	remote  RemoteAPI
	player  player.LocalPlayer
	tasks   *sched.Scheduler
	history *HistoryCache
	metrics metrics.Recorder
}

// NewHandler wires a remote command handler. metrics may be nil.
func NewHandler(devices *Registry, remote RemoteAPI, lp player.LocalPlayer, tasks *sched.Scheduler, history *HistoryCache, rec metrics.Recorder) *Handler {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Handler{
		devices: devices,
		remote:  remote,
		player:  lp,
		tasks:   tasks,
		history: history,
		metrics: rec,
	}
}

// HandleCommand processes one inbound daemon command.
func (h *Handler) HandleCommand(ctx context.Context, cmd events.RemoteCommand) {
	log := slog.With(
		logfields.DeviceID(cmd.DeviceID),
		logfields.Command(string(cmd.Kind)),
		logfields.DispatchID(cmd.DispatchID))

	dev, ok := h.devices.Get(cmd.DeviceID)
	if !ok {
		log.Debug("command for unknown device")
		h.metrics.IncInboundCommand(string(cmd.Kind), metrics.OutcomeIgnored)
		return
	}

	// The expected echo of the bridge's own track advance: swallow it.
	if dev.Connect.PendingNewTrack {
		h.devices.Update(dev.ID, func(d *Device) {
			d.Connect.PendingNewTrack = false
		})
		log.Debug("cleared pending new-track echo")
		h.metrics.IncInboundCommand(string(cmd.Kind), metrics.OutcomeEcho)
		return
	}

	// Volume pushes from the daemon must not be treated as player-state
	// commands, or a volume↔volume loop forms.
	if cmd.Kind == events.CommandVolume {
		if cmd.Origin == events.OriginBridge {
			h.metrics.IncInboundCommand(string(cmd.Kind), metrics.OutcomeEcho)
			return
		}
		if err := h.player.SetVolume(ctx, dev.ID, cmd.Value, events.OriginBridge); err != nil {
			log.Warn("applying remote volume locally failed", logfields.Error(err))
			h.metrics.IncInboundCommand(string(cmd.Kind), metrics.OutcomeError)
			return
		}
		h.metrics.IncInboundCommand(string(cmd.Kind), metrics.OutcomeHandled)
		return
	}

	state, err := h.remote.Player(ctx)
	if err != nil {
		log.Warn("querying remote player state failed", logfields.Error(err))
		h.metrics.IncInboundCommand(string(cmd.Kind), metrics.OutcomeError)
		return
	}
	if state == nil {
		// No active remote session: nothing to act on.
		log.Debug("remote reports no player state")
		h.metrics.IncInboundCommand(string(cmd.Kind), metrics.OutcomeIgnored)
		return
	}

	local, err := h.player.Status(ctx, dev.ID)
	if err != nil {
		log.Warn("querying local player status failed", logfields.Error(err))
		h.metrics.IncInboundCommand(string(cmd.Kind), metrics.OutcomeError)
		return
	}

	kind := cmd.Kind
	// Heuristic reclassification: a change that arrives while the remote is
	// already playing a different track, or while the device is not
	// Connect-active, is really the start of a new session track.
	if kind == events.CommandChange {
		if (state.Track.URI != dev.Current.URL && state.IsPlaying) || !dev.Connect.Active {
			log.Debug("reclassifying change as start", logfields.TrackURI(state.Track.URI))
			kind = events.CommandStart
		}
	}

	switch kind {
	case events.CommandStart:
		h.handleStart(ctx, log, dev, state, local)
	case events.CommandStop:
		h.handleStop(ctx, log, dev, state, local)
	case events.CommandChange:
		h.handleChange(ctx, log, dev, state, local)
	default:
		log.Info("unhandled daemon command")
		h.metrics.IncInboundCommand(string(cmd.Kind), metrics.OutcomeIgnored)
		return
	}
	h.metrics.IncInboundCommand(string(cmd.Kind), metrics.OutcomeHandled)
}

func (h *Handler) handleStart(ctx context.Context, log *slog.Logger, dev Device, state *remoteapi.PlayerState, local player.Status) {
	uri := state.Track.URI

	if uri == dev.Current.URL && dev.Connect.Active {
		if !local.Playing {
			// Same track, locally paused: resume, never replay from start.
			log.Info("resuming current stream", logfields.TrackURI(uri))
			if err := h.player.Resume(ctx, dev.ID, events.OriginBridge); err != nil {
				log.Warn("resume failed", logfields.Error(err))
			}
			return
		}
		log.Debug("start for already-playing stream", logfields.TrackURI(uri))
		return
	}

	wasActive := dev.Connect.Active

	h.devices.Update(dev.ID, func(d *Device) {
		d.Connect.Active = true
		d.Connect.PendingNewTrack = true
		d.Current = Song{URL: uri, ConnectActive: true}
		d.Next = Song{}
	})

	// Entering Connect mode: the remote should adopt the device's current
	// local volume before the first track plays.
	if !wasActive && dev.Volume >= 0 {
		if err := h.remote.PlayerVolume(ctx, dev.RemoteID, dev.Volume); err != nil {
			log.Warn("pushing initial volume failed", logfields.Error(err))
		}
	}

	log.Info("starting session stream", logfields.TrackURI(uri))
	if err := h.player.Play(ctx, dev.ID, uri, events.OriginBridge); err != nil {
		log.Warn("local play failed", logfields.Error(err))
		return
	}

	// New listening context.
	h.history.Reset()

	if progress := time.Duration(state.ProgressSeconds) * time.Second; progress > initialSeekThreshold {
		if err := h.player.Seek(ctx, dev.ID, progress, events.OriginBridge); err != nil {
			log.Warn("initial seek failed", logfields.Error(err))
		}
	}
}

func (h *Handler) handleStop(ctx context.Context, log *slog.Logger, dev Device, state *remoteapi.PlayerState, local player.Status) {
	if state.Device.ID == "" {
		log.Debug("stop without controlling device")
		return
	}

	if local.Playing && state.Device.ID != dev.RemoteID {
		// Another device took over the remote session; end our mirror.
		log.Info("remote session moved to another device",
			logfields.RemoteID(state.Device.ID))
		h.devices.Update(dev.ID, func(d *Device) {
			d.Connect = ConnectState{}
			d.Current.ConnectActive = false
			d.Current.ConnectStartedAt = time.Time{}
		})
	}

	if err := h.player.Pause(ctx, dev.ID, events.OriginBridge); err != nil {
		log.Warn("local pause failed", logfields.Error(err))
	}
}

func (h *Handler) handleChange(ctx context.Context, log *slog.Logger, dev Device, state *remoteapi.PlayerState, local player.Status) {
	if !local.Playing {
		log.Debug("change while not playing locally")
		return
	}

	progress := time.Duration(state.ProgressSeconds) * time.Second
	drift := progress - local.Elapsed
	if drift < 0 {
		drift = -drift
	}
	if drift <= driftThreshold {
		log.Debug("drift within tolerance", slog.Duration("drift", drift))
		return
	}

	log.Info("correcting playback drift",
		slog.Duration("drift", drift),
		slog.Duration("remote_progress", progress))
	if err := h.player.Seek(ctx, dev.ID, progress, events.OriginBridge); err != nil {
		log.Warn("drift seek failed", logfields.Error(err))
		return
	}
	h.metrics.IncSeekCorrection()
}

// HandleTrackEnding runs the history-dedup workflow when the local engine
// signals it is approaching end-of-track.
func (h *Handler) HandleTrackEnding(ctx context.Context, evt events.TrackEnding) {
	log := slog.With(logfields.DeviceID(evt.DeviceID), logfields.TrackURI(evt.TrackURI))

	dev, ok := h.devices.Get(evt.DeviceID)
	if !ok || !dev.Connect.Active {
		return
	}

	// The bridge itself advanced the track; no remote query needed.
	if dev.Connect.PendingNewTrack {
		h.devices.Update(dev.ID, func(d *Device) {
			d.Connect.PendingNewTrack = false
		})
		log.Debug("track ending is our own advance")
		return
	}

	h.history.Increment(dev.Current.URL)

	if err := h.remote.PlayerNext(ctx); err != nil {
		log.Warn("advancing remote session failed", logfields.Error(err))
		return
	}

	state, err := h.remote.Player(ctx)
	if err != nil || state == nil {
		log.Debug("no remote state after advancing", logfields.Error(err))
		return
	}
	next := state.Track.URI

	if h.history.Count(next) > 0 && state.RepeatState != remoteapi.RepeatOn {
		// The session is looping back to an already-played track: schedule a
		// clean stop timed to the end of the current track.
		local, serr := h.player.Status(ctx, dev.ID)
		if serr != nil {
			log.Warn("querying local status for end-of-context failed", logfields.Error(serr))
			return
		}
		remaining := local.Duration - local.Elapsed
		if remaining < 0 {
			remaining = 0
		}

		log.Info("end of context detected, scheduling pause",
			slog.Duration("remaining", remaining),
			slog.String("next_uri", next))

		deviceID := dev.ID
		err := h.tasks.Schedule(deviceID, sched.TaskEndOfContextPause, remaining, func() {
			pauseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if perr := h.player.Pause(pauseCtx, deviceID, events.OriginBridge); perr != nil {
				slog.Warn("end-of-context pause failed",
					logfields.DeviceID(deviceID), logfields.Error(perr))
				return
			}
			h.devices.Update(deviceID, func(d *Device) {
				d.Connect = ConnectState{}
				d.Current.ConnectActive = false
			})
		})
		if err != nil {
			log.Warn("scheduling end-of-context pause failed", logfields.Error(err))
			return
		}
		h.metrics.IncEndOfContextPause()
		return
	}

	// Normal advance: point the upcoming song at the remote-reported track
	// and keep it inside the session.
	h.devices.Update(dev.ID, func(d *Device) {
		d.Next = Song{URL: next, ConnectActive: true}
	})
	if err := h.player.QueueNext(ctx, dev.ID, next, events.OriginBridge); err != nil {
		log.Warn("queueing next stream failed", logfields.Error(err))
	}
}
