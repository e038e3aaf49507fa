package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/connectbridge/internal/events"
	"git.home.luguber.info/inful/connectbridge/internal/player"
	"git.home.luguber.info/inful/connectbridge/internal/remoteapi"
	"git.home.luguber.info/inful/connectbridge/internal/sched"
)

type handlerFixture struct {
	handler *Handler
	devices *Registry
	remote  *fakeRemote
	player  *fakePlayer
	tasks   *sched.Scheduler
	history *HistoryCache
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := &handlerFixture{
		devices: NewRegistry(),
		remote:  &fakeRemote{},
		player:  newFakePlayer(),
		tasks:   newTestScheduler(t),
		history: NewHistoryCache(),
	}
	f.handler = NewHandler(f.devices, f.remote, f.player, f.tasks, f.history, nil)
	return f
}

func playingState(uri string, progress int) *remoteapi.PlayerState {
	return &remoteapi.PlayerState{
		Track:           remoteapi.Track{URI: uri},
		IsPlaying:       true,
		ProgressSeconds: progress,
		Device:          remoteapi.PlayerDevice{ID: "r-d1", Name: "Living Room", VolumePercent: 60},
		RepeatState:     remoteapi.RepeatOff,
	}
}

func cmd(kind events.CommandKind) events.RemoteCommand {
	return events.RemoteCommand{
		DispatchID: "t-1",
		DeviceID:   "d1",
		Kind:       kind,
		Origin:     events.OriginUser,
		ReceivedAt: time.Now(),
	}
}

func TestPendingNewTrackEchoSwallowed(t *testing.T) {
	f := newHandlerFixture(t)
	dev := activeDevice("d1")
	dev.Connect.PendingNewTrack = true
	f.devices.Add(dev)

	f.handler.HandleCommand(context.Background(), cmd(events.CommandChange))

	got, _ := f.devices.Get("d1")
	assert.False(t, got.Connect.PendingNewTrack)
	assert.Zero(t, f.remote.playerCalls, "echo must not query remote state")
	assert.Empty(t, f.player.plays)
	assert.Zero(t, f.player.pauseCount())
}

func TestVolumeCommandReissuedLocallyWithBridgeTag(t *testing.T) {
	f := newHandlerFixture(t)
	f.devices.Add(activeDevice("d1"))

	c := cmd(events.CommandVolume)
	c.Value = 55
	f.handler.HandleCommand(context.Background(), c)

	require.Equal(t, []int{55}, f.player.volumes)
	assert.Equal(t, events.OriginBridge, f.player.origin("volume"))
	assert.Zero(t, f.remote.playerCalls, "volume must not be treated as a player-state command")
}

func TestVolumeCommandWithBridgeOriginDropped(t *testing.T) {
	f := newHandlerFixture(t)
	f.devices.Add(activeDevice("d1"))

	c := cmd(events.CommandVolume)
	c.Value = 55
	c.Origin = events.OriginBridge
	f.handler.HandleCommand(context.Background(), c)

	assert.Empty(t, f.player.volumes)
}

func TestStartNewTrackEntersConnectMode(t *testing.T) {
	f := newHandlerFixture(t)
	dev := activeDevice("d1")
	dev.Connect.Active = false
	dev.Current = Song{URL: "local:file:old.flac"}
	dev.Volume = 40
	f.devices.Add(dev)

	f.history.Increment("spotify:track:stale")
	f.remote.state = playingState("spotify:track:new", 3)

	f.handler.HandleCommand(context.Background(), cmd(events.CommandStart))

	got, _ := f.devices.Get("d1")
	assert.True(t, got.Connect.Active)
	assert.True(t, got.Connect.PendingNewTrack)
	assert.Equal(t, "spotify:track:new", got.Current.URL)
	assert.True(t, got.Current.ConnectActive)

	require.Equal(t, []string{"spotify:track:new"}, f.player.plays)
	assert.Equal(t, events.OriginBridge, f.player.origin("play"))

	// Entering Connect mode pushes the local volume to the remote first.
	pushes := f.remote.volumePushes()
	require.Len(t, pushes, 1)
	assert.Equal(t, 40, pushes[0].percent)

	// New listening context resets the history cache.
	assert.Zero(t, f.history.Len())

	// Progress 3s is under the threshold: no seek.
	assert.Empty(t, f.player.seeks)
}

func TestStartSeeksWhenRemoteProgressBeyondThreshold(t *testing.T) {
	f := newHandlerFixture(t)
	dev := activeDevice("d1")
	dev.Connect.Active = false
	f.devices.Add(dev)
	f.remote.state = playingState("spotify:track:new", 50)

	f.handler.HandleCommand(context.Background(), cmd(events.CommandStart))

	require.Equal(t, []time.Duration{50 * time.Second}, f.player.seeks)
	assert.Equal(t, events.OriginBridge, f.player.origin("seek"))
}

func TestStartSameTrackWhilePausedResumesNeverReplays(t *testing.T) {
	f := newHandlerFixture(t)
	f.devices.Add(activeDevice("d1"))
	f.remote.state = playingState("spotify:track:current", 90)
	f.player.status = player.Status{Playing: false}

	f.handler.HandleCommand(context.Background(), cmd(events.CommandStart))

	assert.Equal(t, 1, f.player.resumes)
	assert.Empty(t, f.player.plays, "resume must not replay from start")
	assert.Equal(t, events.OriginBridge, f.player.origin("resume"))

	got, _ := f.devices.Get("d1")
	assert.False(t, got.Connect.PendingNewTrack, "resume is not a new track")
}

func TestChangeReclassifiedToStartOnTrackMismatch(t *testing.T) {
	f := newHandlerFixture(t)
	f.devices.Add(activeDevice("d1"))
	f.remote.state = playingState("spotify:track:other", 0)
	f.player.status = player.Status{Playing: true, Elapsed: 30 * time.Second}

	f.handler.HandleCommand(context.Background(), cmd(events.CommandChange))

	require.Equal(t, []string{"spotify:track:other"}, f.player.plays)
	got, _ := f.devices.Get("d1")
	assert.True(t, got.Connect.PendingNewTrack)
}

func TestChangeReclassifiedToStartWhenInactive(t *testing.T) {
	f := newHandlerFixture(t)
	dev := activeDevice("d1")
	dev.Connect.Active = false
	f.devices.Add(dev)
	f.remote.state = playingState("spotify:track:current", 0)
	f.remote.state.IsPlaying = false

	f.handler.HandleCommand(context.Background(), cmd(events.CommandChange))

	// Inactive device: change becomes start for the session track.
	require.Equal(t, []string{"spotify:track:current"}, f.player.plays)
}

func TestChangeSmallDriftIgnored(t *testing.T) {
	f := newHandlerFixture(t)
	f.devices.Add(activeDevice("d1"))
	f.remote.state = playingState("spotify:track:current", 41)
	f.player.status = player.Status{Playing: true, Elapsed: 40 * time.Second}

	f.handler.HandleCommand(context.Background(), cmd(events.CommandChange))

	assert.Empty(t, f.player.seeks)
}

func TestChangeLargeDriftSeeksToRemoteProgress(t *testing.T) {
	f := newHandlerFixture(t)
	f.devices.Add(activeDevice("d1"))
	f.remote.state = playingState("spotify:track:current", 50)
	f.player.status = player.Status{Playing: true, Elapsed: 40 * time.Second}

	f.handler.HandleCommand(context.Background(), cmd(events.CommandChange))

	require.Equal(t, []time.Duration{50 * time.Second}, f.player.seeks)
}

func TestStopFromThisDeviceIsExpectedPause(t *testing.T) {
	f := newHandlerFixture(t)
	f.devices.Add(activeDevice("d1"))
	f.remote.state = playingState("spotify:track:current", 100)
	f.player.status = player.Status{Playing: true}

	f.handler.HandleCommand(context.Background(), cmd(events.CommandStop))

	assert.Equal(t, 1, f.player.pauseCount())
	assert.Equal(t, events.OriginBridge, f.player.origin("pause"))

	got, _ := f.devices.Get("d1")
	assert.True(t, got.Connect.Active, "expected pause keeps the session")
}

func TestStopAfterTakeoverClearsFlagsAndPauses(t *testing.T) {
	f := newHandlerFixture(t)
	f.devices.Add(activeDevice("d1"))
	st := playingState("spotify:track:current", 100)
	st.Device.ID = "r-other"
	f.remote.state = st
	f.player.status = player.Status{Playing: true}

	f.handler.HandleCommand(context.Background(), cmd(events.CommandStop))

	got, _ := f.devices.Get("d1")
	assert.False(t, got.Connect.Active, "another device took over")
	assert.False(t, got.Current.ConnectActive)
	assert.Equal(t, 1, f.player.pauseCount(), "still pauses to end cleanly")
}

func TestNoRemoteStateIsNoop(t *testing.T) {
	f := newHandlerFixture(t)
	f.devices.Add(activeDevice("d1"))
	f.remote.state = nil

	f.handler.HandleCommand(context.Background(), cmd(events.CommandStart))

	assert.Empty(t, f.player.plays)
	assert.Zero(t, f.player.pauseCount())
}

func TestTrackEndingOwnAdvanceSkipsRemoteQuery(t *testing.T) {
	f := newHandlerFixture(t)
	dev := activeDevice("d1")
	dev.Connect.PendingNewTrack = true
	f.devices.Add(dev)

	f.handler.HandleTrackEnding(context.Background(), events.TrackEnding{
		DeviceID: "d1", TrackURI: dev.Current.URL,
	})

	got, _ := f.devices.Get("d1")
	assert.False(t, got.Connect.PendingNewTrack)
	assert.Zero(t, f.remote.nextCalls)
	assert.Zero(t, f.remote.playerCalls)
}

func TestTrackEndingQueuesRemoteNextTrack(t *testing.T) {
	f := newHandlerFixture(t)
	f.devices.Add(activeDevice("d1"))
	f.remote.state = playingState("spotify:track:B", 0)

	f.handler.HandleTrackEnding(context.Background(), events.TrackEnding{
		DeviceID: "d1", TrackURI: "spotify:track:current",
	})

	assert.Equal(t, 1, f.remote.nextCalls)
	require.Equal(t, []string{"spotify:track:B"}, f.player.queued)

	got, _ := f.devices.Get("d1")
	assert.Equal(t, "spotify:track:B", got.Next.URL)
	assert.True(t, got.Next.ConnectActive)
	assert.Equal(t, 1, f.history.Count("spotify:track:current"))
}

func TestHistoryLoopBreakSchedulesEndOfContextPause(t *testing.T) {
	f := newHandlerFixture(t)
	dev := activeDevice("d1")
	dev.Current = Song{URL: "spotify:track:B", ConnectActive: true, ConnectStartedAt: time.Now().Add(-time.Minute)}
	f.devices.Add(dev)

	// Sequence [A, B, A]: A already played once, remote loops back to it.
	f.history.Increment("spotify:track:A")
	f.remote.state = playingState("spotify:track:A", 0)
	f.player.status = player.Status{
		Playing:  true,
		Elapsed:  179900 * time.Millisecond,
		Duration: 180 * time.Second,
	}

	f.handler.HandleTrackEnding(context.Background(), events.TrackEnding{
		DeviceID: "d1", TrackURI: "spotify:track:B",
	})

	assert.Empty(t, f.player.queued, "looped track must not be queued")

	// The pause fires at the end of the current track (~100ms here).
	require.Eventually(t, func() bool {
		return f.player.pauseCount() == 1
	}, 3*time.Second, 20*time.Millisecond)

	got, _ := f.devices.Get("d1")
	assert.False(t, got.Connect.Active)
}

func TestHistoryLoopAllowedWhenRepeatOn(t *testing.T) {
	f := newHandlerFixture(t)
	dev := activeDevice("d1")
	dev.Current = Song{URL: "spotify:track:B", ConnectActive: true}
	f.devices.Add(dev)

	f.history.Increment("spotify:track:A")
	st := playingState("spotify:track:A", 0)
	st.RepeatState = remoteapi.RepeatOn
	f.remote.state = st

	f.handler.HandleTrackEnding(context.Background(), events.TrackEnding{
		DeviceID: "d1", TrackURI: "spotify:track:B",
	})

	require.Equal(t, []string{"spotify:track:A"}, f.player.queued, "repeat on: loop is intentional")
	assert.False(t, f.tasks.Pending("d1", sched.TaskEndOfContextPause))
}

func TestTrackEndingIgnoredOutsideConnectMode(t *testing.T) {
	f := newHandlerFixture(t)
	dev := activeDevice("d1")
	dev.Connect.Active = false
	f.devices.Add(dev)

	f.handler.HandleTrackEnding(context.Background(), events.TrackEnding{
		DeviceID: "d1", TrackURI: dev.Current.URL,
	})

	assert.Zero(t, f.remote.nextCalls)
}
