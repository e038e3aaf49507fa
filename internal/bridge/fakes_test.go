package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/connectbridge/internal/events"
	"git.home.luguber.info/inful/connectbridge/internal/player"
	"git.home.luguber.info/inful/connectbridge/internal/remoteapi"
	"git.home.luguber.info/inful/connectbridge/internal/sched"
)

type volumePush struct {
	remoteID string
	percent  int
}

// fakeRemote records remote API calls and serves a canned player state.
type fakeRemote struct {
	mu          sync.Mutex
	state       *remoteapi.PlayerState
	playerCalls int
	nextCalls   int
	pauses      []string
	volumes     []volumePush
	devices     []remoteapi.Device
	macIDs      map[string]string
}

func (f *fakeRemote) Player(ctx context.Context) (*remoteapi.PlayerState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playerCalls++
	if f.state == nil {
		return nil, nil
	}
	st := *f.state
	return &st, nil
}

func (f *fakeRemote) PlayerNext(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCalls++
	return nil
}

func (f *fakeRemote) PlayerPause(ctx context.Context, remoteDeviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses = append(f.pauses, remoteDeviceID)
	return nil
}

func (f *fakeRemote) PlayerVolume(ctx context.Context, remoteDeviceID string, percent int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes = append(f.volumes, volumePush{remoteID: remoteDeviceID, percent: percent})
	return nil
}

func (f *fakeRemote) Devices(ctx context.Context) ([]remoteapi.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices, nil
}

func (f *fakeRemote) IDFromMac(ctx context.Context, deviceID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.macIDs[deviceID]
	return id, ok, nil
}

func (f *fakeRemote) pauseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pauses)
}

func (f *fakeRemote) volumePushes() []volumePush {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]volumePush, len(f.volumes))
	copy(out, f.volumes)
	return out
}

// fakePlayer records local commands and their origins.
type fakePlayer struct {
	mu        sync.Mutex
	status    player.Status
	plays     []string
	resumes   int
	pauses    int
	seeks     []time.Duration
	volumes   []int
	queued    []string
	lastTag   map[string]events.Origin // command name -> origin
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{lastTag: make(map[string]events.Origin)}
}

func (f *fakePlayer) Play(ctx context.Context, deviceID, uri string, origin events.Origin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays = append(f.plays, uri)
	f.lastTag["play"] = origin
	return nil
}

func (f *fakePlayer) Resume(ctx context.Context, deviceID string, origin events.Origin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
	f.lastTag["resume"] = origin
	return nil
}

func (f *fakePlayer) Pause(ctx context.Context, deviceID string, origin events.Origin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
	f.lastTag["pause"] = origin
	return nil
}

func (f *fakePlayer) Seek(ctx context.Context, deviceID string, position time.Duration, origin events.Origin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, position)
	f.lastTag["seek"] = origin
	return nil
}

func (f *fakePlayer) SetVolume(ctx context.Context, deviceID string, percent int, origin events.Origin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes = append(f.volumes, percent)
	f.lastTag["volume"] = origin
	return nil
}

func (f *fakePlayer) QueueNext(ctx context.Context, deviceID, uri string, origin events.Origin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, uri)
	f.lastTag["queue"] = origin
	return nil
}

func (f *fakePlayer) Status(ctx context.Context, deviceID string) (player.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

func (f *fakePlayer) pauseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pauses
}

func (f *fakePlayer) origin(cmd string) events.Origin {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTag[cmd]
}

// fakeHelpers records helper stop requests.
type fakeHelpers struct {
	mu      sync.Mutex
	stopped []string
}

func (f *fakeHelpers) StopHelper(deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, deviceID)
	return nil
}

func newTestScheduler(t *testing.T) *sched.Scheduler {
	t.Helper()
	s, err := sched.New()
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}
