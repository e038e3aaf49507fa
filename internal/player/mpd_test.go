package player

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/connectbridge/internal/events"
)

// newStubMPD runs a minimal MPD endpoint: it greets each connection with the
// protocol banner, records every command line, and answers OK to everything
// except idle, which it leaves pending the way a real instance does.
func newStubMPD(t *testing.T) (string, func() []string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	var mu sync.Mutex
	var lines []string

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				if _, err := c.Write([]byte("OK MPD 0.23.5\n")); err != nil {
					return
				}
				sc := bufio.NewScanner(c)
				for sc.Scan() {
					line := sc.Text()
					mu.Lock()
					lines = append(lines, line)
					mu.Unlock()
					if strings.HasPrefix(line, "idle") {
						continue
					}
					if _, err := c.Write([]byte("OK\n")); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	return ln.Addr().String(), func() []string {
		mu.Lock()
		defer mu.Unlock()
		out := make([]string, len(lines))
		copy(out, lines)
		return out
	}
}

func countPrefix(lines []string, prefix string) int {
	n := 0
	for _, line := range lines {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

func TestAddDeviceAuthenticatesBothConnections(t *testing.T) {
	addr, recorded := newStubMPD(t)

	bus := events.NewBus()
	t.Cleanup(bus.Close)
	pool := NewMPDPool(bus)
	t.Cleanup(pool.Close)

	require.NoError(t, pool.AddDevice("aa:bb", addr, "hunter2"))

	// Both the command client and the idle watcher must authenticate.
	require.Eventually(t, func() bool {
		return countPrefix(recorded(), "password ") >= 2
	}, 3*time.Second, 25*time.Millisecond)

	for _, line := range recorded() {
		if strings.HasPrefix(line, "password ") {
			assert.Equal(t, "password hunter2", line)
		}
	}
}

func TestAddDeviceWithoutPasswordSkipsAuthentication(t *testing.T) {
	addr, recorded := newStubMPD(t)

	bus := events.NewBus()
	t.Cleanup(bus.Close)
	pool := NewMPDPool(bus)
	t.Cleanup(pool.Close)

	require.NoError(t, pool.AddDevice("aa:bb", addr, ""))

	require.Eventually(t, func() bool {
		return countPrefix(recorded(), "idle") >= 1
	}, 3*time.Second, 25*time.Millisecond)

	assert.Zero(t, countPrefix(recorded(), "password "))
}

func TestPlaybackTransitionResumeOnSameTrack(t *testing.T) {
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	pool := NewMPDPool(bus)

	for _, prevState := range []string{"stop", "pause"} {
		evt := pool.playbackTransition("d1", "track:1", prevState, "track:1", "play")
		started, ok := evt.(events.TrackStarted)
		require.True(t, ok, "from %s", prevState)
		assert.Equal(t, "track:1", started.TrackURI)
		assert.Equal(t, events.OriginUser, started.Origin)
	}
}

func TestPlaybackTransitionBridgeResumeKeepsOrigin(t *testing.T) {
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	pool := NewMPDPool(bus)

	pool.tracker.mark("d1", classTrack, events.OriginBridge)

	evt := pool.playbackTransition("d1", "track:1", "stop", "track:1", "play")
	started, ok := evt.(events.TrackStarted)
	require.True(t, ok)
	assert.Equal(t, events.OriginBridge, started.Origin)
}

func TestPlaybackTransitionSteadyPlayIsSilent(t *testing.T) {
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	pool := NewMPDPool(bus)

	assert.Nil(t, pool.playbackTransition("d1", "track:1", "play", "track:1", "play"))
}
