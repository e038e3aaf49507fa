package player

import (
	"sync"
	"time"

	"git.home.luguber.info/inful/connectbridge/internal/events"
)

// cmdClass groups commands by the event category they will produce. A play
// and a queue-next both surface as a track change; pause and stop both
// surface as a playback halt.
type cmdClass int

const (
	classTrack cmdClass = iota
	classPause
	classVolume
	classSeek
)

// markTTL bounds how long a bridge-origin mark stays claimable. An engine
// event arriving later than this was not caused by the marked command.
const markTTL = 2 * time.Second

type markKey struct {
	deviceID string
	class    cmdClass
}

// originTracker remembers that the bridge just issued a command of a given
// class for a device. The engine watcher consumes the mark to tag the
// resulting event as bridge-origin; unmarked events are user actions.
type originTracker struct {
	mu    sync.Mutex
	marks map[markKey]time.Time
}

func newOriginTracker() *originTracker {
	return &originTracker{marks: make(map[markKey]time.Time)}
}

func (t *originTracker) mark(deviceID string, class cmdClass, origin events.Origin) {
	if origin != events.OriginBridge {
		return
	}
	t.mu.Lock()
	t.marks[markKey{deviceID: deviceID, class: class}] = time.Now()
	t.mu.Unlock()
}

// consume returns the origin to attach to an event of the given class and
// clears the mark. Expired marks count as user origin.
func (t *originTracker) consume(deviceID string, class cmdClass) events.Origin {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := markKey{deviceID: deviceID, class: class}
	at, ok := t.marks[key]
	if !ok {
		return events.OriginUser
	}
	delete(t.marks, key)
	if time.Since(at) > markTTL {
		return events.OriginUser
	}
	return events.OriginBridge
}

// clear drops all marks for a device.
func (t *originTracker) clear(deviceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.marks {
		if key.deviceID == deviceID {
			delete(t.marks, key)
		}
	}
}
