package events

import "time"

// Origin marks who caused a command or the event it produced. Every local
// command the bridge issues carries OriginBridge so listeners can suppress
// reactive feedback loops; everything else is OriginUser.
type Origin string

const (
	OriginUser   Origin = "user"
	OriginBridge Origin = "bridge"
)

// CommandKind enumerates inbound helper daemon commands.
type CommandKind string

const (
	CommandStart  CommandKind = "start"
	CommandStop   CommandKind = "stop"
	CommandChange CommandKind = "change"
	CommandVolume CommandKind = "volume"
)

// Event is implemented by every bridge event type. Subscribing to Event gives
// a single stream that preserves publish order across event kinds, which a
// per-type subscription cannot do.
type Event interface {
	bridgeEvent()
}

func (TrackStarted) bridgeEvent()       {}
func (Paused) bridgeEvent()             {}
func (Stopped) bridgeEvent()            {}
func (VolumeChanged) bridgeEvent()      {}
func (TrackEnding) bridgeEvent()        {}
func (DeviceConnected) bridgeEvent()    {}
func (DeviceDisconnected) bridgeEvent() {}
func (RemoteCommand) bridgeEvent()      {}

// TrackStarted is emitted by the local playback engine when a new track
// begins. Origin reflects the command that triggered the start.
type TrackStarted struct {
	DeviceID  string
	TrackURI  string
	Origin    Origin
	StartedAt time.Time
}

// Paused is emitted when local playback pauses.
type Paused struct {
	DeviceID string
	Origin   Origin
}

// Stopped is emitted when local playback stops.
type Stopped struct {
	DeviceID string
	Origin   Origin
}

// VolumeChanged is emitted on local mixer changes. Bursts are expected; the
// listener debounces them before pushing to the remote API.
type VolumeChanged struct {
	DeviceID string
	Percent  int
	Origin   Origin
}

// TrackEnding is emitted when the local engine signals it is approaching the
// end of the current track. It drives the history-dedup workflow.
type TrackEnding struct {
	DeviceID string
	TrackURI string
}

// DeviceConnected is emitted when the local engine reports a new device.
type DeviceConnected struct {
	DeviceID string
	Name     string
}

// DeviceDisconnected is emitted when a device leaves the local engine.
type DeviceDisconnected struct {
	DeviceID string
}

// RemoteCommand is an inbound command from a helper daemon, delivered through
// the host dispatch boundary.
type RemoteCommand struct {
	DispatchID string
	DeviceID   string
	Kind       CommandKind
	Value      int // volume percent for CommandVolume
	Origin     Origin
	ReceivedAt time.Time
}
