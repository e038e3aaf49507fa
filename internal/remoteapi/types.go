package remoteapi

// Track is the currently playing remote track.
type Track struct {
	URI string `json:"uri"`
}

// PlayerDevice is the device the remote session reports as controlling
// playback.
type PlayerDevice struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	VolumePercent int    `json:"volume_percent"`
}

// RepeatState values reported by the remote API. Anything other than
// RepeatOn is treated as "repeat not explicitly enabled" by the
// history-dedup workflow.
const (
	RepeatOn      = "on"
	RepeatOff     = "off"
	RepeatContext = "context"
)

// PlayerState is the remote player snapshot consumed by the bridge.
// A nil *PlayerState means the remote API reported no active session.
type PlayerState struct {
	Track           Track        `json:"track"`
	IsPlaying       bool         `json:"is_playing"`
	ProgressSeconds int          `json:"progress"`
	Device          PlayerDevice `json:"device"`
	RepeatState     string       `json:"repeat_state"`
}

// Device is an entry in the remote API's device list.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
