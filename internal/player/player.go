// Package player defines the boundary to the local audio-playback engine and
// provides the MPD-backed implementation. Every outbound command carries an
// origin marker so event listeners can tell the bridge's own commands apart
// from user actions.
package player

import (
	"context"
	"time"

	"git.home.luguber.info/inful/connectbridge/internal/events"
)

// Status is a snapshot of the local engine's playback state for one device.
type Status struct {
	Playing  bool
	Elapsed  time.Duration
	Duration time.Duration
	Volume   int
}

// LocalPlayer issues commands to the local playback engine. Implementations
// must tag the events produced by these commands with the given origin.
type LocalPlayer interface {
	// Play starts playback of the given stream, replacing the current one.
	Play(ctx context.Context, deviceID, uri string, origin events.Origin) error

	// Resume continues the current stream from where it paused. It never
	// restarts the stream from the beginning.
	Resume(ctx context.Context, deviceID string, origin events.Origin) error

	// Pause pauses playback.
	Pause(ctx context.Context, deviceID string, origin events.Origin) error

	// Seek jumps to an absolute position in the current stream.
	Seek(ctx context.Context, deviceID string, position time.Duration, origin events.Origin) error

	// SetVolume sets the device mixer volume.
	SetVolume(ctx context.Context, deviceID string, percent int, origin events.Origin) error

	// QueueNext sets the stream the engine should play after the current one.
	QueueNext(ctx context.Context, deviceID, uri string, origin events.Origin) error

	// Status returns the current playback snapshot.
	Status(ctx context.Context, deviceID string) (Status, error)
}
