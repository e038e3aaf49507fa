package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/connectbridge/internal/events"
)

const eventBuffer = 64

// dispatchLoop is the single goroutine that consumes bus events. It holds one
// subscription covering every event kind, so events for a device are handled
// in the order they were published even when kinds interleave; eight per-type
// channels would only order events within a kind. Handlers run serially here,
// so per-device state transitions never race each other; only scheduled tasks
// touch shared state from other goroutines, and those go through the
// registry's locking.
func (d *Daemon) dispatchLoop(ctx context.Context) {
	stream, unsubscribe := events.Subscribe[events.Event](d.bus, eventBuffer)
	defer unsubscribe()

	slog.Debug("dispatch loop running")

	for {
		select {
		case <-ctx.Done():
			slog.Debug("dispatch loop stopped")
			return
		case evt, ok := <-stream:
			if !ok {
				return
			}
			d.route(ctx, evt)
		}
	}
}

func (d *Daemon) route(ctx context.Context, evt events.Event) {
	switch e := evt.(type) {
	case events.RemoteCommand:
		d.handler.HandleCommand(ctx, e)
	case events.TrackStarted:
		d.listener.HandleTrackStarted(ctx, e)
	case events.Paused:
		d.listener.HandlePaused(ctx, e)
	case events.Stopped:
		d.listener.HandleStopped(ctx, e)
	case events.VolumeChanged:
		d.listener.HandleVolumeChanged(ctx, e)
	case events.TrackEnding:
		d.handler.HandleTrackEnding(ctx, e)
	case events.DeviceConnected:
		d.listener.HandleDeviceConnected(ctx, e)
	case events.DeviceDisconnected:
		d.listener.HandleDeviceDisconnected(ctx, e)
	default:
		slog.Warn("unrouted event", "type", fmt.Sprintf("%T", evt))
	}
}
