package events

import (
	"context"
	"testing"
	"time"

	ferrors "git.home.luguber.info/inful/connectbridge/internal/foundation/errors"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, unsubscribe := Subscribe[VolumeChanged](b, 1)
	defer unsubscribe()

	require.NoError(t, b.Publish(context.Background(), VolumeChanged{DeviceID: "d1", Percent: 40, Origin: OriginUser}))

	select {
	case got := <-ch:
		require.Equal(t, "d1", got.DeviceID)
		require.Equal(t, 40, got.Percent)
	case <-time.After(250 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_TypedSubscriptionDoesNotCrossDeliver(t *testing.T) {
	b := NewBus()
	defer b.Close()

	pauseCh, unsubPause := Subscribe[Paused](b, 1)
	defer unsubPause()
	volCh, unsubVol := Subscribe[VolumeChanged](b, 1)
	defer unsubVol()

	require.NoError(t, b.Publish(context.Background(), Paused{DeviceID: "d1", Origin: OriginUser}))

	select {
	case <-pauseCh:
	case <-time.After(250 * time.Millisecond):
		t.Fatal("timed out waiting for Paused")
	}

	select {
	case got := <-volCh:
		t.Fatalf("unexpected cross-delivery: %+v", got)
	case <-time.After(50 * time.Millisecond):
		// ok
	}
}

func TestBus_PublishBackpressure(t *testing.T) {
	b := NewBus()
	defer b.Close()

	_, unsubscribe := Subscribe[RemoteCommand](b, 0) // unbuffered; no receiver => blocks
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := b.Publish(ctx, RemoteCommand{DeviceID: "d1", Kind: CommandStart})
	require.Error(t, err)

	classified, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	require.Equal(t, ferrors.CategoryRuntime, classified.Category())
}

func TestBus_Close(t *testing.T) {
	b := NewBus()

	ch, _ := Subscribe[TrackStarted](b, 1)
	b.Close()

	// Channel must be closed on bus close.
	_, ok := <-ch
	require.False(t, ok)

	err := b.Publish(context.Background(), TrackStarted{DeviceID: "d1"})
	require.Error(t, err)
}

func TestBus_InterfaceSubscriptionKeepsCrossKindOrder(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, unsubscribe := Subscribe[Event](b, 8)
	defer unsubscribe()
	require.Equal(t, 1, SubscriberCount[Event](b))

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, TrackStarted{DeviceID: "d1", TrackURI: "track:1", Origin: OriginBridge}))
	require.NoError(t, b.Publish(ctx, Paused{DeviceID: "d1", Origin: OriginUser}))
	require.NoError(t, b.Publish(ctx, VolumeChanged{DeviceID: "d1", Percent: 40, Origin: OriginUser}))

	// A single interface stream must yield events for the device exactly as
	// published, even though the kinds differ.
	for i, want := range []any{
		TrackStarted{DeviceID: "d1", TrackURI: "track:1", Origin: OriginBridge},
		Paused{DeviceID: "d1", Origin: OriginUser},
		VolumeChanged{DeviceID: "d1", Percent: 40, Origin: OriginUser},
	} {
		select {
		case got := <-ch:
			require.Equal(t, want, got, "event %d out of order", i)
		case <-time.After(250 * time.Millisecond):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}
