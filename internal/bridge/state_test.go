package bridge

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry()

	r.Add(Device{ID: "d1", Name: "Living Room"})
	dev, ok := r.Get("d1")
	require.True(t, ok)
	assert.Equal(t, "Living Room", dev.Name)

	assert.True(t, r.Remove("d1"))
	assert.False(t, r.Remove("d1"))
	_, ok = r.Get("d1")
	assert.False(t, ok)
}

func TestGetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	r.Add(Device{ID: "d1", Volume: 10})

	dev, _ := r.Get("d1")
	dev.Volume = 99

	again, _ := r.Get("d1")
	assert.Equal(t, 10, again.Volume)
}

func TestUpdateMutatesUnderLock(t *testing.T) {
	r := NewRegistry()
	r.Add(Device{ID: "d1"})

	ok := r.Update("d1", func(d *Device) {
		d.Connect.Active = true
		d.Current = Song{URL: "spotify:track:x", ConnectActive: true}
	})
	require.True(t, ok)

	dev, _ := r.Get("d1")
	assert.True(t, dev.Connect.Active)
	assert.Equal(t, "spotify:track:x", dev.Current.URL)

	assert.False(t, r.Update("ghost", func(d *Device) {}))
}

func TestConcurrentUpdates(t *testing.T) {
	r := NewRegistry()
	r.Add(Device{ID: "d1"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Update("d1", func(d *Device) { d.Volume++ })
		}()
	}
	wg.Wait()

	dev, _ := r.Get("d1")
	assert.Equal(t, 50, dev.Volume)
}

func TestListReturnsAllDevices(t *testing.T) {
	r := NewRegistry()
	r.Add(Device{ID: "d1"})
	r.Add(Device{ID: "d2"})

	assert.Len(t, r.List(), 2)
	assert.Equal(t, 2, r.Len())
}
