package bridge

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncrementAndCount(t *testing.T) {
	h := NewHistoryCache()

	assert.Zero(t, h.Count("spotify:track:A"))
	assert.Equal(t, 1, h.Increment("spotify:track:A"))
	assert.Equal(t, 2, h.Increment("spotify:track:A"))
	assert.Equal(t, 2, h.Count("spotify:track:A"))
	assert.Equal(t, 1, h.Len())
}

func TestResetClearsEverything(t *testing.T) {
	h := NewHistoryCache()
	h.Increment("spotify:track:A")
	h.Increment("spotify:track:B")

	h.Reset()

	assert.Zero(t, h.Len())
	assert.Zero(t, h.Count("spotify:track:A"))

	// Usable again after reset.
	assert.Equal(t, 1, h.Increment("spotify:track:A"))
}

func TestEmptyURLIgnored(t *testing.T) {
	h := NewHistoryCache()
	assert.Zero(t, h.Increment(""))
	assert.Zero(t, h.Len())
}

func TestBoundedEvictionDropsOldest(t *testing.T) {
	h := newHistoryCacheWithCapacity(3)

	for i := 0; i < 3; i++ {
		h.Increment(fmt.Sprintf("spotify:track:%d", i))
	}
	assert.Equal(t, 3, h.Len())

	h.Increment("spotify:track:3")

	assert.Equal(t, 3, h.Len())
	assert.Zero(t, h.Count("spotify:track:0"), "oldest entry evicted")
	assert.Equal(t, 1, h.Count("spotify:track:3"))
}

func TestRecountingExistingEntryDoesNotEvict(t *testing.T) {
	h := newHistoryCacheWithCapacity(2)
	h.Increment("spotify:track:A")
	h.Increment("spotify:track:B")
	h.Increment("spotify:track:A")

	assert.Equal(t, 2, h.Count("spotify:track:A"))
	assert.Equal(t, 1, h.Count("spotify:track:B"))
}
