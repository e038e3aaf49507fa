package bridge

import "sync"

// defaultHistoryCapacity bounds the history cache. The cache is a heuristic
// loop-breaker, not a session model; once full, the oldest entries age out.
const defaultHistoryCapacity = 512

// HistoryCache is the process-wide url→play-count map used to detect the
// remote session looping back to an already-played track. It is reset
// whenever a new listening context begins (a fresh Connect "start").
//
// The cache is deliberately shared across devices. It carries its own mutex
// because scheduled tasks touch it from scheduler goroutines.
type HistoryCache struct {
	mu       sync.Mutex
	counts   map[string]int
	order    []string // insertion order for bounded eviction
	capacity int
}

func NewHistoryCache() *HistoryCache {
	return newHistoryCacheWithCapacity(defaultHistoryCapacity)
}

func newHistoryCacheWithCapacity(capacity int) *HistoryCache {
	return &HistoryCache{
		counts:   make(map[string]int),
		capacity: capacity,
	}
}

// Increment bumps the play count for a url and returns the new count.
func (h *HistoryCache) Increment(url string) int {
	if url == "" {
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.counts[url]; !ok {
		if len(h.order) >= h.capacity {
			oldest := h.order[0]
			h.order = h.order[1:]
			delete(h.counts, oldest)
		}
		h.order = append(h.order, url)
	}
	h.counts[url]++
	return h.counts[url]
}

// Count returns the play count for a url, zero if never seen.
func (h *HistoryCache) Count(url string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[url]
}

// Reset clears the cache for a new listening context.
func (h *HistoryCache) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts = make(map[string]int)
	h.order = h.order[:0]
}

// Len returns the number of tracked urls.
func (h *HistoryCache) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.counts)
}
