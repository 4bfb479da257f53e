package rtps

import "sync"

// HistoryCache stores cache changes ordered by sequence number. Depth 0
// means keep-all; a positive depth drops the oldest change when full.
type HistoryCache struct {
	mu      sync.RWMutex
	depth   int
	changes map[SequenceNumber]*CacheChange
	minSeq  SequenceNumber
	maxSeq  SequenceNumber
}

// NewHistoryCache creates a cache with the given keep-last depth
// (0 = keep all).
func NewHistoryCache(depth int) *HistoryCache {
	return &HistoryCache{
		depth:   depth,
		changes: make(map[SequenceNumber]*CacheChange),
	}
}

// Add inserts a change. A duplicate sequence number is ignored.
func (hc *HistoryCache) Add(c *CacheChange) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if _, ok := hc.changes[c.SequenceNumber]; ok {
		return
	}
	hc.changes[c.SequenceNumber] = c
	if hc.minSeq == 0 || c.SequenceNumber < hc.minSeq {
		hc.minSeq = c.SequenceNumber
	}
	if c.SequenceNumber > hc.maxSeq {
		hc.maxSeq = c.SequenceNumber
	}
	if hc.depth > 0 {
		for len(hc.changes) > hc.depth {
			delete(hc.changes, hc.minSeq)
			hc.advanceMinLocked()
		}
	}
}

// Get returns the change with the given sequence number, or nil.
func (hc *HistoryCache) Get(sn SequenceNumber) *CacheChange {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.changes[sn]
}

// Remove deletes the change with the given sequence number.
func (hc *HistoryCache) Remove(sn SequenceNumber) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if _, ok := hc.changes[sn]; !ok {
		return
	}
	delete(hc.changes, sn)
	if sn == hc.minSeq {
		hc.advanceMinLocked()
	}
}

// RemoveBefore drops all changes with sequence number < sn.
func (hc *HistoryCache) RemoveBefore(sn SequenceNumber) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	for s := range hc.changes {
		if s < sn {
			delete(hc.changes, s)
		}
	}
	hc.advanceMinLocked()
}

// MinSeq returns the lowest stored sequence number, or 0 when empty.
func (hc *HistoryCache) MinSeq() SequenceNumber {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.minSeq
}

// MaxSeq returns the highest stored sequence number, or 0 when empty.
func (hc *HistoryCache) MaxSeq() SequenceNumber {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.maxSeq
}

// Len returns the number of stored changes.
func (hc *HistoryCache) Len() int {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return len(hc.changes)
}

// Each calls fn for every change in increasing sequence number order.
func (hc *HistoryCache) Each(fn func(*CacheChange)) {
	hc.mu.RLock()
	min, max := hc.minSeq, hc.maxSeq
	hc.mu.RUnlock()
	for sn := min; sn > 0 && sn <= max; sn++ {
		if c := hc.Get(sn); c != nil {
			fn(c)
		}
	}
}

func (hc *HistoryCache) advanceMinLocked() {
	if len(hc.changes) == 0 {
		hc.minSeq, hc.maxSeq = 0, 0
		return
	}
	var min, max SequenceNumber
	for s := range hc.changes {
		if min == 0 || s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	hc.minSeq, hc.maxSeq = min, max
}
