// Package history keeps a bounded, time-ordered window of snapshots
package history

import (
	"sync"

	"github.com/yairfalse/vigil/pkg/domain"
)

// DefaultCapacity keeps 24h of history at a one minute cadence
const DefaultCapacity = 1440

// Buffer is a fixed-size ring of snapshots. When full, Append overwrites
// the oldest entry.
type Buffer struct {
	mu    sync.RWMutex
	data  []domain.Snapshot
	size  int
	head  int // next write position
	count int
}

// NewBuffer creates a buffer holding at most capacity snapshots.
// A non-positive capacity falls back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		data: make([]domain.Snapshot, capacity),
		size: capacity,
	}
}

// Append stores a snapshot, evicting the oldest one when the buffer is full
func (b *Buffer) Append(s domain.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data[b.head] = s
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}
}

// Query returns the snapshots inside r, oldest first. The result is a fresh
// slice; callers may keep or modify it freely.
func (b *Buffer) Query(r domain.TimeRange) []domain.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]domain.Snapshot, 0, b.count)
	b.each(func(s *domain.Snapshot) {
		if r.Contains(s.Timestamp) {
			result = append(result, *s)
		}
	})
	return result
}

// Latest returns the most recently appended snapshot
func (b *Buffer) Latest() (domain.Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return domain.Snapshot{}, false
	}
	return b.data[(b.head-1+b.size)%b.size], true
}

// Len returns the number of retained snapshots
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Cap returns the configured capacity
func (b *Buffer) Cap() int {
	return b.size
}

// each walks retained snapshots from oldest to newest. Caller holds the lock.
func (b *Buffer) each(fn func(*domain.Snapshot)) {
	start := 0
	if b.count == b.size {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		fn(&b.data[(start+i)%b.size])
	}
}
