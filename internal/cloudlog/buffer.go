package cloudlog

import "sync"

// DefaultCapacity is the number of entries kept when no capacity is given.
const DefaultCapacity = 2000

// Buffer keeps the most recent entries in arrival order.
// Once full, each Append evicts the oldest entry. Safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	limit   int
}

// NewBuffer creates a Buffer holding at most capacity entries.
// A non-positive capacity falls back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		limit:   capacity,
		entries: make([]Entry, 0, capacity),
	}
}

// Append stores e as the newest entry, evicting the oldest one when full.
func (b *Buffer) Append(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) >= b.limit {
		// Shift in place so the backing array never grows past limit.
		n := copy(b.entries, b.entries[len(b.entries)-b.limit+1:])
		b.entries = b.entries[:n]
	}
	b.entries = append(b.entries, e)
}

// Snapshot returns a copy of the stored entries, oldest first.
// The result is never nil.
func (b *Buffer) Snapshot() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of stored entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Cap returns the maximum number of entries the buffer holds.
func (b *Buffer) Cap() int {
	return b.limit
}
