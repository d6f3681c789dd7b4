package console

import (
	"sync"

	"github.com/hearthlab/hearthd/internal/protocol"
)

// Default ring capacity in lines. A thousand lines covers several minutes
// of a chatty game server, which is plenty for attach-time replay.
const DefaultCapacity = 1000

// A fixed-capacity circular buffer of recent console lines.
//
// Every append assigns the next value of a monotonic sequence counter, so
// retained entries are strictly ordered with no gaps and a reader can
// detect where a replay ends and live output begins. When the buffer is
// full the oldest line is evicted.
//
// All methods are safe for concurrent use. Appends never block on readers;
// snapshots copy out under the lock and are independent of later appends.
type Ring struct {
	mu       sync.Mutex
	entries  []protocol.ConsoleEntry
	capacity int
	start    int // index of the oldest retained entry
	count    int
	nextSeq  uint64
}

// Creates a ring buffer retaining up to capacity lines. A non-positive
// capacity falls back to [DefaultCapacity].
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		entries:  make([]protocol.ConsoleEntry, capacity),
		capacity: capacity,
		nextSeq:  1,
	}
}

// Stores one line and returns its assigned sequence number. Evicts the
// oldest line when at capacity. The data is copied; the caller may reuse
// its buffer.
func (r *Ring) Append(stream protocol.Stream, data []byte) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.nextSeq
	r.nextSeq++

	entry := protocol.ConsoleEntry{
		Seq:    seq,
		Stream: stream,
		Data:   append([]byte(nil), data...),
	}

	if r.count < r.capacity {
		r.entries[(r.start+r.count)%r.capacity] = entry
		r.count++
	} else {
		r.entries[r.start] = entry
		r.start = (r.start + 1) % r.capacity
	}

	return seq
}

// Returns all retained lines in sequence order as a point-in-time copy.
func (r *Ring) Snapshot() []protocol.ConsoleEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked(r.count)
}

// Returns up to n of the most recent lines in sequence order.
func (r *Ring) Last(n int) []protocol.ConsoleEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}
	all := r.copyLocked(r.count)
	return all[len(all)-n:]
}

// Returns the number of retained lines.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Copies the first n retained entries in order. Caller holds the lock.
func (r *Ring) copyLocked(n int) []protocol.ConsoleEntry {
	if n == 0 {
		return nil
	}
	out := make([]protocol.ConsoleEntry, n)
	for i := 0; i < n; i++ {
		out[i] = r.entries[(r.start+i)%r.capacity]
	}
	return out
}
