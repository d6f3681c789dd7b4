package session

import (
	"net"
	"sync"
	"time"
)

// Session mode: one-shot request/response or attached console.
type Mode uint8

const (
	OneShot Mode = iota
	Attached
)

// Number of encoded frames a session may have in flight before it is
// considered too slow and disconnected.
const queueCapacity = 256

// One connected control client.
type Session struct {
	id   uint64
	conn net.Conn
	mode Mode // guarded by the registry mutex

	// queue carries encoded frames to the writer goroutine. Enqueueing
	// never blocks; a full queue marks the session for removal.
	queue chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(id uint64, conn net.Conn) *Session {
	return &Session{
		id:     id,
		conn:   conn,
		queue:  make(chan []byte, queueCapacity),
		closed: make(chan struct{}),
	}
}

// Returns the session identifier.
func (s *Session) ID() uint64 {
	return s.id
}

// Attempts to enqueue an encoded frame without blocking. Reports false
// when the queue is saturated.
func (s *Session) enqueue(frame []byte) bool {
	select {
	case s.queue <- frame:
		return true
	default:
		return false
	}
}

// Stops the writer goroutine immediately, dropping queued frames. The
// past write deadline unblocks a write stuck on a slow peer. Safe to call
// more than once.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.conn.SetWriteDeadline(time.Now())
		close(s.closed)
	})
}

// Stops the writer goroutine after it has flushed queued frames, bounded
// by the deadline. Safe to call more than once.
func (s *Session) closeGraceful(timeout time.Duration) {
	s.closeOnce.Do(func() {
		s.conn.SetWriteDeadline(time.Now().Add(timeout))
		close(s.closed)
	})
}

// Drains the outbound queue onto the connection until the session closes
// or a write fails. Owns the connection close so queued frames can still
// be flushed after a graceful close.
func (s *Session) writeLoop(onDead func(*Session)) {
	defer s.conn.Close()
	for {
		select {
		case frame := <-s.queue:
			if _, err := s.conn.Write(frame); err != nil {
				onDead(s)
				return
			}
		case <-s.closed:
			for {
				select {
				case frame := <-s.queue:
					if _, err := s.conn.Write(frame); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}
