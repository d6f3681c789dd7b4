package session

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/hearthlab/hearthd/internal/console"
	"github.com/hearthlab/hearthd/internal/protocol"
)

// Tracks every connected client and owns the console ring buffer.
//
// All registry operations serialize on one mutex. Broadcasts append to the
// ring and enqueue to sessions under it, and attach takes its snapshot
// under the same lock, which is what guarantees the single total order of
// console output across sessions.
type Registry struct {
	mu       sync.Mutex
	ring     *console.Ring
	sessions map[uint64]*Session
	nextID   uint64
}

// Creates a registry broadcasting through the given ring buffer.
func NewRegistry(ring *console.Ring) *Registry {
	return &Registry{
		ring:     ring,
		sessions: make(map[uint64]*Session),
	}
}

// Registers a new connection as a one-shot session and starts its writer
// goroutine.
func (r *Registry) Register(conn net.Conn) *Session {
	r.mu.Lock()
	r.nextID++
	sess := newSession(r.nextID, conn)
	r.sessions[sess.id] = sess
	r.mu.Unlock()

	go sess.writeLoop(r.Unregister)
	return sess
}

// Sends a message to one session regardless of its mode. Used for direct
// replies. The session is disconnected if its queue is saturated.
func (r *Registry) Send(sess *Session, msg protocol.Message) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if !sess.enqueue(frame) {
		r.Unregister(sess)
	}
	return nil
}

// Promotes a session to attached mode and enqueues the AttachAck carrying
// the ring buffer replay.
//
// The snapshot, the mode switch, and the ack enqueue all happen under the
// registry lock, atomically with respect to broadcasts: every line is
// delivered either in the replay or live, never both, never neither.
func (r *Registry) Attach(sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	frame, err := protocol.Encode(protocol.AttachAck{Replay: r.ring.Snapshot()})
	if err != nil {
		return err
	}

	sess.mode = Attached
	if !sess.enqueue(frame) {
		r.removeLocked(sess)
	}
	return nil
}

// Returns an attached session to one-shot mode. It stops receiving
// broadcasts but stays connected.
func (r *Registry) Detach(sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess.mode = OneShot
}

// Appends one line of child output to the ring buffer and fans it out to
// every attached session, assigning the global sequence number.
func (r *Registry) BroadcastOutput(stream protocol.Stream, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.ring.Append(stream, data)
	frame, err := protocol.Encode(protocol.ConsoleOutput{
		Seq:    seq,
		Stream: stream,
		Data:   data,
	})
	if err != nil {
		slog.Error("encode console output failed", "error", err)
		return
	}

	r.broadcastLocked(frame)
}

// Fans a status message out to every attached session. Used for child
// exit notifications.
func (r *Registry) BroadcastStatus(reply protocol.StatusReply) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frame, err := protocol.Encode(reply)
	if err != nil {
		slog.Error("encode status broadcast failed", "error", err)
		return
	}

	r.broadcastLocked(frame)
}

// Enqueues a frame to every attached session, removing the ones whose
// queues are saturated. Caller holds the lock.
func (r *Registry) broadcastLocked(frame []byte) {
	var dead []*Session
	for _, sess := range r.sessions {
		if sess.mode != Attached {
			continue
		}
		if !sess.enqueue(frame) {
			dead = append(dead, sess)
		}
	}
	for _, sess := range dead {
		slog.Warn("disconnecting slow session", "session", sess.id)
		r.removeLocked(sess)
	}
}

// Removes a session and closes its transport. Safe to call for a session
// that is already gone.
func (r *Registry) Unregister(sess *Session) {
	r.mu.Lock()
	r.removeLocked(sess)
	r.mu.Unlock()
}

func (r *Registry) removeLocked(sess *Session) {
	delete(r.sessions, sess.id)
	sess.close()
}

// Returns the most recent console lines for a log query.
func (r *Registry) RecentOutput(n int) []protocol.ConsoleEntry {
	return r.ring.Last(n)
}

// Returns the number of connected sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Time allowed for flushing a session's queued frames during shutdown.
const closeFlushTimeout = time.Second

// Disconnects every session, flushing queued frames first so that final
// replies and exit notifications reach their clients. Used during daemon
// shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.sessions = make(map[uint64]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.closeGraceful(closeFlushTimeout)
	}
}
