package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hearthlab/hearthd/internal/console"
	"github.com/hearthlab/hearthd/internal/paths"
	"github.com/hearthlab/hearthd/internal/protocol"
	"github.com/hearthlab/hearthd/internal/session"
	"github.com/hearthlab/hearthd/internal/supervisor"
)

const (

	// File mode applied to the Unix socket. The socket is the trust
	// boundary; only the owning user may connect.
	socketMode = 0600

	// Timeout for the connect probe against a pre-existing socket file.
	probeTimeout = time.Second
)

var (
	ErrServer = errors.New("server error")

	// Another live daemon already owns the control socket.
	ErrAlreadyRunning = errors.New("daemon already running")
)

// Holds server configuration.
type Config struct {
	SocketPath   string            // Override for the Unix socket path. Empty uses the default.
	PIDFilePath  string            // Override for the PID file path. Empty uses the default.
	RingCapacity int               // Console ring buffer capacity in lines. Zero uses the default.
	Supervisor   supervisor.Config // Launch configuration for the game server child.
}

// Listens on a Unix domain socket, supervises the game server child, and
// fans its console out to attached sessions.
type Server struct {
	socketPath  string
	pidFilePath string
	sup         *supervisor.Supervisor
	registry    *session.Registry
	listener    net.Listener
	startedAt   time.Time

	// ops serializes control operations against the supervisor (restart,
	// shutdown) so no two state transitions interleave.
	ops sync.Mutex

	stopOnce sync.Once
	done     chan struct{}
}

// Creates a new server instance.
//
// The socket is not opened and no child is spawned until [Server.Start].
func New(cfg Config) *Server {
	socketPath := cfg.SocketPath
	if socketPath == "" {
		socketPath = paths.Socket()
	}
	pidFilePath := cfg.PIDFilePath
	if pidFilePath == "" {
		pidFilePath = paths.PIDFile()
	}

	s := &Server{
		socketPath:  socketPath,
		pidFilePath: pidFilePath,
		registry:    session.NewRegistry(console.NewRing(cfg.RingCapacity)),
		done:        make(chan struct{}),
	}

	s.sup = supervisor.New(cfg.Supervisor, s.registry.BroadcastOutput, s.childExited)
	return s
}

// Binds the control socket, writes the PID file, spawns the game server,
// and begins accepting connections.
//
// Fails with [ErrAlreadyRunning] if a live daemon owns the socket, and
// with the spawn error if the game server cannot be launched; either way
// no resources are left behind.
func (s *Server) Start() error {
	listener, err := listen(s.socketPath)
	if err != nil {
		return err
	}
	s.listener = listener
	s.startedAt = time.Now()

	// The daemon can serve without the PID file, but stop and start
	// liveness checks ride on it, so the failure is loud.
	if err := s.writePID(); err != nil {
		slog.Error("failed to write PID file", "path", s.pidFilePath, "error", err)
	}

	if err := s.sup.Start(); err != nil {
		listener.Close()
		os.Remove(s.socketPath)
		os.Remove(s.pidFilePath)
		return err
	}

	slog.Info("server listening on socket", "path", s.socketPath)

	go s.accept()
	return nil
}

// Creates the Unix socket listener, reclaiming a stale socket from a
// crashed prior daemon, and applies permissions.
//
// A pre-existing socket file is probed with a connect: a successful
// connect means a live daemon owns it ([ErrAlreadyRunning]); a refused
// connect means the previous daemon died without cleanup, so the file is
// unlinked and the path reused.
func listen(socketPath string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}

	if _, err := os.Stat(socketPath); err == nil {
		conn, err := net.DialTimeout("unix", socketPath, probeTimeout)
		if err == nil {
			conn.Close()
			return nil, ErrAlreadyRunning
		}
		slog.Info("removing stale socket", "path", socketPath)
		os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to listen on %s: %w", ErrServer, socketPath, err)
	}

	if err := os.Chmod(socketPath, socketMode); err != nil {
		listener.Close()
		os.Remove(socketPath)
		return nil, fmt.Errorf("%w: failed to chmod socket %s: %w", ErrServer, socketPath, err)
	}

	return listener, nil
}

// Writes the daemon PID to the PID file so the CLI can detect whether the
// daemon is already running and check its liveness.
func (s *Server) writePID() error {
	if err := os.MkdirAll(filepath.Dir(s.pidFilePath), paths.DefaultDirMode); err != nil {
		return err
	}
	return os.WriteFile(s.pidFilePath, fmt.Appendf(nil, "%d", os.Getpid()), paths.DefaultFileMode)
}

// Stops the game server with the configured grace period (or kills it
// when force is set), disconnects all sessions, and releases the socket
// and PID file. Safe to call more than once.
func (s *Server) Shutdown(force bool) {
	s.stopOnce.Do(func() {
		s.ops.Lock()
		defer s.ops.Unlock()

		var err error
		if force {
			err = s.sup.Kill()
		} else {
			err = s.sup.Stop(0)
		}
		if err != nil && !errors.Is(err, supervisor.ErrNotRunning) {
			slog.Error("stopping server during shutdown failed", "error", err)
		}

		if s.listener != nil {
			s.listener.Close()
		}
		s.registry.CloseAll()
		os.Remove(s.socketPath)
		os.Remove(s.pidFilePath)
		close(s.done)

		slog.Info("daemon stopped")
	})
}

// Shuts down gracefully. Satisfies the signal-handling path in the run
// command.
func (s *Server) Stop() error {
	s.Shutdown(false)
	return nil
}

// Blocks until the server has shut down.
func (s *Server) Wait() {
	<-s.done
}

// Announces the child's exit to every attached session. Installed as the
// supervisor's exit callback.
func (s *Server) childExited(code int, crashed bool) {
	status := protocol.StatusStopped
	if crashed {
		status = protocol.StatusCrashed
	}
	s.registry.BroadcastStatus(protocol.StatusReply{
		Status:   status,
		PID:      s.sup.Status().PID,
		ExitCode: code,
	})
}

// Accepts connections in a loop until the server shuts down.
func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				slog.Error("accept error", "error", err)
				continue
			}
		}

		go s.handle(conn)
	}
}

// Processes a single connection for its whole lifetime.
//
// The connection is registered as a one-shot session, then frames are
// decoded and dispatched until the peer disconnects or sends something
// undecodable. Protocol errors close this connection only; other sessions
// and the child are unaffected.
func (s *Server) handle(conn net.Conn) {
	sess := s.registry.Register(conn)
	defer s.registry.Unregister(sess)

	reader := protocol.NewReader(conn)
	for {
		msg, err := reader.Next()
		if err != nil {
			if isProtocolError(err) {
				slog.Warn("closing connection on protocol error", "session", sess.ID(), "error", err)
				s.registry.Send(sess, protocol.ErrorReply{
					Kind:    protocol.ErrKindProtocol,
					Message: err.Error(),
				})
			}
			return
		}
		s.dispatch(sess, msg)
	}
}

// Whether the decode failure is a malformed peer rather than a closed
// connection.
func isProtocolError(err error) bool {
	return errors.Is(err, protocol.ErrMalformed) ||
		errors.Is(err, protocol.ErrFrameTooLarge) ||
		errors.Is(err, protocol.ErrVersionMismatch)
}
