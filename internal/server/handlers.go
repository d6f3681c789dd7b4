package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/hearthlab/hearthd/internal"
	"github.com/hearthlab/hearthd/internal/protocol"
	"github.com/hearthlab/hearthd/internal/session"
	"github.com/hearthlab/hearthd/internal/supervisor"
)

// Default number of lines returned for a log query that does not specify
// a count.
const defaultLogLines = 10

// Routes one decoded message to the appropriate handler. The message set
// is closed; kinds that only ever travel daemon-to-client fall through to
// a protocol error reply.
func (s *Server) dispatch(sess *session.Session, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Command:
		slog.Info("command received", "session", sess.ID(), "text", m.Text)
		s.reply(sess, s.sup.SendCommand(m.Text))

	case protocol.ConsoleInput:
		if err := s.sup.WriteInput(m.Data); err != nil {
			s.registry.Send(sess, errorReply(err))
		}

	case protocol.AttachRequest:
		slog.Info("session attached", "session", sess.ID())
		if err := s.registry.Attach(sess); err != nil {
			slog.Error("attach failed", "session", sess.ID(), "error", err)
		}

	case protocol.DetachRequest:
		slog.Info("session detached", "session", sess.ID())
		s.registry.Detach(sess)
		s.registry.Send(sess, protocol.Ok{})

	case protocol.StatusQuery:
		s.registry.Send(sess, s.statusReply())

	case protocol.LogQuery:
		lines := m.Lines
		if lines <= 0 {
			lines = defaultLogLines
		}
		s.registry.Send(sess, protocol.LogReply{Entries: s.registry.RecentOutput(lines)})

	case protocol.RestartRequest:
		slog.Info("restart requested", "session", sess.ID())
		s.handleRestart(sess)

	case protocol.Shutdown:
		slog.Info("shutdown requested", "session", sess.ID(), "force", m.Force)
		s.registry.Send(sess, protocol.Ok{})
		go s.Shutdown(m.Force)

	case protocol.ConsoleOutput, protocol.AttachAck, protocol.StatusReply,
		protocol.LogReply, protocol.Ok, protocol.ErrorReply:
		s.registry.Send(sess, protocol.ErrorReply{
			Kind:    protocol.ErrKindProtocol,
			Message: "unexpected daemon-to-client message",
		})
	}
}

// Stops the child and starts a fresh one with the same launch
// configuration, serialized against other control operations.
func (s *Server) handleRestart(sess *session.Session) {
	s.ops.Lock()
	defer s.ops.Unlock()

	if err := s.sup.Stop(0); err != nil && !errors.Is(err, supervisor.ErrNotRunning) {
		s.registry.Send(sess, errorReply(err))
		return
	}
	if err := s.sup.Start(); err != nil {
		s.registry.Send(sess, errorReply(err))
		return
	}

	s.registry.Send(sess, s.statusReply())
}

// Builds the status reply from the supervisor snapshot.
func (s *Server) statusReply() protocol.StatusReply {
	state := s.sup.Status()

	reply := protocol.StatusReply{
		Status:   state.Status,
		PID:      state.PID,
		ExitCode: state.ExitCode,
		Version:  internal.VersionString(),
	}
	if state.Status == protocol.StatusRunning || state.Status == protocol.StatusStopping {
		reply.Uptime = time.Since(state.StartedAt).Truncate(time.Second).String()
	}
	return reply
}

// Sends Ok for a nil error, otherwise the mapped error reply.
func (s *Server) reply(sess *session.Session, err error) {
	if err != nil {
		s.registry.Send(sess, errorReply(err))
		return
	}
	s.registry.Send(sess, protocol.Ok{})
}

// Maps an internal error to its wire representation.
func errorReply(err error) protocol.ErrorReply {
	kind := protocol.ErrKindInternal
	switch {
	case errors.Is(err, supervisor.ErrNotRunning):
		kind = protocol.ErrKindNotRunning
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		kind = protocol.ErrKindAlreadyRunning
	case errors.Is(err, supervisor.ErrSpawn):
		kind = protocol.ErrKindSpawn
	}
	return protocol.ErrorReply{Kind: kind, Message: err.Error()}
}
