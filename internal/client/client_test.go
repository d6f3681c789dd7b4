package client

import (
	"bytes"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hearthlab/hearthd/internal/protocol"
)

// Runs a scripted daemon on a throwaway socket; every accepted connection
// is handed to serve on its own goroutine.
func stubDaemon(t *testing.T, serve func(conn net.Conn, reader *protocol.Reader)) string {
	t.Helper()

	socket := filepath.Join(t.TempDir(), "hearthd.sock")
	listener, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				serve(conn, protocol.NewReader(conn))
			}()
		}
	}()

	return socket
}

func dialStub(t *testing.T, socket string) *Client {
	t.Helper()
	c, err := Dial(socket)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDialWithoutDaemon(t *testing.T) {
	_, err := Dial(filepath.Join(t.TempDir(), "missing.sock"))
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("Dial error = %v, want ErrDaemonNotRunning", err)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	socket := stubDaemon(t, func(conn net.Conn, reader *protocol.Reader) {
		msg, err := reader.Next()
		if err != nil {
			return
		}
		if _, ok := msg.(protocol.StatusQuery); !ok {
			t.Errorf("daemon received %#v, want StatusQuery", msg)
			return
		}
		protocol.Write(conn, protocol.StatusReply{
			Status:  protocol.StatusRunning,
			PID:     4242,
			Uptime:  "1m30s",
			Version: "1.2.3",
		})
	})

	c := dialStub(t, socket)
	status, err := c.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Status != protocol.StatusRunning || status.PID != 4242 || status.Uptime != "1m30s" {
		t.Fatalf("Status = %+v", status)
	}
}

func TestRemoteErrorSurfaces(t *testing.T) {
	socket := stubDaemon(t, func(conn net.Conn, reader *protocol.Reader) {
		if _, err := reader.Next(); err != nil {
			return
		}
		protocol.Write(conn, protocol.ErrorReply{
			Kind:    protocol.ErrKindNotRunning,
			Message: "server not running",
		})
	})

	c := dialStub(t, socket)
	err := c.Send("list")

	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("Send error = %v, want *RemoteError", err)
	}
	if remote.Kind != protocol.ErrKindNotRunning || remote.Message != "server not running" {
		t.Fatalf("RemoteError = %+v", remote)
	}
}

func TestUnexpectedReplyKind(t *testing.T) {
	socket := stubDaemon(t, func(conn net.Conn, reader *protocol.Reader) {
		if _, err := reader.Next(); err != nil {
			return
		}
		protocol.Write(conn, protocol.Ok{})
	})

	c := dialStub(t, socket)
	if _, err := c.Status(); err == nil || !strings.Contains(err.Error(), "unexpected reply") {
		t.Fatalf("Status error = %v, want unexpected-reply failure", err)
	}
}

func TestAttachRendersReplayAndStopsOnExit(t *testing.T) {
	socket := stubDaemon(t, func(conn net.Conn, reader *protocol.Reader) {
		msg, err := reader.Next()
		if err != nil {
			return
		}
		if _, ok := msg.(protocol.AttachRequest); !ok {
			t.Errorf("daemon received %#v, want AttachRequest", msg)
			return
		}
		protocol.Write(conn, protocol.AttachAck{Replay: []protocol.ConsoleEntry{
			{Seq: 1, Stream: protocol.Stdout, Data: []byte("Server started")},
			{Seq: 2, Stream: protocol.Stderr, Data: []byte("low memory")},
		}})
		protocol.Write(conn, protocol.ConsoleOutput{Seq: 3, Stream: protocol.Stdout, Data: []byte("players online: 0")})
		protocol.Write(conn, protocol.StatusReply{Status: protocol.StatusStopped})
	})

	var out, errOut bytes.Buffer
	c := dialStub(t, socket)
	if err := c.Attach(AttachOptions{Output: &out, ErrOutput: &errOut}); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	want := "Server started\nplayers online: 0\n[hearthd] server stopped\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
	if errOut.String() != "low memory\n" {
		t.Errorf("error output = %q, want the stderr replay line", errOut.String())
	}
}

func TestAttachForwardsInputAndDetachesOnEOF(t *testing.T) {
	socket := stubDaemon(t, func(conn net.Conn, reader *protocol.Reader) {
		if _, err := reader.Next(); err != nil { // AttachRequest
			return
		}
		protocol.Write(conn, protocol.AttachAck{})

		msg, err := reader.Next()
		if err != nil {
			return
		}
		input, ok := msg.(protocol.ConsoleInput)
		if !ok || string(input.Data) != "say hi\n" {
			t.Errorf("daemon received %#v, want the typed line", msg)
			return
		}

		msg, err = reader.Next()
		if err != nil {
			return
		}
		if _, ok := msg.(protocol.DetachRequest); !ok {
			t.Errorf("daemon received %#v, want DetachRequest", msg)
			return
		}
		protocol.Write(conn, protocol.Ok{})
	})

	var out bytes.Buffer
	c := dialStub(t, socket)
	err := c.Attach(AttachOptions{
		Input:  strings.NewReader("say hi\n"),
		Output: &out,
	})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestAttachReportsCrash(t *testing.T) {
	socket := stubDaemon(t, func(conn net.Conn, reader *protocol.Reader) {
		if _, err := reader.Next(); err != nil {
			return
		}
		protocol.Write(conn, protocol.AttachAck{})
		protocol.Write(conn, protocol.StatusReply{Status: protocol.StatusCrashed, ExitCode: 137})
	})

	var out bytes.Buffer
	c := dialStub(t, socket)
	if err := c.Attach(AttachOptions{Output: &out}); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if want := "[hearthd] server crashed (exit code 137)\n"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}
