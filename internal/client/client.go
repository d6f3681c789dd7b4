package client

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hearthlab/hearthd/internal/protocol"
)

// Timeout for establishing the control socket connection.
const dialTimeout = time.Second

// No daemon is listening on the control socket.
var ErrDaemonNotRunning = errors.New("no daemon running")

// A failure reported by the daemon over the wire.
type RemoteError struct {
	Kind    protocol.ErrorKind
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// A connection to the hearthd control socket.
type Client struct {
	conn   net.Conn
	reader *protocol.Reader
}

// Connects to the daemon. A connect failure means no daemon owns the
// socket and is reported as [ErrDaemonNotRunning].
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDaemonNotRunning, err)
	}
	return &Client{conn: conn, reader: protocol.NewReader(conn)}, nil
}

// Closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Sends one message and returns the single reply. An [protocol.ErrorReply]
// comes back as a [*RemoteError].
func (c *Client) roundTrip(msg protocol.Message) (protocol.Message, error) {
	if err := protocol.Write(c.conn, msg); err != nil {
		return nil, err
	}

	reply, err := c.reader.Next()
	if err != nil {
		return nil, fmt.Errorf("daemon closed connection: %w", err)
	}
	if e, ok := reply.(protocol.ErrorReply); ok {
		return nil, &RemoteError{Kind: e.Kind, Message: e.Message}
	}
	return reply, nil
}

// Queries the daemon for the game server's state.
func (c *Client) Status() (protocol.StatusReply, error) {
	reply, err := c.roundTrip(protocol.StatusQuery{})
	if err != nil {
		return protocol.StatusReply{}, err
	}
	status, ok := reply.(protocol.StatusReply)
	if !ok {
		return protocol.StatusReply{}, fmt.Errorf("unexpected reply %T to status query", reply)
	}
	return status, nil
}

// Sends a one-shot console command to the game server.
func (c *Client) Send(text string) error {
	return c.expectOk(protocol.Command{Text: text})
}

// Asks the daemon to stop the game server and exit. Force skips the
// graceful stop.
func (c *Client) Shutdown(force bool) error {
	return c.expectOk(protocol.Shutdown{Force: force})
}

// Asks the daemon to restart the game server with its original launch
// configuration.
func (c *Client) Restart() (protocol.StatusReply, error) {
	reply, err := c.roundTrip(protocol.RestartRequest{})
	if err != nil {
		return protocol.StatusReply{}, err
	}
	status, ok := reply.(protocol.StatusReply)
	if !ok {
		return protocol.StatusReply{}, fmt.Errorf("unexpected reply %T to restart request", reply)
	}
	return status, nil
}

// Fetches the most recent console lines without attaching.
func (c *Client) Log(lines int) ([]protocol.ConsoleEntry, error) {
	reply, err := c.roundTrip(protocol.LogQuery{Lines: lines})
	if err != nil {
		return nil, err
	}
	log, ok := reply.(protocol.LogReply)
	if !ok {
		return nil, fmt.Errorf("unexpected reply %T to log query", reply)
	}
	return log.Entries, nil
}

// Performs a round trip whose only success reply is Ok.
func (c *Client) expectOk(msg protocol.Message) error {
	reply, err := c.roundTrip(msg)
	if err != nil {
		return err
	}
	if _, ok := reply.(protocol.Ok); !ok {
		return fmt.Errorf("unexpected reply %T", reply)
	}
	return nil
}
