package client

import (
	"bufio"
	"fmt"
	"io"

	"github.com/hearthlab/hearthd/internal/protocol"
)

// Configures an attached console session.
type AttachOptions struct {

	// Local input forwarded to the game server's stdin, line by line.
	// Nil disables input forwarding (tail mode). End of input (Ctrl-D on
	// a terminal) detaches.
	Input io.Reader

	// Destination for the game server's stdout lines and status notices.
	Output io.Writer

	// Destination for the game server's stderr lines. Nil falls back to
	// Output.
	ErrOutput io.Writer
}

// Enters an attached console session.
//
// Sends the attach request, renders the ring buffer replay, then streams
// live output until the local input ends (detach), the game server exits,
// or the daemon closes the connection. Returns nil for all of those; only
// transport and protocol failures are errors.
func (c *Client) Attach(opts AttachOptions) error {
	if opts.ErrOutput == nil {
		opts.ErrOutput = opts.Output
	}

	if err := protocol.Write(c.conn, protocol.AttachRequest{}); err != nil {
		return err
	}

	first, err := c.reader.Next()
	if err != nil {
		return fmt.Errorf("daemon closed connection: %w", err)
	}
	ack, ok := first.(protocol.AttachAck)
	if !ok {
		return fmt.Errorf("unexpected reply %T to attach request", first)
	}
	for _, entry := range ack.Replay {
		renderLine(opts, entry.Stream, entry.Data)
	}

	if opts.Input != nil {
		go c.forwardInput(opts.Input)
	}

	for {
		msg, err := c.reader.Next()
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(opts.Output, "[hearthd] connection closed by daemon")
				return nil
			}
			return fmt.Errorf("daemon closed connection: %w", err)
		}

		switch m := msg.(type) {
		case protocol.ConsoleOutput:
			renderLine(opts, m.Stream, m.Data)
		case protocol.StatusReply:
			fmt.Fprintf(opts.Output, "[hearthd] server %s", m.Status)
			if m.Status == protocol.StatusCrashed {
				fmt.Fprintf(opts.Output, " (exit code %d)", m.ExitCode)
			}
			fmt.Fprintln(opts.Output)
			if m.Status == protocol.StatusStopped || m.Status == protocol.StatusCrashed {
				return nil
			}
		case protocol.Ok:
			// Detach acknowledged.
			return nil
		case protocol.ErrorReply:
			return &RemoteError{Kind: m.Kind, Message: m.Message}
		default:
			// Tolerate anything else; the session outlives protocol growth.
		}
	}
}

// Forwards local input lines as console input until the reader ends, then
// requests a detach.
func (c *Client) forwardInput(input io.Reader) {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		data := append(scanner.Bytes(), '\n')
		if err := protocol.Write(c.conn, protocol.ConsoleInput{Data: data}); err != nil {
			return
		}
	}
	protocol.Write(c.conn, protocol.DetachRequest{})
}

// Writes one console line to the appropriate local stream.
func renderLine(opts AttachOptions, stream protocol.Stream, data []byte) {
	w := opts.Output
	if stream == protocol.Stderr {
		w = opts.ErrOutput
	}
	fmt.Fprintf(w, "%s\n", data)
}
