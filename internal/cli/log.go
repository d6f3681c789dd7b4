package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/hearthlab/hearthd/internal/client"
	"github.com/hearthlab/hearthd/internal/protocol"
)

// Represents the 'hearthd log' command.
type LogCmd struct {
	Lines int  `short:"l" default:"10" help:"The number of recent console lines to print."`
	Tail  bool `short:"t" help:"Keep following the console after printing. Press Ctrl-C to quit."`
}

// Executes the log command.
func (c *LogCmd) Run(ctx context.Context) error {
	conn, err := client.Dial(socketPath())
	if err != nil {
		return err
	}
	defer conn.Close()

	if c.Tail {
		// Attach in read-only mode; the replay serves as the backlog.
		return conn.Attach(client.AttachOptions{
			Output:    os.Stdout,
			ErrOutput: os.Stderr,
		})
	}

	entries, err := conn.Log(c.Lines)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		out := os.Stdout
		if entry.Stream == protocol.Stderr {
			out = os.Stderr
		}
		fmt.Fprintf(out, "%s\n", entry.Data)
	}
	return nil
}
