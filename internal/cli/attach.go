package cli

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/hearthlab/hearthd/internal/client"
)

// Represents the 'hearthd attach' command.
type AttachCmd struct{}

// Executes the attach command.
//
// Replays recent console output, then streams the live console. Typed
// lines are forwarded to the server as console input; Ctrl-D detaches
// without stopping the server.
func (c *AttachCmd) Run(ctx context.Context) error {
	conn, err := client.Dial(socketPath())
	if err != nil {
		return err
	}
	defer conn.Close()

	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "[hearthd] attached, Ctrl-D to detach")
	}

	return conn.Attach(client.AttachOptions{
		Input:     os.Stdin,
		Output:    os.Stdout,
		ErrOutput: os.Stderr,
	})
}
