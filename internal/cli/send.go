package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/hearthlab/hearthd/internal/client"
)

// Represents the 'hearthd send' command.
type SendCmd struct {
	Tail    bool   `short:"t" help:"Tail the console after sending, useful for viewing the response. Press Ctrl-C to quit."`
	Command string `arg:"" help:"The console command to send. Quote it so it arrives as one argument; the text is passed to the server verbatim."`
}

// Executes the send command.
func (c *SendCmd) Run(ctx context.Context) error {
	conn, err := client.Dial(socketPath())
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Send(c.Command); err != nil {
		return err
	}

	if !c.Tail {
		fmt.Println("command sent")
		return nil
	}
	return conn.Attach(client.AttachOptions{
		Output:    os.Stdout,
		ErrOutput: os.Stderr,
	})
}
