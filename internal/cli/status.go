package cli

import (
	"context"
	"fmt"

	"github.com/hearthlab/hearthd/internal/client"
	"github.com/hearthlab/hearthd/internal/protocol"
)

// Represents the 'hearthd status' command.
type StatusCmd struct{}

// Executes the status command.
func (c *StatusCmd) Run(ctx context.Context) error {
	conn, err := client.Dial(socketPath())
	if err != nil {
		return err
	}
	defer conn.Close()

	status, err := conn.Status()
	if err != nil {
		return err
	}

	switch status.Status {
	case protocol.StatusRunning:
		fmt.Printf("server running (pid %d, up %s)\n", status.PID, status.Uptime)
	case protocol.StatusCrashed:
		fmt.Printf("server crashed (exit code %d)\n", status.ExitCode)
	default:
		fmt.Printf("server %s\n", status.Status)
	}
	return nil
}
