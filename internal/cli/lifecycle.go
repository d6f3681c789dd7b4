package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/hearthlab/hearthd/internal/client"
	"github.com/hearthlab/hearthd/internal/daemonize"
	"github.com/hearthlab/hearthd/internal/paths"
)

// How long stop and kill wait for the daemon process to disappear after
// the shutdown round trip is acknowledged.
const shutdownWait = 60 * time.Second

// Represents the 'hearthd stop' command.
type StopCmd struct{}

// Executes the stop command.
//
// Asks the daemon to stop the game server gracefully and exit, then waits
// for its PID to disappear.
func (c *StopCmd) Run(ctx context.Context) error {
	if err := shutdown(false); err != nil {
		return err
	}
	fmt.Println("server stopped")
	return nil
}

// Represents the 'hearthd kill' command.
type KillCmd struct{}

// Executes the kill command, the forced variant of stop for unresponsive
// servers.
func (c *KillCmd) Run(ctx context.Context) error {
	if err := shutdown(true); err != nil {
		return err
	}
	fmt.Println("server killed")
	return nil
}

// Represents the 'hearthd restart' command.
type RestartCmd struct{}

// Executes the restart command.
//
// The daemon stays up; it stops the game server and relaunches it with
// the same configuration it was started with.
func (c *RestartCmd) Run(ctx context.Context) error {
	conn, err := client.Dial(socketPath())
	if err != nil {
		return err
	}
	defer conn.Close()

	status, err := conn.Restart()
	if err != nil {
		return err
	}

	fmt.Printf("server restarted (pid %d)\n", status.PID)
	return nil
}

// Performs one shutdown round trip and waits for the daemon to exit.
func shutdown(force bool) error {
	conn, err := client.Dial(socketPath())
	if err != nil {
		return err
	}
	defer conn.Close()

	pid := daemonize.ReadPID(paths.PIDFile())

	if err := conn.Shutdown(force); err != nil {
		return err
	}

	if pid != 0 && !awaitExit(pid) {
		return fmt.Errorf("daemon (pid %d) did not exit within %s", pid, shutdownWait)
	}
	return nil
}

// Polls until the process disappears or the wait times out.
func awaitExit(pid int) bool {
	deadline := time.Now().Add(shutdownWait)
	for time.Now().Before(deadline) {
		if !daemonize.Alive(pid) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
