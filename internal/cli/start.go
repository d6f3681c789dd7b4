package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/hearthlab/hearthd/internal/daemonize"
	"github.com/hearthlab/hearthd/internal/paths"
	"github.com/hearthlab/hearthd/internal/server"
	"github.com/hearthlab/hearthd/internal/supervisor"
)

// A daemon with a live PID file already exists.
var errAlreadyRunning = errors.New("daemon already running")

// Aikar's recommended JVM flags for Minecraft-family servers, used when
// no explicit flags are given.
var defaultJVMFlags = []string{
	"-XX:+UseG1GC",
	"-XX:+ParallelRefProcEnabled",
	"-XX:MaxGCPauseMillis=200",
	"-XX:+UnlockExperimentalVMOptions",
	"-XX:+DisableExplicitGC",
	"-XX:+AlwaysPreTouch",
	"-XX:G1NewSizePercent=30",
	"-XX:G1MaxNewSizePercent=40",
	"-XX:G1HeapRegionSize=8M",
	"-XX:G1ReservePercent=20",
	"-XX:InitiatingHeapOccupancyPercent=15",
}

// Launch flags shared by the start and run commands.
type serverFlags struct {
	Jar         string        `required:"" type:"path" help:"Path to the server jar."`
	Java        string        `default:"java" help:"Java executable used to launch the server."`
	JVMFlag     []string      `help:"JVM flag, repeatable. Defaults to Aikar's recommended flags."`
	Dir         string        `type:"path" help:"Server working directory. Defaults to the jar's directory."`
	StopCommand string        `default:"stop" help:"Console command used for graceful stop."`
	GracePeriod time.Duration `default:"30s" help:"Time allowed for a graceful stop before the server is killed."`
	RingLines   int           `default:"1000" help:"Console lines retained for attach replay."`
	ServerArgs  []string      `arg:"" optional:"" help:"Arguments passed through to the server (e.g. nogui)."`
}

// Builds the supervisor launch configuration from the flags.
func (f *serverFlags) supervisorConfig() supervisor.Config {
	jvmFlags := f.JVMFlag
	if len(jvmFlags) == 0 {
		jvmFlags = defaultJVMFlags
	}

	args := append([]string{}, jvmFlags...)
	args = append(args, "-jar", f.Jar)
	args = append(args, f.ServerArgs...)

	dir := f.Dir
	if dir == "" {
		dir = filepath.Dir(f.Jar)
	}

	return supervisor.Config{
		Command:     f.Java,
		Args:        args,
		Dir:         dir,
		StopCommand: f.StopCommand,
		GracePeriod: f.GracePeriod,
	}
}

// Rebuilds the command line for the detached run subcommand.
func (f *serverFlags) runArgs(socket string) []string {
	args := []string{"run", "--socket", socket,
		"--jar", f.Jar,
		"--java", f.Java,
		"--stop-command", f.StopCommand,
		"--grace-period", f.GracePeriod.String(),
		"--ring-lines", fmt.Sprint(f.RingLines),
	}
	if f.Dir != "" {
		args = append(args, "--dir", f.Dir)
	}
	for _, flag := range f.JVMFlag {
		args = append(args, "--jvm-flag", flag)
	}
	args = append(args, f.ServerArgs...)
	return args
}

// Represents the 'hearthd start' command.
type StartCmd struct {
	serverFlags
}

// Executes the start command.
//
// Refuses to spawn when the PID file points at a live daemon; otherwise
// cleans stale runtime files, re-executes the binary with the run
// subcommand detached from this terminal, and waits for the control
// socket to appear.
func (c *StartCmd) Run(ctx context.Context) error {
	socket := socketPath()
	pidFile := paths.PIDFile()

	if pid := daemonize.ReadPID(pidFile); pid != 0 {
		if daemonize.Alive(pid) {
			return fmt.Errorf("%w (pid %d), use stop or restart", errAlreadyRunning, pid)
		}
		slog.Debug("cleaning stale runtime files", "pid", pid)
		daemonize.RemoveStale(socket, pidFile)
	}

	pid, err := daemonize.Spawn(c.runArgs(socket), paths.LogFile())
	if err != nil {
		return err
	}

	if !daemonize.AwaitSocket(socket, pid) {
		return fmt.Errorf("daemon did not come up, check %s", paths.LogFile())
	}

	fmt.Printf("daemon started (pid %d)\n", daemonize.ReadPID(pidFile))
	return nil
}

// Represents the 'hearthd run' command, the foreground daemon entry point
// that start re-executes in the background.
type RunCmd struct {
	serverFlags
}

// Executes the run command.
//
// Starts the control socket server and the game server, then blocks until
// a Shutdown message arrives or the context is cancelled (SIGINT or
// SIGTERM).
func (c *RunCmd) Run(ctx context.Context) error {
	srv := server.New(server.Config{
		SocketPath:   socketPath(),
		RingCapacity: c.RingLines,
		Supervisor:   c.supervisorConfig(),
	})

	if err := srv.Start(); err != nil {
		return err
	}

	slog.Info("hearthd is running")

	stopped := make(chan struct{})
	go func() {
		srv.Wait()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down on signal")
		return srv.Stop()
	case <-stopped:
		return nil
	}
}
