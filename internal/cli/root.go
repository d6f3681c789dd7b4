package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/hearthlab/hearthd/internal"
	"github.com/hearthlab/hearthd/internal/client"
	"github.com/hearthlab/hearthd/internal/paths"
	"github.com/hearthlab/hearthd/internal/protocol"
	"github.com/hearthlab/hearthd/internal/server"
)

// Process exit codes. The CLI distinguishes the two failures callers
// script against; everything else is a generic failure.
const (
	ExitFailure          = 1
	ExitDaemonNotRunning = 2
	ExitAlreadyRunning   = 3
)

// Represents the root command for hearthd.
var RootCmd struct {
	Quiet   bool   `short:"q" help:"Suppress informational output."`
	Verbose bool   `short:"v" help:"Enable verbose output."`
	Debug   bool   `short:"d" help:"Enable debug output."`
	Socket  string `short:"s" help:"Override the default Unix socket path." placeholder:"PATH"`

	Start   StartCmd   `cmd:"" help:"Start the game server as a background daemon."`
	Run     RunCmd     `cmd:"" hidden:"" help:"Run the daemon in the foreground (used internally by start)."`
	Stop    StopCmd    `cmd:"" help:"Stop the game server gracefully and shut the daemon down."`
	Restart RestartCmd `cmd:"" help:"Restart the game server without restarting the daemon."`
	Kill    KillCmd    `cmd:"" help:"Kill the game server immediately and shut the daemon down."`
	Status  StatusCmd  `cmd:"" help:"Show the game server status."`
	Send    SendCmd    `cmd:"" help:"Send a one-shot console command to the game server."`
	Log     LogCmd     `cmd:"" help:"Print recent console output."`
	Attach  AttachCmd  `cmd:"" help:"Attach to the live game server console."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("The hearth daemon.\n\nRuns a Java game server in the background and multiplexes its console over a Unix domain socket."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger()

	return kongCtx.Run()
}

// Configures the global logger based on CLI flags.
func configureLogger() {
	debug := RootCmd.Debug || internal.IsDebug()
	quiet := RootCmd.Quiet || internal.IsQuiet()
	verbose := RootCmd.Verbose || internal.IsVerbose()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else if quiet {
		level = slog.LevelWarn
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	})
	slog.SetDefault(slog.New(handler).With("app", internal.Name))
}

// Returns the control socket path, honoring the global override.
func socketPath() string {
	if RootCmd.Socket != "" {
		return RootCmd.Socket
	}
	return paths.Socket()
}

// Maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, client.ErrDaemonNotRunning) {
		return ExitDaemonNotRunning
	}
	if errors.Is(err, server.ErrAlreadyRunning) || errors.Is(err, errAlreadyRunning) {
		return ExitAlreadyRunning
	}

	var remote *client.RemoteError
	if errors.As(err, &remote) && remote.Kind == protocol.ErrKindAlreadyRunning {
		return ExitAlreadyRunning
	}
	return ExitFailure
}
