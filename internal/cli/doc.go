// Parses flags and dispatches subcommands for hearthd.
//
// The binary is both the daemon and its client: `start` spawns a detached
// daemon running the `run` subcommand, while stop, restart, kill, status,
// send, log, and attach talk to it over the control socket.
//
// Global flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Enable verbose output.
//	-d, --debug     Enable debug output.
//	-s, --socket    Unix socket path.
//
// Flags override build-time defaults set via linker flags. After parsing,
// the global logger is reconfigured to reflect the final level before any
// command runs.
package cli
