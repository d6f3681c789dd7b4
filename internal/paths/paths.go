package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	daemonName = "hearthd"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the directory for runtime files (sockets, PIDs).
//
//	Linux:   $XDG_RUNTIME_DIR/hearthd or /run/user/<uid>/hearthd
//	macOS:   ~/Library/Caches/hearthd/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, daemonName)
	}
	return filepath.Join(xdg.CacheHome, daemonName, "run")
}

// Default path to the Unix domain socket for CLI-to-daemon communication.
//
//	Linux:   $XDG_RUNTIME_DIR/hearthd/hearthd.sock
//	macOS:   ~/Library/Caches/hearthd/run/hearthd.sock
func Socket() string {
	return filepath.Join(Runtime(), "hearthd.sock")
}

// Default path to the PID file.
//
//	Linux:   $XDG_RUNTIME_DIR/hearthd/hearthd.pid
//	macOS:   ~/Library/Caches/hearthd/run/hearthd.pid
func PIDFile() string {
	return filepath.Join(Runtime(), "hearthd.pid")
}

// Default path to the daemon log file.
//
// The daemon process has no terminal; the start command redirects the
// daemon's standard streams here before the server loop begins.
func LogFile() string {
	return filepath.Join(xdg.StateHome, daemonName, "hearthd.log")
}
