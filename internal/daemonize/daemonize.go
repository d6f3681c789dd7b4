// Package daemonize detaches the daemon process from the controlling
// terminal and tracks its identity through the PID file.
//
// Go cannot fork(), so backgrounding works by re-executing the current
// binary with the foreground `run` subcommand in a new session: the child
// gets no stdin, its stdout and stderr are appended to the daemon log
// file, and the parent releases it and returns immediately.
package daemonize

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hearthlab/hearthd/internal/paths"
)

// How long Spawn waits for the daemon's control socket to appear before
// giving up on confirmation.
const socketWaitTimeout = 5 * time.Second

// Re-executes the current binary with the given arguments as a detached
// background process, logging to logPath. Returns the daemon's PID.
func Spawn(args []string, logPath string) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("locate executable: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(logPath), paths.DefaultDirMode); err != nil {
		return 0, fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, paths.DefaultFileMode)
	if err != nil {
		return 0, fmt.Errorf("open daemon log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(executable, args...)
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start daemon: %w", err)
	}

	pid := cmd.Process.Pid
	cmd.Process.Release()
	return pid, nil
}

// Polls until the socket exists or the wait times out. Returns false when
// the daemon never came up, or came up and died (its PID went stale).
func AwaitSocket(socketPath string, pid int) bool {
	deadline := time.Now().Add(socketWaitTimeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(socketPath); err == nil {
			return true
		}
		if !Alive(pid) {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

// Reads the PID file. Returns 0 when the file is missing or unparseable.
func ReadPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// Whether a process with the given PID exists. Signal 0 performs the
// existence check without delivering anything; EPERM still means alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

// Removes leftover runtime files from a daemon that died without cleanup.
func RemoveStale(socketPath, pidFilePath string) {
	os.Remove(socketPath)
	os.Remove(pidFilePath)
}
