package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/hearthlab/hearthd/internal/protocol"
)

const (

	// Console command written to the child's stdin for a graceful stop
	// when the configuration does not override it.
	DefaultStopCommand = "stop"

	// Time allowed for a graceful stop before escalating to SIGKILL.
	DefaultGracePeriod = 30 * time.Second

	// Read buffer for console capture. Lines longer than this are
	// delivered in buffer-sized chunks rather than dropped.
	captureBufferSize = 64 * 1024
)

// Holds the launch configuration for the game server child process.
type Config struct {
	Command     string        // Executable to run (e.g. "java").
	Args        []string      // Arguments, including the -jar invocation.
	Dir         string        // Working directory for the child.
	StopCommand string        // Console command for graceful stop. Empty uses [DefaultStopCommand].
	GracePeriod time.Duration // Grace period before forced kill. Zero uses [DefaultGracePeriod].
}

// Receives one captured line of child output. The data slice is only valid
// for the duration of the call.
type LineFunc func(stream protocol.Stream, data []byte)

// Receives the child's exit code once per child lifetime. crashed is true
// for a non-zero exit or termination by signal.
type ExitFunc func(code int, crashed bool)

// Point-in-time view of the supervised process.
type State struct {
	Status    protocol.Status
	PID       int
	ExitCode  int
	StartedAt time.Time
}

// Manages the game server child process end to end: spawn, stdin
// forwarding, output capture, exit detection, stop and kill.
//
// All state transitions are serialized by an internal mutex; stdin writes
// happen outside it so pipe backpressure blocks only the writing session.
type Supervisor struct {
	cfg    Config
	onLine LineFunc
	onExit ExitFunc

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	status    protocol.Status
	pid       int
	exitCode  int
	startedAt time.Time
	exited    chan struct{} // closed by reap; recreated on each Start
}

// Creates a supervisor for the given launch configuration. No process is
// spawned until [Supervisor.Start].
func New(cfg Config, onLine LineFunc, onExit ExitFunc) *Supervisor {
	if onLine == nil {
		onLine = func(protocol.Stream, []byte) {}
	}
	if onExit == nil {
		onExit = func(int, bool) {}
	}
	return &Supervisor{
		cfg:    cfg,
		onLine: onLine,
		onExit: onExit,
		status: protocol.StatusStopped,
	}
}

// Spawns the game server and begins capturing its output.
//
// Fails with [ErrAlreadyRunning] if a child is live, and [ErrSpawn]
// (wrapping the underlying cause: missing executable, permissions, bad
// working directory) if the launch itself fails. May be called again after
// the previous child has exited.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case protocol.StatusStarting, protocol.StatusRunning, protocol.StatusStopping:
		return ErrAlreadyRunning
	}
	s.status = protocol.StatusStarting

	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	cmd.Dir = s.cfg.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.status = protocol.StatusStopped
		return fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.status = protocol.StatusStopped
		return fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.status = protocol.StatusStopped
		return fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		s.status = protocol.StatusStopped
		return fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	exited := make(chan struct{})
	s.cmd = cmd
	s.stdin = stdin
	s.pid = cmd.Process.Pid
	s.exitCode = 0
	s.startedAt = time.Now()
	s.status = protocol.StatusRunning
	s.exited = exited

	slog.Info("server started", "pid", s.pid, "command", s.cfg.Command)

	// Wait must not run before both streams are drained: cmd.Wait closes
	// the pipes, which would race away trailing output.
	var capturing sync.WaitGroup
	capturing.Add(2)
	go func() {
		defer capturing.Done()
		s.capture(stdout, protocol.Stdout)
	}()
	go func() {
		defer capturing.Done()
		s.capture(stderr, protocol.Stderr)
	}()
	go s.reap(cmd, &capturing, exited)

	return nil
}

// Writes console input to the child's stdin.
//
// Fails with [ErrNotRunning] when no child is active. A full pipe blocks
// the caller rather than dropping input.
func (s *Supervisor) WriteInput(data []byte) error {
	s.mu.Lock()
	if s.status != protocol.StatusRunning && s.status != protocol.StatusStopping {
		s.mu.Unlock()
		return ErrNotRunning
	}
	stdin := s.stdin
	s.mu.Unlock()

	if _, err := stdin.Write(data); err != nil {
		// The child went away between the state check and the write.
		return fmt.Errorf("%w: %w", ErrNotRunning, err)
	}
	return nil
}

// Sends a console command to the child, appending the line terminator.
func (s *Supervisor) SendCommand(text string) error {
	return s.WriteInput([]byte(text + "\n"))
}

// Stops the child gracefully, escalating to SIGKILL after the timeout.
//
// Writes the configured stop command to the child's stdin and waits for it
// to exit. A non-positive timeout uses the configured grace period. Fails
// with [ErrNotRunning] when no child is running; a second concurrent Stop
// fails the same way without side effects.
func (s *Supervisor) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.status != protocol.StatusRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.status = protocol.StatusStopping
	stdin := s.stdin
	process := s.cmd.Process
	exited := s.exited
	s.mu.Unlock()

	if timeout <= 0 {
		timeout = s.cfg.GracePeriod
	}
	if timeout <= 0 {
		timeout = DefaultGracePeriod
	}

	stop := s.cfg.StopCommand
	if stop == "" {
		stop = DefaultStopCommand
	}

	slog.Info("stopping server", "command", stop, "grace", timeout)

	// A wedged child may have stopped draining stdin; the write error is
	// irrelevant because the timer below covers that case too.
	stdin.Write([]byte(stop + "\n"))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-exited:
		return nil
	case <-timer.C:
		slog.Warn("server ignored stop command, killing", "pid", process.Pid)
		process.Kill()
		<-exited
		return nil
	}
}

// Kills the child immediately, bypassing the graceful stop. Fails with
// [ErrNotRunning] when no child is active.
func (s *Supervisor) Kill() error {
	s.mu.Lock()
	if s.status != protocol.StatusRunning && s.status != protocol.StatusStopping {
		s.mu.Unlock()
		return ErrNotRunning
	}
	process := s.cmd.Process
	exited := s.exited
	s.mu.Unlock()

	slog.Info("killing server", "pid", process.Pid)
	process.Kill()
	<-exited
	return nil
}

// Returns a snapshot of the supervised process state.
func (s *Supervisor) Status() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Status:    s.status,
		PID:       s.pid,
		ExitCode:  s.exitCode,
		StartedAt: s.startedAt,
	}
}

// Reads one child output stream line by line until end of stream, handing
// each line to the output callback. A line that outgrows the read buffer
// arrives as multiple chunks; capture must keep draining no matter what
// the child prints, or the pipe fills and the child blocks.
func (s *Supervisor) capture(r io.Reader, stream protocol.Stream) {
	reader := bufio.NewReaderSize(r, captureBufferSize)
	for {
		line, err := reader.ReadSlice('\n')
		if len(line) > 0 {
			if line[len(line)-1] == '\n' {
				line = line[:len(line)-1]
				if len(line) > 0 && line[len(line)-1] == '\r' {
					line = line[:len(line)-1]
				}
			}
			s.onLine(stream, line)
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			if err != io.EOF {
				slog.Warn("console capture ended", "stream", stream, "error", err)
			}
			return
		}
	}
}

// Waits for the child to terminate, records the exit code, transitions to
// Stopped or Crashed, and fires the exit callback.
func (s *Supervisor) reap(cmd *exec.Cmd, capturing *sync.WaitGroup, exited chan struct{}) {
	capturing.Wait()
	cmd.Wait()

	code := cmd.ProcessState.ExitCode()
	crashed := !cmd.ProcessState.Success()

	s.mu.Lock()
	s.exitCode = code
	if crashed {
		s.status = protocol.StatusCrashed
	} else {
		s.status = protocol.StatusStopped
	}
	s.cmd = nil
	s.stdin = nil
	s.mu.Unlock()

	slog.Info("server exited", "code", code, "crashed", crashed)

	// The exit callback fires before exited is closed so that anyone
	// blocked in Stop or Kill returns only after the exit has been
	// announced.
	s.onExit(code, crashed)
	close(exited)
}
