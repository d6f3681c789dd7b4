package supervisor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hearthlab/hearthd/internal/protocol"
)

// Collects output lines and exit events from supervisor callbacks.
type recorder struct {
	mu      sync.Mutex
	lines   []string
	streams []protocol.Stream
	exits   []int
	crashed []bool
}

func (r *recorder) onLine(stream protocol.Stream, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, string(data))
	r.streams = append(r.streams, stream)
}

func (r *recorder) onExit(code int, crashed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exits = append(r.exits, code)
	r.crashed = append(r.crashed, crashed)
}

func (r *recorder) snapshot() ([]string, []int, []bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...),
		append([]int(nil), r.exits...),
		append([]bool(nil), r.crashed...)
}

// Polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// A shell loop that echoes lines back and exits on "stop", standing in for
// a game server console.
const echoServer = `while read line; do
	if [ "$line" = stop ]; then echo "stopping"; exit 0; fi
	echo "got: $line"
done`

func newEchoSupervisor(rec *recorder) *Supervisor {
	return New(Config{
		Command:     "/bin/sh",
		Args:        []string{"-c", echoServer},
		GracePeriod: 5 * time.Second,
	}, rec.onLine, rec.onExit)
}

func TestStartSpawnError(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing executable", Config{Command: "/no/such/binary"}},
		{"invalid working directory", Config{Command: "/bin/sh", Args: []string{"-c", "true"}, Dir: "/no/such/dir"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.cfg, nil, nil)
			err := s.Start()
			if !errors.Is(err, ErrSpawn) {
				t.Fatalf("Start error = %v, want ErrSpawn", err)
			}
			if got := s.Status().Status; got != protocol.StatusStopped {
				t.Errorf("status after failed start = %v, want stopped", got)
			}
		})
	}
}

func TestStartWhileRunningFails(t *testing.T) {
	rec := &recorder{}
	s := newEchoSupervisor(rec)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Kill()

	if err := s.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start error = %v, want ErrAlreadyRunning", err)
	}

	// The original child must be untouched.
	if got := s.Status().Status; got != protocol.StatusRunning {
		t.Errorf("status = %v, want running", got)
	}
}

func TestInputAndOutputCapture(t *testing.T) {
	rec := &recorder{}
	s := newEchoSupervisor(rec)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Kill()

	if got := s.Status(); got.Status != protocol.StatusRunning || got.PID <= 0 {
		t.Fatalf("state = %+v, want running with a PID", got)
	}

	if err := s.SendCommand("list"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if err := s.WriteInput([]byte("raw\n")); err != nil {
		t.Fatalf("WriteInput: %v", err)
	}

	waitFor(t, "echoed output", func() bool {
		lines, _, _ := rec.snapshot()
		return len(lines) >= 2
	})

	lines, _, _ := rec.snapshot()
	if lines[0] != "got: list" || lines[1] != "got: raw" {
		t.Errorf("captured lines = %q, want echo of both inputs in order", lines)
	}
}

func TestGracefulStop(t *testing.T) {
	rec := &recorder{}
	s := newEchoSupervisor(rec)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := s.Stop(0); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	state := s.Status()
	if state.Status != protocol.StatusStopped {
		t.Errorf("status = %v, want stopped", state.Status)
	}
	if state.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", state.ExitCode)
	}

	waitFor(t, "exit callback", func() bool {
		_, exits, _ := rec.snapshot()
		return len(exits) == 1
	})
	_, _, crashed := rec.snapshot()
	if crashed[0] {
		t.Error("clean stop reported as crash")
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	rec := &recorder{}
	// A child that ignores the stop command entirely.
	s := New(Config{
		Command:     "/bin/sh",
		Args:        []string{"-c", "trap '' TERM; while true; do sleep 1; done"},
		GracePeriod: 100 * time.Millisecond,
	}, rec.onLine, rec.onExit)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	start := time.Now()
	if err := s.Stop(0); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Stop took %v, escalation did not bound the wait", elapsed)
	}

	if got := s.Status().Status; got != protocol.StatusCrashed {
		t.Errorf("status after forced kill = %v, want crashed", got)
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	s := New(Config{Command: "/bin/sh"}, nil, nil)
	if err := s.Stop(time.Second); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Stop error = %v, want ErrNotRunning", err)
	}
	if err := s.Kill(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Kill error = %v, want ErrNotRunning", err)
	}
	if err := s.WriteInput([]byte("x\n")); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("WriteInput error = %v, want ErrNotRunning", err)
	}
}

func TestCrashDetection(t *testing.T) {
	rec := &recorder{}
	s := New(Config{
		Command: "/bin/sh",
		Args:    []string{"-c", "echo dying >&2; exit 3"},
	}, rec.onLine, rec.onExit)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "exit callback", func() bool {
		_, exits, _ := rec.snapshot()
		return len(exits) == 1
	})

	lines, exits, crashed := rec.snapshot()
	if exits[0] != 3 {
		t.Errorf("exit code = %d, want 3", exits[0])
	}
	if !crashed[0] {
		t.Error("non-zero exit not reported as crash")
	}
	if len(lines) != 1 || lines[0] != "dying" {
		t.Errorf("stderr capture = %q, want [dying]", lines)
	}
	if got := s.Status().Status; got != protocol.StatusCrashed {
		t.Errorf("status = %v, want crashed", got)
	}
}

func TestOverlongLineCapturedInChunks(t *testing.T) {
	rec := &recorder{}
	// A single line far larger than the capture buffer, then a normal
	// line, then a clean exit. Capture must drain the whole thing and
	// still see the exit.
	const longLineLength = 2 * 1024 * 1024
	s := New(Config{
		Command: "/bin/sh",
		Args:    []string{"-c", `head -c 2097152 /dev/zero | tr '\0' x; echo; echo "after the long line"`},
	}, rec.onLine, rec.onExit)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "exit callback", func() bool {
		_, exits, _ := rec.snapshot()
		return len(exits) == 1
	})

	lines, _, crashed := rec.snapshot()
	if crashed[0] {
		t.Error("clean exit reported as crash")
	}
	if len(lines) < 2 {
		t.Fatalf("captured %d lines, want the long line's chunks plus the trailing line", len(lines))
	}
	if last := lines[len(lines)-1]; last != "after the long line" {
		t.Fatalf("last captured line = %q, want the line after the long one", last)
	}

	var total int
	for _, line := range lines[:len(lines)-1] {
		total += len(line)
	}
	if total != longLineLength {
		t.Errorf("captured %d bytes of the long line, want %d", total, longLineLength)
	}
}

func TestRestartAfterExit(t *testing.T) {
	rec := &recorder{}
	s := newEchoSupervisor(rec)

	if err := s.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	firstPID := s.Status().PID
	if err := s.Stop(0); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	defer s.Kill()

	state := s.Status()
	if state.Status != protocol.StatusRunning {
		t.Fatalf("status = %v, want running", state.Status)
	}
	if state.PID == firstPID {
		t.Errorf("restart reused PID %d", firstPID)
	}
}
