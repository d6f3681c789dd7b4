package protocol

// Identifies one of the two child output streams.
type Stream uint8

const (
	Stdout Stream = iota
	Stderr
)

// Returns the conventional stream name.
func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// Lifecycle state of the supervised game server.
type Status uint8

const (
	StatusStarting Status = iota
	StatusRunning
	StatusStopping
	StatusStopped
	StatusCrashed
)

// Returns a human-readable state name.
func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	case StatusStopped:
		return "stopped"
	case StatusCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// Classifies an [ErrorReply] so clients can map failures to exit codes
// without parsing message text.
type ErrorKind uint8

const (
	ErrKindInternal ErrorKind = iota
	ErrKindProtocol
	ErrKindNotRunning
	ErrKindAlreadyRunning
	ErrKindSpawn
)

// Returns a short identifier for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrKindProtocol:
		return "protocol"
	case ErrKindNotRunning:
		return "not-running"
	case ErrKindAlreadyRunning:
		return "already-running"
	case ErrKindSpawn:
		return "spawn"
	default:
		return "internal"
	}
}

// One retained line of child output, as stored in the console ring buffer
// and replayed to attaching clients.
type ConsoleEntry struct {
	Seq    uint64 `cbor:"seq"`
	Stream Stream `cbor:"stream"`
	Data   []byte `cbor:"data"`
}

// A single protocol message. The set of implementations is closed; the
// daemon dispatches with an exhaustive type switch.
type Message interface {
	tag() byte
}

// A one-shot console command. The daemon appends a newline and writes the
// text to the game server's stdin.
type Command struct {
	Text string `cbor:"text"`
}

// Raw bytes forwarded verbatim to the game server's stdin by an attached
// session.
type ConsoleInput struct {
	Data []byte `cbor:"data"`
}

// One line of child output, fanned out to every attached session in
// production order.
type ConsoleOutput struct {
	Seq    uint64 `cbor:"seq"`
	Stream Stream `cbor:"stream"`
	Data   []byte `cbor:"data"`
}

// Switches the issuing session into attached mode.
type AttachRequest struct{}

// Acknowledges an [AttachRequest], carrying the ring buffer snapshot that
// precedes live output.
type AttachAck struct {
	Replay []ConsoleEntry `cbor:"replay"`
}

// Returns an attached session to one-shot mode.
type DetachRequest struct{}

// Asks for the daemon's view of the game server.
type StatusQuery struct{}

// Reports the game server's lifecycle state. Sent in reply to
// [StatusQuery] and broadcast to attached sessions when the child exits.
type StatusReply struct {
	Status   Status `cbor:"status"`
	PID      int    `cbor:"pid,omitempty"`
	ExitCode int    `cbor:"exit_code,omitempty"`
	Uptime   string `cbor:"uptime,omitempty"`
	Version  string `cbor:"version,omitempty"`
}

// Stops the game server and shuts the daemon down. Force skips the
// graceful stop command and kills the child immediately.
type Shutdown struct {
	Force bool `cbor:"force,omitempty"`
}

// Stops the game server and starts it again with the same launch
// configuration. The reply is a [StatusReply] for the fresh child.
type RestartRequest struct{}

// Asks for the most recent console lines without attaching.
type LogQuery struct {
	Lines int `cbor:"lines"`
}

// Carries the console lines requested by a [LogQuery].
type LogReply struct {
	Entries []ConsoleEntry `cbor:"entries"`
}

// Generic success acknowledgement for one-shot operations.
type Ok struct{}

// Reports a failed operation to the requesting session.
type ErrorReply struct {
	Kind    ErrorKind `cbor:"kind"`
	Message string    `cbor:"message"`
}

func (Command) tag() byte        { return tagCommand }
func (ConsoleInput) tag() byte   { return tagConsoleInput }
func (ConsoleOutput) tag() byte  { return tagConsoleOutput }
func (AttachRequest) tag() byte  { return tagAttachRequest }
func (AttachAck) tag() byte      { return tagAttachAck }
func (DetachRequest) tag() byte  { return tagDetachRequest }
func (StatusQuery) tag() byte    { return tagStatusQuery }
func (StatusReply) tag() byte    { return tagStatusReply }
func (Shutdown) tag() byte       { return tagShutdown }
func (RestartRequest) tag() byte { return tagRestartRequest }
func (LogQuery) tag() byte       { return tagLogQuery }
func (LogReply) tag() byte       { return tagLogReply }
func (Ok) tag() byte             { return tagOk }
func (ErrorReply) tag() byte     { return tagErrorReply }
