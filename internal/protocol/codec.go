package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

const (

	// Protocol version carried as the first payload byte of every frame.
	// There is no version negotiation: a mismatch fails immediately.
	Version byte = 0x01

	// Size of the frame length prefix.
	headerLength = 4

	// Maximum allowed payload size. Bounds memory use against a hostile
	// or buggy peer; 4 MiB comfortably covers a full ring buffer replay.
	MaxPayload = 4 * 1024 * 1024
)

// Message tags. One per message kind; the set is closed.
const (
	tagCommand        byte = 0x01
	tagConsoleInput   byte = 0x02
	tagConsoleOutput  byte = 0x03
	tagAttachRequest  byte = 0x04
	tagAttachAck      byte = 0x05
	tagDetachRequest  byte = 0x06
	tagStatusQuery    byte = 0x07
	tagStatusReply    byte = 0x08
	tagShutdown       byte = 0x09
	tagRestartRequest byte = 0x0a
	tagLogQuery       byte = 0x0b
	tagLogReply       byte = 0x0c
	tagOk             byte = 0x0d
	tagErrorReply     byte = 0x0e
)

var (

	// The buffered bytes do not yet hold a complete frame. Not a failure;
	// the caller should supply more input.
	ErrIncomplete = errors.New("incomplete frame")

	// A frame declared a payload length above [MaxPayload].
	ErrFrameTooLarge = errors.New("frame too large")

	// The payload's leading version byte did not match [Version].
	ErrVersionMismatch = errors.New("protocol version mismatch")

	// The payload carried an unknown tag or an undecodable body.
	ErrMalformed = errors.New("malformed frame")
)

// CBOR encoder configured with Core Deterministic Encoding, so the same
// message always produces identical bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}
}

// Encodes a message into a single wire frame.
func Encode(msg Message) ([]byte, error) {
	body, err := encMode.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	payloadLength := 2 + len(body)
	if payloadLength > MaxPayload {
		return nil, ErrFrameTooLarge
	}

	frame := make([]byte, headerLength+payloadLength)
	binary.BigEndian.PutUint32(frame[:headerLength], uint32(payloadLength))
	frame[headerLength] = Version
	frame[headerLength+1] = msg.tag()
	copy(frame[headerLength+2:], body)
	return frame, nil
}

// Writes a message to w as one frame.
func Write(w io.Writer, msg Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Decodes a byte stream incrementally.
//
// Feed input with [Decoder.Write] (any chunking is fine, down to one byte
// at a time) and drain completed messages with [Decoder.Next]. Undecoded
// remainder is retained between calls. The zero value is ready to use.
type Decoder struct {
	buf []byte
}

// Appends fresh input to the decode buffer. Never fails; implements
// [io.Writer] so a socket read loop can copy into it directly.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Returns the next complete message, or [ErrIncomplete] when the buffer
// holds only a partial frame.
//
// The length prefix is validated before the rest of the frame arrives, so
// an oversized declaration fails fast without buffering the payload.
// Decode errors other than [ErrIncomplete] leave the buffer unchanged;
// the connection should be closed rather than resynchronized.
func (d *Decoder) Next() (Message, error) {
	if len(d.buf) < headerLength {
		return nil, ErrIncomplete
	}

	payloadLength := int(binary.BigEndian.Uint32(d.buf[:headerLength]))
	if payloadLength > MaxPayload {
		return nil, ErrFrameTooLarge
	}
	if len(d.buf) < headerLength+payloadLength {
		return nil, ErrIncomplete
	}

	payload := d.buf[headerLength : headerLength+payloadLength]
	msg, err := decodePayload(payload)
	if err != nil {
		return nil, err
	}

	// Drop the consumed frame, keeping any bytes of the next one.
	d.buf = append(d.buf[:0], d.buf[headerLength+payloadLength:]...)
	return msg, nil
}

// Decodes one frame payload: version byte, tag byte, CBOR body.
func decodePayload(payload []byte) (Message, error) {
	if len(payload) < 2 {
		return nil, ErrMalformed
	}
	if payload[0] != Version {
		return nil, fmt.Errorf("%w: got 0x%02x, want 0x%02x", ErrVersionMismatch, payload[0], Version)
	}

	tag := payload[1]
	body := payload[2:]

	switch tag {
	case tagCommand:
		return decodeBody[Command](body)
	case tagConsoleInput:
		return decodeBody[ConsoleInput](body)
	case tagConsoleOutput:
		return decodeBody[ConsoleOutput](body)
	case tagAttachRequest:
		return decodeBody[AttachRequest](body)
	case tagAttachAck:
		return decodeBody[AttachAck](body)
	case tagDetachRequest:
		return decodeBody[DetachRequest](body)
	case tagStatusQuery:
		return decodeBody[StatusQuery](body)
	case tagStatusReply:
		return decodeBody[StatusReply](body)
	case tagShutdown:
		return decodeBody[Shutdown](body)
	case tagRestartRequest:
		return decodeBody[RestartRequest](body)
	case tagLogQuery:
		return decodeBody[LogQuery](body)
	case tagLogReply:
		return decodeBody[LogReply](body)
	case tagOk:
		return decodeBody[Ok](body)
	case tagErrorReply:
		return decodeBody[ErrorReply](body)
	default:
		return nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrMalformed, tag)
	}
}

// Unmarshals a CBOR body into a concrete message type.
func decodeBody[M Message](body []byte) (Message, error) {
	var msg M
	if err := cbor.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return msg, nil
}

// Reads framed messages from an underlying [io.Reader].
//
// Wraps a [Decoder] with a read loop so blocking-socket callers can pull
// one message at a time.
type Reader struct {
	r   io.Reader
	dec Decoder
}

// Creates a message reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Returns the next message, blocking on the underlying reader as needed.
// Returns [io.EOF] when the stream ends cleanly between frames, and
// [io.ErrUnexpectedEOF] when it ends inside one.
func (r *Reader) Next() (Message, error) {
	buf := make([]byte, 4096)
	for {
		msg, err := r.dec.Next()
		if err == nil {
			return msg, nil
		}
		if !errors.Is(err, ErrIncomplete) {
			return nil, err
		}

		n, err := r.r.Read(buf)
		if n > 0 {
			r.dec.Write(buf[:n])
			continue
		}
		if err == io.EOF && len(r.dec.buf) > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		if err != nil {
			return nil, err
		}
	}
}
