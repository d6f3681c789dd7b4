// Package protocol defines the wire format spoken between the hearthd
// daemon and its clients over the control socket.
//
// Each frame is a 4-byte big-endian payload length followed by the payload.
// The payload starts with a one-byte protocol version and a one-byte message
// tag; the remainder is a CBOR-encoded message body. The message set is
// closed: every tag maps to exactly one Go type, and the daemon's dispatch
// switches over all of them.
//
// Encoding and decoding are pure. [Decoder] consumes a byte stream
// incrementally and retains any partial frame across calls, so callers can
// feed it whatever a socket read returns. [Reader] and [Write] adapt the
// codec to an [io.Reader] / [io.Writer] for convenience.
package protocol
