// Package client implements the CLI side of the control protocol.
//
// A client is short-lived: it connects to the daemon socket, performs one
// round trip (status, send, log, restart, shutdown) or enters an attached
// console loop, and disconnects. Failure to connect at all is reported as
// [ErrDaemonNotRunning]; failures the daemon reports come back as a
// [RemoteError] carrying the wire error kind so the CLI can pick an exit
// code without parsing text.
package client
