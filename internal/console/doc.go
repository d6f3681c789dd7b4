// Package console retains recent game server output for replay.
//
// The daemon appends every captured console line here before broadcasting
// it, so a client attaching mid-session receives the same scrollback an
// always-connected client would have seen.
package console
