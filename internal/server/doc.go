// Package server implements the hearthd daemon.
//
// The daemon listens on a Unix domain socket for framed protocol messages
// from the hearthd CLI. A connection may issue any number of one-shot
// requests (status, send, log, restart, shutdown) and may attach, turning
// itself into a live console session that receives the ring buffer replay
// followed by every line the game server prints, in production order.
//
// The server owns exactly one supervised child. Child output reaches
// clients only through the session registry's broadcast path, child exit
// is announced as a status broadcast, and a Shutdown message (or a
// terminating signal in the run command) stops the child gracefully
// before the socket is torn down. A child that exits on its own leaves
// the daemon running so its fate stays queryable and it can be restarted.
package server
