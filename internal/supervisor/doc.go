// Package supervisor owns the game server child process.
//
// It spawns the server with piped standard streams, forwards console input
// to its stdin, captures its stdout and stderr line by line, and detects
// exit. Captured lines and exit events are delivered through callbacks set
// at construction; the supervisor knows nothing about sessions or sockets.
//
// The graceful stop path writes a configurable console command (for
// Minecraft-family servers, "stop") to the child's stdin and waits out a
// grace period before escalating to SIGKILL. There is no automatic restart:
// a dead child stays dead until Start is called again.
package supervisor
