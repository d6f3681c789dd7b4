package supervisor

import "errors"

var (
	ErrNotRunning     = errors.New("server is not running")
	ErrAlreadyRunning = errors.New("server is already running")
	ErrSpawn          = errors.New("failed to spawn server")
)
