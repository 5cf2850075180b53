package core

import "errors"

// DefaultMaxConnections is the client ceiling when Options leaves it 0.
const DefaultMaxConnections = 65536

const (
	minPort = 1024
	maxPort = 65535

	busyMessage = "Server busy!"
)

// Error definitions
var (
	ErrInvalidPort   = errors.New("port out of range 1024-65535")
	ErrServerClosed  = errors.New("server closed")
	ErrNotListening  = errors.New("server is not listening")
	ErrAlreadyServed = errors.New("server already serving")
)
