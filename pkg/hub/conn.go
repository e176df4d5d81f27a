package hub

import (
	"context"
)

// EventHandler receives each named event frame arriving on a connection
type EventHandler func(msg *Message)

// Conn represents a live connection to the realtime hub
type Conn interface {
	// ConnectionID returns the id assigned by the hub for this connection
	ConnectionID() string

	// Invoke calls a hub method with the given payload
	Invoke(ctx context.Context, method string, payload any) error

	// Done is closed when the connection is lost or closed
	Done() <-chan struct{}

	// Close closes the connection
	Close() error
}

// DialConfig carries the externally-supplied connection inputs
type DialConfig struct {
	URL         string
	AccessToken string
}

// Dialer establishes a single connection to the hub and wires the handler
// for inbound events before delivery starts. The connection manager owns
// retry policy; a Dialer attempts exactly one connection.
type Dialer func(ctx context.Context, cfg DialConfig, handler EventHandler) (Conn, error)
