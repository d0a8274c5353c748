// Package transport abstracts the unreliable message channel between sender
// and receiver. The core pipelines only require discrete datagrams with no
// ordering or delivery guarantee; UDP is the primary implementation and a
// WebSocket variant exists for networks where only HTTP gets through.
package transport

import (
	"context"
	"errors"
)

// ErrTimeout is returned by Receive when no datagram arrived within the
// caller's deadline. The receiver pipeline uses it for idle-session
// detection; it is not a stream failure.
var ErrTimeout = errors.New("transport: receive timed out")

// ErrClosed is returned once the transport has been shut down.
var ErrClosed = errors.New("transport: closed")

// Transport carries discrete datagrams up to [wire.MaxDatagramSize].
// Implementations must be safe for one concurrent sender and one
// concurrent receiver goroutine.
type Transport interface {
	// Send transmits one datagram. It must not block waiting for delivery
	// confirmation; a failed send is reported, never retried.
	Send(ctx context.Context, datagram []byte) error

	// Receive blocks until the next datagram arrives, the context deadline
	// expires (ErrTimeout), or the transport closes (ErrClosed). The
	// returned slice is owned by the caller.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the underlying channel. Pending Receive calls return
	// ErrClosed.
	Close() error
}
