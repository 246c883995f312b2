package messenger

import (
	"context"
	"fmt"
	"sync"
)

// State is the lifecycle of a Conn.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Conn tracks whether the messenger connection is usable. It starts in
// StateConnecting, moves to StateOpen once authenticated and to StateClosed
// on a permanent failure. Closed is terminal.
type Conn struct {
	mu     sync.Mutex
	state  State
	err    error
	opened chan struct{}
	closed chan struct{}
}

// NewConn returns a handle in StateConnecting.
func NewConn() *Conn {
	return &Conn{
		opened: make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// State returns the current state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// MarkOpen moves a connecting handle to StateOpen. It has no effect once the
// handle is open or closed.
func (c *Conn) MarkOpen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return
	}
	c.state = StateOpen
	close(c.opened)
}

// Close moves the handle to StateClosed with cause. Repeated calls keep the
// first cause.
func (c *Conn) Close(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	if cause == nil {
		c.err = ErrClosed
	} else {
		c.err = fmt.Errorf("%w: %w", ErrClosed, cause)
	}
	close(c.closed)
}

// Err returns the close cause, wrapping ErrClosed, or nil while not closed.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the handle reaches StateClosed.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// Wait blocks until the handle is open, closed, or ctx ends.
func (c *Conn) Wait(ctx context.Context) error {
	select {
	case <-c.opened:
		// Open may have been followed by Close.
		return c.Err()
	case <-c.closed:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
