// In-process message transport between a Controller and a Host.
// Channels give exactly the guarantees the protocol relies on: FIFO
// delivery per direction, single consumer, no shared memory. The
// envelope's json tags keep the design open to a network transport,
// which is explicitly out of scope here.

package sim

import (
	"errors"
	"sync"
)

// ErrTransportClosed is returned when posting to a pipe that has been
// torn down. In-flight messages at close time are dropped and never
// answered.
var ErrTransportClosed = errors.New("transport closed")

// Endpoint is one side of a duplex pipe. Send and Recv are FIFO per
// direction; Close is idempotent and tears down both directions.
type Endpoint struct {
	out  chan<- Message
	in   <-chan Message
	pipe *pipe
}

type pipe struct {
	toHost       chan Message
	toController chan Message
	closeOnce    sync.Once
	done         chan struct{}
}

// NewPipe creates a connected Controller/Host endpoint pair with the
// given per-direction buffer.
func NewPipe(buffer int) (controller, host *Endpoint) {
	p := &pipe{
		toHost:       make(chan Message, buffer),
		toController: make(chan Message, buffer),
		done:         make(chan struct{}),
	}
	controller = &Endpoint{out: p.toHost, in: p.toController, pipe: p}
	host = &Endpoint{out: p.toController, in: p.toHost, pipe: p}
	return controller, host
}

// Send posts a message to the peer. It fails once the pipe is closed;
// it never blocks past the buffer plus peer consumption.
func (e *Endpoint) Send(msg Message) error {
	select {
	case <-e.pipe.done:
		return ErrTransportClosed
	default:
	}
	select {
	case e.out <- msg:
		return nil
	case <-e.pipe.done:
		return ErrTransportClosed
	}
}

// Recv exposes the inbound stream. Receivers must select on Done as
// well: closure is signalled there, not by closing the channel, so a
// racing Send can never panic.
func (e *Endpoint) Recv() <-chan Message {
	return e.in
}

// Done is closed when either side closes the pipe.
func (e *Endpoint) Done() <-chan struct{} {
	return e.pipe.done
}

// Close tears down the pipe exactly once. Both sides observe closure;
// subsequent closes are no-ops.
func (e *Endpoint) Close() {
	e.pipe.closeOnce.Do(func() {
		close(e.pipe.done)
	})
}
