// Package transport carries protocol messages between the client facade and
// the execution processor. The protocol is agnostic to the concrete channel:
// messages are JSON-marshalable structs, so an implementation may hop a
// process or host boundary. The in-process Pipe is the shipped adapter.
package transport

import (
	"errors"

	"github.com/dbrelay/dbrelay/protocol"
)

// ErrDetached is returned by Send after the channel has been closed.
var ErrDetached = errors.New("transport: channel detached")

// Conn is the client side of a duplex message channel. Send never blocks on
// the peer. Receive blocks until a response arrives; the second return is
// false once the channel is detached and drained.
type Conn interface {
	Send(req protocol.Request) error
	Receive() (protocol.Response, bool)
	Close() error
}

// Endpoint is the processor side of the channel.
type Endpoint interface {
	Receive() (protocol.Request, bool)
	Send(resp protocol.Response) error
	Close() error
}

// pipe links a client and a processor through two unbounded FIFO queues.
// Delivery order matches send order in each direction.
type pipe struct {
	requests  *queue[protocol.Request]
	responses *queue[protocol.Response]
}

// Pipe returns a connected in-process channel pair.
func Pipe() (Conn, Endpoint) {
	p := &pipe{
		requests:  newQueue[protocol.Request](),
		responses: newQueue[protocol.Response](),
	}
	return (*clientConn)(p), (*processorConn)(p)
}

type clientConn pipe

func (c *clientConn) Send(req protocol.Request) error {
	if !c.requests.Enqueue(req) {
		return ErrDetached
	}
	return nil
}

func (c *clientConn) Receive() (protocol.Response, bool) {
	return c.responses.Dequeue()
}

func (c *clientConn) Close() error {
	c.requests.Close()
	c.responses.Close()
	return nil
}

type processorConn pipe

func (p *processorConn) Receive() (protocol.Request, bool) {
	return p.requests.Dequeue()
}

func (p *processorConn) Send(resp protocol.Response) error {
	if !p.responses.Enqueue(resp) {
		return ErrDetached
	}
	return nil
}

func (p *processorConn) Close() error {
	p.requests.Close()
	p.responses.Close()
	return nil
}
