// Package client is the caller-facing facade over the execution processor.
// It generates correlation keys, tracks one pending completion per in-flight
// request, and presents a synchronous API over the asynchronous transport.
package client

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dbrelay/dbrelay/protocol"
	"github.com/dbrelay/dbrelay/transport"
)

// ErrDestroyed is returned by every API call made after Destroy completes.
// Such calls fail locally and never cross the transport.
var ErrDestroyed = errors.New("client destroyed")

// Handler receives the arguments of an engine-invoked user function.
type Handler func(args ...any)

// Result is the flat row/column pair a query produces. Column order is fixed
// by the engine; reshaping into records is done by Query.
type Result struct {
	Rows    [][]any
	Columns []string
}

// Client is the facade. All methods are safe for concurrent use; overlapping
// calls are sent immediately without serialization, and each resolves when
// its own terminal response arrives.
type Client struct {
	conn   transport.Conn
	logger *slog.Logger

	// unrouted receives error responses that cannot be matched to a pending
	// request, e.g. a connection setup failure with no caller to notify.
	unrouted func(error)

	mu        sync.Mutex
	pending   map[protocol.Key]chan protocol.Response
	handlers  map[string]Handler
	destroyed bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithUnroutedErrorHandler replaces the default handling of errors that have
// no matching pending request. The default logs them at error level.
func WithUnroutedErrorHandler(fn func(error)) Option {
	return func(c *Client) { c.unrouted = fn }
}

// New creates a client over conn and sends the initial configuration. Config
// is fire-and-forget: setup failure surfaces through the unrouted error
// handler, and requests issued in the meantime are buffered by the processor
// until the connection is ready.
func New(conn transport.Conn, settings protocol.Settings, opts ...Option) *Client {
	c := &Client{
		conn:     conn,
		logger:   slog.Default(),
		pending:  make(map[protocol.Key]chan protocol.Response),
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.unrouted == nil {
		logger := c.logger
		c.unrouted = func(err error) {
			logger.Error("unrouted error response", "error", err)
		}
	}

	go c.receiveLoop()

	if err := c.conn.Send(protocol.ConfigRequest(settings)); err != nil {
		c.unrouted(fmt.Errorf("send config: %w", err))
	}
	return c
}

// Configure applies new connection settings. The processor tears down the
// current connection, recreates it, and re-attaches registered functions.
func (c *Client) Configure(settings protocol.Settings) error {
	c.mu.Lock()
	destroyed := c.destroyed
	c.mu.Unlock()
	if destroyed {
		return ErrDestroyed
	}
	return c.conn.Send(protocol.ConfigRequest(settings))
}

// receiveLoop routes every incoming response. Terminal responses resolve
// their pending request exactly once; callback notifications invoke the
// locally registered handler; anything unroutable goes to the unrouted
// handler.
func (c *Client) receiveLoop() {
	for {
		resp, ok := c.conn.Receive()
		if !ok {
			return
		}

		if resp.Type == protocol.ResponseCallback {
			c.mu.Lock()
			handler := c.handlers[resp.FuncName]
			c.mu.Unlock()
			// A missing handler means a stale callback, e.g. delivered after
			// destroy. Dropped silently.
			if handler != nil {
				handler(resp.Args...)
			}
			continue
		}

		c.mu.Lock()
		ch, exists := c.pending[resp.Key]
		if exists {
			delete(c.pending, resp.Key)
		}
		c.mu.Unlock()

		if exists {
			ch <- resp
			continue
		}
		if err := resp.Err(); err != nil {
			c.unrouted(err)
			continue
		}
		c.unrouted(fmt.Errorf("unroutable %s response for key %q", resp.Type, resp.Key))
	}
}

// roundTrip registers a pending entry, sends the request, and blocks until
// the terminal response for its key arrives.
func (c *Client) roundTrip(req protocol.Request) (protocol.Response, error) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return protocol.Response{}, ErrDestroyed
	}
	ch := make(chan protocol.Response, 1)
	c.pending[req.Key] = ch
	c.mu.Unlock()

	if err := c.conn.Send(req); err != nil {
		c.mu.Lock()
		delete(c.pending, req.Key)
		c.mu.Unlock()
		return protocol.Response{}, err
	}

	resp := <-ch
	if err := resp.Err(); err != nil {
		return protocol.Response{}, err
	}
	return resp, nil
}

// Execute runs one statement with positional parameters. Method selects the
// result shape: every row, the first row, or none.
func (c *Client) Execute(query string, params []any, method protocol.Method) (*Result, error) {
	resp, err := c.roundTrip(protocol.QueryRequest(protocol.NewKey(), query, params, method))
	if err != nil {
		return nil, err
	}
	return &Result{Rows: resp.Rows, Columns: resp.Columns}, nil
}

// Query runs a statement and reshapes the flat result into ordered records
// keyed by column name.
func (c *Client) Query(query string, args ...any) ([]Record, error) {
	res, err := c.Execute(query, args, protocol.MethodAll)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(res.Rows))
	for _, row := range res.Rows {
		records = append(records, newRecord(res.Columns, row))
	}
	return records, nil
}

// QueryTemplate is the template entry point: fragments are joined with
// positional placeholders, values bind in order, and the result is reshaped
// into records like Query.
func (c *Client) QueryTemplate(fragments []string, values ...any) ([]Record, error) {
	stmt := Template(fragments, values...)
	return c.Query(stmt.SQL, stmt.Params...)
}

// Transaction collects the statements added by build into one atomic batch.
// Either every statement commits or, on any failure, none do, and the whole
// call fails with the engine's error.
func (c *Client) Transaction(build func(b *Batch)) error {
	b := &Batch{}
	build(b)
	_, err := c.roundTrip(protocol.TransactionRequest(protocol.NewKey(), b.statements))
	return err
}

// CreateCallbackFunction registers a named SQL function with the engine that
// relays its invocations to handler. The handler is stored locally only
// after the processor acknowledges the registration, so a rejected duplicate
// never displaces the original.
func (c *Client) CreateCallbackFunction(name string, handler Handler) error {
	if _, err := c.roundTrip(protocol.RegisterFunctionRequest(protocol.NewKey(), name)); err != nil {
		return err
	}
	c.mu.Lock()
	c.handlers[name] = handler
	c.mu.Unlock()
	return nil
}

// Destroy tears down the connection, detaches the transport, and makes the
// client permanently inert. Requests still pending when the acknowledgment
// arrives are rejected with ErrDestroyed rather than left hanging.
func (c *Client) Destroy() error {
	_, err := c.roundTrip(protocol.DestroyRequest(protocol.NewKey()))
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.destroyed = true
	orphaned := c.pending
	c.pending = make(map[protocol.Key]chan protocol.Response)
	c.handlers = make(map[string]Handler)
	c.mu.Unlock()

	for key, ch := range orphaned {
		ch <- protocol.ErrorResponse(key, protocol.CodeDestroyed,
			fmt.Errorf("request abandoned by destroy"))
	}

	return c.conn.Close()
}
