// Package processor owns the database connection and dispatches every
// protocol request against it. All engine access happens inside a single
// dispatch goroutine, so no two statements ever interleave on the
// connection. Requests that arrive before the connection exists are held in
// a FIFO command queue and replayed through the same dispatch path once the
// engine comes up.
package processor

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dbrelay/dbrelay/engine"
	"github.com/dbrelay/dbrelay/protocol"
	"github.com/dbrelay/dbrelay/transport"
)

// State is the processor lifecycle state.
type State string

const (
	// StateUninitialized means no config has been applied yet.
	StateUninitialized State = "uninitialized"
	// StateInitializing means connection setup is in progress.
	StateInitializing State = "initializing"
	// StateReady means the engine is connected and dispatching.
	StateReady State = "ready"
	// StateDestroyed means the processor is permanently inert.
	StateDestroyed State = "destroyed"
)

// Engine is the subset of the embedded engine the processor dispatches
// against. Satisfied by *engine.Engine; tests substitute fakes.
type Engine interface {
	Query(query string, params []any) ([][]any, []string, error)
	Exec(query string, params []any) error
	RunInTransaction(fn func(tx engine.Execer) error) error
	RegisterFunction(name string, impl engine.FuncImpl) error
	Close() error
}

// OpenFunc creates an engine for the given settings.
type OpenFunc func(settings protocol.Settings, logger *slog.Logger) (Engine, error)

func defaultOpen(settings protocol.Settings, logger *slog.Logger) (Engine, error) {
	return engine.Open(settings, logger)
}

// Processor dispatches requests from one transport endpoint against one
// engine connection. Run must be called from exactly one goroutine; every
// other method is read-only and safe from anywhere.
type Processor struct {
	conn   transport.Endpoint
	open   OpenFunc
	logger *slog.Logger

	mu    sync.Mutex
	state State

	eng   Engine
	queue []protocol.Request
	funcs map[string]engine.FuncImpl
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the processor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithOpenFunc replaces the engine factory. Used by tests to observe or fail
// connection setup.
func WithOpenFunc(open OpenFunc) Option {
	return func(p *Processor) { p.open = open }
}

// New creates a processor reading from conn. Call Run to start dispatching.
func New(conn transport.Endpoint, opts ...Option) *Processor {
	p := &Processor{
		conn:   conn,
		open:   defaultOpen,
		logger: slog.Default(),
		state:  StateUninitialized,
		funcs:  make(map[string]engine.FuncImpl),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current lifecycle state.
func (p *Processor) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Processor) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Run processes requests until the endpoint detaches or a destroy request is
// dispatched. Each request is processed to completion, including buffered
// replay, before the next is received.
func (p *Processor) Run() {
	for {
		req, ok := p.conn.Receive()
		if !ok {
			return
		}
		p.dispatch(req)
		if p.State() == StateDestroyed {
			return
		}
	}
}

// dispatch routes one request. Buffered requests are fed back through here
// during drain, so queued and live requests take the identical path.
func (p *Processor) dispatch(req protocol.Request) {
	state := p.State()
	if state == StateDestroyed {
		if req.Key != "" {
			p.send(protocol.ErrorResponse(req.Key, protocol.CodeDestroyed,
				fmt.Errorf("processor destroyed")))
		}
		return
	}

	if req.Type == protocol.RequestConfig {
		p.handleConfig(req)
		return
	}

	if state != StateReady {
		// No connection yet. Hold in arrival order; config will drain.
		p.queue = append(p.queue, req)
		return
	}

	p.dispatchReady(req)
}

func (p *Processor) dispatchReady(req protocol.Request) {
	switch req.Type {
	case protocol.RequestQuery:
		p.handleQuery(req)
	case protocol.RequestTransaction:
		p.handleTransaction(req)
	case protocol.RequestRegisterFunction:
		p.handleRegisterFunction(req)
	case protocol.RequestDestroy:
		p.handleDestroy(req)
	default:
		p.send(protocol.ErrorResponse(req.Key, protocol.CodeBadRequest,
			fmt.Errorf("unknown request type %q", req.Type)))
	}
}

// handleConfig tears down any current connection, opens a fresh one,
// re-attaches registered user functions, and drains the command queue. Setup
// failure is reported with an empty key: config carries none, so there is no
// pending request to attribute it to.
func (p *Processor) handleConfig(req protocol.Request) {
	if req.Settings == nil {
		p.send(protocol.ErrorResponse("", protocol.CodeBadRequest,
			fmt.Errorf("config request carries no settings")))
		return
	}

	if p.eng != nil {
		if err := p.eng.Close(); err != nil {
			p.logger.Warn("closing previous connection", "error", err)
		}
		p.eng = nil
	}
	p.setState(StateInitializing)

	eng, err := p.open(*req.Settings, p.logger)
	if err != nil {
		p.setState(StateUninitialized)
		p.send(protocol.ErrorResponse("", protocol.CodeSetupFailed, err))
		return
	}

	for name, impl := range p.funcs {
		if err := eng.RegisterFunction(name, impl); err != nil {
			eng.Close()
			p.setState(StateUninitialized)
			p.send(protocol.ErrorResponse("", protocol.CodeSetupFailed, err))
			return
		}
	}

	p.eng = eng
	p.setState(StateReady)
	p.logger.Info("connection ready", "queued", len(p.queue))

	// FIFO drain. A queued destroy flips the state and stops the drain.
	for len(p.queue) > 0 && p.State() == StateReady {
		next := p.queue[0]
		p.queue[0] = protocol.Request{}
		p.queue = p.queue[1:]
		p.dispatch(next)
	}
}

func (p *Processor) handleQuery(req protocol.Request) {
	switch req.Method {
	case protocol.MethodRun:
		if err := p.eng.Exec(req.SQL, req.Params); err != nil {
			p.send(protocol.ErrorResponse(req.Key, protocol.CodeStatementFailed, err))
			return
		}
		p.send(protocol.DataResponse(req.Key, nil, nil))
	case protocol.MethodFirst:
		rows, columns, err := p.eng.Query(req.SQL, req.Params)
		if err != nil {
			p.send(protocol.ErrorResponse(req.Key, protocol.CodeStatementFailed, err))
			return
		}
		if len(rows) > 1 {
			rows = rows[:1]
		}
		p.send(protocol.DataResponse(req.Key, rows, columns))
	case protocol.MethodAll, "":
		rows, columns, err := p.eng.Query(req.SQL, req.Params)
		if err != nil {
			p.send(protocol.ErrorResponse(req.Key, protocol.CodeStatementFailed, err))
			return
		}
		p.send(protocol.DataResponse(req.Key, rows, columns))
	default:
		p.send(protocol.ErrorResponse(req.Key, protocol.CodeBadRequest,
			fmt.Errorf("unknown query method %q", req.Method)))
	}
}

// handleTransaction runs the batch inside the engine's atomic primitive. Any
// statement failure aborts the whole batch and surfaces as one error; no
// partial data is ever emitted.
func (p *Processor) handleTransaction(req protocol.Request) {
	err := p.eng.RunInTransaction(func(tx engine.Execer) error {
		for _, stmt := range req.Statements {
			if err := tx.Exec(stmt.SQL, stmt.Params); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		p.send(protocol.ErrorResponse(req.Key, protocol.CodeStatementFailed, err))
		return
	}
	p.send(protocol.SuccessResponse(req.Key))
}

// handleRegisterFunction attaches a relay: when SQL execution invokes the
// named function, the relay packages the arguments into an unprompted
// callback notification. The relay returns NULL to the SQL expression.
func (p *Processor) handleRegisterFunction(req protocol.Request) {
	name := req.FuncName
	if name == "" {
		p.send(protocol.ErrorResponse(req.Key, protocol.CodeBadRequest,
			fmt.Errorf("function name is empty")))
		return
	}
	if _, exists := p.funcs[name]; exists {
		p.send(protocol.ErrorResponse(req.Key, protocol.CodeDuplicateFunction,
			fmt.Errorf("function %q already registered", name)))
		return
	}

	relay := func(args ...any) (any, error) {
		p.send(protocol.CallbackResponse(name, args))
		return nil, nil
	}
	if err := p.eng.RegisterFunction(name, relay); err != nil {
		p.send(protocol.ErrorResponse(req.Key, protocol.CodeStatementFailed, err))
		return
	}
	p.funcs[name] = relay
	p.send(protocol.SuccessResponse(req.Key))
}

func (p *Processor) handleDestroy(req protocol.Request) {
	if p.eng != nil {
		if err := p.eng.Close(); err != nil {
			p.logger.Warn("closing connection on destroy", "error", err)
		}
		p.eng = nil
	}
	p.funcs = make(map[string]engine.FuncImpl)
	p.queue = nil
	p.setState(StateDestroyed)
	p.send(protocol.SuccessResponse(req.Key))
}

func (p *Processor) send(resp protocol.Response) {
	if err := p.conn.Send(resp); err != nil {
		p.logger.Warn("response dropped", "type", resp.Type, "error", err)
	}
}
