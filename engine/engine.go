// Package engine binds the embedded SQLite engine. It owns exactly one
// database connection and exposes the three primitives the execution
// processor needs: statement execution, atomic multi-statement transactions,
// and registration of user-defined SQL functions.
package engine

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/dbrelay/dbrelay/protocol"
)

// FuncImpl is the engine-side shape of a user-defined SQL function. SQLite
// invokes it with the call's scalar arguments during statement execution.
type FuncImpl func(args ...any) (any, error)

// Engine wraps a single SQLite connection. It is not safe for concurrent
// use; the execution processor serializes all access.
type Engine struct {
	db      *sqlx.DB
	logger  *slog.Logger
	verbose bool

	mu    sync.Mutex
	conn  *sqlite3.SQLiteConn
	funcs map[string]FuncImpl
}

// Open creates the connection described by settings. The pool is capped at a
// single connection: SQLite prefers one writer, and the captured raw
// connection is where user functions attach.
func Open(settings protocol.Settings, logger *slog.Logger) (*Engine, error) {
	dsn, err := buildDSN(settings)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		logger:  logger,
		verbose: settings.Verbose,
		funcs:   make(map[string]FuncImpl),
	}

	// Each engine registers its own uniquely-named driver so the connect
	// hook can capture the raw connection for this engine alone. The hook
	// also re-attaches known functions if database/sql ever replaces the
	// connection.
	driverName := fmt.Sprintf("sqlite3_dbrelay_%s", uuid.NewString())
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.conn = conn
			for name, impl := range e.funcs {
				if err := conn.RegisterFunc(name, impl, false); err != nil {
					return fmt.Errorf("reattach function %q: %w", name, err)
				}
			}
			return nil
		},
	})

	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	e.db = db
	if settings.Verbose {
		logger.Debug("engine opened", "dsn", dsn)
	}
	return e, nil
}

func buildDSN(settings protocol.Settings) (string, error) {
	if settings.Path != "" && settings.StorageScope != "" {
		return "", fmt.Errorf("settings: path and storage scope are mutually exclusive")
	}

	if settings.StorageScope != "" {
		switch settings.StorageScope {
		case protocol.ScopeLocal, protocol.ScopeSession:
		default:
			return "", fmt.Errorf("settings: unknown storage scope %q", settings.StorageScope)
		}
		// Named shared in-memory database: every engine opened with the same
		// scope in this process sees the same data.
		return fmt.Sprintf("file:dbrelay_%s?mode=memory&cache=shared", settings.StorageScope), nil
	}

	if settings.Path == "" {
		return ":memory:", nil
	}

	mode := "rwc"
	switch {
	case settings.Readonly:
		mode = "ro"
	case !settings.Create:
		mode = "rw"
	}
	return fmt.Sprintf("file:%s?mode=%s", settings.Path, mode), nil
}

// Query runs one statement with positional parameters and returns every row
// as a flat value sequence plus the parallel column name sequence. Shaping
// beyond that is the caller's concern.
func (e *Engine) Query(query string, params []any) ([][]any, []string, error) {
	if e.verbose {
		e.logger.Debug("engine query", "sql", query, "params", len(params))
	}

	rows, err := e.db.Query(query, params...)
	if err != nil {
		return nil, nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read columns: %w", err)
	}

	var results [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		scanPtrs := make([]any, len(columns))
		for i := range values {
			scanPtrs[i] = &values[i]
		}
		if err := rows.Scan(scanPtrs...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		results = append(results, copyRowValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}

	return results, columns, nil
}

// copyRowValues detaches byte slices from driver-owned buffers, which SQLite
// reuses between rows.
func copyRowValues(raw []any) []any {
	row := make([]any, len(raw))
	for i, val := range raw {
		if b, ok := val.([]byte); ok {
			row[i] = append([]byte(nil), b...)
			continue
		}
		row[i] = val
	}
	return row
}

// Exec runs one statement for effect only.
func (e *Engine) Exec(query string, params []any) error {
	if e.verbose {
		e.logger.Debug("engine exec", "sql", query, "params", len(params))
	}
	if _, err := e.db.Exec(query, params...); err != nil {
		return fmt.Errorf("exec failed: %w", err)
	}
	return nil
}

// Execer is the statement surface available inside a transaction.
type Execer interface {
	Exec(query string, params []any) error
}

type txExecer struct {
	tx      *sqlx.Tx
	verbose bool
	logger  *slog.Logger
}

func (t *txExecer) Exec(query string, params []any) error {
	if t.verbose {
		t.logger.Debug("engine tx exec", "sql", query, "params", len(params))
	}
	if _, err := t.tx.Exec(query, params...); err != nil {
		return fmt.Errorf("exec failed: %w", err)
	}
	return nil
}

// RunInTransaction executes fn inside a transaction. Any error from fn rolls
// back every statement fn issued; a nil return commits them all.
func (e *Engine) RunInTransaction(fn func(tx Execer) error) error {
	tx, err := e.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txExecer{tx: tx, verbose: e.verbose, logger: e.logger}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RegisterFunction attaches a user-defined SQL function to the connection.
// The registration survives connection replacement via the connect hook.
func (e *Engine) RegisterFunction(name string, impl FuncImpl) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.funcs[name] = impl
	if e.conn != nil {
		if err := e.conn.RegisterFunc(name, impl, false); err != nil {
			delete(e.funcs, name)
			return fmt.Errorf("register function %q: %w", name, err)
		}
	}
	return nil
}

// Close releases the connection. Safe to call on a nil engine.
func (e *Engine) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	return e.db.Close()
}
