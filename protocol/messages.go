// Package protocol defines the messages exchanged between the client facade
// and the execution processor. Messages are plain structs with JSON tags so
// that a boundary-crossing transport can marshal them without either side
// knowing which transport is in use.
package protocol

// RequestType discriminates the request variants.
type RequestType string

const (
	// RequestConfig applies connection settings. It is the only request
	// that carries no correlation key: the caller does not wait on it.
	RequestConfig RequestType = "config"
	// RequestQuery executes a single statement.
	RequestQuery RequestType = "query"
	// RequestTransaction executes an ordered batch of statements atomically.
	RequestTransaction RequestType = "transaction"
	// RequestRegisterFunction registers a named user function with the engine.
	RequestRegisterFunction RequestType = "register_function"
	// RequestDestroy tears down the connection and makes the processor inert.
	RequestDestroy RequestType = "destroy"
)

// Method selects how query results are shaped.
type Method string

const (
	// MethodAll returns every row of the result set.
	MethodAll Method = "all"
	// MethodFirst returns at most the first row.
	MethodFirst Method = "first"
	// MethodRun executes the statement for effect only, returning no rows.
	MethodRun Method = "run"
)

// StorageScope names a shared in-memory database scope. Scoped databases are
// keyed by name rather than by file path, so two engines opened with the same
// scope share one database for the life of the process.
type StorageScope string

const (
	ScopeLocal   StorageScope = "local"
	ScopeSession StorageScope = "session"
)

// Settings holds the active connection configuration. Path and StorageScope
// are mutually exclusive; with neither set the database is private in-memory.
type Settings struct {
	Path         string       `json:"path,omitempty" yaml:"path"`
	StorageScope StorageScope `json:"storage_scope,omitempty" yaml:"storage_scope"`
	Create       bool         `json:"create" yaml:"create"`
	Readonly     bool         `json:"readonly,omitempty" yaml:"readonly"`
	Verbose      bool         `json:"verbose,omitempty" yaml:"verbose"`
}

// DefaultSettings returns settings for a private in-memory database with
// creation enabled.
func DefaultSettings() Settings {
	return Settings{Create: true}
}

// Statement is one parameterized SQL statement.
type Statement struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params,omitempty"`
}

// Request is the input message. Type selects the variant; only the fields of
// the selected variant are populated. Every variant except config carries a
// Key, unique for the lifetime of the client that generated it.
type Request struct {
	Type RequestType `json:"type"`
	Key  Key         `json:"key,omitempty"`

	// config
	Settings *Settings `json:"settings,omitempty"`

	// query
	SQL    string `json:"sql,omitempty"`
	Params []any  `json:"params,omitempty"`
	Method Method `json:"method,omitempty"`

	// transaction
	Statements []Statement `json:"statements,omitempty"`

	// register_function
	FuncName string `json:"func_name,omitempty"`
}

// ConfigRequest builds a config request for the given settings.
func ConfigRequest(settings Settings) Request {
	return Request{Type: RequestConfig, Settings: &settings}
}

// QueryRequest builds a query request.
func QueryRequest(key Key, sql string, params []any, method Method) Request {
	return Request{Type: RequestQuery, Key: key, SQL: sql, Params: params, Method: method}
}

// TransactionRequest builds a transaction request over an ordered batch.
func TransactionRequest(key Key, statements []Statement) Request {
	return Request{Type: RequestTransaction, Key: key, Statements: statements}
}

// RegisterFunctionRequest builds a register_function request.
func RegisterFunctionRequest(key Key, name string) Request {
	return Request{Type: RequestRegisterFunction, Key: key, FuncName: name}
}

// DestroyRequest builds a destroy request.
func DestroyRequest(key Key) Request {
	return Request{Type: RequestDestroy, Key: key}
}

// ResponseType discriminates the response variants.
type ResponseType string

const (
	// ResponseData carries query results.
	ResponseData ResponseType = "data"
	// ResponseSuccess acknowledges a request that produces no rows.
	ResponseSuccess ResponseType = "success"
	// ResponseError reports a failure. Key is empty when the failure has no
	// originating request, e.g. connection setup.
	ResponseError ResponseType = "error"
	// ResponseCallback relays an engine-invoked user function call. It is a
	// notification, not a reply, and carries no key.
	ResponseCallback ResponseType = "callback"
)

// Response is the output message. Every terminal response (data, success,
// error) echoes the key of the request it answers.
type Response struct {
	Type ResponseType `json:"type"`
	Key  Key          `json:"key,omitempty"`

	// data
	Rows    [][]any  `json:"rows,omitempty"`
	Columns []string `json:"columns,omitempty"`

	// error
	Code  ErrorCode `json:"code,omitempty"`
	Error string    `json:"error,omitempty"`

	// callback
	FuncName string `json:"func_name,omitempty"`
	Args     []any  `json:"args,omitempty"`
}

// DataResponse builds a data response.
func DataResponse(key Key, rows [][]any, columns []string) Response {
	return Response{Type: ResponseData, Key: key, Rows: rows, Columns: columns}
}

// SuccessResponse builds a success acknowledgment.
func SuccessResponse(key Key) Response {
	return Response{Type: ResponseSuccess, Key: key}
}

// ErrorResponse builds an error response. Pass an empty key for failures with
// no originating request.
func ErrorResponse(key Key, code ErrorCode, err error) Response {
	return Response{Type: ResponseError, Key: key, Code: code, Error: err.Error()}
}

// CallbackResponse builds a callback notification.
func CallbackResponse(name string, args []any) Response {
	return Response{Type: ResponseCallback, FuncName: name, Args: args}
}

// Terminal reports whether the response resolves a pending request.
func (r Response) Terminal() bool {
	switch r.Type {
	case ResponseData, ResponseSuccess, ResponseError:
		return true
	}
	return false
}
