package protocol

import "fmt"

// ErrorCode categorizes wire-level errors.
type ErrorCode string

const (
	// CodeSetupFailed indicates the connection could not be created. Reported
	// with an empty key since config requests have no caller waiting.
	CodeSetupFailed ErrorCode = "setup_failed"

	// CodeStatementFailed indicates a query or transaction batch failed.
	CodeStatementFailed ErrorCode = "statement_failed"

	// CodeDuplicateFunction indicates a user function name was already
	// registered.
	CodeDuplicateFunction ErrorCode = "duplicate_function"

	// CodeBadRequest indicates a malformed or unknown request.
	CodeBadRequest ErrorCode = "bad_request"

	// CodeDestroyed indicates the processor was destroyed before the request
	// could complete.
	CodeDestroyed ErrorCode = "destroyed"
)

// RelayError is the caller-visible form of an error response.
type RelayError struct {
	Code    ErrorCode
	Message string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Err converts an error response into a *RelayError. It returns nil for any
// other response type.
func (r Response) Err() error {
	if r.Type != ResponseError {
		return nil
	}
	return &RelayError{Code: r.Code, Message: r.Error}
}
