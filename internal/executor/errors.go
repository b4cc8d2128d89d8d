// File: internal/executor/errors.go
package executor

import (
	"errors"
	"fmt"
)

// ErrorCode classifies action faults for callers that need to distinguish
// caller mistakes from environment failures.
type ErrorCode string

const (
	// CodeInvalidParameters marks caller errors: malformed or incomplete
	// action parameters. The browser is never touched for these.
	CodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	// CodeUnknownAction marks an action type outside the closed vocabulary.
	CodeUnknownAction ErrorCode = "UNKNOWN_ACTION"
	// CodeExecutionFailure marks a browser-side failure while performing an
	// otherwise well-formed action.
	CodeExecutionFailure ErrorCode = "EXECUTION_FAILURE"
	// CodeNavigationError marks a failed page load.
	CodeNavigationError ErrorCode = "NAVIGATION_ERROR"
	// CodeTimeout marks an action that ran out of time.
	CodeTimeout ErrorCode = "TIMEOUT_ERROR"
	// CodeSessionFailure marks a failure to create or reach the browser
	// session itself.
	CodeSessionFailure ErrorCode = "SESSION_FAILURE"
)

// Fault is an action failure tagged with its classification. The agent loop
// converts faults into failure tool results and keeps running; only the
// code tells callers whether retrying with different parameters could help.
type Fault struct {
	Code ErrorCode
	Msg  string
	Err  error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Msg, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Msg)
}

func (f *Fault) Unwrap() error { return f.Err }

// NewFault builds a fault with a formatted message.
func NewFault(code ErrorCode, format string, args ...interface{}) *Fault {
	return &Fault{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// WrapFault attaches an underlying cause to a fault.
func WrapFault(code ErrorCode, err error, format string, args ...interface{}) *Fault {
	return &Fault{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// FaultCode extracts the classification from err, or CodeExecutionFailure
// when err is not a Fault.
func FaultCode(err error) ErrorCode {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return CodeExecutionFailure
}

// IsValidationFault reports whether err is a caller error (bad parameters or
// unknown action) rather than an environment failure.
func IsValidationFault(err error) bool {
	switch FaultCode(err) {
	case CodeInvalidParameters, CodeUnknownAction:
		return true
	default:
		return false
	}
}

// IsSessionFault reports whether err indicates the browser session itself is
// unusable.
func IsSessionFault(err error) bool {
	return FaultCode(err) == CodeSessionFailure
}
