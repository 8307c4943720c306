package cipher

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes
const (
	ErrCodePatternDrift    = "PATTERN_DRIFT"
	ErrCodeUnsupportedOp   = "UNSUPPORTED_OPERATION"
	ErrCodeUnbalancedBlock = "UNBALANCED_BLOCK"
	ErrCodeEvalTimeout     = "EVALUATION_TIMEOUT"
	ErrCodeJSExecution     = "JS_EXECUTION_FAILED"
)

// Error represents a structured error with code and details.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MarshalJSON implements json.Marshaler.
func (e *Error) MarshalJSON() ([]byte, error) {
	type Alias Error
	return json.Marshal(&struct {
		*Alias
		Error string `json:"error"`
	}{
		Alias: (*Alias)(e),
		Error: e.Error(),
	})
}

// NewError creates a new Error with the given code and message.
func NewError(code string, message string, details ...any) *Error {
	e := &Error{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		e.Details = details[0]
	}
	return e
}

// newPatternDrift reports that a structural probe found no match. The pattern
// name is kept in Details so callers can tell which probe needs updating.
func newPatternDrift(pattern string) *Error {
	return NewError(ErrCodePatternDrift, "player script shape not recognized", pattern)
}

// newUnsupportedOp reports a call to a helper key whose body matched no known
// primitive operation.
func newUnsupportedOp(key string) *Error {
	return NewError(ErrCodeUnsupportedOp, "helper operation not recognized", key)
}

func newUnbalancedBlock(offset int) *Error {
	return NewError(ErrCodeUnbalancedBlock, "script text ended inside a brace block", offset)
}

func newEvalTimeout(detail any) *Error {
	return NewError(ErrCodeEvalTimeout, "transform evaluation budget exceeded", detail)
}

// hasCode unwraps err and reports whether it carries the given code.
func hasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// IsPatternDrift returns true if the error reports an unrecognized script shape.
func IsPatternDrift(err error) bool {
	return hasCode(err, ErrCodePatternDrift)
}

// IsUnsupportedOp returns true if the error reports an unrecognized helper operation.
func IsUnsupportedOp(err error) bool {
	return hasCode(err, ErrCodeUnsupportedOp)
}

// IsUnbalancedBlock returns true if the error reports malformed or truncated script text.
func IsUnbalancedBlock(err error) bool {
	return hasCode(err, ErrCodeUnbalancedBlock)
}

// IsTimeout returns true if the error reports an exceeded evaluation budget.
func IsTimeout(err error) bool {
	return hasCode(err, ErrCodeEvalTimeout)
}

// IsJSError returns true if the error comes from the JavaScript fallback evaluator.
func IsJSError(err error) bool {
	return hasCode(err, ErrCodeJSExecution)
}

// DriftPattern returns the name of the failed structural probe, if any.
func DriftPattern(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code == ErrCodePatternDrift {
		if s, ok := e.Details.(string); ok {
			return s
		}
	}
	return ""
}

// OperationKey returns the offending helper key of an unsupported-operation error.
func OperationKey(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code == ErrCodeUnsupportedOp {
		if s, ok := e.Details.(string); ok {
			return s
		}
	}
	return ""
}
