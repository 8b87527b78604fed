package warehouse

import (
	"errors"
	"fmt"
)

// ErrorCode is the warehouse-independent classification of a statement
// failure. The replication engine keys its absorb-or-abort decisions off
// these codes, so every Client implementation must map its native errors
// onto them.
type ErrorCode string

const (
	CodeUnknown         ErrorCode = "unknown"
	CodeAlreadyExists   ErrorCode = "already_exists"
	CodeNotFound        ErrorCode = "not_found"
	CodeAccessDenied    ErrorCode = "access_denied"
	CodeInvalidArgument ErrorCode = "invalid_argument"
	CodeUnavailable     ErrorCode = "unavailable"
	CodeInternal        ErrorCode = "internal"
)

// StatementError is a classified failure from Query or Exec.
type StatementError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func NewStatementError(code ErrorCode, message string, cause error) *StatementError {
	return &StatementError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func (e *StatementError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Cause)
	}
	return string(e.Code)
}

func (e *StatementError) Unwrap() error {
	return e.Cause
}

// CodeOf extracts the classification from an error chain, or CodeUnknown
// when no StatementError is present.
func CodeOf(err error) ErrorCode {
	var stmtErr *StatementError
	if errors.As(err, &stmtErr) {
		return stmtErr.Code
	}
	return CodeUnknown
}
