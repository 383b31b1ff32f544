// Package errors provides structured error handling for shopsync
package errors

import (
	"context"
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeCredentials represents shop credentials that are not configured
	ErrorTypeCredentials ErrorType = "credentials"
	// ErrorTypeAuth represents configured credentials that could not be exchanged for a token
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeTransport represents network level failures (dial, TLS, reset)
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeHTTPStatus represents a non-2xx API response
	ErrorTypeHTTPStatus ErrorType = "http_status"
	// ErrorTypeGraphQL represents a top-level GraphQL errors array on an HTTP 200
	ErrorTypeGraphQL ErrorType = "graphql"
	// ErrorTypeDecode represents a response body that could not be decoded
	ErrorTypeDecode ErrorType = "decode"
	// ErrorTypeDestination represents a failed submit to the destination
	ErrorTypeDestination ErrorType = "destination"
	// ErrorTypeRateLimit represents rate limit errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeCanceled represents a run interrupted through its context
	ErrorTypeCanceled ErrorType = "canceled"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable returns true if the error is retryable
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeTransport:
		return true
	default:
		return false
	}
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf reports the category of err. Context cancellation wins over whatever
// wrapped it; foreign errors are internal.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return ErrorTypeCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// Is, As and Join re-export the standard helpers so callers need one import.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
