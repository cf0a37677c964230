package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess    Code = 0
	CodeInternal   Code = 1
	CodeValidation Code = 2

	CodeAuth               Code = 10
	CodeRateLimited        Code = 11
	CodeUnavailable        Code = 12
	CodeUnsupportedChain   Code = 13
	CodeTimeout            Code = 14
	CodeAllSourcesFailed   Code = 15
	CodeWalletNotConnected Code = 16
	CodeQuoteExpired       Code = 17
	CodeExecutionFailed    Code = 18
)

// Error is a typed error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	if typed, ok := As(err); ok {
		return typed.Code == code
	}
	return false
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if typed, ok := As(err); ok {
		return int(typed.Code)
	}
	return int(CodeInternal)
}

// TypeLabel returns the stable string used in rendered error envelopes.
func TypeLabel(err error) string {
	typed, ok := As(err)
	if !ok {
		return "internal_error"
	}
	switch typed.Code {
	case CodeValidation:
		return "validation_error"
	case CodeAuth:
		return "auth_error"
	case CodeRateLimited:
		return "rate_limit_exceeded"
	case CodeUnavailable:
		return "source_unavailable"
	case CodeUnsupportedChain:
		return "unsupported_chain"
	case CodeTimeout:
		return "source_timeout"
	case CodeAllSourcesFailed:
		return "all_sources_failed"
	case CodeWalletNotConnected:
		return "wallet_not_connected"
	case CodeQuoteExpired:
		return "quote_expired"
	case CodeExecutionFailed:
		return "swap_execution_failed"
	default:
		return "internal_error"
	}
}
