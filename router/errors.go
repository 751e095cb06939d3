package router

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable routing error type.
type Code string

const (
	// CodeProviderUnavailable marks one adapter failing or timing out. It
	// is always recovered locally and never surfaced on its own.
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
	// CodeNoPathFound means pathfinding and every fallback came up empty.
	CodeNoPathFound Code = "NO_PATH_FOUND"
	// CodeBridgeUnavailable means no bridge source quoted the cross-chain
	// leg. Distinct from NoPathFound so callers can message it properly.
	CodeBridgeUnavailable Code = "BRIDGE_UNAVAILABLE"
	// CodeInsufficientLiquidity means a path exists but its price impact
	// exceeds the safety ceiling. Carries the impact percentage.
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	// CodeInvalidRequest marks a malformed or unsupported request. Fatal,
	// returned before any fan-out.
	CodeInvalidRequest Code = "INVALID_REQUEST"
)

// Error is a typed routing error carrying a stable code.
type Error struct {
	Code    Code
	Message string
	Cause   error
	// ImpactPct is set for INSUFFICIENT_LIQUIDITY so the caller can decide
	// whether to proceed anyway.
	ImpactPct float64
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a typed routing error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError builds a typed routing error around a cause.
func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// AsError extracts the typed error from an error chain.
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the routing code of an error, or empty for untyped errors.
func CodeOf(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// sourceFailure records why one candidate source contributed nothing, so
// the aggregate no-route message can list every attempt.
type sourceFailure struct {
	Source string
	Err    error
}

func (f sourceFailure) String() string {
	return fmt.Sprintf("%s: %v", f.Source, f.Err)
}
