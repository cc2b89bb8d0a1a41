package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"
)

// classMarker is implemented by every typed error in this package so callers
// can classify an error chain without a long type switch.
type classMarker interface {
	error
	isTekhsiError()
}

// ConnectionError indicates an RPC against the instrument failed at the
// connection level (Connect, Disconnect, AvailableNames, or a waveform stream
// whose transport reports the peer unavailable), or a liveness check on a
// session that never connected. Building one does not change the session's
// state; the session goes Broken only through its keep-alive loop.
type ConnectionError struct {
	Op  string // e.g. "connect", "disconnect", "symbols.refresh", "check_live"
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connection error: %s", e.Op)
	}
	return fmt.Sprintf("connection error: %s: %v", e.Op, e.Err)
}
func (e *ConnectionError) Unwrap() error  { return e.Err }
func (e *ConnectionError) isTekhsiError() {}

// ProtocolError indicates the waveform stream violated the header-first /
// chunk-length / single-trans-id contract described by the wire protocol.
type ProtocolError struct {
	Op  string // e.g. "stream.fetch_raw", "stream.fetch_raw.header", "waveform.build"
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("protocol error: %s", e.Op)
	}
	return fmt.Sprintf("protocol error: %s: %v", e.Op, e.Err)
}
func (e *ProtocolError) Unwrap() error  { return e.Err }
func (e *ProtocolError) isTekhsiError() {}

// UnknownSymbolError is returned by GetData for a symbol absent from the
// committed bundle.
type UnknownSymbolError struct {
	Symbol string
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("unknown symbol: %q", e.Symbol)
}
func (e *UnknownSymbolError) isTekhsiError() {}

// NoAccessScopeError is returned by GetData called outside an AccessData scope.
type NoAccessScopeError struct{}

func (e *NoAccessScopeError) Error() string  { return "get_data called outside an access_data scope" }
func (e *NoAccessScopeError) isTekhsiError() {}

// TimeoutError indicates a waveform-stream RPC the instrument did not answer
// in time (a DeadlineExceeded status). A coordinator wait bounded by a
// context deadline returns the context's own error instead, not a
// TimeoutError; IsTimeout recognizes both.
type TimeoutError struct {
	Op       string
	Duration time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (after %s)", e.Op, e.Duration)
	if e.Err != nil {
		return base + ": " + e.Err.Error()
	}
	return base
}
func (e *TimeoutError) Unwrap() error  { return e.Err }
func (e *TimeoutError) isTekhsiError() {}

// SessionBrokenError is returned to a caller waiting on the coordinator, or
// entering AccessData, after KeepAlive has failed three consecutive times.
type SessionBrokenError struct{}

func (e *SessionBrokenError) Error() string  { return "session is broken: keep-alive failed" }
func (e *SessionBrokenError) isTekhsiError() {}

// SessionClosedError is returned to any operation attempted after Close.
type SessionClosedError struct{}

func (e *SessionClosedError) Error() string  { return "session is closed" }
func (e *SessionClosedError) isTekhsiError() {}

// filterError wraps a panic or error raised by a user-supplied acceptance
// filter. It never escapes the pipeline: filterError always means "reject".
type filterError struct {
	Err error
}

func (e *filterError) Error() string  { return fmt.Sprintf("acceptance filter error: %v", e.Err) }
func (e *filterError) Unwrap() error  { return e.Err }
func (e *filterError) isTekhsiError() {}

// Constructors ---------------------------------------------------------------

func NewConnectionError(op string, cause error) error { return &ConnectionError{Op: op, Err: cause} }
func NewProtocolError(op string, cause error) error   { return &ProtocolError{Op: op, Err: cause} }
func NewUnknownSymbolError(symbol string) error       { return &UnknownSymbolError{Symbol: symbol} }
func NewNoAccessScopeError() error                    { return &NoAccessScopeError{} }
func NewTimeoutError(op string, d time.Duration, cause error) error {
	return &TimeoutError{Op: op, Duration: d, Err: cause}
}
func NewSessionBrokenError() error     { return &SessionBrokenError{} }
func NewSessionClosedError() error     { return &SessionClosedError{} }
func NewFilterError(cause error) error { return &filterError{Err: cause} }

// Classification helpers -----------------------------------------------------

// IsTimeout reports whether err is (or wraps) a TimeoutError, a context
// deadline, or any error exposing Timeout() bool that returns true.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if stdErrors.As(err, &te) {
		return true
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var toErr interface{ Timeout() bool }
	if stdErrors.As(err, &toErr) && toErr.Timeout() {
		return true
	}
	return false
}

// IsProtocolError reports whether the error chain contains a ProtocolError.
func IsProtocolError(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProtocolError
	return stdErrors.As(err, &pe)
}

// IsSessionBroken reports whether the error chain contains a SessionBrokenError.
func IsSessionBroken(err error) bool {
	if err == nil {
		return false
	}
	var se *SessionBrokenError
	return stdErrors.As(err, &se)
}

// IsFilterError reports whether err originated from an acceptance filter
// (the error filter.Apply returns for a panicking filter).
func IsFilterError(err error) bool {
	if err == nil {
		return false
	}
	var fe *filterError
	return stdErrors.As(err, &fe)
}

// Is reports whether err is any typed error defined by this package.
func Is(err error) bool {
	if err == nil {
		return false
	}
	var cm classMarker
	return stdErrors.As(err, &cm)
}

// Usage pattern example:
//
//	if _, err := client.Connect(ctx, &wire.ConnectRequest{Name: name}); err != nil {
//	    return NewConnectionError("connect", fmt.Errorf("dial: %w", err))
//	}
//
// Keep layering context with fmt.Errorf("...: %w", err).
