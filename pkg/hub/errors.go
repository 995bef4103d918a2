package hub

import "errors"

// Error taxonomy for hub operations. All of these are benign in normal
// operation except ErrResourceExhausted: fan-out callers skip gone
// connections, unknown-connection races are no-ops, and a missing method is
// reported back to the one caller that named it.
var (
	// ErrUnknownConnection means an operation referenced a connection id
	// that is no longer (or was never) registered. A connection racing its
	// own disconnect is expected behaviour, not a fault.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrConnectionGone means a send failed because the transport is
	// already closed. Fan-out callers must treat this as "skip silently".
	ErrConnectionGone = errors.New("connection gone")

	// ErrMethodNotFound means an inbound invocation named a target with no
	// registered handler. Reported to the calling client, never fatal.
	ErrMethodNotFound = errors.New("method not found")

	// ErrResourceExhausted means the registry cannot accept another
	// connection. Fatal to the single registration attempt only.
	ErrResourceExhausted = errors.New("connection registry exhausted")

	// ErrBackplaneUnavailable means a publish or subscribe against the
	// shared channel failed. The hub continues in local-only mode.
	ErrBackplaneUnavailable = errors.New("backplane unavailable")
)

// IsUnknownConnection returns true if the error is (or wraps) ErrUnknownConnection.
func IsUnknownConnection(err error) bool {
	return errors.Is(err, ErrUnknownConnection)
}

// IsConnectionGone returns true if the error is (or wraps) ErrConnectionGone.
func IsConnectionGone(err error) bool {
	return errors.Is(err, ErrConnectionGone)
}

// IsMethodNotFound returns true if the error is (or wraps) ErrMethodNotFound.
func IsMethodNotFound(err error) bool {
	return errors.Is(err, ErrMethodNotFound)
}
