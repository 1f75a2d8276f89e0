package dxlink

import "errors"

var (
	// ErrUnauthorized means the feed rejected the streaming token (or the
	// auth handshake timed out). Terminal for the connection; the caller
	// should refresh credentials before trying again.
	ErrUnauthorized = errors.New("feed authorization failed")

	// ErrConnection is a transport-level failure: dial error, reset,
	// unexpected disconnect. The whole fetch may be retried by the caller.
	ErrConnection = errors.New("feed connection failed")

	// ErrProtocol is a malformed or out-of-order server message. Aborts
	// the current fetch.
	ErrProtocol = errors.New("feed protocol violation")
)
