package transport

import "errors"

// Transport errors.
var (
	ErrNoKeystore       = errors.New("transport: keystore is required")
	ErrAlreadyStarted   = errors.New("transport: server already started")
	ErrClosed           = errors.New("transport: server closed")
	ErrUnexpectedRecord = errors.New("transport: unexpected record")
	ErrRejected         = errors.New("transport: authentication rejected")
)
