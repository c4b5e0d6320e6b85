package wsclient

import "errors"

// Domain-specific errors for websocket transport operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUpgradeRejected is returned when the server refuses the websocket
	// handshake. A 409 class rejection usually means the platform still
	// holds state from a prior session; the reconnect scheduler retries
	// after the settle delay.
	ErrUpgradeRejected = errors.New("wsclient: websocket upgrade rejected")

	// ErrTransportFault is returned for post-connect I/O failures and
	// unexpected closes.
	ErrTransportFault = errors.New("wsclient: transport fault")

	// ErrMalformedMessage is returned when an inbound message does not
	// follow the header/body envelope layout.
	ErrMalformedMessage = errors.New("wsclient: malformed notification message")

	// ErrDisconnectFailed is returned when the bounded disconnect retries
	// are exhausted. Callers log it; the session may still be half-open
	// server-side until the platform times it out.
	ErrDisconnectFailed = errors.New("wsclient: disconnect failed")
)
