package chatws

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by Send when the socket is not open.
var ErrNotConnected = errors.New("chat socket is not connected")

// ErrEmptyToken is returned by Connect when no credential is supplied.
var ErrEmptyToken = errors.New("empty auth token")

var errDisconnected = errors.New("disconnected while connecting")

// ConnectionError reports a transport that failed to open.
type ConnectionError struct {
	URL    string
	Status int // HTTP status of a rejected handshake, 0 otherwise
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("connect %s: handshake status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// MalformedFrameError reports inbound data that could not be decoded.
// It is logged and never returned to callers.
type MalformedFrameError struct {
	Data []byte
	Err  error
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame (%d bytes): %v", len(e.Data), e.Err)
}

func (e *MalformedFrameError) Unwrap() error { return e.Err }
