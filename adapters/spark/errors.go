package spark

import (
	"errors"
	"fmt"
)

var (
	// ErrSigning means the authorization token could not be built. No
	// connection is attempted.
	ErrSigning = errors.New("spark: signing failed")
	// ErrTransport covers dial, write and read failures of the socket.
	ErrTransport = errors.New("spark: transport error")
	// ErrProtocol is matched by every *APIError.
	ErrProtocol = errors.New("spark: api error")
	// ErrDecode means an inbound frame was not valid JSON.
	ErrDecode = errors.New("spark: malformed frame")
	// ErrCanceled is reported when Close or the caller's context ends a
	// session before the server finished it.
	ErrCanceled = errors.New("spark: session canceled")
	// ErrBusy is returned by a send issued while another session is active.
	ErrBusy = errors.New("spark: session already in progress")
)

// APIError is a non-zero status code reported in a server frame
type APIError struct {
	Code    int
	Message string
	SID     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spark api error %d: %s", e.Code, e.Message)
}

// Is makes errors.Is(err, ErrProtocol) hold for API errors
func (e *APIError) Is(target error) bool {
	return target == ErrProtocol
}
