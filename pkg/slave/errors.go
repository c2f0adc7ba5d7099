package slave

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveRequest indicates Respond is called outside of a unicast
	// request being handled, or after its response window elapsed.
	ErrNoActiveRequest = errors.New("no active request")
	// ErrResponseAlreadySent indicates the request has been responded.
	ErrResponseAlreadySent = errors.New("response already sent")
	// ErrInvalidAddress indicates the address can't be used by a slave.
	ErrInvalidAddress = errors.New("invalid slave address")
	// ErrInvalidConfig indicates inconsistent timing configuration.
	ErrInvalidConfig = errors.New("invalid config")
)

// TransmitError wraps failures from the driver while sending a response.
type TransmitError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *TransmitError) Error() string {
	return fmt.Sprintf("transmit %s: %v", e.Op, e.Err)
}

// Unwrap returns the driver error.
func (e *TransmitError) Unwrap() error {
	return e.Err
}
