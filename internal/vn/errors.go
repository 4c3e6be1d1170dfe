package vn

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected    = errors.New("vn: sensor not connected")
	ErrInvalidBaudRate = errors.New("vn: invalid baud rate")
	ErrTimeout         = errors.New("vn: timeout waiting for response")
	ErrDecode          = errors.New("vn: malformed packet")
)

// CommError is a communication fault on the link. It is transient: the
// caller may disconnect and retry, typically at another baud rate.
type CommError struct {
	Op   string
	Port string
	Baud int
	Err  error
}

func (e *CommError) Error() string {
	return fmt.Sprintf("vn: %s %s@%d: %v", e.Op, e.Port, e.Baud, e.Err)
}

func (e *CommError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a communication fault worth retrying.
func IsTransient(err error) bool {
	var ce *CommError
	return errors.As(err, &ce)
}
