package wire

import (
	"errors"
	"net"
)

// ErrIOTimeout classifies a socket deadline expiring mid read/write.
var ErrIOTimeout = errors.New("wire: i/o timeout")

// ClassifyIOError rewraps a net.Error that represents a timeout as
// ErrIOTimeout so callers can match it with errors.Is regardless of the
// concrete net package error type.
func ClassifyIOError(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrIOTimeout
	}
	return err
}
