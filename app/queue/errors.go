package queue

import "errors"

var (
	ErrClosed      = errors.New("queue: broker closed")
	ErrUnavailable = errors.New("queue: broker unavailable")
	ErrUnknownJob  = errors.New("queue: unknown delivery")
)

type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Terminal marks err as not worth retrying.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

func IsTerminal(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}
