package broker

import (
	"errors"
	"fmt"
)

// ErrNotLoggedIn signals a stale or missing broker session. The execution
// protocol recovers from it locally with a forced logout and re-login.
var ErrNotLoggedIn = errors.New("broker: not logged in")

// FatalError is a broker-classified failure that must not be retried:
// it aborts the current placement or poll immediately.
type FatalError struct {
	Kind string
	Err  error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker: fatal %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("broker: fatal %s", e.Kind)
}

func (e *FatalError) Unwrap() error { return e.Err }

// TransientError is a retryable failure kind. The engine does not retry it
// within the same tick; the next tick gets another chance.
type TransientError struct {
	Kind string
	Err  error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker: transient %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("broker: transient %s", e.Kind)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsFatal reports whether err is broker-classified fatal.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
