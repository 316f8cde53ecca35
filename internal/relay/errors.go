package relay

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Configuration errors reported by the Builder. They surface at Build
// time and are never silently recovered.
var (
	ErrNoTerminal        = errors.New("no terminal handler registered")
	ErrTerminalRedefined = errors.New("terminal handler registered more than once")
)

// StatusError is a handler error carrying the HTTP status the adapter
// should answer with. Any enclosing middleware may still catch it and
// recast it into a Response of its own before it reaches the adapter.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }
