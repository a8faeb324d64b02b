// internal/game/errors.go
package game

import "fmt"

// InvalidActionError signals a game rule violation by an otherwise well-formed
// request. It is always recoverable: the session reports the reason back to the
// requester and leaves the game state untouched. Any other error coming out of
// the engine is a programming error.
type InvalidActionError struct {
	Reason string
}

func (e *InvalidActionError) Error() string { return e.Reason }

func invalidActionf(format string, args ...interface{}) *InvalidActionError {
	return &InvalidActionError{Reason: fmt.Sprintf(format, args...)}
}

// Sentinel rule violations that the connection handshake needs to tell apart
// from generic invalid actions. Compare with errors.Is.
var (
	ErrNameTaken  = &InvalidActionError{Reason: "Name is taken"}
	ErrColorTaken = &InvalidActionError{Reason: "Color is taken"}
)
