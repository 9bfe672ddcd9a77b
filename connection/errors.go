package connection

import (
	"context"
	"errors"

	"github.com/bellhopd/bellhop/platform"
)

// Common connection errors.
var (
	// ErrSwitchCooldown is returned when an eligible join/move is suppressed
	// because the community switched channels too recently. The action is
	// dropped, not queued; the next event re-evaluates from scratch.
	ErrSwitchCooldown = errors.New("switch cooldown active")

	// ErrStartupGrace is returned when a connection attempt is suppressed
	// during the startup grace period.
	ErrStartupGrace = errors.New("startup grace period active")

	// ErrNoSession is returned for session operations on a community with
	// no active session.
	ErrNoSession = errors.New("no active session")
)

// ConnectError provides detailed error information from connection actions.
type ConnectError struct {
	// Community and Channel identify where the action was aimed.
	Community string
	Channel   string

	// Op is the action: "join", "move", or "leave".
	Op string

	// Attempts is how many attempts were made before giving up.
	Attempts int

	// Cause is the underlying transport error.
	Cause error

	// Transient indicates the failure was retryable and the retry budget
	// ran out, as opposed to an explicit rejection.
	Transient bool
}

// Error implements the error interface.
func (e *ConnectError) Error() string {
	msg := e.Op + " " + e.Channel + " in " + e.Community + " failed"
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConnectError) Unwrap() error {
	return e.Cause
}

// IsTransient reports whether err is worth retrying with backoff.
// Timeouts and generic transport failures are transient; explicit platform
// rejections and invalid-session reports are not.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, platform.ErrSessionInvalid),
		errors.Is(err, platform.ErrChannelGone),
		errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce.Transient
	}
	return true
}
