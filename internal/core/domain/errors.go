package domain

import (
	"errors"
	"fmt"
)

// ErrStaleSession marks a progress notification whose session key does not
// match the live session. Stale notifications are discarded, never surfaced.
var ErrStaleSession = errors.New("notification references a stale session")

// ErrInvalidTransition is returned when a public command is not legal in the
// controller's current state.
var ErrInvalidTransition = errors.New("command not valid in current state")

// RemoteCommandError reports that the capture-control API rejected a command
// or the transport failed. The controller never retries; it logs and leaves
// state untouched so the agent can reissue the command.
type RemoteCommandError struct {
	Op         string // start, set-active-field, change-status
	CallID     string
	SessionID  string
	StatusCode int // zero on transport failure
	Err        error
}

func (e *RemoteCommandError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote %s failed (status %d, call %s, session %s): %v",
			e.Op, e.StatusCode, e.CallID, e.SessionID, e.Err)
	}
	return fmt.Sprintf("remote %s failed (call %s, session %s): %v", e.Op, e.CallID, e.SessionID, e.Err)
}

func (e *RemoteCommandError) Unwrap() error { return e.Err }

// ChannelSubscriptionError reports a failed subscribe or unsubscribe on the
// progress channel. Subscription failures during attach are surfaced to the
// caller: without a working subscription no progress can ever arrive.
type ChannelSubscriptionError struct {
	Key string
	Err error
}

func (e *ChannelSubscriptionError) Error() string {
	return fmt.Sprintf("progress channel subscription %q failed: %v", e.Key, e.Err)
}

func (e *ChannelSubscriptionError) Unwrap() error { return e.Err }
