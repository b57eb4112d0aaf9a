// Package ports defines the collaborator interfaces the capture controller
// depends on. Adapters live under internal/adapters and internal/api.
package ports

import (
	"context"

	"github.com/agentdesk/paycapture/internal/core/domain"
)

// StartRequest carries the configuration for a new remote capture session.
// The enabled flags are derived from the working capture order at start time.
type StartRequest struct {
	CallID              string
	Connector           string
	Currency            string
	TokenType           domain.TokenType
	SecurityCodeEnabled bool
	PostalCodeEnabled   bool
	StatusCallbackURL   string
}

// Commander issues commands to the remote capture-control API. All three
// operations are fire-and-observe: completion is learned later through the
// progress channel, except cancel/complete which are effective once the call
// returns without error. Implementations attach a fresh idempotency key to
// every request.
type Commander interface {
	// Start requests a new capture session and returns its opaque id.
	Start(ctx context.Context, req StartRequest) (sessionID string, err error)

	// SetActiveField tells the platform which field to prompt for next.
	SetActiveField(ctx context.Context, callID, sessionID string, field domain.FieldKind) error

	// ChangeStatus terminates the session with cancel or complete.
	ChangeStatus(ctx context.Context, callID, sessionID string, status domain.SessionStatus) error
}

// Channel is the abstract event-subscription collaborator over the real-time
// progress document collection. Subscriptions deliver every inbound
// notification to every registered handler; the controller is the final
// arbiter of relevance by session key.
type Channel interface {
	// Subscribe registers a handler for progress notifications under key.
	Subscribe(key string, handler func(domain.ProgressSnapshot)) error

	// Unsubscribe removes the handler registered under key.
	Unsubscribe(key string) error

	// SubscribeNewCalls registers a handler for inbound-call announcements,
	// used when no call id was supplied at attach time.
	SubscribeNewCalls(handler func(callID string)) error

	// Remove deletes the retained progress document for key. Best-effort:
	// callers log failures and move on.
	Remove(key string) error

	// Close releases the channel handle.
	Close() error
}

// EventPublisher receives every event the controller emits, in emission
// order. Implementations fan out to UI streams, journals, and tests.
type EventPublisher interface {
	Publish(event domain.Event)
}

// TelemetrySink observes public command invocations. It never influences
// control flow; a no-op implementation is always a valid substitute.
type TelemetrySink interface {
	RecordCommand(ctx context.Context, name string, session domain.CaptureSession)
}

// TokenSource supplies the bearer token for outbound API calls. Acquisition
// and refresh live outside this module.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// EventJournal persists emitted events as an audit trail.
type EventJournal interface {
	Append(ctx context.Context, event domain.Event) error
	ListByCall(ctx context.Context, callID string) ([]domain.Event, error)
	Close() error
}
