package domain

import "time"

// Event is one item on the controller's public event stream. Events carry
// status metadata only; the Snapshot on card-update events is the masked
// progress mirror, never raw card data.
type Event struct {
	Type      EventType         `json:"type"`
	CallID    string            `json:"call_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Field     FieldKind         `json:"field,omitempty"`
	Snapshot  *ProgressSnapshot `json:"snapshot,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// EventType identifies the kind of controller event.
type EventType string

const (
	EventCallConnected        EventType = "call-connected"
	EventCallIDDiscovered     EventType = "call-id-discovered"
	EventCardUpdate           EventType = "card-update"
	EventCapturing            EventType = "capturing"
	EventCapturingCard        EventType = "capturing-card"
	EventCapturingSecurityKey EventType = "capturing-security-code"
	EventCapturingDate        EventType = "capturing-date"
	EventCaptureComplete      EventType = "capture-complete"
	EventCardReset            EventType = "card-reset"
	EventSecurityCodeReset    EventType = "security-code-reset"
	EventDateReset            EventType = "date-reset"
	EventCancelledCapture     EventType = "cancelled-capture"
	EventSubmitComplete       EventType = "submit-complete"
	EventStopCapturing        EventType = "stop-capturing"

	// EventCaptureError is advisory: a remote call behind a public command
	// failed and controller state is unchanged.
	EventCaptureError EventType = "capture-error"
)

// CapturingEventFor maps a field kind to its dedicated "now capturing" event.
// Postal code has no dedicated event; callers fall back to the generic
// capturing event with the field attached.
func CapturingEventFor(field FieldKind) (EventType, bool) {
	switch field {
	case FieldCardNumber:
		return EventCapturingCard, true
	case FieldSecurityCode:
		return EventCapturingSecurityKey, true
	case FieldExpirationDate:
		return EventCapturingDate, true
	}
	return "", false
}

// ResetEventFor maps a field kind to its reset event.
func ResetEventFor(field FieldKind) (EventType, bool) {
	switch field {
	case FieldCardNumber:
		return EventCardReset, true
	case FieldSecurityCode:
		return EventSecurityCodeReset, true
	case FieldExpirationDate:
		return EventDateReset, true
	}
	return "", false
}
