// Package domain holds the value types of the capture control plane:
// field kinds, the capture order, session identity, and progress snapshots.
// Nothing in this package ever carries captured card values — only status
// metadata reported by the capture platform.
package domain

// FieldKind identifies one discrete datum collected from the caller's keypad.
type FieldKind string

const (
	FieldCardNumber     FieldKind = "card-number"
	FieldSecurityCode   FieldKind = "security-code"
	FieldExpirationDate FieldKind = "expiration-date"
	FieldPostalCode     FieldKind = "postal-code"
)

// Valid reports whether k is one of the shipped field kinds.
func (k FieldKind) Valid() bool {
	switch k {
	case FieldCardNumber, FieldSecurityCode, FieldExpirationDate, FieldPostalCode:
		return true
	}
	return false
}

// TokenType selects what the capture platform tokenizes the card into.
type TokenType string

const (
	TokenOneTime  TokenType = "one-time"
	TokenReusable TokenType = "reusable"
)

// SessionStatus is a terminal status applied to a remote capture session.
type SessionStatus string

const (
	StatusCancel   SessionStatus = "cancel"
	StatusComplete SessionStatus = "complete"
)

// CaptureSession identifies one end-to-end capture attempt. SessionID is
// opaque and issued by the remote commander on start; it is empty while no
// session is live.
type CaptureSession struct {
	SessionID         string
	CallID            string
	AgentIdentity     string
	Connector         string
	Currency          string
	TokenType         TokenType
	StatusCallbackURL string
}

// ProgressSnapshot is the last externally-reported state of the active
// capture session. It is replaced wholesale on every notification; the
// controller never mutates it field by field.
type ProgressSnapshot struct {
	// SessionKey is the session id embedded in the notification. The
	// controller discards snapshots whose key is not the live session.
	SessionKey string `json:"sessionKey"`

	// CaptureInProgress is false between captures; the progress-check
	// algorithm is a no-op while it is false.
	CaptureInProgress bool `json:"captureInProgress"`

	// PartialResult reports that the platform still needs more input for
	// the active field.
	PartialResult bool `json:"partialResult"`

	// MaskedResult is the platform's masked rendering of what has been
	// captured so far for the active field. Opaque to the controller.
	MaskedResult string `json:"maskedResult,omitempty"`

	// Required is the set of field kinds the platform still needs before
	// the session can complete.
	Required []FieldKind `json:"requiredFields"`
}

// Requires reports whether the snapshot still lists k as required.
func (s ProgressSnapshot) Requires(k FieldKind) bool {
	for _, f := range s.Required {
		if f == k {
			return true
		}
	}
	return false
}
