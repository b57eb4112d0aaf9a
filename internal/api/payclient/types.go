package payclient

import (
	"encoding/json"
	"fmt"

	"github.com/agentdesk/paycapture/internal/core/domain"
)

// createSessionRequest is the wire form of a start-session command.
type createSessionRequest struct {
	Connector           string           `json:"connector"`
	Currency            string           `json:"currency"`
	TokenType           domain.TokenType `json:"token_type"`
	SecurityCodeEnabled bool             `json:"security_code_enabled"`
	PostalCodeEnabled   bool             `json:"postal_code_enabled"`
	StatusCallbackURL   string           `json:"status_callback_url,omitempty"`
}

// createSessionResponse carries the platform-issued session id.
type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

// setFieldRequest selects the field the platform should prompt for next.
type setFieldRequest struct {
	Field             domain.FieldKind `json:"field"`
	StatusCallbackURL string           `json:"status_callback_url,omitempty"`
}

// changeStatusRequest terminates a session.
type changeStatusRequest struct {
	Status            domain.SessionStatus `json:"status"`
	StatusCallbackURL string               `json:"status_callback_url,omitempty"`
}

// apiError is the platform's error envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// parseErrorResponse extracts the error envelope from a non-2xx body.
func parseErrorResponse(body []byte) error {
	var envelope struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return nil
	}
	return envelope.Error
}
