package webhook

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentdesk/paycapture/internal/core/domain"
)

func TestSubscribe_ReceivesDispatchedSnapshots(t *testing.T) {
	c := New(nil)

	var got []domain.ProgressSnapshot
	if err := c.Subscribe("PK1", func(s domain.ProgressSnapshot) {
		got = append(got, s)
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	c.Dispatch(domain.ProgressSnapshot{SessionKey: "PK1", CaptureInProgress: true})
	// Mismatched keys are still forwarded; the controller arbitrates.
	c.Dispatch(domain.ProgressSnapshot{SessionKey: "PK-other"})

	if len(got) != 2 {
		t.Fatalf("received %d snapshots, want 2", len(got))
	}
	if got[1].SessionKey != "PK-other" {
		t.Errorf("second snapshot key = %q", got[1].SessionKey)
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	c := New(nil)

	count := 0
	c.Subscribe("PK1", func(domain.ProgressSnapshot) { count++ })
	c.Unsubscribe("PK1")
	c.Dispatch(domain.ProgressSnapshot{SessionKey: "PK1"})

	if count != 0 {
		t.Errorf("handler called %d times after unsubscribe", count)
	}
}

func TestRemove_DeletesRetainedDocument(t *testing.T) {
	c := New(nil)

	c.Dispatch(domain.ProgressSnapshot{SessionKey: "PK1", PartialResult: true})
	if _, ok := c.Document("PK1"); !ok {
		t.Fatal("expected retained document")
	}

	if err := c.Remove("PK1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok := c.Document("PK1"); ok {
		t.Error("document survived Remove")
	}
}

func TestClose_RejectsNewSubscriptions(t *testing.T) {
	c := New(nil)
	c.Close()

	if err := c.Subscribe("PK1", func(domain.ProgressSnapshot) {}); err == nil {
		t.Error("expected error subscribing on a closed channel")
	}
	if err := c.SubscribeNewCalls(func(string) {}); err == nil {
		t.Error("expected error subscribing on a closed channel")
	}
}

func TestHandleProgress_ValidPayloadDispatched(t *testing.T) {
	c := New(nil)

	var got domain.ProgressSnapshot
	c.Subscribe("PK1", func(s domain.ProgressSnapshot) { got = s })

	payload := `{
		"sessionKey": "PK1",
		"captureInProgress": true,
		"partialResult": false,
		"maskedResult": "4***",
		"requiredFields": ["security-code", "expiration-date"]
	}`
	req := httptest.NewRequest(http.MethodPost, "/progress", bytes.NewBufferString(payload))
	w := httptest.NewRecorder()
	c.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204 (%s)", w.Code, w.Body.String())
	}
	if got.SessionKey != "PK1" || !got.CaptureInProgress {
		t.Errorf("dispatched snapshot = %+v", got)
	}
	if len(got.Required) != 2 || got.Required[0] != domain.FieldSecurityCode {
		t.Errorf("required = %v", got.Required)
	}
}

func TestHandleProgress_SchemaViolationsRejected(t *testing.T) {
	c := New(nil)

	delivered := false
	c.Subscribe("PK1", func(domain.ProgressSnapshot) { delivered = true })

	cases := []struct {
		name    string
		payload string
	}{
		{"missing session key", `{"captureInProgress":true,"partialResult":false,"requiredFields":[]}`},
		{"unknown field kind", `{"sessionKey":"PK1","captureInProgress":true,"partialResult":false,"requiredFields":["iban"]}`},
		{"wrong flag type", `{"sessionKey":"PK1","captureInProgress":"yes","partialResult":false,"requiredFields":[]}`},
		{"not JSON", `progress!`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/progress", bytes.NewBufferString(tc.payload))
			w := httptest.NewRecorder()
			c.Routes().ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
	if delivered {
		t.Error("malformed payload reached a subscriber")
	}
}

func TestHandleNewCall_Announces(t *testing.T) {
	c := New(nil)

	var got string
	c.SubscribeNewCalls(func(callID string) { got = callID })

	req := httptest.NewRequest(http.MethodPost, "/calls", bytes.NewBufferString(`{"pstnCallId":"CA77"}`))
	w := httptest.NewRecorder()
	c.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if got != "CA77" {
		t.Errorf("announced call id = %q, want CA77", got)
	}
}
