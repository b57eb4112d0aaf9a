// Package webhook implements the progress channel port over status callbacks:
// the capture platform POSTs item-update and new-call notifications to this
// adapter, which validates them and fans them out to subscribers. The adapter
// forwards every valid notification to every handler; relevance by session
// key is the controller's decision.
package webhook

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/agentdesk/paycapture/internal/core/domain"
	"github.com/agentdesk/paycapture/internal/core/ports"
)

// Channel receives platform callbacks and delivers them to subscribers. It
// retains the last notification per session key so Remove has a document to
// delete, mirroring the keyed document collection it stands in for.
type Channel struct {
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string]func(domain.ProgressSnapshot)
	newCalls []func(string)
	docs     map[string]domain.ProgressSnapshot
	closed   bool
}

var _ ports.Channel = (*Channel)(nil)

// New creates an empty channel.
func New(logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		logger:   logger,
		handlers: make(map[string]func(domain.ProgressSnapshot)),
		docs:     make(map[string]domain.ProgressSnapshot),
	}
}

// Subscribe registers handler under key. Every inbound item-update is
// delivered to every registered handler in delivery order.
func (c *Channel) Subscribe(key string, handler func(domain.ProgressSnapshot)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("channel closed")
	}
	c.handlers[key] = handler
	return nil
}

// Unsubscribe removes the handler registered under key.
func (c *Channel) Unsubscribe(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, key)
	return nil
}

// SubscribeNewCalls registers a handler for inbound-call announcements.
func (c *Channel) SubscribeNewCalls(handler func(callID string)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("channel closed")
	}
	c.newCalls = append(c.newCalls, handler)
	return nil
}

// Remove deletes the retained document for key.
func (c *Channel) Remove(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, key)
	return nil
}

// Close drops all subscriptions and rejects further ones.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.handlers = make(map[string]func(domain.ProgressSnapshot))
	c.newCalls = nil
	return nil
}

// Dispatch retains snap and delivers it to all subscribers.
func (c *Channel) Dispatch(snap domain.ProgressSnapshot) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.docs[snap.SessionKey] = snap
	handlers := make([]func(domain.ProgressSnapshot), 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(snap)
	}
}

// DispatchNewCall delivers an inbound-call announcement.
func (c *Channel) DispatchNewCall(callID string) {
	c.mu.Lock()
	handlers := append([]func(string){}, c.newCalls...)
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	for _, h := range handlers {
		h(callID)
	}
}

// Document returns the retained snapshot for key, if any.
func (c *Channel) Document(key string) (domain.ProgressSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[key]
	return doc, ok
}

// Routes returns the callback endpoints the platform posts to.
func (c *Channel) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/progress", c.handleProgress)
	r.Post("/calls", c.handleNewCall)
	return r
}

func (c *Channel) handleProgress(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if err := validate(progressSchema, body); err != nil {
		c.logger.Warn("rejecting malformed progress callback", slog.String("error", err.Error()))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var snap domain.ProgressSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c.logger.Debug("progress callback received",
		slog.String("session_key", snap.SessionKey),
		slog.Bool("capture_in_progress", snap.CaptureInProgress),
		slog.Int("required_fields", len(snap.Required)))

	c.Dispatch(snap)
	w.WriteHeader(http.StatusNoContent)
}

func (c *Channel) handleNewCall(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if err := validate(newCallSchema, body); err != nil {
		c.logger.Warn("rejecting malformed new-call callback", slog.String("error", err.Error()))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var announcement struct {
		PSTNCallID string `json:"pstnCallId"`
	}
	if err := json.Unmarshal(body, &announcement); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c.DispatchNewCall(announcement.PSTNCallID)
	w.WriteHeader(http.StatusNoContent)
}

func validate(schema *jsonschema.Schema, body []byte) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("schema violation: %w", err)
	}
	return nil
}
