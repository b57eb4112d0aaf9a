// Package controller implements the capture sequencing state machine. The
// Controller owns the working capture order and the live session identity,
// reacts to progress notifications from the channel, issues commands through
// the Commander, and emits the public event stream.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentdesk/paycapture/internal/core/domain"
	"github.com/agentdesk/paycapture/internal/core/ports"
)

// State is the controller's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateAttached  State = "attached"
	StateCapturing State = "capturing"
)

// Config carries the per-deployment capture settings. Order is the immutable
// template the working order resets to on every capture attempt.
type Config struct {
	AgentIdentity     string
	Connector         string
	Currency          string
	TokenType         domain.TokenType
	StatusCallbackURL string
	Order             []domain.FieldKind
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithTelemetry sets the telemetry sink. Absent a sink, command invocations
// are discarded silently.
func WithTelemetry(sink ports.TelemetrySink) Option {
	return func(c *Controller) { c.telemetry = sink }
}

// Controller is the sole mutator of the capture order and session identity.
// All transitions run serially under one mutex; remote calls happen inside
// the transition that needs them and their failures never change state.
type Controller struct {
	cmd       ports.Commander
	channel   ports.Channel
	events    ports.EventPublisher
	telemetry ports.TelemetrySink
	logger    *slog.Logger

	cfg Config

	mu        sync.Mutex
	state     State
	callID    string
	sessionID string
	order     *domain.CaptureOrder
	snapshot  domain.ProgressSnapshot
}

// New creates a controller in the Idle state.
func New(cfg Config, cmd ports.Commander, channel ports.Channel, events ports.EventPublisher, opts ...Option) (*Controller, error) {
	if cmd == nil {
		return nil, fmt.Errorf("commander required")
	}
	if channel == nil {
		return nil, fmt.Errorf("progress channel required")
	}
	if events == nil {
		return nil, fmt.Errorf("event publisher required")
	}

	order, err := domain.NewCaptureOrder(cfg.Order...)
	if err != nil {
		return nil, fmt.Errorf("invalid capture order: %w", err)
	}

	c := &Controller{
		cmd:       cmd,
		channel:   channel,
		events:    events,
		telemetry: noopSink{},
		logger:    slog.Default(),
		cfg:       cfg,
		state:     StateIdle,
		order:     order,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Attach binds the controller to a voice call. With a call id it transitions
// to Attached immediately; without one it subscribes to the inbound-call
// stream and attaches when the first announcement arrives. A subscription
// failure is surfaced: no progress is possible without the channel.
func (c *Controller) Attach(ctx context.Context, callID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(ctx, "attach")

	if c.state == StateCapturing {
		return fmt.Errorf("attach while capturing: %w", domain.ErrInvalidTransition)
	}

	if callID != "" {
		c.callID = callID
		c.state = StateAttached
		c.emit(domain.Event{Type: domain.EventCallConnected})
		return nil
	}

	if err := c.channel.SubscribeNewCalls(c.onNewCall); err != nil {
		subErr := &domain.ChannelSubscriptionError{Key: "new-calls", Err: err}
		c.logger.Error("new-call subscription failed", slog.String("error", subErr.Error()))
		return subErr
	}
	return nil
}

func (c *Controller) onNewCall(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		c.logger.Debug("ignoring inbound-call announcement while attached",
			slog.String("call_id", callID))
		return
	}
	c.callID = callID
	c.state = StateAttached
	c.emit(domain.Event{Type: domain.EventCallIDDiscovered})
}

// StartCapture resets the working order to the template, starts a remote
// session, subscribes to its progress, and arms capture of the first field.
func (c *Controller) StartCapture(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(ctx, "start-capture")

	if c.state != StateAttached {
		return fmt.Errorf("start-capture in state %s: %w", c.state, domain.ErrInvalidTransition)
	}

	c.order.Reset()

	sessionID, err := c.cmd.Start(ctx, ports.StartRequest{
		CallID:              c.callID,
		Connector:           c.cfg.Connector,
		Currency:            c.cfg.Currency,
		TokenType:           c.cfg.TokenType,
		SecurityCodeEnabled: c.order.Contains(domain.FieldSecurityCode),
		PostalCodeEnabled:   c.order.Contains(domain.FieldPostalCode),
		StatusCallbackURL:   c.cfg.StatusCallbackURL,
	})
	if err != nil {
		c.fail("start", err)
		return err
	}

	if err := c.channel.Subscribe(sessionID, c.onProgress); err != nil {
		subErr := &domain.ChannelSubscriptionError{Key: sessionID, Err: err}
		c.logger.Error("progress subscription failed, abandoning session",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		// The remote session exists but can never report back to us.
		if cancelErr := c.cmd.ChangeStatus(ctx, c.callID, sessionID, domain.StatusCancel); cancelErr != nil {
			c.logger.Warn("failed to cancel unreachable session",
				slog.String("session_id", sessionID),
				slog.String("error", cancelErr.Error()))
		}
		return subErr
	}

	c.sessionID = sessionID
	c.snapshot = domain.ProgressSnapshot{}
	c.state = StateCapturing
	c.emit(domain.Event{Type: domain.EventCapturing})

	active, _ := c.order.PeekActive()
	if err := c.cmd.SetActiveField(ctx, c.callID, sessionID, active); err != nil {
		// The session is live; the agent re-arms with a reset command.
		c.fail("set-active-field", err)
		return err
	}
	c.emitCapturingField(active)
	return nil
}

// onProgress applies a progress notification. Notifications for a session
// other than the live one are discarded; each notification is a full-state
// replacement, so duplicates and reordered deliveries are idempotent.
func (c *Controller) onProgress(snap domain.ProgressSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID == "" || snap.SessionKey != c.sessionID {
		c.logger.Debug("discarding progress notification",
			slog.String("session_key", snap.SessionKey),
			slog.String("reason", domain.ErrStaleSession.Error()))
		return
	}

	c.snapshot = snap
	copied := snap
	c.emit(domain.Event{Type: domain.EventCardUpdate, Snapshot: &copied})

	if c.state != StateCapturing || !snap.CaptureInProgress {
		return
	}

	active, ok := c.order.PeekActive()
	if !ok {
		if len(snap.Required) == 0 {
			c.complete()
		}
		return
	}

	switch {
	case snap.Requires(active):
		// Still waiting on the active field.

	case len(snap.Required) > 0:
		// The active field is done; always take the current front of the
		// working order, never the required set's own ordering.
		remaining := c.order.Remaining()
		if len(remaining) < 2 {
			c.logger.Warn("platform still requires fields but the order is drained",
				slog.String("session_id", c.sessionID))
			return
		}
		next := remaining[1]
		if err := c.cmd.SetActiveField(context.Background(), c.callID, c.sessionID, next); err != nil {
			c.fail("set-active-field", err)
			return
		}
		c.order.Advance()
		c.emitCapturingField(next)

	default:
		c.complete()
	}
}

// complete ends the capture locally. The remote side reached the
// empty-required state on its own; completing the session there is the
// separate, explicit SubmitCapture action.
func (c *Controller) complete() {
	c.state = StateAttached
	c.emit(domain.Event{Type: domain.EventCaptureComplete})
}

// ResetCard re-arms capture of the card number.
func (c *Controller) ResetCard(ctx context.Context) error {
	return c.resetField(ctx, "reset-card", domain.FieldCardNumber)
}

// ResetSecurityCode re-arms capture of the security code.
func (c *Controller) ResetSecurityCode(ctx context.Context) error {
	return c.resetField(ctx, "reset-security-code", domain.FieldSecurityCode)
}

// ResetDate re-arms capture of the expiration date.
func (c *Controller) ResetDate(ctx context.Context) error {
	return c.resetField(ctx, "reset-date", domain.FieldExpirationDate)
}

func (c *Controller) resetField(ctx context.Context, command string, field domain.FieldKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(ctx, command)

	if c.state != StateCapturing {
		return fmt.Errorf("%s in state %s: %w", command, c.state, domain.ErrInvalidTransition)
	}

	if changed := c.order.Prepend(field); changed {
		if event, ok := domain.ResetEventFor(field); ok {
			c.emit(domain.Event{Type: event, Field: field})
		}
	}

	// Re-issued even when the order did not change: the agent may want to
	// re-arm capture for the field that is already active.
	if err := c.cmd.SetActiveField(ctx, c.callID, c.sessionID, field); err != nil {
		c.fail("set-active-field", err)
		return err
	}
	return nil
}

// CancelCapture terminates the live session and returns to Attached. The
// retained progress document is removed best-effort.
func (c *Controller) CancelCapture(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(ctx, "cancel-capture")

	if c.sessionID == "" {
		return fmt.Errorf("cancel-capture without a session: %w", domain.ErrInvalidTransition)
	}

	if err := c.cmd.ChangeStatus(ctx, c.callID, c.sessionID, domain.StatusCancel); err != nil {
		c.fail("change-status", err)
		return err
	}

	if err := c.channel.Remove(c.sessionID); err != nil {
		c.logger.Warn("failed to remove progress document",
			slog.String("session_id", c.sessionID),
			slog.String("error", err.Error()))
	}
	if err := c.channel.Unsubscribe(c.sessionID); err != nil {
		c.logger.Warn("failed to unsubscribe progress",
			slog.String("session_id", c.sessionID),
			slog.String("error", err.Error()))
	}

	c.sessionID = ""
	c.state = StateAttached
	c.emit(domain.Event{Type: domain.EventCancelledCapture})
	return nil
}

// SubmitCapture marks the session complete on the platform. The working
// order is left untouched.
func (c *Controller) SubmitCapture(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(ctx, "submit-capture")

	if c.sessionID == "" {
		return fmt.Errorf("submit-capture without a session: %w", domain.ErrInvalidTransition)
	}

	if err := c.cmd.ChangeStatus(ctx, c.callID, c.sessionID, domain.StatusComplete); err != nil {
		c.fail("change-status", err)
		return err
	}

	if c.state == StateCapturing {
		c.state = StateAttached
	}
	c.emit(domain.Event{Type: domain.EventSubmitComplete})
	return nil
}

// UpdateCallSID rebinds the call id. Callable in any state; an in-progress
// capture order is left untouched.
func (c *Controller) UpdateCallSID(ctx context.Context, callID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(ctx, "update-call-sid")

	if callID == "" {
		return fmt.Errorf("update-call-sid requires a call id")
	}
	c.callID = callID
	if c.state == StateIdle {
		c.state = StateAttached
	}
	c.emit(domain.Event{Type: domain.EventCallConnected})
	return nil
}

// Detach unsubscribes from the progress channel, releases the channel handle
// and returns the controller to Idle. A fresh Attach is required afterwards.
func (c *Controller) Detach(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(ctx, "detach")

	if c.sessionID != "" {
		if err := c.channel.Unsubscribe(c.sessionID); err != nil {
			c.logger.Warn("failed to unsubscribe progress",
				slog.String("session_id", c.sessionID),
				slog.String("error", err.Error()))
		}
	}
	if err := c.channel.Close(); err != nil {
		c.logger.Warn("failed to release channel handle", slog.String("error", err.Error()))
	}

	c.emit(domain.Event{Type: domain.EventStopCapturing})
	c.sessionID = ""
	c.callID = ""
	c.state = StateIdle
	return nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CallID returns the bound call id, empty while Idle.
func (c *Controller) CallID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callID
}

// SessionID returns the live session id, empty when no session exists.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Snapshot returns the last-known remote progress state.
func (c *Controller) Snapshot() domain.ProgressSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Remaining returns a copy of the working capture order.
func (c *Controller) Remaining() []domain.FieldKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Remaining()
}

// emit stamps and publishes an event. Callers hold c.mu.
func (c *Controller) emit(event domain.Event) {
	event.CallID = c.callID
	event.SessionID = c.sessionID
	event.Timestamp = time.Now().UTC()
	c.events.Publish(event)
}

// emitCapturingField emits the field-specific "now capturing" event, falling
// back to the generic capturing event for fields without a dedicated one.
func (c *Controller) emitCapturingField(field domain.FieldKind) {
	if event, ok := domain.CapturingEventFor(field); ok {
		c.emit(domain.Event{Type: event, Field: field})
		return
	}
	c.emit(domain.Event{Type: domain.EventCapturing, Field: field})
}

// fail logs a remote-call failure and publishes the advisory error event.
// Controller state is never changed here.
func (c *Controller) fail(op string, err error) {
	c.logger.Error("remote command failed",
		slog.String("operation", op),
		slog.String("call_id", c.callID),
		slog.String("session_id", c.sessionID),
		slog.String("error", err.Error()))
	c.emit(domain.Event{Type: domain.EventCaptureError, Error: err.Error()})
}

// record forwards a command invocation to the telemetry sink. Callers hold
// c.mu so the identity fields are a consistent view.
func (c *Controller) record(ctx context.Context, name string) {
	c.telemetry.RecordCommand(ctx, name, domain.CaptureSession{
		SessionID:         c.sessionID,
		CallID:            c.callID,
		AgentIdentity:     c.cfg.AgentIdentity,
		Connector:         c.cfg.Connector,
		Currency:          c.cfg.Currency,
		TokenType:         c.cfg.TokenType,
		StatusCallbackURL: c.cfg.StatusCallbackURL,
	})
}

// noopSink discards telemetry. Default when no sink is configured.
type noopSink struct{}

func (noopSink) RecordCommand(context.Context, string, domain.CaptureSession) {}
