// Package otelsink records controller command invocations as OpenTelemetry
// spans. It is a pure observer: failures to export never reach the
// controller, and the sink carries identity metadata only.
package otelsink

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentdesk/paycapture/internal/core/domain"
	"github.com/agentdesk/paycapture/internal/core/ports"
)

const tracerName = "github.com/agentdesk/paycapture/controller"

// Sink implements ports.TelemetrySink on the global tracer provider.
type Sink struct {
	tracer trace.Tracer
}

var _ ports.TelemetrySink = (*Sink)(nil)

// New creates a sink using the globally registered tracer provider.
func New() *Sink {
	return &Sink{tracer: otel.Tracer(tracerName)}
}

// RecordCommand emits one span per public command invocation.
func (s *Sink) RecordCommand(ctx context.Context, name string, session domain.CaptureSession) {
	_, span := s.tracer.Start(ctx, "paycapture.command",
		trace.WithAttributes(
			attribute.String("command", name),
			attribute.String("agent.identity", session.AgentIdentity),
			attribute.String("call.id", session.CallID),
			attribute.String("session.id", session.SessionID),
			attribute.String("connector", session.Connector),
		))
	span.End()
}
