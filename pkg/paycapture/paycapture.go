// Package paycapture provides the public API for embedding the capture
// control plane. This is the stable API for external consumers.
package paycapture

import (
	"github.com/agentdesk/paycapture/internal/runtime"
)

// Runtime is the main entry point for running the capture control plane.
// See internal/runtime.Runtime for full documentation.
type Runtime = runtime.Runtime

// Option is a functional option for configuring a Runtime.
type Option = runtime.Option

// New creates a new Runtime with the given options.
// Example:
//
//	rt, err := paycapture.New(
//	    paycapture.WithConfigFile("config.yaml"),
//	)
var New = runtime.New

// Configuration options
var (
	WithConfigFile = runtime.WithConfigFile
	WithConfig     = runtime.WithConfig
	WithLogger     = runtime.WithLogger

	// Collaborator overrides
	WithCommander     = runtime.WithCommander
	WithTokenSource   = runtime.WithTokenSource
	WithTelemetrySink = runtime.WithTelemetrySink
	WithJournal       = runtime.WithJournal
)
