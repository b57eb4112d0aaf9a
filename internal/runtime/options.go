package runtime

import (
	"fmt"
	"log/slog"

	"github.com/agentdesk/paycapture/internal/core/ports"
	"github.com/agentdesk/paycapture/internal/pkg/config"
)

// Option is a functional option for configuring a Runtime.
type Option func(*Runtime) error

// WithConfigFile loads configuration from a YAML file, overlaid with
// PAYCAP_-prefixed environment variables.
func WithConfigFile(path string) Option {
	return func(rt *Runtime) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		rt.cfg = cfg
		return nil
	}
}

// WithConfig injects an already-built configuration.
func WithConfig(cfg *config.Config) Option {
	return func(rt *Runtime) error {
		rt.cfg = cfg
		return nil
	}
}

// WithLogger sets the runtime logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rt *Runtime) error {
		rt.logger = logger
		return nil
	}
}

// WithCommander overrides the capture-control API client. Used by embedders
// and tests that stand in for the remote platform.
func WithCommander(commander ports.Commander) Option {
	return func(rt *Runtime) error {
		rt.commander = commander
		return nil
	}
}

// WithTokenSource overrides the bearer-token source for the default
// commander.
func WithTokenSource(tokens ports.TokenSource) Option {
	return func(rt *Runtime) error {
		rt.tokens = tokens
		return nil
	}
}

// WithTelemetrySink overrides the telemetry sink regardless of the
// telemetry.enabled setting.
func WithTelemetrySink(sink ports.TelemetrySink) Option {
	return func(rt *Runtime) error {
		rt.telemetry = sink
		return nil
	}
}

// WithJournal overrides the event journal regardless of the journal.type
// setting.
func WithJournal(journal ports.EventJournal) Option {
	return func(rt *Runtime) error {
		rt.journal = journal
		return nil
	}
}
