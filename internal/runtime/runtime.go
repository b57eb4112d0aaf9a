// Package runtime wires the capture control plane together: configuration,
// the outbound commander, the webhook progress channel, the controller, the
// event broker with its journal subscriber, and the agent HTTP server.
// Runtime can be embedded in larger applications or run standalone.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/agentdesk/paycapture/internal/adapters/channel/webhook"
	journalsqlite "github.com/agentdesk/paycapture/internal/adapters/journal/sqlite"
	"github.com/agentdesk/paycapture/internal/adapters/telemetry/otelsink"
	"github.com/agentdesk/paycapture/internal/api/payclient"
	"github.com/agentdesk/paycapture/internal/controller"
	"github.com/agentdesk/paycapture/internal/core/domain"
	"github.com/agentdesk/paycapture/internal/core/ports"
	"github.com/agentdesk/paycapture/internal/events"
	"github.com/agentdesk/paycapture/internal/pkg/config"
	"github.com/agentdesk/paycapture/internal/server"
)

// Runtime owns the lifecycle of one capture controller and its collaborators.
type Runtime struct {
	cfg    *config.Config
	logger *slog.Logger

	// Injected overrides; built from config when nil.
	commander ports.Commander
	telemetry ports.TelemetrySink
	journal   ports.EventJournal
	tokens    ports.TokenSource

	broker  *events.Broker
	channel *webhook.Channel
	ctrl    *controller.Controller
	httpSrv *http.Server

	mu     sync.Mutex
	group  *errgroup.Group
	cancel context.CancelFunc
}

// New creates a Runtime with the given options. A config source is required.
func New(opts ...Option) (*Runtime, error) {
	rt := &Runtime{logger: slog.Default()}

	for _, opt := range opts {
		if err := opt(rt); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if rt.cfg == nil {
		return nil, fmt.Errorf("configuration required (use WithConfigFile or WithConfig)")
	}
	return rt, nil
}

// Controller exposes the capture controller for embedding callers.
func (rt *Runtime) Controller() *controller.Controller {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.ctrl
}

// Channel exposes the webhook progress channel, mainly for tests and for
// embedding callers that deliver notifications without HTTP.
func (rt *Runtime) Channel() *webhook.Channel {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.channel
}

// Start builds all components from configuration and starts the HTTP server.
// It returns once the server is listening; errors after that surface via
// Shutdown.
func (rt *Runtime) Start(ctx context.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	groupCtx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel
	rt.group, groupCtx = errgroup.WithContext(groupCtx)

	order, err := rt.cfg.Capture.FieldOrder()
	if err != nil {
		return err
	}

	rt.broker = events.NewBroker()
	rt.channel = webhook.New(rt.logger)

	if rt.commander == nil {
		tokens := rt.tokens
		if tokens == nil {
			tokens = payclient.StaticTokenSource(rt.cfg.API.Token)
		}
		opts := []payclient.ClientOption{
			payclient.WithHTTPClient(&http.Client{
				Transport: otelhttp.NewTransport(http.DefaultTransport),
				Timeout:   30 * time.Second,
			}),
			payclient.WithStatusCallbackURL(rt.cfg.Capture.StatusCallbackURL),
		}
		if rt.cfg.API.BaseURL != "" {
			opts = append(opts, payclient.WithBaseURL(rt.cfg.API.BaseURL))
		}
		rt.commander = payclient.NewClient(tokens, opts...)
	}

	if rt.telemetry == nil && rt.cfg.Telemetry.Enabled {
		rt.telemetry = otelsink.New()
	}

	if rt.journal == nil && rt.cfg.Journal.Type == "sqlite" {
		journal, err := journalsqlite.New(rt.cfg.Journal.SQLite.Path)
		if err != nil {
			return fmt.Errorf("open event journal: %w", err)
		}
		rt.journal = journal
	}

	ctrlOpts := []controller.Option{controller.WithLogger(rt.logger)}
	if rt.telemetry != nil {
		ctrlOpts = append(ctrlOpts, controller.WithTelemetry(rt.telemetry))
	}
	rt.ctrl, err = controller.New(controller.Config{
		AgentIdentity:     rt.cfg.Agent.Identity,
		Connector:         rt.cfg.Capture.Connector,
		Currency:          rt.cfg.Capture.Currency,
		TokenType:         domain.TokenType(rt.cfg.Capture.TokenType),
		StatusCallbackURL: rt.cfg.Capture.StatusCallbackURL,
		Order:             order,
	}, rt.commander, rt.channel, rt.broker, ctrlOpts...)
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}

	if rt.journal != nil {
		rt.group.Go(func() error {
			rt.consumeJournal(groupCtx)
			return nil
		})
	}

	agentAPI := server.New(rt.ctrl, rt.broker, rt.journal, rt.logger)

	router := chi.NewRouter()
	router.Mount("/v1", agentAPI.Routes())
	router.Mount("/hooks", rt.channel.Routes())

	rt.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", rt.cfg.Server.Port),
		Handler: router,
	}

	rt.group.Go(func() error {
		rt.logger.Info("server listening", slog.Int("port", rt.cfg.Server.Port))
		if err := rt.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	return nil
}

// consumeJournal copies every broker event into the journal until the
// runtime stops. Append failures are logged; the audit trail is advisory.
func (rt *Runtime) consumeJournal(ctx context.Context) {
	ch, cancel := rt.broker.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-ch:
			if !open {
				return
			}
			if err := rt.journal.Append(ctx, event); err != nil {
				rt.logger.Error("failed to journal event",
					slog.String("type", string(event.Type)),
					slog.String("error", err.Error()))
			}
		}
	}
}

// Shutdown stops the HTTP server, closes the broker and journal, and waits
// for background work to drain.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	var errs []error
	if rt.httpSrv != nil {
		if err := rt.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
	}
	if rt.broker != nil {
		rt.broker.Close()
	}
	if rt.cancel != nil {
		rt.cancel()
	}
	if rt.group != nil {
		if err := rt.group.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	return errors.Join(errs...)
}
