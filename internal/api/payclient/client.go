// Package payclient is the HTTP client for the capture-control API. It
// implements ports.Commander: three request/response operations, each carrying
// a fresh idempotency key so transport-level retries de-duplicate server-side.
package payclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentdesk/paycapture/internal/core/domain"
	"github.com/agentdesk/paycapture/internal/core/ports"
)

const defaultBaseURL = "https://api.capture.example.com"

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithStatusCallbackURL sets the callback target forwarded on every command.
func WithStatusCallbackURL(url string) ClientOption {
	return func(c *Client) {
		c.statusCallbackURL = url
	}
}

// Client is a bearer-token HTTP client for the capture-control API.
type Client struct {
	tokens            ports.TokenSource
	baseURL           string
	statusCallbackURL string
	httpClient        *http.Client
}

var _ ports.Commander = (*Client)(nil)

// NewClient creates a new capture-control API client.
func NewClient(tokens ports.TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		tokens:     tokens,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start requests a new capture session for the call and returns its id.
func (c *Client) Start(ctx context.Context, req ports.StartRequest) (string, error) {
	body := createSessionRequest{
		Connector:           req.Connector,
		Currency:            req.Currency,
		TokenType:           req.TokenType,
		SecurityCodeEnabled: req.SecurityCodeEnabled,
		PostalCodeEnabled:   req.PostalCodeEnabled,
		StatusCallbackURL:   c.callbackURL(req.StatusCallbackURL),
	}
	path := fmt.Sprintf("/v1/calls/%s/capture-sessions", req.CallID)

	// No session exists yet, so the idempotency key cannot be derived from
	// session identity.
	var result createSessionResponse
	if err := c.post(ctx, path, uuid.NewString(), body, &result); err != nil {
		return "", &domain.RemoteCommandError{Op: "start", CallID: req.CallID, StatusCode: statusOf(err), Err: err}
	}
	if result.SessionID == "" {
		return "", &domain.RemoteCommandError{Op: "start", CallID: req.CallID, Err: fmt.Errorf("platform returned no session id")}
	}
	return result.SessionID, nil
}

// SetActiveField tells the platform which field to prompt for next.
func (c *Client) SetActiveField(ctx context.Context, callID, sessionID string, field domain.FieldKind) error {
	body := setFieldRequest{Field: field, StatusCallbackURL: c.statusCallbackURL}
	path := fmt.Sprintf("/v1/calls/%s/capture-sessions/%s/field", callID, sessionID)
	if err := c.post(ctx, path, idempotencyKey(sessionID), body, nil); err != nil {
		return &domain.RemoteCommandError{Op: "set-active-field", CallID: callID, SessionID: sessionID, StatusCode: statusOf(err), Err: err}
	}
	return nil
}

// ChangeStatus terminates the session with cancel or complete.
func (c *Client) ChangeStatus(ctx context.Context, callID, sessionID string, status domain.SessionStatus) error {
	body := changeStatusRequest{Status: status, StatusCallbackURL: c.statusCallbackURL}
	path := fmt.Sprintf("/v1/calls/%s/capture-sessions/%s/status", callID, sessionID)
	if err := c.post(ctx, path, idempotencyKey(sessionID), body, nil); err != nil {
		return &domain.RemoteCommandError{Op: "change-status", CallID: callID, SessionID: sessionID, StatusCode: statusOf(err), Err: err}
	}
	return nil
}

// idempotencyKey derives a per-command key from session identity and time.
func idempotencyKey(sessionID string) string {
	return fmt.Sprintf("%s-%d", sessionID, time.Now().UnixMilli())
}

func (c *Client) callbackURL(override string) string {
	if override != "" {
		return override
	}
	return c.statusCallbackURL
}

// httpStatusError preserves the response status for the error taxonomy.
type httpStatusError struct {
	status int
	err    error
}

func (e *httpStatusError) Error() string { return e.err.Error() }
func (e *httpStatusError) Unwrap() error { return e.err }

func statusOf(err error) int {
	if se, ok := err.(*httpStatusError); ok {
		return se.status
	}
	return 0
}

func (c *Client) post(ctx context.Context, path, idemKey string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if err := c.setHeaders(ctx, httpReq, idemKey); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if apiErr := parseErrorResponse(respBody); apiErr != nil {
			return &httpStatusError{status: resp.StatusCode, err: apiErr}
		}
		return &httpStatusError{
			status: resp.StatusCode,
			err:    fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody)),
		}
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request, idemKey string) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve bearer token: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", idemKey)
	req.Header.Set("User-Agent", "paycapture/1.0")
	return nil
}

// StaticTokenSource returns a TokenSource that always yields token. Used when
// the operator provisions a long-lived token through configuration.
func StaticTokenSource(token string) ports.TokenSource {
	return staticToken(token)
}

type staticToken string

func (t staticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("no API token configured")
	}
	return string(t), nil
}
