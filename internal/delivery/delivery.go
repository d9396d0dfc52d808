// Package delivery performs single delivery attempts of RSVP payloads to
// the submission endpoint. It never retries and never touches the outbox;
// retry policy belongs to the resync coordinator.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/boda/internal/common"
	"github.com/dmitrijs2005/boda/internal/logging"
	"github.com/dmitrijs2005/boda/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// placeholderEndpoint marks an endpoint that was never configured.
const placeholderEndpoint = "REEMPLAZA_CON_TU_SCRIPT_ID"

// ErrEndpointNotConfigured reports a skipped attempt: no request was made.
var ErrEndpointNotConfigured = fmt.Errorf("submission endpoint: %w", common.ErrNotConfigured)

// Error is a failed attempt. StatusCode is zero when no HTTP response was
// received; Err then holds the transport error.
type Error struct {
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("delivery failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("delivery failed: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client posts payloads to a single submission endpoint.
type Client struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
	logger   logging.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient returns a client for endpoint. timeout bounds each attempt.
func NewClient(endpoint string, timeout time.Duration, l logging.Logger, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimSpace(endpoint),
		timeout:  timeout,
		http:     &http.Client{},
		logger:   l.With("module", "delivery"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether the endpoint is usable.
func (c *Client) Configured() bool {
	return c.endpoint != "" && !strings.Contains(c.endpoint, placeholderEndpoint)
}

// Attempt makes exactly one POST of payload as form-encoded fields, list
// values joined with ", ". Any 2xx status is success and the body is not
// parsed. Transport errors, timeouts and other statuses return *Error.
func (c *Client) Attempt(ctx context.Context, payload models.Payload) (err error) {
	if !c.Configured() {
		c.logger.Warn(ctx, "submission endpoint not configured, skipping delivery")
		return ErrEndpointNotConfigured
	}

	ctx, span := otel.Tracer("github.com/dmitrijs2005/boda/internal/delivery").Start(ctx, "delivery.attempt",
		trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return &Error{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if key := payload.Get(common.SubmissionIDField); key != "" {
		req.Header.Set(common.IdempotencyHeaderName, key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn(ctx, "submission rejected", "status", resp.StatusCode)
		return &Error{StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}
	return nil
}

// Ping probes connectivity to the endpoint host. Any HTTP response means
// online; only transport failures report an error.
func (c *Client) Ping(ctx context.Context) error {
	if !c.Configured() {
		return ErrEndpointNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
