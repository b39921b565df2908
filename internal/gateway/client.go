package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"moflow/internal/workflow/models"
	dErrors "moflow/pkg/domain-errors"
	"moflow/pkg/requestcontext"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 4 << 20

	opCreate    = "create"
	opEdit      = "edit"
	opTerminate = "terminate"
)

// Client calls the remote MO service API. It never retries.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	header     http.Header
	logger     *slog.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	timeout    time.Duration
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithTimeout bounds every request. It applies to the client given by
// WithHTTPClient as well, without modifying it.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithHeader adds a static header to every request, e.g. a session cookie
// or an API token forwarded by the deployment.
func WithHeader(key, value string) Option {
	return func(cl *Client) {
		cl.header.Add(key, value)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(cl *Client) {
		cl.metrics = m
	}
}

// New builds a client rooted at baseURL, e.g. http://mo:5000/api/v1.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("gateway: invalid base url %q", baseURL))
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: defaultTimeout},
		header:     http.Header{},
		logger:     slog.Default(),
		tracer:     otel.Tracer("moflow/internal/gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 && c.httpClient.Timeout != c.timeout {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c, nil
}

// Create posts payload to /service/{e|ou}/create.
func (c *Client) Create(ctx context.Context, kind models.EntityKind, payload any) (Result, error) {
	return c.post(ctx, opCreate, kind, c.path(kind.PathSegment(), "create"), payload)
}

// Edit posts payload to /service/{e|ou}/{uuid}/edit.
func (c *Client) Edit(ctx context.Context, kind models.EntityKind, id string, payload any) (Result, error) {
	return c.post(ctx, opEdit, kind, c.path(kind.PathSegment(), id, "edit"), payload)
}

// Terminate posts payload to /service/e/{uuid}/terminate. Only employees can
// be terminated.
func (c *Client) Terminate(ctx context.Context, kind models.EntityKind, id string, payload any) (Result, error) {
	if kind != models.EntityEmployee {
		return Result{}, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("gateway: cannot terminate %s", kind))
	}
	return c.post(ctx, opTerminate, kind, c.path(kind.PathSegment(), id, "terminate"), payload)
}

func (c *Client) path(segments ...string) string {
	u := *c.baseURL
	parts := append([]string{"service"}, segments...)
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	u.Path = u.Path + "/" + strings.Join(parts, "/")
	return u.String()
}

func (c *Client) post(ctx context.Context, op string, kind models.EntityKind, target string, payload any) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "mo."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("mo.operation", op),
			attribute.String("mo.entity", kind.String()),
			attribute.String("http.request.method", http.MethodPost),
			attribute.String("url.full", target),
		),
	)
	defer span.End()

	start := time.Now()
	res, err := c.do(ctx, target, payload)
	elapsed := time.Since(start)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "transport_error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		if appErr, ok := res.Failure(); ok {
			outcome = "app_error"
			span.SetAttributes(attribute.String("mo.error_key", appErr.ErrorKey))
			span.SetStatus(codes.Error, appErr.ErrorKey)
		}
		span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))
	}
	c.metrics.observe(op, kind.String(), outcome, elapsed)

	c.logger.DebugContext(ctx, "mo api call",
		"operation", op,
		"entity", kind.String(),
		"outcome", outcome,
		"duration_ms", elapsed.Milliseconds(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return res, err
}

func (c *Client) do(ctx context.Context, target string, payload any) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "gateway: encode payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return Result{}, &TransportError{Method: http.MethodPost, URL: target, Err: err}
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if id := requestcontext.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, &TransportError{Method: http.MethodPost, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Result{}, &TransportError{Method: http.MethodPost, URL: target, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &TransportError{Method: http.MethodPost, URL: target, StatusCode: resp.StatusCode, Body: data}
	}
	return Result{StatusCode: resp.StatusCode, Data: data}, nil
}
