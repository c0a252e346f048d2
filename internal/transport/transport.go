// Package transport issues HTTP requests against backend APIs.
//
// A Client carries a base URL (the API prefix), default headers, an optional
// rate limiter, retry policy, and an optional response cache. Three flavors
// are built by the constructors in this package:
//
//   - Plain: no credentials, no cache.
//   - Authed: API prefix, user agent and credential headers.
//   - Cached: Authed plus a TTL response cache for GET and HEAD.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/biketag-game/biketag-go/internal/backend"
	"github.com/biketag-game/biketag-go/internal/cache"
	"github.com/biketag-game/biketag-go/internal/logging"
	"github.com/biketag-game/biketag-go/internal/metrics"
	"github.com/biketag-game/biketag-go/internal/stringutil"
	"github.com/biketag-game/biketag-go/internal/tracing"
)

// UserAgent identifies this client to backends.
const UserAgent = "biketag-go (https://github.com/biketag-game/biketag-go)"

// DefaultTimeout bounds a single request when the caller supplies no http.Client.
const DefaultTimeout = 30 * time.Second

// RequestIDHeader carries a per-request UUID for correlating logs.
const RequestIDHeader = "X-Request-Id"

// Request describes one call. Path is joined to the client's base URL unless
// it is already absolute.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header

	// Body is sent as is when it is []byte, form-encoded when it is
	// url.Values, and JSON-encoded otherwise. nil sends no body.
	Body        any
	ContentType string
}

// Response is a fully read HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Cached bool
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is returned for non-2xx responses. It unwraps to the backend
// sentinel for the status code.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// Unwrap returns the sentinel matching the status.
func (e *StatusError) Unwrap() error {
	return backend.FromStatus(e.Status)
}

// Fetcher is the function-shaped contract consumers need.
type Fetcher interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Client is an HTTP client for one backend API.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
	header  http.Header
	limiter *rate.Limiter
	retry   RetryConfig
	cache   *cache.Cache
	log     *slog.Logger
}

// Ensure Client implements Fetcher at compile time.
var _ Fetcher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client, e.g. with an oauth2 client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithHeader adds a default header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Set(key, value) }
}

// WithLimiter throttles outbound requests.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithRetry sets the retry policy.
func WithRetry(cfg RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithCache caches successful GET and HEAD responses.
func WithCache(rc *cache.Cache) Option {
	return func(c *Client) { c.cache = rc }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a client for the named backend rooted at baseURL.
func New(name, baseURL string, opts ...Option) *Client {
	c := &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		header:  make(http.Header),
		retry:   DefaultRetryConfig(),
		log:     logging.Get(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Plain creates an unauthenticated client without a cache.
func Plain(name, baseURL string, opts ...Option) *Client {
	return New(name, baseURL, opts...)
}

// Authed creates a client that sends the user agent plus the given credential
// headers on every request.
func Authed(name, baseURL string, headers map[string]string, opts ...Option) *Client {
	base := []Option{WithHeader("User-Agent", UserAgent)}
	for k, v := range headers {
		if v != "" {
			base = append(base, WithHeader(k, v))
		}
	}
	return New(name, baseURL, append(base, opts...)...)
}

// Cached creates an Authed client with a response cache. A nil cache gets a
// fresh in-memory one with the default TTL.
func Cached(name, baseURL string, headers map[string]string, rc *cache.Cache, opts ...Option) *Client {
	if rc == nil {
		rc = cache.New("", cache.DefaultTTL)
	}
	return Authed(name, baseURL, headers, append(opts, WithCache(rc))...)
}

// BaseURL returns the API prefix.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Name returns the backend label used in logs and metrics.
func (c *Client) Name() string {
	return c.name
}

// Get is a convenience for a GET that decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// Do issues req. Non-2xx responses return both the response and a *StatusError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	target, err := c.resolve(req)
	if err != nil {
		return nil, err
	}

	cacheable := c.cache != nil && (req.Method == http.MethodGet || req.Method == http.MethodHead)
	key := req.Method + " " + target
	if cacheable {
		if e, ok := c.cache.Get(key); ok {
			metrics.CacheHits.Inc()
			return &Response{
				Status: e.Status,
				Header: http.Header{"Content-Type": []string{e.ContentType}},
				Body:   e.Body,
				Cached: true,
			}, nil
		}
		metrics.CacheMisses.Inc()
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	resp, err := withRetry(ctx, c.retry, req.Method, func() (*Response, error) {
		return c.send(ctx, req, target, body, contentType)
	}, func() {
		metrics.RequestRetries.WithLabelValues(c.name).Inc()
	})
	if err != nil {
		return resp, err
	}

	if cacheable {
		c.cache.Put(key, cache.Entry{
			Status:      resp.Status,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        resp.Body,
		})
	}
	return resp, nil
}

// send performs a single attempt.
func (c *Client) send(ctx context.Context, req Request, target string, body []byte, contentType string) (resp *Response, err error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", backend.ErrRateLimited, err)
		}
	}

	requestID := uuid.NewString()
	ctx, span := tracing.StartSpan(ctx, c.name+" "+req.Method)
	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.url", target),
		attribute.String("request.id", requestID),
	)
	start := time.Now()
	status := 0
	defer func() {
		span.SetAttributes(attribute.Int("http.status_code", status))
		tracing.End(span, err)
		metrics.ObserveRequest(c.name, req.Method, status, start)
		c.log.DebugContext(ctx, "backend request",
			"backend", c.name,
			"method", req.Method,
			"url", target,
			"status", status,
			"duration", time.Since(start),
			"request_id", requestID,
		)
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range c.header {
		httpReq.Header[k] = vs
	}
	for k, vs := range req.Header {
		httpReq.Header[k] = vs
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	httpReq.Header.Set(RequestIDHeader, requestID)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, mapNetError(err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	status = httpResp.StatusCode

	resp = &Response{Status: status, Header: httpResp.Header, Body: data}
	if status < 200 || status >= 300 {
		return resp, &StatusError{Status: status, Body: truncateBody(data)}
	}
	return resp, nil
}

// resolve builds the absolute request URL.
func (c *Client) resolve(req Request) (string, error) {
	raw := req.Path
	if !strings.Contains(raw, "://") {
		if c.baseURL == "" {
			return "", fmt.Errorf("%w: relative path %q without base URL", backend.ErrInvalidRequest, raw)
		}
		raw = c.baseURL + "/" + strings.TrimLeft(raw, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: parse URL: %w", backend.ErrInvalidRequest, err)
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// encodeBody serializes the request body and picks its content type.
func encodeBody(req Request) ([]byte, string, error) {
	switch b := req.Body.(type) {
	case nil:
		return nil, req.ContentType, nil
	case []byte:
		return b, req.ContentType, nil
	case url.Values:
		return []byte(b.Encode()), "application/x-www-form-urlencoded", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("encode request: %w", err)
		}
		ct := req.ContentType
		if ct == "" {
			ct = "application/json"
		}
		return data, ct, nil
	}
}

// mapNetError marks transport failures as the backend being unreachable.
func mapNetError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", backend.ErrBackendOffline, err)
}

func truncateBody(b []byte) string {
	return stringutil.Truncate(strings.TrimSpace(string(b)), 200)
}

// StatusOf returns the HTTP status carried by err, falling back to the status
// its backend sentinel maps to.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return backend.StatusFor(err)
}

// Fail converts a request error into a failure envelope for source.
func Fail[T any](source backend.Kind, err error) backend.Envelope[T] {
	return backend.Fail[T](source, StatusOf(err), err)
}
