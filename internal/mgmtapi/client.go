package mgmtapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/1sec-project/netresponse/internal/metrics"
	"github.com/1sec-project/netresponse/internal/validate"
)

const (
	DefaultTimeout           = 30 * time.Second
	DefaultRequestDelay      = 100 * time.Millisecond
	DefaultRetryAfter        = 60 * time.Second
	DefaultMaxRetryAfter     = 24 * time.Hour
	DefaultMaxResponseBytes  = 10 << 20
	DefaultUserAgent         = "netresponse/1.0"
	maxLoggedBodyBytes       = 512
	invalidJSONPlaceholder   = "Invalid JSON response"
	defaultMaxConnsPerHost   = 10
	defaultIdleConnTimeout   = 90 * time.Second
	defaultTLSHandshakeLimit = 10 * time.Second
)

// Client talks to the remote management API. It owns its HTTP session for
// its whole lifetime; call Close when done.
//
// At most one physical request is in flight per Client. The pre-request
// delay and any Retry-After wait are observed inside that exclusive section,
// so they hold across all goroutines sharing the Client.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
	metrics    *metrics.Metrics

	timeout           time.Duration
	requestDelay      time.Duration
	defaultRetryAfter time.Duration
	retryAfterUnit    time.Duration
	maxRetryAfter     time.Duration
	maxResponseBytes  int64
	userAgent         string

	// one-slot semaphore; acquiring it is cancellable unlike sync.Mutex
	slot   chan struct{}
	closed atomic.Bool
}

// Option customizes a Client at construction.
type Option func(*Client)

// WithTimeout bounds each physical request, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRequestDelay sets the fixed pause observed before every physical request.
func WithRequestDelay(d time.Duration) Option {
	return func(c *Client) { c.requestDelay = d }
}

// WithDefaultRetryAfter sets the wait used when a 429 carries no usable Retry-After.
func WithDefaultRetryAfter(d time.Duration) Option {
	return func(c *Client) { c.defaultRetryAfter = d }
}

// WithRetryAfterUnit sets the duration of one Retry-After unit (seconds by default).
func WithRetryAfterUnit(d time.Duration) Option {
	return func(c *Client) { c.retryAfterUnit = d }
}

// WithMaxRetryAfter caps the wait honoured for a single Retry-After header.
// Larger values, including ones that overflow a time.Duration, are clamped.
func WithMaxRetryAfter(d time.Duration) Option {
	return func(c *Client) { c.maxRetryAfter = d }
}

// WithMaxResponseBytes caps how much of a response body is read. Longer
// bodies are truncated and logged.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) { c.maxResponseBytes = n }
}

// WithHTTPClient replaces the client-owned session.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New validates the base URL and API key and creates the HTTP session.
// These are the only errors that make a Client unusable.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	u, err := validate.BaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if err := validate.APIKey(apiKey); err != nil {
		return nil, err
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""

	c := &Client{
		baseURL:           u,
		apiKey:            apiKey,
		logger:            zerolog.Nop(),
		timeout:           DefaultTimeout,
		requestDelay:      DefaultRequestDelay,
		defaultRetryAfter: DefaultRetryAfter,
		retryAfterUnit:    time.Second,
		maxRetryAfter:     DefaultMaxRetryAfter,
		maxResponseBytes:  DefaultMaxResponseBytes,
		userAgent:         DefaultUserAgent,
		slot:              make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retryAfterUnit <= 0 {
		c.retryAfterUnit = time.Second
	}
	if c.maxRetryAfter <= 0 {
		c.maxRetryAfter = DefaultMaxRetryAfter
	}
	if c.maxResponseBytes <= 0 {
		c.maxResponseBytes = DefaultMaxResponseBytes
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   c.timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				TLSHandshakeTimeout: defaultTLSHandshakeLimit,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if req.URL.Scheme != "https" {
					return fmt.Errorf("refusing redirect to non-HTTPS URL")
				}
				if len(via) >= 5 {
					return fmt.Errorf("stopped after %d redirects", len(via))
				}
				return nil
			},
		}
	}
	c.logger = c.logger.With().Str("component", "mgmt_api_client").Str("host", u.Host).Logger()
	return c, nil
}

// Close releases the session. Requests issued afterwards fail with
// ErrClientClosed. Close is idempotent.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.httpClient.CloseIdleConnections()
	c.logger.Debug().Msg("api client closed")
	return nil
}

// BaseURL returns the validated base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// constructURL joins endpoint under the base URL and refuses anything that
// would leave it.
func (c *Client) constructURL(endpoint string) (string, error) {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	ref, err := url.Parse(endpoint)
	if err != nil || ref.IsAbs() || ref.Host != "" || ref.RawQuery != "" || ref.Fragment != "" {
		return "", &validate.ValidationError{Field: "endpoint", Reason: fmt.Sprintf("invalid URL constructed for endpoint %q", endpoint)}
	}
	u := *c.baseURL
	u.Path = c.baseURL.Path + ref.Path
	if u.Scheme != "https" || u.Host == "" {
		return "", &validate.ValidationError{Field: "endpoint", Reason: fmt.Sprintf("invalid URL constructed: %s", u.String())}
	}
	return u.String(), nil
}

type rawResponse struct {
	status int
	header http.Header
	body   []byte
}

// Request performs one logical call: validate, throttle, dispatch, retry
// once on HTTP 429, translate failures into *APIError and decode the body.
func (c *Client) Request(ctx context.Context, method, endpoint string, body interface{}, query url.Values) (map[string]interface{}, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	method, err := validate.HTTPMethod(method)
	if err != nil {
		return nil, err
	}
	target, err := c.constructURL(endpoint)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}

	select {
	case c.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, c.contextFailure(ctx, ctx.Err(), method, endpoint)
	}
	defer func() { <-c.slot }()

	requestID := uuid.New().String()
	for attempt := 0; ; attempt++ {
		if err := sleepCtx(ctx, c.requestDelay); err != nil {
			return nil, c.contextFailure(ctx, err, method, endpoint)
		}

		resp, err := c.dispatch(ctx, method, target, payload, requestID, attempt)
		if err != nil {
			return nil, c.transportFailure(ctx, err, method, endpoint)
		}

		if resp.status == http.StatusTooManyRequests {
			c.metrics.IncRateLimited()
			if attempt == 0 {
				wait := c.retryAfter(resp.header.Get("Retry-After"))
				c.logger.Warn().
					Str("method", method).
					Str("endpoint", endpoint).
					Dur("retry_after", wait).
					Msg("rate limited, retrying once")
				if err := sleepCtx(ctx, wait); err != nil {
					return nil, c.contextFailure(ctx, err, method, endpoint)
				}
				continue
			}
		}

		if resp.status >= 400 {
			c.logger.Error().
				Int("status_code", resp.status).
				Str("endpoint", endpoint).
				Str("method", method).
				Str("request_id", requestID).
				Str("error_type", "api_error").
				Msg("API request failed")
			c.logger.Debug().
				Str("request_id", requestID).
				Str("body", truncate(resp.body, maxLoggedBodyBytes)).
				Msg("API error response body")
			return nil, newStatusError(resp.status)
		}

		return decodeBody(resp.body, c.logger), nil
	}
}

// dispatch sends one physical request and reads the whole body under the
// per-request timeout.
func (c *Client) dispatch(ctx context.Context, method, target string, payload []byte, requestID string, attempt int) (*rawResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, target, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(method, 0, time.Since(start).Seconds())
		return nil, err
	}
	defer resp.Body.Close()

	// One byte past the limit tells a full body from a cut one.
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	c.metrics.ObserveRequest(method, resp.StatusCode, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.maxResponseBytes {
		data = data[:c.maxResponseBytes]
		c.logger.Warn().
			Str("method", method).
			Str("request_id", requestID).
			Int("status", resp.StatusCode).
			Int64("limit_bytes", c.maxResponseBytes).
			Msg("api response body exceeds limit, truncated")
	}

	c.logger.Debug().
		Str("method", method).
		Str("request_id", requestID).
		Int("attempt", attempt+1).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("api request completed")

	return &rawResponse{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

// retryAfter interprets a Retry-After header as a count of retryAfterUnit
// or as an HTTP date, capped at maxRetryAfter. Anything else yields the
// default.
func (c *Client) retryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return c.defaultRetryAfter
	}
	n, err := strconv.ParseInt(header, 10, 64)
	if err == nil {
		if n < 0 {
			return c.defaultRetryAfter
		}
		if n > int64(math.MaxInt64/c.retryAfterUnit) {
			return c.maxRetryAfter
		}
		return min(time.Duration(n)*c.retryAfterUnit, c.maxRetryAfter)
	}
	if errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(header, "-") {
		return c.maxRetryAfter
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return min(d, c.maxRetryAfter)
		}
		return 0
	}
	return c.defaultRetryAfter
}

func (c *Client) transportFailure(ctx context.Context, err error, method, endpoint string) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || isNetTimeout(err) {
		return c.contextFailure(ctx, err, method, endpoint)
	}
	c.logger.Error().
		Str("endpoint", endpoint).
		Str("method", method).
		Str("error_type", fmt.Sprintf("%T", errors.Unwrap(err))).
		Msg("Network connection failed")
	return newKindError(KindNetwork)
}

// contextFailure classifies deadline expiry as a timeout and explicit
// cancellation as cancelled.
func (c *Client) contextFailure(ctx context.Context, err error, method, endpoint string) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		c.logger.Warn().Str("endpoint", endpoint).Str("method", method).Msg("Request cancelled")
		return newKindError(KindCanceled)
	}
	c.logger.Error().
		Str("endpoint", endpoint).
		Str("method", method).
		Dur("timeout", c.timeout).
		AnErr("cause", err).
		Msg("Request timeout")
	return newKindError(KindTimeout)
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// decodeBody never fails: malformed JSON yields a placeholder object.
func decodeBody(data []byte, logger zerolog.Logger) map[string]interface{} {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]interface{}{}
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		logger.Warn().Err(err).Msg("response body is not valid JSON")
		return map[string]interface{}{"error": invalidJSONPlaceholder}
	}
	if obj, ok := v.(map[string]interface{}); ok {
		return obj
	}
	return map[string]interface{}{"data": v}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
