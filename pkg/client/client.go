// Package client provides an HTTP request wrapper with per-request
// timeouts, configurable retry with backoff, and optional response
// caching for GET requests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/nutrikit/fetchcache/pkg/backend"
	"github.com/nutrikit/fetchcache/pkg/cache"
	"github.com/nutrikit/fetchcache/pkg/logging"
)

// Prometheus metrics for request operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchcache_requests_total",
		Help: "Total HTTP requests by method and status",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fetchcache_request_duration_seconds",
		Help:    "HTTP request duration in seconds by method",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchcache_errors_total",
		Help: "Total request failures by class",
	}, []string{"class"}) // "client", "server", "timeout", "network"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultTimeout       = 10 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 1 * time.Second
	DefaultCacheTTL      = 5 * time.Minute
)

// CachePolicy controls GET response caching.
type CachePolicy struct {
	// Enabled turns on response caching for GET requests.
	Enabled bool

	// TTL is the default lifetime for cached responses.
	TTL time.Duration
}

// Config holds the client configuration. It is fixed at construction;
// build a new client to change policy.
type Config struct {
	// BaseURL is prepended to every endpoint (required).
	BaseURL string

	// Timeout is the per-request deadline.
	Timeout time.Duration

	// RetryAttempts is the total number of tries per request.
	RetryAttempts int

	// RetryDelay is the base backoff delay.
	RetryDelay time.Duration

	// Headers are sent with every request.
	Headers map[string]string

	// Cache is the GET response caching policy.
	Cache CachePolicy
}

// RequestOptions are per-call overrides.
type RequestOptions struct {
	// Query parameters appended to the URL.
	Query url.Values

	// Headers merged over the client's default headers.
	Headers map[string]string

	// Retry overrides the client's retry defaults for this call.
	Retry *RetryConfig

	// NoCache bypasses the response cache for this call.
	NoCache bool

	// CacheTTL overrides the cache policy TTL for this call.
	CacheTTL time.Duration
}

// Response is a successful (2xx) HTTP result. Data is the raw body;
// use Decode for JSON payloads.
type Response struct {
	Data       []byte      `json:"data"`
	Status     int         `json:"status"`
	StatusText string      `json:"status_text"`
	Headers    http.Header `json:"headers"`
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Data, v)
}

// Client is a resilient HTTP client. It is safe for concurrent use;
// retry attempts for a single request are strictly sequential.
type Client struct {
	httpClient *http.Client
	config     Config
	cache      *cache.Manager[Response]
	logger     zerolog.Logger
}

// New creates a client with an in-process response cache (if caching
// is enabled).
func New(cfg Config) (*Client, error) {
	return NewWithBackend(cfg, nil)
}

// NewWithBackend creates a client whose response cache lives on the
// given backend, e.g. a Redis partition shared between replicas. A nil
// backend falls back to process memory.
func NewWithBackend(cfg Config, cacheBackend backend.Backend) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q is not absolute", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultRetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = DefaultCacheTTL
	}

	var responseCache *cache.Manager[Response]
	if cfg.Cache.Enabled {
		if cacheBackend == nil {
			cacheBackend = backend.NewMemory()
		}
		responseCache = cache.New[Response](cacheBackend, cache.Options{TTL: cfg.Cache.TTL})
	}

	return &Client{
		httpClient: &http.Client{},
		config:     cfg,
		cache:      responseCache,
		logger:     logging.NewLogger("api-client"),
	}, nil
}

// Get performs a GET request. With caching enabled a live cached
// response short-circuits the network entirely; fresh 2xx responses
// are stored afterwards. Failures are never cached.
func (c *Client) Get(ctx context.Context, endpoint string, opts *RequestOptions) (*Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	fullURL, err := c.buildURL(endpoint, opts.Query)
	if err != nil {
		return nil, err
	}

	useCache := c.cache != nil && !opts.NoCache
	key := requestCacheKey(http.MethodGet, fullURL)

	if useCache {
		if cached, ok := c.cache.Get(ctx, key); ok {
			c.logger.Debug().Str("url", fullURL).Msg("Serving response from cache")
			return &cached, nil
		}
	}

	resp, err := c.do(ctx, http.MethodGet, fullURL, nil, opts)
	if err != nil {
		return nil, err
	}

	if useCache {
		c.cache.Set(ctx, key, *resp, opts.CacheTTL)
		c.logger.Debug().Str("url", fullURL).Msg("Cached response")
	}
	return resp, nil
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, endpoint string, body any, opts *RequestOptions) (*Response, error) {
	return c.uncached(ctx, http.MethodPost, endpoint, body, opts)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, endpoint string, body any, opts *RequestOptions) (*Response, error) {
	return c.uncached(ctx, http.MethodPut, endpoint, body, opts)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, endpoint string, opts *RequestOptions) (*Response, error) {
	return c.uncached(ctx, http.MethodDelete, endpoint, nil, opts)
}

// Cache returns the response cache manager, or nil when caching is
// disabled. Useful for invalidation after writes.
func (c *Client) Cache() *cache.Manager[Response] {
	return c.cache
}

// SetHTTPClient replaces the underlying HTTP client (for testing).
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

func (c *Client) uncached(ctx context.Context, method, endpoint string, body any, opts *RequestOptions) (*Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	fullURL, err := c.buildURL(endpoint, opts.Query)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, method, fullURL, body, opts)
}

// do wraps one logical request in the retry loop.
func (c *Client) do(ctx context.Context, method, fullURL string, body any, opts *RequestOptions) (*Response, error) {
	cfg := c.retryConfig(opts.Retry)

	c.logger.Debug().
		Str("method", method).
		Str("url", fullURL).
		Msg("Executing request")

	return c.executeWithRetry(ctx, cfg, func() (*Response, error) {
		return c.makeRequest(ctx, method, fullURL, body, opts.Headers)
	})
}

// makeRequest performs a single attempt with the per-request timeout
// armed. Non-2xx statuses become HTTPError; transport failures become
// TransportError with a timeout or network code.
func (c *Client) makeRequest(ctx context.Context, method, fullURL string, body any, headers map[string]string) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	if err != nil {
		// A deadline on the request context (not the caller's) means
		// our timeout fired.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			errorsTotal.WithLabelValues("timeout").Inc()
			requestsTotal.WithLabelValues(method, "timeout").Inc()
			return nil, &TransportError{
				Code:    CodeTimeout,
				Message: fmt.Sprintf("request timed out after %s", c.config.Timeout),
				Status:  http.StatusRequestTimeout,
				Err:     err,
			}
		}
		errorsTotal.WithLabelValues("network").Inc()
		requestsTotal.WithLabelValues(method, "network_error").Inc()
		return nil, &TransportError{
			Code:    CodeNetwork,
			Message: err.Error(),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues("network").Inc()
		return nil, &TransportError{
			Code:    CodeNetwork,
			Message: fmt.Sprintf("read response body: %v", err),
			Err:     err,
		}
	}

	requestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode >= 500 {
			errorsTotal.WithLabelValues("server").Inc()
		} else {
			errorsTotal.WithLabelValues("client").Inc()
		}

		c.logger.Warn().
			Str("method", method).
			Str("url", fullURL).
			Int("status", resp.StatusCode).
			Msg("Request error")

		return nil, &HTTPError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Data:       data,
		}
	}

	return &Response{
		Data:       data,
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    resp.Header.Clone(),
	}, nil
}

// buildURL joins the base URL with an endpoint and merges extra query
// parameters. Encode sorts keys, so equivalent requests always produce
// the same URL and therefore the same cache key.
func (c *Client) buildURL(endpoint string, query url.Values) (string, error) {
	u, err := url.Parse(c.config.BaseURL + endpoint)
	if err != nil {
		return "", fmt.Errorf("build url: %w", err)
	}

	q := u.Query()
	for key, values := range query {
		for _, value := range values {
			q.Add(key, value)
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// requestCacheKey derives the deterministic cache key for a request.
func requestCacheKey(method, fullURL string) string {
	return method + ":" + fullURL
}
