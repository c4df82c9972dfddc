package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/nutrikit/fetchcache/internal/testutil"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name:        "valid config",
			config:      Config{BaseURL: "https://api.example.com"},
			expectError: false,
		},
		{
			name:        "missing base url",
			config:      Config{},
			expectError: true,
		},
		{
			name:        "relative base url",
			config:      Config{BaseURL: "/api/v1"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c == nil {
				t.Fatal("client is nil")
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{BaseURL: "https://api.example.com"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if c.config.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.config.Timeout, DefaultTimeout)
	}
	if c.config.RetryAttempts != DefaultRetryAttempts {
		t.Errorf("RetryAttempts = %d, want %d", c.config.RetryAttempts, DefaultRetryAttempts)
	}
	if c.config.RetryDelay != DefaultRetryDelay {
		t.Errorf("RetryDelay = %v, want %v", c.config.RetryDelay, DefaultRetryDelay)
	}
	if c.cache != nil {
		t.Error("cache should be nil when caching is disabled")
	}
}

func TestClient_Get_Success(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()

	upstream.SetResponse("/v1/meals", testutil.NewJSONResponse(`{"meals": ["salad"]}`))

	c, err := New(Config{BaseURL: upstream.URL()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	resp, err := c.Get(context.Background(), "/v1/meals", nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if resp.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.Status)
	}

	var payload struct {
		Meals []string `json:"meals"`
	}
	if err := resp.Decode(&payload); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(payload.Meals) != 1 || payload.Meals[0] != "salad" {
		t.Errorf("payload = %+v, want one meal 'salad'", payload)
	}
	if resp.Headers.Get("Content-Type") == "" {
		t.Error("response headers not captured")
	}
}

func TestClient_Get_NotFoundNotRetried(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()

	upstream.SetResponse("/v1/missing", testutil.NewNotFoundResponse())

	c, _ := New(Config{BaseURL: upstream.URL(), RetryDelay: 10 * time.Millisecond})

	_, err := c.Get(context.Background(), "/v1/missing", nil)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if httpErr.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", httpErr.Status)
	}
	if len(httpErr.Data) == 0 {
		t.Error("HTTPError.Data is empty, want response body")
	}
	if count := upstream.RequestCount(); count != 1 {
		t.Errorf("request count = %d, want 1 (4xx must not be retried)", count)
	}
}

func TestClient_Retry_RecoversFrom503(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()

	upstream.FailThenSucceed("/v1/flaky", http.StatusServiceUnavailable, 2, `{"ok": true}`)

	c, _ := New(Config{
		BaseURL:       upstream.URL(),
		RetryAttempts: 3,
		RetryDelay:    20 * time.Millisecond,
	})

	start := time.Now()
	resp, err := c.Get(context.Background(), "/v1/flaky", nil)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Get failed after retries: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
	if count := upstream.RequestCount(); count != 3 {
		t.Errorf("request count = %d, want exactly 3", count)
	}

	// Exponential backoff: 20ms + 40ms between the three attempts.
	if elapsed < 55*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 60ms of backoff", elapsed)
	}
}

func TestClient_Retry_ExhaustedPropagatesLastError(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()

	upstream.SetResponse("/v1/down", testutil.NewServerErrorResponse())

	c, _ := New(Config{
		BaseURL:       upstream.URL(),
		RetryAttempts: 3,
		RetryDelay:    5 * time.Millisecond,
	})

	_, err := c.Get(context.Background(), "/v1/down", nil)

	// The last error propagates unchanged, not wrapped in a sentinel.
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("error = %v, want *HTTPError with status 503", err)
	}
	if count := upstream.RequestCount(); count != 3 {
		t.Errorf("request count = %d, want 3", count)
	}
}

func TestClient_TimeoutNotRetriedByDefault(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()

	upstream.SetResponse("/v1/slow", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{}`,
		Delay:      200 * time.Millisecond,
	})

	c, _ := New(Config{
		BaseURL:    upstream.URL(),
		Timeout:    50 * time.Millisecond,
		RetryDelay: 5 * time.Millisecond,
	})

	_, err := c.Get(context.Background(), "/v1/slow", nil)

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
	if transportErr.Code != CodeTimeout {
		t.Errorf("Code = %q, want %q", transportErr.Code, CodeTimeout)
	}
	if transportErr.Status != http.StatusRequestTimeout {
		t.Errorf("Status = %d, want 408", transportErr.Status)
	}

	// The default predicate only retries status>=500 or NETWORK_ERROR,
	// so a timeout gets exactly one attempt.
	if count := upstream.RequestCount(); count != 1 {
		t.Errorf("request count = %d, want 1", count)
	}
}

func TestClient_Timeout_RetriedWithCustomPredicate(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()

	upstream.SetResponse("/v1/slow", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{}`,
		Delay:      200 * time.Millisecond,
	})

	c, _ := New(Config{
		BaseURL: upstream.URL(),
		Timeout: 50 * time.Millisecond,
	})

	retryTimeouts := func(err error) bool {
		var transportErr *TransportError
		return errors.As(err, &transportErr) && transportErr.Code == CodeTimeout
	}

	_, err := c.Get(context.Background(), "/v1/slow", &RequestOptions{
		Retry: &RetryConfig{
			Attempts:       2,
			Delay:          5 * time.Millisecond,
			RetryCondition: retryTimeouts,
		},
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if count := upstream.RequestCount(); count != 2 {
		t.Errorf("request count = %d, want 2 with timeout-retrying predicate", count)
	}
}

func TestClient_NetworkError(t *testing.T) {
	// Nothing listens here.
	c, _ := New(Config{
		BaseURL:       "http://127.0.0.1:1",
		RetryAttempts: 2,
		RetryDelay:    5 * time.Millisecond,
	})

	_, err := c.Get(context.Background(), "/v1/anything", nil)

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
	if transportErr.Code != CodeNetwork {
		t.Errorf("Code = %q, want %q", transportErr.Code, CodeNetwork)
	}
}

func TestClient_Cache_SecondGetServedFromCache(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()

	upstream.SetResponse("/v1/plans", testutil.NewJSONResponse(`{"plan": "keto"}`))

	c, _ := New(Config{
		BaseURL: upstream.URL(),
		Cache:   CachePolicy{Enabled: true},
	})

	first, err := c.Get(context.Background(), "/v1/plans", nil)
	if err != nil {
		t.Fatalf("first Get failed: %v", err)
	}
	second, err := c.Get(context.Background(), "/v1/plans", nil)
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}

	if count := upstream.RequestCount(); count != 1 {
		t.Errorf("request count = %d, want 1 (second Get served from cache)", count)
	}
	if string(first.Data) != string(second.Data) {
		t.Errorf("cached data %q differs from original %q", second.Data, first.Data)
	}
}

func TestClient_Cache_KeyIncludesSortedQuery(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()

	c, _ := New(Config{
		BaseURL: upstream.URL(),
		Cache:   CachePolicy{Enabled: true},
	})
	ctx := context.Background()

	// Same parameters, different insertion order: one network call.
	q1 := url.Values{}
	q1.Add("a", "1")
	q1.Add("b", "2")
	q2 := url.Values{}
	q2.Add("b", "2")
	q2.Add("a", "1")

	if _, err := c.Get(ctx, "/v1/search", &RequestOptions{Query: q1}); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := c.Get(ctx, "/v1/search", &RequestOptions{Query: q2}); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if count := upstream.RequestCount(); count != 1 {
		t.Errorf("request count = %d, want 1 (query order must not change the key)", count)
	}

	// Different parameters: separate cache entry.
	q3 := url.Values{}
	q3.Add("a", "other")
	if _, err := c.Get(ctx, "/v1/search", &RequestOptions{Query: q3}); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if count := upstream.RequestCount(); count != 2 {
		t.Errorf("request count = %d, want 2", count)
	}
}

func TestClient_Cache_NoCacheBypasses(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()

	c, _ := New(Config{
		BaseURL: upstream.URL(),
		Cache:   CachePolicy{Enabled: true},
	})
	ctx := context.Background()

	if _, err := c.Get(ctx, "/v1/live", nil); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := c.Get(ctx, "/v1/live", &RequestOptions{NoCache: true}); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if count := upstream.RequestCount(); count != 2 {
		t.Errorf("request count = %d, want 2 (NoCache must hit the network)", count)
	}
}

func TestClient_Cache_ErrorsNotCached(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()

	upstream.FailThenSucceed("/v1/eventually", http.StatusNotFound, 1, `{"ok": true}`)

	c, _ := New(Config{
		BaseURL: upstream.URL(),
		Cache:   CachePolicy{Enabled: true},
	})
	ctx := context.Background()

	if _, err := c.Get(ctx, "/v1/eventually", nil); err == nil {
		t.Fatal("expected 404 error on first call")
	}

	// The failure was not cached; the second call reaches the network
	// and succeeds.
	resp, err := c.Get(ctx, "/v1/eventually", nil)
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
	if count := upstream.RequestCount(); count != 2 {
		t.Errorf("request count = %d, want 2", count)
	}
}

func TestClient_Cache_ExpiredEntryRefetched(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()

	c, _ := New(Config{
		BaseURL: upstream.URL(),
		Cache:   CachePolicy{Enabled: true},
	})
	ctx := context.Background()

	opts := &RequestOptions{CacheTTL: 30 * time.Millisecond}
	if _, err := c.Get(ctx, "/v1/fresh", opts); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if _, err := c.Get(ctx, "/v1/fresh", opts); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if count := upstream.RequestCount(); count != 2 {
		t.Errorf("request count = %d, want 2 (expired entry must refetch)", count)
	}
}

func TestClient_Post_SendsJSONBody(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()

	var receivedContentType string
	upstream.SetHandler("/v1/meals", func(w http.ResponseWriter, r *http.Request) {
		receivedContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 7}`))
	})

	c, _ := New(Config{BaseURL: upstream.URL()})

	resp, err := c.Post(context.Background(), "/v1/meals", map[string]string{"name": "salad"}, nil)
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if resp.Status != http.StatusCreated {
		t.Errorf("Status = %d, want 201", resp.Status)
	}
	if receivedContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", receivedContentType)
	}
}

func TestClient_Headers(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()

	c, _ := New(Config{
		BaseURL: upstream.URL(),
		Headers: map[string]string{
			"Authorization": "Bearer default-token",
			"X-Tenant":      "acme",
		},
	})

	_, err := c.Get(context.Background(), "/v1/whoami", &RequestOptions{
		Headers: map[string]string{"Authorization": "Bearer call-token"},
	})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	headers := upstream.LastRequestHeader()
	if got := headers.Get("Authorization"); got != "Bearer call-token" {
		t.Errorf("Authorization = %q, want per-call override", got)
	}
	if got := headers.Get("X-Tenant"); got != "acme" {
		t.Errorf("X-Tenant = %q, want default header %q", got, "acme")
	}
}
