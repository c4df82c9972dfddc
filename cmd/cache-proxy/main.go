package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/nutrikit/fetchcache/pkg/backend"
	"github.com/nutrikit/fetchcache/pkg/client"
	"github.com/nutrikit/fetchcache/pkg/logging"
)

func main() {
	// Configuration from environment
	upstreamURL := getEnv("UPSTREAM_URL", "")
	port := getEnv("PORT", "8080")
	redisURL := getEnv("REDIS_URL", "")
	cacheTTL := getDurationEnv("CACHE_TTL", 5*time.Minute)
	logLevel := getEnv("LOG_LEVEL", "info")

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(logLevel),
		Output: os.Stderr,
	})

	if upstreamURL == "" {
		logger.Fatal().Msg("UPSTREAM_URL is required")
	}

	// Cache backend: Redis when configured, otherwise process memory.
	var cacheBackend backend.Backend
	if redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: redisURL,
		})

		ctx := context.Background()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", redisURL).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("addr", redisURL).Msg("Connected to Redis")

		cacheBackend = backend.NewRedis(redisClient, backend.DefaultPrefix)
	} else {
		logger.Info().Msg("No REDIS_URL configured, caching in process memory")
		cacheBackend = backend.NewMemory()
	}

	apiClient, err := client.NewWithBackend(client.Config{
		BaseURL: upstreamURL,
		Cache: client.CachePolicy{
			Enabled: true,
			TTL:     cacheTTL,
		},
	}, cacheBackend)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create API client")
	}

	http.HandleFunc("/health", healthHandler)
	http.HandleFunc("/ready", readyHandler(cacheBackend))
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/api/", proxyHandler(apiClient))

	addr := ":" + port
	logger.Info().
		Str("addr", addr).
		Str("upstream", upstreamURL).
		Dur("cache_ttl", cacheTTL).
		Msg("Starting cache proxy")

	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler probes the cache backend. A proxy with a broken backend
// still serves requests (every read degrades to a miss), but it should
// not pass readiness while its cache is gone.
func readyHandler(b backend.Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if _, _, err := b.Get(ctx, "readiness-probe"); err != nil {
			http.Error(w, fmt.Sprintf("cache backend unavailable: %v", err), http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// proxyHandler forwards GET requests to the upstream through the
// caching client. Example: /api/foods/search -> <UPSTREAM_URL>/foods/search
func proxyHandler(apiClient *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "only GET is proxied", http.StatusMethodNotAllowed)
			return
		}

		endpoint := r.URL.Path[len("/api"):]

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		resp, err := apiClient.Get(ctx, endpoint, &client.RequestOptions{
			Query: r.URL.Query(),
		})
		if err != nil {
			if httpErr, ok := err.(*client.HTTPError); ok {
				w.WriteHeader(httpErr.Status)
				w.Write(httpErr.Data)
				return
			}
			http.Error(w, fmt.Sprintf("upstream request failed: %v", err), http.StatusBadGateway)
			return
		}

		if ct := resp.Headers.Get("Content-Type"); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.WriteHeader(resp.Status)
		w.Write(resp.Data)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
