// Package resilience provides standalone call-shaping helpers:
// debounce, throttle, memoize, batch processing and retry with
// backoff. They carry no dependency on the cache or client layers and
// are safe for concurrent use.
package resilience
