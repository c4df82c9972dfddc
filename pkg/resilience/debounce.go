package resilience

import (
	"sync"
	"time"
)

// Debounce returns a wrapper around fn that fires only after delay has
// passed without further calls, using the argument of the last call.
// Every invocation resets the pending timer.
func Debounce[T any](fn func(T), delay time.Duration) func(T) {
	var mu sync.Mutex
	var timer *time.Timer

	return func(arg T) {
		mu.Lock()
		defer mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(delay, func() {
			fn(arg)
		})
	}
}

// Throttle returns a wrapper around fn that fires immediately on the
// first call, then suppresses further calls until delay has elapsed
// since the last firing. Suppressed calls are dropped, not queued.
func Throttle[T any](fn func(T), delay time.Duration) func(T) {
	var mu sync.Mutex
	var last time.Time

	return func(arg T) {
		mu.Lock()
		if time.Since(last) < delay {
			mu.Unlock()
			return
		}
		last = time.Now()
		mu.Unlock()

		fn(arg)
	}
}
