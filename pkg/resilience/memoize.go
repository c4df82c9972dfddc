package resilience

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Memoize caches fn's results forever, keyed by the JSON encoding of
// the argument. There is no TTL and no size bound; use it for pure
// functions only. For time-bounded or bounded caching use a cache
// manager instead.
func Memoize[A any, R any](fn func(A) R) func(A) R {
	return MemoizeKeyed(fn, func(arg A) string {
		data, err := json.Marshal(arg)
		if err != nil {
			return fmt.Sprintf("%v", arg)
		}
		return string(data)
	})
}

// MemoizeKeyed is Memoize with a caller-supplied key function.
func MemoizeKeyed[A any, R any](fn func(A) R, key func(A) string) func(A) R {
	var mu sync.Mutex
	results := make(map[string]R)

	return func(arg A) R {
		k := key(arg)

		mu.Lock()
		if cached, ok := results[k]; ok {
			mu.Unlock()
			return cached
		}
		mu.Unlock()

		result := fn(arg)

		mu.Lock()
		results[k] = result
		mu.Unlock()

		return result
	}
}
