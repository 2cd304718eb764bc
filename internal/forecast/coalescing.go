package forecast

import (
	"context"
	"sync"
	"time"
)

// inFlightCall is one upstream fetch that several callers may wait on.
type inFlightCall[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// requestCoalescer joins concurrent misses for the same key onto one fetch.
// The fetch runs in its own goroutine, so a waiter that gives up does not
// cancel it for the others.
type requestCoalescer[T any] struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightCall[T]
	timeout  time.Duration
}

func newRequestCoalescer[T any](timeout time.Duration) *requestCoalescer[T] {
	return &requestCoalescer[T]{
		inFlight: make(map[string]*inFlightCall[T]),
		timeout:  timeout,
	}
}

// GetOrDo returns the result of the in-flight fetch for key, starting fn if
// none is running. joined reports whether the caller attached to a fetch
// started by someone else. Waiting is bounded by ctx and the coalescer timeout.
func (rc *requestCoalescer[T]) GetOrDo(ctx context.Context, key string, fn func() (T, error)) (result T, joined bool, err error) {
	rc.mu.Lock()
	call, exists := rc.inFlight[key]
	if !exists {
		call = &inFlightCall[T]{done: make(chan struct{})}
		rc.inFlight[key] = call
		go rc.run(key, call, fn)
	}
	rc.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-call.done:
		return call.result, exists, call.err
	case <-waitCtx.Done():
		var zero T
		return zero, exists, waitCtx.Err()
	}
}

func (rc *requestCoalescer[T]) run(key string, call *inFlightCall[T], fn func() (T, error)) {
	call.result, call.err = fn()

	rc.mu.Lock()
	delete(rc.inFlight, key)
	rc.mu.Unlock()

	close(call.done)
}

// pending reports how many keys have a fetch in flight.
func (rc *requestCoalescer[T]) pending() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.inFlight)
}
