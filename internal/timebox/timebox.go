// Package timebox races a unit of work against a deadline.
package timebox

import (
	"context"
	"time"
)

type result[T any] struct {
	value T
	ok    bool
}

// Do runs fn with a context that expires after d and returns its result, or
// the zero value and false if fn does not finish in time. On expiry the
// in-flight call is abandoned: its context is cancelled and its result is
// discarded, never awaited. A panic inside fn counts as a miss.
func Do[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, bool)) (T, bool) {
	var zero T
	if d <= 0 || ctx.Err() != nil {
		return zero, false
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{}
			}
		}()
		v, ok := fn(ctx)
		done <- result[T]{value: v, ok: ok}
	}()

	select {
	case r := <-done:
		if !r.ok {
			return zero, false
		}
		return r.value, true
	case <-ctx.Done():
		return zero, false
	}
}
