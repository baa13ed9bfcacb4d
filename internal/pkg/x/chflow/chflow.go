// Package chflow provides context-aware helpers for receiving from and
// sending to Go channels and for waiting. Every helper returns early when the
// context is canceled.
package chflow

import (
	"context"
	"time"
)

// Receive waits to receive a value from the provided channel or for the context to be canceled.
// It returns the value (zero value if canceled) and a boolean indicating if the receive was successful.
func Receive[T any](ctx context.Context, ch <-chan T) (T, bool) {
	var data T
	select {
	case <-ctx.Done():
		return data, false
	case data, ok := <-ch:
		return data, ok
	}
}

// Send attempts to send a value to the provided channel unless the context is canceled first.
// It returns true if the send was successful, false if the context was done before sent.
func Send[T any](ctx context.Context, ch chan<- T, data T) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- data:
		return true
	}
}

// Sleep pauses for d or until ctx is canceled. It returns false when the
// context ended the wait. A non-positive d returns immediately.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
