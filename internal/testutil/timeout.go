package testutil

import (
	"context"
	"testing"
	"time"
)

const (
	// DefaultRequestTimeout bounds a single round trip to a test gateway.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultTestBuffer is the buffer time subtracted from test deadline
	// to allow for cleanup operations before the test times out.
	DefaultTestBuffer = 5 * time.Second
)

// ContextWithTestDeadline creates a context that respects the test's deadline.
// It subtracts a buffer from the test deadline to allow time for cleanup.
// If the test has no deadline, it falls back to the provided fallback duration.
//
// The context is cancelled when the test completes.
func ContextWithTestDeadline(t *testing.T, fallback time.Duration) context.Context {
	t.Helper()
	return ContextWithTestDeadlineBuffer(t, fallback, DefaultTestBuffer)
}

// ContextWithTestDeadlineBuffer creates a context that respects the test's deadline
// with a custom buffer. If the test has no deadline, or the deadline minus
// buffer is already past, it uses the fallback duration.
func ContextWithTestDeadlineBuffer(t *testing.T, fallback, buffer time.Duration) context.Context {
	t.Helper()

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if deadline, ok := t.Deadline(); ok && time.Until(deadline.Add(-buffer)) > 0 {
		ctx, cancel = context.WithDeadline(context.Background(), deadline.Add(-buffer))
	} else {
		ctx, cancel = context.WithTimeout(context.Background(), fallback)
	}
	t.Cleanup(cancel)
	return ctx
}

// RequestContext returns a context suitable for a handful of requests against
// a test gateway.
func RequestContext(t *testing.T) context.Context {
	t.Helper()
	return ContextWithTestDeadline(t, DefaultRequestTimeout)
}
