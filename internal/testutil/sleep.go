// Package testutil holds shared test doubles.
package testutil

import (
	"context"
	"sync"
	"time"
)

// InstantSleeper satisfies the orchestrator's sleep hook without real
// delays, so poll loops run at full speed in tests. It counts calls so
// a test can assert that polling actually iterated.
//
// Thread-safe: the orchestrator sleeps from one goroutine per request.
type InstantSleeper struct {
	mu    sync.Mutex
	calls int64
}

// Sleep returns immediately, honoring only context cancellation.
func (s *InstantSleeper) Sleep(ctx context.Context, _ time.Duration) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return ctx.Err()
}

// Calls reports how many times Sleep was invoked.
func (s *InstantSleeper) Calls() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Reset zeroes the call counter for scenario reuse.
func (s *InstantSleeper) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = 0
}
