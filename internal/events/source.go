package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Provider materializes events for a half-open window.
type Provider interface {
	GetEvents(ctx context.Context, start, end time.Time) (Result, error)
}

// SuccessFunc receives the materialized result of a window request.
type SuccessFunc func(Result)

// FailureFunc receives the error that failed a window request.
type FailureFunc func(error)

// Source adapts a Provider to the rendering widget's callback contract.
//
// Each request is stamped with a monotonically increasing sequence number and
// a callback is only invoked while its request is still the latest, so rapid
// window changes cannot deliver results out of order.
type Source struct {
	provider Provider

	mu  sync.Mutex
	seq uint64
}

// NewSource wraps a provider.
func NewSource(provider Provider) *Source {
	return &Source{provider: provider}
}

// GetEvents requests the window [start, end) and delivers the result through
// exactly one of the callbacks, unless a newer request supersedes this one.
// It returns the request's sequence number.
func (s *Source) GetEvents(ctx context.Context, start, end time.Time, success SuccessFunc, failure FailureFunc) uint64 {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	go func() {
		result, err := s.provider.GetEvents(ctx, start, end)

		s.mu.Lock()
		stale := seq != s.seq
		s.mu.Unlock()
		if stale {
			slog.Debug("dropping stale window result", "seq", seq)
			return
		}

		if err != nil {
			failure(err)
			return
		}
		success(result)
	}()

	return seq
}
