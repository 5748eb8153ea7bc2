// Package capacity owns the iteration, team days-off and member capacity
// caches and their invalidate-before-write mutation pipeline.
package capacity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cpuguy83/teamcal/internal/worktrack"
)

// IterationCache fetches and memoizes the team's iteration list for the
// lifetime of the current team selection.
type IterationCache struct {
	client worktrack.Client
	tc     worktrack.TeamContext

	mu         sync.Mutex
	iterations []worktrack.Iteration
}

// NewIterationCache creates an empty cache bound to one team context.
func NewIterationCache(client worktrack.Client, tc worktrack.TeamContext) *IterationCache {
	return &IterationCache{client: client, tc: tc}
}

// Iterations returns the cached list when non-empty, otherwise fetches,
// caches and returns it.
func (c *IterationCache) Iterations(ctx context.Context) ([]worktrack.Iteration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.iterations) > 0 {
		return c.iterations, nil
	}

	iterations, err := c.client.GetTeamIterations(ctx, c.tc)
	if err != nil {
		return nil, fmt.Errorf("fetch iterations: %w", err)
	}
	c.iterations = iterations
	return iterations, nil
}

// IterationForDates returns the single iteration whose bounds contain both
// start and end, or nil. Both dates must fall in the same iteration; there is
// no partial matching.
func (c *IterationCache) IterationForDates(ctx context.Context, start, end time.Time) (*worktrack.Iteration, error) {
	iterations, err := c.Iterations(ctx)
	if err != nil {
		return nil, err
	}

	for i := range iterations {
		it := iterations[i]
		if !it.Scheduled() {
			continue
		}
		if !start.Before(*it.Start) && !start.After(*it.Finish) &&
			!end.Before(*it.Start) && !end.After(*it.Finish) {
			return &it, nil
		}
	}
	return nil, nil
}

// Invalidate empties the cache. Called on team switch.
func (c *IterationCache) Invalidate() {
	c.mu.Lock()
	c.iterations = nil
	c.mu.Unlock()
}
