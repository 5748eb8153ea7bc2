package capacity

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cpuguy83/teamcal/internal/worktrack"
)

// TeamDaysOffStore caches team-wide day-off ranges per iteration.
//
// Mutations follow invalidate-before-write: the cache entry is dropped before
// the patch goes out, the mutated copy is sent as the full replacement list,
// and the server's result is returned without repopulating the cache. The
// next read always re-fetches, so a failed patch can never leave stale data
// behind.
type TeamDaysOffStore struct {
	client worktrack.Client
	tc     worktrack.TeamContext

	mu      sync.Mutex
	entries map[string][]worktrack.DateRange
}

// NewTeamDaysOffStore creates an empty store bound to one team context.
func NewTeamDaysOffStore(client worktrack.Client, tc worktrack.TeamContext) *TeamDaysOffStore {
	return &TeamDaysOffStore{
		client:  client,
		tc:      tc,
		entries: make(map[string][]worktrack.DateRange),
	}
}

// Get returns the cached day-off list for the iteration, fetching on miss.
func (s *TeamDaysOffStore) Get(ctx context.Context, iterationID string) ([]worktrack.DateRange, error) {
	s.mu.Lock()
	if cached, ok := s.entries[iterationID]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	fetched, err := s.client.GetTeamDaysOff(ctx, s.tc, iterationID)
	if err != nil {
		return nil, fmt.Errorf("fetch team days off: %w", err)
	}

	s.mu.Lock()
	s.entries[iterationID] = fetched.DaysOff
	s.mu.Unlock()
	return fetched.DaysOff, nil
}

// Add appends a new range to the iteration's day-off list.
func (s *TeamDaysOffStore) Add(ctx context.Context, iterationID string, r worktrack.DateRange) (worktrack.TeamDaysOff, error) {
	return s.mutate(ctx, iterationID, func(daysOff []worktrack.DateRange) []worktrack.DateRange {
		return append(daysOff, r)
	})
}

// Update overwrites the range whose start matches origStart. No match leaves
// the list unchanged; the patch is sent either way.
func (s *TeamDaysOffStore) Update(ctx context.Context, iterationID string, origStart time.Time, r worktrack.DateRange) (worktrack.TeamDaysOff, error) {
	return s.mutate(ctx, iterationID, func(daysOff []worktrack.DateRange) []worktrack.DateRange {
		for i := range daysOff {
			if daysOff[i].Start.Equal(origStart) {
				daysOff[i] = r
				break
			}
		}
		return daysOff
	})
}

// Delete removes the range whose start matches exactly. No match is a silent
// no-op on the copy; the patch is sent either way.
func (s *TeamDaysOffStore) Delete(ctx context.Context, iterationID string, start time.Time) (worktrack.TeamDaysOff, error) {
	return s.mutate(ctx, iterationID, func(daysOff []worktrack.DateRange) []worktrack.DateRange {
		for i := range daysOff {
			if daysOff[i].Start.Equal(start) {
				return slices.Delete(daysOff, i, i+1)
			}
		}
		return daysOff
	})
}

// mutate runs the invalidate-before-write pipeline: read-modify-write the
// full list, with the cache entry dropped before the patch is issued.
func (s *TeamDaysOffStore) mutate(ctx context.Context, iterationID string, apply func([]worktrack.DateRange) []worktrack.DateRange) (worktrack.TeamDaysOff, error) {
	current, err := s.Get(ctx, iterationID)
	if err != nil {
		return worktrack.TeamDaysOff{}, err
	}

	s.invalidate(iterationID)

	patch := worktrack.TeamDaysOffPatch{DaysOff: apply(slices.Clone(current))}
	result, err := s.client.UpdateTeamDaysOff(ctx, patch, s.tc, iterationID)
	if err != nil {
		return worktrack.TeamDaysOff{}, fmt.Errorf("patch team days off: %w", err)
	}
	return result, nil
}

func (s *TeamDaysOffStore) invalidate(iterationID string) {
	s.mu.Lock()
	delete(s.entries, iterationID)
	s.mu.Unlock()
}

// Invalidate drops all cached entries. Called on team switch.
func (s *TeamDaysOffStore) Invalidate() {
	s.mu.Lock()
	s.entries = make(map[string][]worktrack.DateRange)
	s.mu.Unlock()
}
