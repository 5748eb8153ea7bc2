package capacity

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cpuguy83/teamcal/internal/worktrack"
)

// CapacityStore caches per-member capacity records per iteration. Mutations
// target one member but invalidate the whole iteration entry, same
// invalidate-before-write pipeline as TeamDaysOffStore.
type CapacityStore struct {
	client worktrack.Client
	tc     worktrack.TeamContext

	mu      sync.Mutex
	entries map[string][]worktrack.TeamMemberCapacity
}

// NewCapacityStore creates an empty store bound to one team context.
func NewCapacityStore(client worktrack.Client, tc worktrack.TeamContext) *CapacityStore {
	return &CapacityStore{
		client:  client,
		tc:      tc,
		entries: make(map[string][]worktrack.TeamMemberCapacity),
	}
}

// Get returns the cached capacity list for the iteration, fetching on miss.
func (s *CapacityStore) Get(ctx context.Context, iterationID string) ([]worktrack.TeamMemberCapacity, error) {
	s.mu.Lock()
	if cached, ok := s.entries[iterationID]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	fetched, err := s.client.GetCapacities(ctx, s.tc, iterationID)
	if err != nil {
		return nil, fmt.Errorf("fetch capacities: %w", err)
	}

	s.mu.Lock()
	s.entries[iterationID] = fetched
	s.mu.Unlock()
	return fetched, nil
}

// Add appends a day-off range for the member, synthesizing an empty capacity
// record (no activities) on first use.
func (s *CapacityStore) Add(ctx context.Context, iterationID string, member worktrack.Member, r worktrack.DateRange) (worktrack.TeamMemberCapacity, error) {
	return s.mutate(ctx, iterationID, member, func(c worktrack.TeamMemberCapacity) worktrack.TeamMemberCapacity {
		c.DaysOff = append(c.DaysOff, r)
		return c
	})
}

// Update overwrites the member's range whose start matches origStart.
func (s *CapacityStore) Update(ctx context.Context, iterationID string, member worktrack.Member, origStart time.Time, r worktrack.DateRange) (worktrack.TeamMemberCapacity, error) {
	return s.mutate(ctx, iterationID, member, func(c worktrack.TeamMemberCapacity) worktrack.TeamMemberCapacity {
		for i := range c.DaysOff {
			if c.DaysOff[i].Start.Equal(origStart) {
				c.DaysOff[i] = r
				break
			}
		}
		return c
	})
}

// Delete removes the member's range whose start matches exactly. No match is
// a silent no-op on the copy; the patch is sent either way.
func (s *CapacityStore) Delete(ctx context.Context, iterationID string, member worktrack.Member, start time.Time) (worktrack.TeamMemberCapacity, error) {
	return s.mutate(ctx, iterationID, member, func(c worktrack.TeamMemberCapacity) worktrack.TeamMemberCapacity {
		for i := range c.DaysOff {
			if c.DaysOff[i].Start.Equal(start) {
				c.DaysOff = slices.Delete(c.DaysOff, i, i+1)
				break
			}
		}
		return c
	})
}

func (s *CapacityStore) mutate(ctx context.Context, iterationID string, member worktrack.Member, apply func(worktrack.TeamMemberCapacity) worktrack.TeamMemberCapacity) (worktrack.TeamMemberCapacity, error) {
	current, err := s.Get(ctx, iterationID)
	if err != nil {
		return worktrack.TeamMemberCapacity{}, err
	}

	s.invalidate(iterationID)

	record := worktrack.TeamMemberCapacity{Member: member}
	for _, c := range current {
		if c.Member.ID == member.ID {
			record = c
			record.DaysOff = slices.Clone(c.DaysOff)
			record.Activities = slices.Clone(c.Activities)
			break
		}
	}
	record = apply(record)

	patch := worktrack.CapacityPatch{
		Activities: record.Activities,
		DaysOff:    record.DaysOff,
	}
	result, err := s.client.UpdateCapacity(ctx, patch, s.tc, iterationID, member.ID)
	if err != nil {
		return worktrack.TeamMemberCapacity{}, fmt.Errorf("patch capacity: %w", err)
	}
	return result, nil
}

func (s *CapacityStore) invalidate(iterationID string) {
	s.mu.Lock()
	delete(s.entries, iterationID)
	s.mu.Unlock()
}

// Invalidate drops all cached entries. Called on team switch.
func (s *CapacityStore) Invalidate() {
	s.mu.Lock()
	s.entries = make(map[string][]worktrack.TeamMemberCapacity)
	s.mu.Unlock()
}
