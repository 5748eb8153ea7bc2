package capacity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cpuguy83/teamcal/internal/worktrack"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

// fakeClient is an in-memory work-tracking service that counts fetches.
type fakeClient struct {
	iterations []worktrack.Iteration
	teamDays   map[string][]worktrack.DateRange
	capacities map[string][]worktrack.TeamMemberCapacity

	iterationFetches int
	teamDaysFetches  map[string]int
	capacityFetches  map[string]int

	lastTeamPatch     *worktrack.TeamDaysOffPatch
	lastCapacityPatch *worktrack.CapacityPatch

	failPatches bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		teamDays:        make(map[string][]worktrack.DateRange),
		capacities:      make(map[string][]worktrack.TeamMemberCapacity),
		teamDaysFetches: make(map[string]int),
		capacityFetches: make(map[string]int),
	}
}

func (f *fakeClient) GetTeamIterations(ctx context.Context, tc worktrack.TeamContext) ([]worktrack.Iteration, error) {
	f.iterationFetches++
	return f.iterations, nil
}

func (f *fakeClient) GetTeamDaysOff(ctx context.Context, tc worktrack.TeamContext, iterationID string) (worktrack.TeamDaysOff, error) {
	f.teamDaysFetches[iterationID]++
	return worktrack.TeamDaysOff{DaysOff: f.teamDays[iterationID]}, nil
}

func (f *fakeClient) UpdateTeamDaysOff(ctx context.Context, patch worktrack.TeamDaysOffPatch, tc worktrack.TeamContext, iterationID string) (worktrack.TeamDaysOff, error) {
	if f.failPatches {
		return worktrack.TeamDaysOff{}, errors.New("patch rejected")
	}
	f.lastTeamPatch = &patch
	f.teamDays[iterationID] = patch.DaysOff
	return worktrack.TeamDaysOff{DaysOff: patch.DaysOff}, nil
}

func (f *fakeClient) GetCapacities(ctx context.Context, tc worktrack.TeamContext, iterationID string) ([]worktrack.TeamMemberCapacity, error) {
	f.capacityFetches[iterationID]++
	return f.capacities[iterationID], nil
}

func (f *fakeClient) UpdateCapacity(ctx context.Context, patch worktrack.CapacityPatch, tc worktrack.TeamContext, iterationID, memberID string) (worktrack.TeamMemberCapacity, error) {
	if f.failPatches {
		return worktrack.TeamMemberCapacity{}, errors.New("patch rejected")
	}
	f.lastCapacityPatch = &patch
	result := worktrack.TeamMemberCapacity{
		Member:     worktrack.Member{ID: memberID},
		Activities: patch.Activities,
		DaysOff:    patch.DaysOff,
	}

	replaced := false
	for i, c := range f.capacities[iterationID] {
		if c.Member.ID == memberID {
			f.capacities[iterationID][i] = result
			replaced = true
			break
		}
	}
	if !replaced {
		f.capacities[iterationID] = append(f.capacities[iterationID], result)
	}
	return result, nil
}

var tc = worktrack.TeamContext{Project: "proj", Team: "team"}

func TestIterationCacheFetchesOnce(t *testing.T) {
	f := newFakeClient()
	f.iterations = []worktrack.Iteration{{ID: "i1", Name: "Sprint 1"}}
	c := NewIterationCache(f, tc)

	for range 3 {
		got, err := c.Iterations(context.Background())
		if err != nil {
			t.Fatalf("Iterations: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("got %d iterations", len(got))
		}
	}

	if f.iterationFetches != 1 {
		t.Errorf("iteration fetches = %d, want 1", f.iterationFetches)
	}

	c.Invalidate()
	if _, err := c.Iterations(context.Background()); err != nil {
		t.Fatalf("Iterations after invalidate: %v", err)
	}
	if f.iterationFetches != 2 {
		t.Errorf("iteration fetches after invalidate = %d, want 2", f.iterationFetches)
	}
}

func TestIterationForDates(t *testing.T) {
	f := newFakeClient()
	f.iterations = []worktrack.Iteration{
		{ID: "i1", Start: ptr(day(2024, 1, 1)), Finish: ptr(day(2024, 1, 14))},
		{ID: "i2", Start: ptr(day(2024, 1, 15)), Finish: ptr(day(2024, 1, 28))},
		{ID: "backlog"}, // unscheduled, never matches
	}
	c := NewIterationCache(f, tc)

	tests := []struct {
		name   string
		start  time.Time
		end    time.Time
		wantID string
	}{
		{"inside first", day(2024, 1, 3), day(2024, 1, 5), "i1"},
		{"on bounds", day(2024, 1, 15), day(2024, 1, 28), "i2"},
		{"spans two iterations", day(2024, 1, 10), day(2024, 1, 20), ""},
		{"outside all", day(2024, 3, 1), day(2024, 3, 2), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.IterationForDates(context.Background(), tt.start, tt.end)
			if err != nil {
				t.Fatalf("IterationForDates: %v", err)
			}
			if tt.wantID == "" {
				if got != nil {
					t.Errorf("got %q, want none", got.ID)
				}
				return
			}
			if got == nil || got.ID != tt.wantID {
				t.Errorf("got %v, want %q", got, tt.wantID)
			}
		})
	}
}

func TestTeamDaysOffGetCaches(t *testing.T) {
	f := newFakeClient()
	f.teamDays["i1"] = []worktrack.DateRange{{Start: day(2024, 1, 2), End: day(2024, 1, 2)}}
	s := NewTeamDaysOffStore(f, tc)

	for range 2 {
		if _, err := s.Get(context.Background(), "i1"); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}

	if f.teamDaysFetches["i1"] != 1 {
		t.Errorf("fetches = %d, want 1", f.teamDaysFetches["i1"])
	}
}

func TestTeamDaysOffAddInvalidatesAndPatches(t *testing.T) {
	f := newFakeClient()
	s := NewTeamDaysOffStore(f, tc)

	// Warm both caches.
	s.Get(context.Background(), "i1")
	s.Get(context.Background(), "i2")

	r := worktrack.DateRange{Start: day(2024, 1, 3), End: day(2024, 1, 3)}
	result, err := s.Add(context.Background(), "i1", r)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if f.lastTeamPatch == nil || len(f.lastTeamPatch.DaysOff) != 1 {
		t.Fatalf("patch = %+v, want exactly one range", f.lastTeamPatch)
	}
	if !f.lastTeamPatch.DaysOff[0].Start.Equal(day(2024, 1, 3)) || !f.lastTeamPatch.DaysOff[0].End.Equal(day(2024, 1, 3)) {
		t.Errorf("patch range = %+v", f.lastTeamPatch.DaysOff[0])
	}
	if len(result.DaysOff) != 1 {
		t.Errorf("result = %+v", result.DaysOff)
	}

	// Mutated key is cold, untouched key is still warm.
	s.Get(context.Background(), "i1")
	s.Get(context.Background(), "i2")
	if f.teamDaysFetches["i1"] != 2 {
		t.Errorf("i1 fetches = %d, want 2 (cache invalidated)", f.teamDaysFetches["i1"])
	}
	if f.teamDaysFetches["i2"] != 1 {
		t.Errorf("i2 fetches = %d, want 1 (cache untouched)", f.teamDaysFetches["i2"])
	}
}

func TestTeamDaysOffDelete(t *testing.T) {
	f := newFakeClient()
	f.teamDays["i1"] = []worktrack.DateRange{
		{Start: day(2024, 1, 2), End: day(2024, 1, 3)},
		{Start: day(2024, 1, 10), End: day(2024, 1, 10)},
	}
	s := NewTeamDaysOffStore(f, tc)

	result, err := s.Delete(context.Background(), "i1", day(2024, 1, 2))
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(result.DaysOff) != 1 || !result.DaysOff[0].Start.Equal(day(2024, 1, 10)) {
		t.Errorf("result = %+v", result.DaysOff)
	}
}

func TestTeamDaysOffDeleteNoMatchStillPatches(t *testing.T) {
	f := newFakeClient()
	f.teamDays["i1"] = []worktrack.DateRange{{Start: day(2024, 1, 2), End: day(2024, 1, 2)}}
	s := NewTeamDaysOffStore(f, tc)

	result, err := s.Delete(context.Background(), "i1", day(2024, 6, 1))
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if f.lastTeamPatch == nil {
		t.Fatal("no patch sent for no-op delete")
	}
	if len(result.DaysOff) != 1 {
		t.Errorf("result = %+v, want original list", result.DaysOff)
	}
}

func TestTeamDaysOffUpdate(t *testing.T) {
	f := newFakeClient()
	f.teamDays["i1"] = []worktrack.DateRange{{Start: day(2024, 1, 2), End: day(2024, 1, 2)}}
	s := NewTeamDaysOffStore(f, tc)

	result, err := s.Update(context.Background(), "i1", day(2024, 1, 2),
		worktrack.DateRange{Start: day(2024, 1, 4), End: day(2024, 1, 5)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(result.DaysOff) != 1 || !result.DaysOff[0].Start.Equal(day(2024, 1, 4)) || !result.DaysOff[0].End.Equal(day(2024, 1, 5)) {
		t.Errorf("result = %+v", result.DaysOff)
	}
}

func TestTeamDaysOffFailedPatchLeavesCacheCold(t *testing.T) {
	f := newFakeClient()
	s := NewTeamDaysOffStore(f, tc)

	s.Get(context.Background(), "i1")
	f.failPatches = true

	r := worktrack.DateRange{Start: day(2024, 1, 3), End: day(2024, 1, 3)}
	if _, err := s.Add(context.Background(), "i1", r); err == nil {
		t.Fatal("expected error from rejected patch")
	}

	// Next read must hit the server again, not serve the pre-mutation copy.
	f.failPatches = false
	s.Get(context.Background(), "i1")
	if f.teamDaysFetches["i1"] != 2 {
		t.Errorf("fetches = %d, want 2", f.teamDaysFetches["i1"])
	}
}

func TestCapacityAddSynthesizesRecord(t *testing.T) {
	f := newFakeClient()
	s := NewCapacityStore(f, tc)

	member := worktrack.Member{ID: "m1", DisplayName: "Alex"}
	r := worktrack.DateRange{Start: day(2024, 2, 10), End: day(2024, 2, 10)}
	result, err := s.Add(context.Background(), "i1", member, r)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if f.lastCapacityPatch == nil {
		t.Fatal("no patch sent")
	}
	if len(f.lastCapacityPatch.Activities) != 0 {
		t.Errorf("synthesized record has %d activities, want 0", len(f.lastCapacityPatch.Activities))
	}
	if len(result.DaysOff) != 1 || !result.DaysOff[0].Start.Equal(day(2024, 2, 10)) {
		t.Errorf("result = %+v", result.DaysOff)
	}
}

func TestCapacityAddPreservesExistingRecord(t *testing.T) {
	f := newFakeClient()
	f.capacities["i1"] = []worktrack.TeamMemberCapacity{{
		Member:     worktrack.Member{ID: "m1"},
		Activities: []worktrack.Activity{{Name: "Development", CapacityPerDay: 6}},
		DaysOff:    []worktrack.DateRange{{Start: day(2024, 2, 1), End: day(2024, 2, 1)}},
	}}
	s := NewCapacityStore(f, tc)

	r := worktrack.DateRange{Start: day(2024, 2, 10), End: day(2024, 2, 11)}
	result, err := s.Add(context.Background(), "i1", worktrack.Member{ID: "m1"}, r)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if len(result.Activities) != 1 {
		t.Errorf("activities dropped: %+v", result.Activities)
	}
	if len(result.DaysOff) != 2 {
		t.Errorf("days off = %+v, want 2 ranges", result.DaysOff)
	}
}

func TestCapacityMutationInvalidatesOnlyThatIteration(t *testing.T) {
	f := newFakeClient()
	s := NewCapacityStore(f, tc)

	s.Get(context.Background(), "i1")
	s.Get(context.Background(), "i2")

	member := worktrack.Member{ID: "m1"}
	start := day(2024, 2, 10)
	if _, err := s.Delete(context.Background(), "i1", member, start); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	s.Get(context.Background(), "i1")
	s.Get(context.Background(), "i2")
	if f.capacityFetches["i1"] != 2 {
		t.Errorf("i1 fetches = %d, want 2", f.capacityFetches["i1"])
	}
	if f.capacityFetches["i2"] != 1 {
		t.Errorf("i2 fetches = %d, want 1", f.capacityFetches["i2"])
	}
}

func TestCapacityUpdateRewritesRange(t *testing.T) {
	f := newFakeClient()
	f.capacities["i1"] = []worktrack.TeamMemberCapacity{{
		Member:  worktrack.Member{ID: "m1"},
		DaysOff: []worktrack.DateRange{{Start: day(2024, 2, 10), End: day(2024, 2, 10)}},
	}}
	s := NewCapacityStore(f, tc)

	result, err := s.Update(context.Background(), "i1", worktrack.Member{ID: "m1"},
		day(2024, 2, 10), worktrack.DateRange{Start: day(2024, 2, 12), End: day(2024, 2, 13)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(result.DaysOff) != 1 || !result.DaysOff[0].Start.Equal(day(2024, 2, 12)) {
		t.Errorf("result = %+v", result.DaysOff)
	}
}
