package events

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cpuguy83/teamcal/internal/capacity"
	"github.com/cpuguy83/teamcal/internal/dates"
	"github.com/cpuguy83/teamcal/internal/worktrack"
)

// currentIterationColor marks the iteration containing today; otherColors is
// a small rotation for the rest.
const currentIterationColor = "#C3E6A1"

var otherIterationColors = []string{"#D6EDF9", "#F9E6D6", "#E6D6F9", "#F9D6E0"}

// Materializer drives the iteration/days-off/capacity stores for a visible
// window and folds the results into renderable events and summary categories.
//
// The rotation index for "other iteration" background colors is owned by the
// instance and advances on every pass; Reset (team switch) zeroes it.
type Materializer struct {
	iterations  *capacity.IterationCache
	teamDaysOff *capacity.TeamDaysOffStore
	capacities  *capacity.CapacityStore
	teamID      string
	teamName    string

	// Links holds the host-platform pages the summary panels link to.
	// Optional; set once at wiring time.
	Links Links

	mu         sync.Mutex
	paletteIdx int
}

// Links are the admin/capacity page URLs surfaced alongside the categories.
type Links struct {
	Iterations string
	Capacity   string
}

// NewMaterializer wires the materializer to its stores.
func NewMaterializer(iterations *capacity.IterationCache, teamDaysOff *capacity.TeamDaysOffStore, capacities *capacity.CapacityStore, teamID, teamName string) *Materializer {
	return &Materializer{
		iterations:  iterations,
		teamDaysOff: teamDaysOff,
		capacities:  capacities,
		teamID:      teamID,
		teamName:    teamName,
	}
}

// Reset reverts per-team state after a team switch: the stores' caches and
// the palette rotation.
func (m *Materializer) Reset() {
	m.iterations.Invalidate()
	m.teamDaysOff.Invalidate()
	m.capacities.Invalidate()

	m.mu.Lock()
	m.paletteIdx = 0
	m.mu.Unlock()
}

// iterationData is the settled fetch result for one loaded iteration.
type iterationData struct {
	iteration worktrack.Iteration
	teamDays  []worktrack.DateRange
	caps      []worktrack.TeamMemberCapacity
	err       error
}

// GetEvents materializes events and categories for the window [start, end).
// All per-iteration fetches must settle before anything is returned; a single
// failure fails the pass (cached data for other keys is untouched).
func (m *Materializer) GetEvents(ctx context.Context, start, end time.Time) (Result, error) {
	// The widget hands over an exclusive end; fold over inclusive days.
	window := dates.Range{Start: start, End: end.AddDate(0, 0, -1)}

	iterations, err := m.iterations.Iterations(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("resolve iterations: %w", err)
	}

	var result Result
	var loaded []worktrack.Iteration

	today := dates.Midnight(time.Now().UTC())
	for _, it := range iterations {
		if !it.Scheduled() {
			// Unscheduled iterations cannot be range-filtered; always load.
			loaded = append(loaded, it)
			continue
		}

		bounds := dates.Range{Start: *it.Start, End: *it.Finish}
		if !dates.Overlaps(bounds, window) {
			continue
		}
		loaded = append(loaded, it)

		result.Events = append(result.Events, m.backgroundEvent(it, bounds, today))
		result.IterationCategories = append(result.IterationCategories, Category{
			Title:      it.Name,
			EventCount: 1,
			SubTitle: fmt.Sprintf("%s - %s",
				bounds.Start.Format(subtitleDateFormat),
				bounds.End.Format(subtitleDateFormat)),
		})
	}

	data, err := m.fetchAll(ctx, loaded)
	if err != nil {
		return Result{}, err
	}

	grouped := newGrouping(window)
	for _, d := range data {
		teamMember := worktrack.Member{ID: m.teamID, DisplayName: m.teamName}
		for _, r := range d.teamDays {
			grouped.fold(d.iteration.ID, teamMember, r)
		}
		for _, c := range d.caps {
			for _, r := range c.DaysOff {
				grouped.fold(d.iteration.ID, c.Member, r)
			}
		}
	}

	result.Events = append(result.Events, grouped.events()...)
	result.DaysOffCategories = grouped.categories()
	result.IterationsURL = m.Links.Iterations
	result.CapacityURL = m.Links.Capacity

	slog.Debug("materialized window",
		"iterations", len(loaded),
		"events", len(result.Events),
		"days_off_categories", len(result.DaysOffCategories),
	)
	return result, nil
}

// backgroundEvent emits the iteration background, advancing the palette
// rotation for iterations that do not contain today.
func (m *Materializer) backgroundEvent(it worktrack.Iteration, bounds dates.Range, today time.Time) Event {
	color := currentIterationColor
	if today.Before(bounds.Start) || today.After(bounds.End) {
		m.mu.Lock()
		color = otherIterationColors[m.paletteIdx%len(otherIterationColors)]
		m.paletteIdx++
		m.mu.Unlock()
	}

	return Event{
		ID:          "iteration." + it.ID,
		Kind:        KindIteration,
		Title:       it.Name,
		Start:       bounds.Start,
		End:         bounds.End.AddDate(0, 0, 1),
		AllDay:      true,
		Color:       color,
		IterationID: it.ID,
	}
}

// fetchAll runs the team-days-off and capacity fetches for every loaded
// iteration in parallel (cache-short-circuited) and waits for all of them.
func (m *Materializer) fetchAll(ctx context.Context, loaded []worktrack.Iteration) ([]iterationData, error) {
	results := make(chan iterationData, len(loaded))
	var wg sync.WaitGroup

	for _, it := range loaded {
		wg.Go(func() {
			d := iterationData{iteration: it}

			var inner sync.WaitGroup
			var teamErr, capErr error
			inner.Go(func() {
				d.teamDays, teamErr = m.teamDaysOff.Get(ctx, it.ID)
			})
			inner.Go(func() {
				d.caps, capErr = m.capacities.Get(ctx, it.ID)
			})
			inner.Wait()

			if teamErr != nil {
				d.err = teamErr
			} else if capErr != nil {
				d.err = capErr
			}
			results <- d
		})
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	byID := make(map[string]iterationData, len(loaded))
	var firstErr error
	for d := range results {
		if d.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("iteration %s: %w", d.iteration.ID, d.err)
		}
		byID[d.iteration.ID] = d
	}
	if firstErr != nil {
		return nil, firstErr
	}

	// Fold in iteration order so repeated passes group identically.
	ordered := make([]iterationData, 0, len(loaded))
	for _, it := range loaded {
		ordered = append(ordered, byID[it.ID])
	}
	return ordered, nil
}

// grouping folds expanded day-off days into one marker per date plus running
// per-owner category counts. The day map is rebuilt on every pass.
type grouping struct {
	window     dates.Range
	byDay      map[string]*Event
	byOwner    map[string]*Category
	ownerOrder []string
}

func newGrouping(window dates.Range) *grouping {
	return &grouping{
		window:  window,
		byDay:   make(map[string]*Event),
		byOwner: make(map[string]*Category),
	}
}

// fold expands one raw day-off range and accumulates the in-window days.
func (g *grouping) fold(iterationID string, member worktrack.Member, r worktrack.DateRange) {
	for d := range dates.InRange(r.Start, r.End) {
		if d.Before(g.window.Start) || d.After(g.window.End) {
			continue
		}

		cat, ok := g.byOwner[member.ID]
		if !ok {
			cat = &Category{Title: member.DisplayName}
			g.byOwner[member.ID] = cat
			g.ownerOrder = append(g.ownerOrder, member.ID)
		}
		cat.EventCount++
		if cat.EventCount == 1 {
			cat.SubTitle = d.Format(subtitleDateFormat)
		} else {
			cat.SubTitle = fmt.Sprintf("%d days off", cat.EventCount)
		}

		key := dates.DayKey(d)
		ev, ok := g.byDay[key]
		if !ok {
			ev = &Event{
				ID:       "daysOff." + key,
				Kind:     KindDaysOff,
				Category: GroupedCategory,
				Start:    d,
				End:      d.AddDate(0, 0, 1),
				AllDay:   true,
			}
			g.byDay[key] = ev
		}
		ev.Icons = append(ev.Icons, Icon{
			Member:      member,
			IterationID: iterationID,
			Start:       r.Start,
			End:         r.End,
		})
	}
}

func (g *grouping) events() []Event {
	out := make([]Event, 0, len(g.byDay))
	for _, ev := range g.byDay {
		out = append(out, *ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (g *grouping) categories() []Category {
	out := make([]Category, 0, len(g.ownerOrder))
	for _, id := range g.ownerOrder {
		out = append(out, *g.byOwner[id])
	}
	return out
}
