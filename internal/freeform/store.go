package freeform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cpuguy83/teamcal/internal/dates"
	"github.com/cpuguy83/teamcal/internal/docstore"
	"github.com/cpuguy83/teamcal/internal/events"
)

// Store is the free-form event engine. Events live in remote collections
// keyed by team and month of their start date; each collection is fetched at
// most once and merged into a cumulative id-keyed map (grown, never purged,
// until Reset).
type Store struct {
	docs   docstore.Store
	teamID string

	mu      sync.Mutex
	events  map[string]Event
	fetched map[string]bool
}

// NewStore creates an empty store for one team.
func NewStore(docs docstore.Store, teamID string) *Store {
	return &Store{
		docs:    docs,
		teamID:  teamID,
		events:  make(map[string]Event),
		fetched: make(map[string]bool),
	}
}

// Reset drops the event map and the fetched-collection set. Called on team
// switch.
func (s *Store) Reset() {
	s.mu.Lock()
	s.events = make(map[string]Event)
	s.fetched = make(map[string]bool)
	s.mu.Unlock()
}

// GetEvents returns renderable events and per-category summaries for the
// window [start, end). Collections from one month before the window through
// its end are fetched unless already cached.
func (s *Store) GetEvents(ctx context.Context, start, end time.Time) (events.Result, error) {
	window := dates.Range{Start: start, End: end.AddDate(0, 0, -1)}

	if err := s.fetch(ctx, window); err != nil {
		return events.Result{}, err
	}

	s.mu.Lock()
	all := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		all = append(all, e)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	var result events.Result
	counts := make(map[string]*events.Category)
	var order []string

	for _, e := range all {
		eventStart, err := e.Start()
		if err != nil {
			continue
		}
		eventEnd, err := e.End()
		if err != nil {
			continue
		}
		if !dates.Overlaps(dates.Range{Start: eventStart, End: eventEnd}, window) {
			continue
		}

		result.Events = append(result.Events, events.Event{
			ID:          e.ID,
			Kind:        events.KindFreeForm,
			Title:       e.Title,
			Start:       eventStart,
			End:         eventEnd.AddDate(0, 0, 1),
			AllDay:      true,
			Color:       e.Category.Color,
			Category:    e.Category.Title,
			Description: e.Description,
		})

		cat, ok := counts[e.Category.Title]
		if !ok {
			cat = &events.Category{
				Title:    e.Category.Title,
				Color:    e.Category.Color,
				ImageURL: e.Category.ImageURL,
			}
			counts[e.Category.Title] = cat
			order = append(order, e.Category.Title)
		}
		cat.EventCount++
		if cat.EventCount == 1 {
			cat.SubTitle = eventStart.Format("01-02-2006")
		} else {
			cat.SubTitle = fmt.Sprintf("%d events", cat.EventCount)
		}
	}

	sort.Slice(result.Events, func(i, j int) bool {
		return result.Events[i].Start.Before(result.Events[j].Start)
	})
	for _, title := range order {
		result.DaysOffCategories = append(result.DaysOffCategories, *counts[title])
	}
	return result, nil
}

// fetch pulls any not-yet-fetched collections the window may touch.
func (s *Store) fetch(ctx context.Context, window dates.Range) error {
	keys := dates.MonthKeysSpanning(s.teamID, window.Start, window.End)

	s.mu.Lock()
	var missing []string
	for _, k := range keys {
		if !s.fetched[k] {
			missing = append(missing, k)
		}
	}
	s.mu.Unlock()

	if len(missing) == 0 {
		return nil
	}

	collections, err := s.docs.QueryCollections(ctx, missing)
	if err != nil {
		return fmt.Errorf("query collections: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range missing {
		s.fetched[k] = true
		for _, doc := range collections[k] {
			var e Event
			if err := json.Unmarshal(doc, &e); err != nil {
				slog.Warn("skip undecodable event document", "collection", k, "error", err)
				continue
			}
			if _, err := e.Start(); err != nil {
				// Documents with unparsable dates are excluded, not surfaced.
				slog.Warn("skip event with unparsable date", "collection", k, "id", e.ID)
				continue
			}
			s.events[e.ID] = e
		}
	}
	return nil
}

// Add stores a new event, assigning an id when none is set, and returns the
// stored event.
func (s *Store) Add(ctx context.Context, e Event) (Event, error) {
	start, err := e.Start()
	if err != nil {
		return Event{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Category.Color == "" {
		e.Category.Color = ColorForTitle(e.Category.Title)
	}

	if err := s.docs.Create(ctx, dates.MonthKey(s.teamID, start), e); err != nil {
		return Event{}, fmt.Errorf("create event: %w", err)
	}

	s.mu.Lock()
	s.events[e.ID] = e
	s.mu.Unlock()
	return e, nil
}

// Update rewrites an event. When the new start date lands in a different
// month partition, the document is deleted from the old collection and
// recreated in the new one with a fresh identity; callers must adopt the
// returned event.
func (s *Store) Update(ctx context.Context, e Event) (Event, error) {
	newStart, err := e.Start()
	if err != nil {
		return Event{}, err
	}

	s.mu.Lock()
	old, ok := s.events[e.ID]
	s.mu.Unlock()
	if !ok {
		return Event{}, fmt.Errorf("event %s not known", e.ID)
	}

	oldStart, err := old.Start()
	if err != nil {
		return Event{}, err
	}

	oldKey := dates.MonthKey(s.teamID, oldStart)
	newKey := dates.MonthKey(s.teamID, newStart)

	if oldKey == newKey {
		if err := s.docs.Update(ctx, oldKey, e); err != nil {
			return Event{}, fmt.Errorf("update event: %w", err)
		}
		s.mu.Lock()
		s.events[e.ID] = e
		s.mu.Unlock()
		return e, nil
	}

	// Cross-month move: the document changes identity server-side.
	if err := s.docs.Delete(ctx, oldKey, e.ID); err != nil {
		return Event{}, fmt.Errorf("move event out of %s: %w", oldKey, err)
	}

	oldID := e.ID
	e.ID = uuid.NewString()
	if err := s.docs.Create(ctx, newKey, e); err != nil {
		return Event{}, fmt.Errorf("move event into %s: %w", newKey, err)
	}

	s.mu.Lock()
	delete(s.events, oldID)
	s.events[e.ID] = e
	s.mu.Unlock()
	return e, nil
}

// Remove deletes an event.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.events[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("event %s not known", id)
	}

	start, err := e.Start()
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, dates.MonthKey(s.teamID, start), id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}

	s.mu.Lock()
	delete(s.events, id)
	s.mu.Unlock()
	return nil
}

var _ events.Provider = (*Store)(nil)
