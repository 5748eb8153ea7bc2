// Package sync materializes team events from all providers on a schedule and
// exports them for the rendering widget.
package sync

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cpuguy83/teamcal/internal/events"
	"github.com/cpuguy83/teamcal/internal/filter"
	"github.com/cpuguy83/teamcal/internal/ics"
)

// Provider is a named event provider.
type Provider struct {
	Name     string
	Provider events.Provider
}

// Syncer materializes events from multiple providers.
type Syncer struct {
	providers []Provider
	filter    *filter.Filter
	interval  time.Duration
	past      time.Duration
	future    time.Duration
	output    string
}

// Options configures a Syncer.
type Options struct {
	Filter   *filter.Filter
	Interval time.Duration
	Past     time.Duration // Window behind today
	Future   time.Duration // Window ahead of today
	Output   string        // ICS output path; empty disables export
}

// NewSyncer creates a new Syncer over the given providers.
func NewSyncer(providers []Provider, opts Options) *Syncer {
	return &Syncer{
		providers: providers,
		filter:    opts.Filter,
		interval:  opts.Interval,
		past:      opts.Past,
		future:    opts.Future,
		output:    opts.Output,
	}
}

// Interval returns the configured sync interval.
func (s *Syncer) Interval() time.Duration {
	return s.interval
}

// Window returns the materialization window around now. Start is inclusive
// and End is exclusive, both at UTC midnight.
func (s *Syncer) Window(now time.Time) (time.Time, time.Time) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.Add(-s.past), today.Add(s.future).AddDate(0, 0, 1)
}

// Sync fetches all providers for the current window, merges their events,
// applies the filter, and writes the ICS output if configured.
func (s *Syncer) Sync(ctx context.Context) (events.Result, error) {
	start, end := s.Window(time.Now())
	slog.Info("starting sync", "providers", len(s.providers), "start", start, "end", end)

	type result struct {
		res  events.Result
		name string
		err  error
	}

	results := make(chan result, len(s.providers))
	var wg sync.WaitGroup

	for _, p := range s.providers {
		wg.Go(func() {
			slog.Debug("fetching provider", "name", p.Name)
			res, err := p.Provider.GetEvents(ctx, start, end)
			results <- result{res: res, name: p.Name, err: err}
		})
	}

	// Close results channel when all goroutines complete
	go func() {
		wg.Wait()
		close(results)
	}()

	var merged events.Result
	var firstErr error
	for r := range results {
		if r.err != nil {
			slog.Warn("failed to fetch provider", "name", r.name, "error", r.err)
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		slog.Info("fetched provider", "name", r.name, "events", len(r.res.Events))
		merged.Events = append(merged.Events, r.res.Events...)
		merged.IterationCategories = append(merged.IterationCategories, r.res.IterationCategories...)
		merged.DaysOffCategories = append(merged.DaysOffCategories, r.res.DaysOffCategories...)
		if r.res.IterationsURL != "" {
			merged.IterationsURL = r.res.IterationsURL
		}
		if r.res.CapacityURL != "" {
			merged.CapacityURL = r.res.CapacityURL
		}
	}

	if firstErr != nil {
		// A provider failure means the pass is incomplete; do not publish
		// a partial reading of the team's calendar.
		return events.Result{}, firstErr
	}

	if s.filter != nil {
		merged.Events = s.filter.Apply(merged.Events)
	}

	slices.SortFunc(merged.Events, func(a, b events.Event) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	if s.output != "" {
		if err := ics.Write(s.output, merged.Events); err != nil {
			return events.Result{}, err
		}
		slog.Info("wrote output", "path", s.output, "events", len(merged.Events))
	}

	slog.Info("sync complete", "events", len(merged.Events))
	return merged, nil
}

// Run starts the sync loop, calling onSync after each pass completes.
// The callback receives the merged result and any error. Run blocks until
// the context is cancelled.
func (s *Syncer) Run(ctx context.Context, onSync func(events.Result, error)) {
	// Initial sync
	res, err := s.Sync(ctx)
	onSync(res, err)

	// Periodic sync
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := s.Sync(ctx)
			onSync(res, err)
		case <-ctx.Done():
			return
		}
	}
}
