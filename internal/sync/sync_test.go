package sync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cpuguy83/teamcal/internal/config"
	"github.com/cpuguy83/teamcal/internal/events"
	"github.com/cpuguy83/teamcal/internal/filter"
	"github.com/cpuguy83/teamcal/internal/ics"
)

type stubProvider struct {
	res     events.Result
	err     error
	windows [][2]time.Time
}

func (p *stubProvider) GetEvents(ctx context.Context, start, end time.Time) (events.Result, error) {
	p.windows = append(p.windows, [2]time.Time{start, end})
	if p.err != nil {
		return events.Result{}, p.err
	}
	return p.res, nil
}

func TestWindow(t *testing.T) {
	s := NewSyncer(nil, Options{
		Past:   7 * 24 * time.Hour,
		Future: 14 * 24 * time.Hour,
	})

	now := time.Date(2024, 2, 10, 16, 30, 0, 0, time.FixedZone("CET", 3600))
	start, end := s.Window(now)

	if want := time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("expected start %v, got %v", want, start)
	}
	// Future window ends the day after today+future, so the final day is
	// included by the exclusive end.
	if want := time.Date(2024, 2, 25, 0, 0, 0, 0, time.UTC); !end.Equal(want) {
		t.Errorf("expected end %v, got %v", want, end)
	}
}

func TestSyncMergesAndSorts(t *testing.T) {
	a := &stubProvider{res: events.Result{
		Events: []events.Event{
			{ID: "b", Title: "Second", Start: time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)},
		},
		IterationCategories: []events.Category{{Title: "Sprint 1"}},
	}}
	b := &stubProvider{res: events.Result{
		Events: []events.Event{
			{ID: "a", Title: "First", Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		},
		DaysOffCategories: []events.Category{{Title: "Offsite"}},
	}}

	s := NewSyncer([]Provider{
		{Name: "tracker", Provider: a},
		{Name: "docs", Provider: b},
	}, Options{Past: 24 * time.Hour, Future: 24 * time.Hour})

	res, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	if len(res.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(res.Events))
	}
	if res.Events[0].ID != "a" || res.Events[1].ID != "b" {
		t.Errorf("events not sorted by start: %q, %q", res.Events[0].ID, res.Events[1].ID)
	}
	if len(res.IterationCategories) != 1 || len(res.DaysOffCategories) != 1 {
		t.Errorf("categories not merged: %+v", res)
	}

	if len(a.windows) != 1 || len(b.windows) != 1 {
		t.Fatalf("expected one fetch per provider")
	}
	if !a.windows[0][0].Equal(b.windows[0][0]) || !a.windows[0][1].Equal(b.windows[0][1]) {
		t.Error("providers fetched with different windows")
	}
}

func TestSyncProviderFailureFailsPass(t *testing.T) {
	boom := errors.New("boom")
	ok := &stubProvider{res: events.Result{Events: []events.Event{{ID: "a"}}}}
	bad := &stubProvider{err: boom}

	s := NewSyncer([]Provider{
		{Name: "ok", Provider: ok},
		{Name: "bad", Provider: bad},
	}, Options{Past: 24 * time.Hour, Future: 24 * time.Hour})

	_, err := s.Sync(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestSyncAppliesFilterAndWritesOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "team.ics")

	p := &stubProvider{res: events.Result{
		Events: []events.Event{
			{ID: "keep", Title: "Sprint 1", Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), AllDay: true},
			{ID: "drop", Title: "Unrelated", Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), AllDay: true},
		},
	}}

	f, err := filter.New(config.FilterConfig{
		Rules: []config.FilterRule{{Field: "title", Contains: "Sprint"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	s := NewSyncer([]Provider{{Name: "tracker", Provider: p}}, Options{
		Filter: f,
		Past:   24 * time.Hour,
		Future: 24 * time.Hour,
		Output: out,
	})

	res, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(res.Events) != 1 || res.Events[0].ID != "keep" {
		t.Fatalf("filter not applied: %+v", res.Events)
	}

	file, err := os.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer file.Close()

	written, err := ics.Read(file)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(written) != 1 || written[0].ID != "keep" {
		t.Fatalf("unexpected output events: %+v", written)
	}
}

func TestRunInitialSyncAndCancel(t *testing.T) {
	p := &stubProvider{res: events.Result{Events: []events.Event{{ID: "a"}}}}
	s := NewSyncer([]Provider{{Name: "tracker", Provider: p}}, Options{
		Interval: time.Hour,
		Past:     24 * time.Hour,
		Future:   24 * time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan events.Result, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx, func(res events.Result, err error) {
			if err != nil {
				t.Errorf("unexpected sync error: %v", err)
			}
			select {
			case calls <- res:
			default:
			}
		})
	}()

	select {
	case res := <-calls:
		if len(res.Events) != 1 {
			t.Errorf("expected initial sync result, got %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("initial sync did not complete")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
