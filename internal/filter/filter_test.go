package filter

import (
	"testing"

	"github.com/cpuguy83/teamcal/internal/config"
	"github.com/cpuguy83/teamcal/internal/events"
	"github.com/cpuguy83/teamcal/internal/worktrack"
)

func sampleEvents() []events.Event {
	return []events.Event{
		{ID: "1", Kind: events.KindIteration, Title: "Sprint 1", IterationID: "Sprint-1"},
		{ID: "2", Kind: events.KindDaysOff, Title: "Alice", Category: "Grouped Event", Member: worktrack.Member{DisplayName: "Alice"}},
		{ID: "3", Kind: events.KindFreeForm, Title: "Team offsite", Category: "Travel", Description: "Annual planning"},
	}
}

func TestApplyNoRules(t *testing.T) {
	f, err := New(config.FilterConfig{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got := f.Apply(sampleEvents())
	if len(got) != 3 {
		t.Errorf("expected all events to pass, got %d", len(got))
	}
}

func TestApplyRules(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.FilterConfig
		wantIDs []string
	}{
		{
			name: "contains title",
			cfg: config.FilterConfig{
				Rules: []config.FilterRule{{Field: "title", Contains: "Sprint"}},
			},
			wantIDs: []string{"1"},
		},
		{
			name: "exact case insensitive",
			cfg: config.FilterConfig{
				Rules: []config.FilterRule{{Field: "member", Exact: "alice", CaseInsensitive: true}},
			},
			wantIDs: []string{"2"},
		},
		{
			name: "kind field",
			cfg: config.FilterConfig{
				Rules: []config.FilterRule{{Field: "kind", Exact: "freeForm"}},
			},
			wantIDs: []string{"3"},
		},
		{
			name: "regex on description",
			cfg: config.FilterConfig{
				Rules: []config.FilterRule{{Field: "description", Regex: "^Annual"}},
			},
			wantIDs: []string{"3"},
		},
		{
			name: "or mode matches either",
			cfg: config.FilterConfig{
				Mode: "or",
				Rules: []config.FilterRule{
					{Field: "category", Exact: "Travel"},
					{Field: "iteration", Prefix: "Sprint"},
				},
			},
			wantIDs: []string{"1", "3"},
		},
		{
			name: "and mode requires all",
			cfg: config.FilterConfig{
				Mode: "and",
				Rules: []config.FilterRule{
					{Field: "kind", Exact: "daysOff"},
					{Field: "category", Suffix: "Event"},
				},
			},
			wantIDs: []string{"2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			got := f.Apply(sampleEvents())
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("expected %d events, got %d", len(tt.wantIDs), len(got))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("event %d: expected ID %q, got %q", i, id, got[i].ID)
				}
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	_, err := New(config.FilterConfig{
		Rules: []config.FilterRule{{Field: "title"}},
	})
	if err == nil {
		t.Error("expected error for rule with no pattern")
	}

	_, err = New(config.FilterConfig{
		Rules: []config.FilterRule{{Field: "title", Regex: "["}},
	})
	if err == nil {
		t.Error("expected error for invalid regex")
	}
}
