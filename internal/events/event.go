// Package events materializes the renderable calendar-event model and summary
// categories for a visible date window.
package events

import (
	"time"

	"github.com/cpuguy83/teamcal/internal/worktrack"
)

// Kind tags the event variants the materializer can emit, so consumers
// branch on an explicit tag instead of id string conventions.
type Kind int

const (
	// KindIteration is a background event spanning a scheduled iteration.
	KindIteration Kind = iota

	// KindDaysOff is a synthetic, non-editable per-day marker grouping every
	// person/team day-off that touches that day.
	KindDaysOff

	// KindFreeForm is an ad-hoc event from the free-form store.
	KindFreeForm
)

func (k Kind) String() string {
	switch k {
	case KindIteration:
		return "iteration"
	case KindDaysOff:
		return "daysOff"
	case KindFreeForm:
		return "freeForm"
	default:
		return "unknown"
	}
}

// Icon references one underlying raw day-off entry contributing to a grouped
// marker. Edits always target the raw entry (member + original start), never
// the synthetic marker.
type Icon struct {
	Member      worktrack.Member
	IterationID string
	Start       time.Time
	End         time.Time
}

// Event is one renderable calendar event.
type Event struct {
	ID          string
	Kind        Kind
	Title       string
	Start       time.Time
	End         time.Time // exclusive
	AllDay      bool
	Color       string
	Category    string
	Description string
	Member      worktrack.Member
	IterationID string
	Icons       []Icon
}

// Category is one summary-panel entry: an iteration, or one person/team's
// days-off within the visible window.
type Category struct {
	Title      string
	Color      string
	ImageURL   string
	EventCount int
	SubTitle   string
}

// Result is the output of one materialization pass.
type Result struct {
	Events              []Event
	IterationCategories []Category
	DaysOffCategories   []Category

	// Host-platform page links for the summary panels, refreshed with each
	// pass. Empty when the materializer has no links configured.
	IterationsURL string
	CapacityURL   string
}

// GroupedCategory is the category name carried by grouped day-off markers.
const GroupedCategory = "Grouped Event"

// subtitleDateFormat renders the concrete date shown when a category has
// exactly one event.
const subtitleDateFormat = "01-02-2006"
