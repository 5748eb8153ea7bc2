// Package worktrack provides the client for the work-tracking service's
// iteration, team days-off and capacity resources.
package worktrack

import (
	"context"
	"time"
)

// TeamContext identifies the project/team all requests are scoped to.
type TeamContext struct {
	Project string
	Team    string
}

// Iteration is a named, optionally date-bounded work period. Start and Finish
// are nil for unscheduled iterations. Iterations are immutable once fetched.
type Iteration struct {
	ID        string
	Name      string
	Path      string
	Start     *time.Time
	Finish    *time.Time
	TimeFrame string
}

// Scheduled reports whether the iteration has both bounds set.
func (it Iteration) Scheduled() bool {
	return it.Start != nil && it.Finish != nil
}

// DateRange is an inclusive day-off range, normalized to UTC neutral
// midnight on decode.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// TeamDaysOff holds the team-wide day-off ranges for one iteration.
// Mutations replace the whole list (read-modify-write, no partial update).
type TeamDaysOff struct {
	DaysOff []DateRange
}

// Activity is an opaque per-member allocation entry. It rides along in
// capacity patches but is never rendered.
type Activity struct {
	Name           string
	CapacityPerDay float64
}

// Member identifies a team member.
type Member struct {
	ID          string
	DisplayName string
	UniqueName  string
}

// TeamMemberCapacity is one member's capacity record for one iteration.
type TeamMemberCapacity struct {
	Member     Member
	Activities []Activity
	DaysOff    []DateRange
}

// TeamDaysOffPatch replaces the full team days-off list.
type TeamDaysOffPatch struct {
	DaysOff []DateRange
}

// CapacityPatch replaces one member's activities and days-off.
type CapacityPatch struct {
	Activities []Activity
	DaysOff    []DateRange
}

// Client is the surface the capacity engine needs from the work-tracking
// service.
type Client interface {
	GetTeamIterations(ctx context.Context, tc TeamContext) ([]Iteration, error)
	GetTeamDaysOff(ctx context.Context, tc TeamContext, iterationID string) (TeamDaysOff, error)
	UpdateTeamDaysOff(ctx context.Context, patch TeamDaysOffPatch, tc TeamContext, iterationID string) (TeamDaysOff, error)
	GetCapacities(ctx context.Context, tc TeamContext, iterationID string) ([]TeamMemberCapacity, error)
	UpdateCapacity(ctx context.Context, patch CapacityPatch, tc TeamContext, iterationID, memberID string) (TeamMemberCapacity, error)
}
