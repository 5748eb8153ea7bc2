// Package dates provides calendar-day arithmetic shared by the capacity and
// free-form event engines.
//
// The work-tracking service persists day-off boundaries as bare instants with
// no timezone marker. The engine treats them as whole calendar days regardless
// of viewer timezone by normalizing every boundary to a "neutral midnight":
// the UTC instant whose clock reading matches the local calendar day.
package dates

import (
	"fmt"
	"iter"
	"time"
)

// Range is an inclusive day range. Start and End are expected to be neutral
// midnights (see ShiftToUTC).
type Range struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days the range covers, inclusive on
// both ends. A range with End before Start covers zero days.
func (r Range) Days() int {
	d := int(r.End.Sub(r.Start).Hours()/24) + 1
	if d < 0 {
		return 0
	}
	return d
}

// ShiftToUTC adds the local UTC offset to t so that a local-midnight instant
// and a UTC-midnight instant compare equal.
func ShiftToUTC(t time.Time) time.Time {
	_, offset := t.Zone()
	return t.Add(time.Duration(offset) * time.Second).UTC()
}

// ShiftToLocal undoes ShiftToUTC for the local zone the instant maps to.
// ShiftToLocal(ShiftToUTC(t)) == t for any t.
func ShiftToLocal(t time.Time) time.Time {
	local := t.In(time.Local)
	_, offset := local.Zone()
	return local.Add(-time.Duration(offset) * time.Second)
}

// Midnight truncates t to midnight of its calendar day, preserving location.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// InRange yields one time per calendar day from start to end inclusive.
// The sequence is finite, restartable, and empty when end precedes start.
func InRange(start, end time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			if !yield(d) {
				return
			}
		}
	}
}

// Overlaps reports whether an endpoint of the candidate range r falls within
// the query range w, inclusive on both ends.
//
// Note the asymmetry: a candidate that strictly contains w, with neither
// endpoint inside it, does not overlap under this test. The iteration and
// days-off filters depend on this narrow behavior; do not widen it.
func Overlaps(r, w Range) bool {
	return within(r.Start, w) || within(r.End, w)
}

func within(t time.Time, w Range) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// DayKey returns the ISO date string used to key per-day grouping maps.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// MonthKey returns the remote collection name for a team and an event start
// date: "<team>.<month>-<year>" with a 1-based unpadded month.
func MonthKey(teamID string, t time.Time) string {
	return fmt.Sprintf("%s.%d-%d", teamID, int(t.Month()), t.Year())
}

// MonthKeysSpanning returns collection names covering one month before start
// through end, in chronological order.
func MonthKeysSpanning(teamID string, start, end time.Time) []string {
	var keys []string
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location()).AddDate(0, -1, 0)
	for !cur.After(end) {
		keys = append(keys, MonthKey(teamID, cur))
		cur = cur.AddDate(0, 1, 0)
	}
	return keys
}
