// Package freeform manages ad-hoc calendar events stored as documents in
// month-partitioned remote collections.
package freeform

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// dateFormat is how event boundaries are stored in documents. Only the
// calendar day matters.
const dateFormat = "2006-01-02T15:04:05.000Z"

// categoryColors is the deterministic palette categories draw from.
var categoryColors = []string{
	"#E81123", "#FF8C00", "#FFB900", "#10893E",
	"#038387", "#0078D7", "#8764B8", "#881798",
}

// Category describes an event's category. Legacy documents store it as a
// bare string; either form decodes into the structured shape.
type Category struct {
	Title    string `json:"title"`
	Color    string `json:"color,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// UnmarshalJSON accepts both the legacy bare-string form and the structured
// object form, assigning the deterministic color when none is stored.
func (c *Category) UnmarshalJSON(data []byte) error {
	var title string
	if err := json.Unmarshal(data, &title); err == nil {
		*c = Category{Title: title, Color: ColorForTitle(title)}
		return nil
	}

	type plain Category
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode category: %w", err)
	}
	*c = Category(p)
	if c.Color == "" {
		c.Color = ColorForTitle(c.Title)
	}
	return nil
}

// ColorForTitle derives a stable color from the lower-cased category title.
func ColorForTitle(title string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(title)))
	return categoryColors[h.Sum32()%uint32(len(categoryColors))]
}

// Event is one ad-hoc calendar event document. Start and end days are
// inclusive.
type Event struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
	Category    Category `json:"category"`
	Description string   `json:"description,omitempty"`
}

// Start parses the stored start day.
func (e Event) Start() (time.Time, error) {
	return parseDocDate(e.StartDate)
}

// End parses the stored end day.
func (e Event) End() (time.Time, error) {
	return parseDocDate(e.EndDate)
}

// parseDocDate parses a stored date string, normalized to UTC midnight of
// its calendar day.
func parseDocDate(s string) (time.Time, error) {
	for _, layout := range []string{dateFormat, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", s)
}

// FormatDocDate renders a day in the stored document format.
func FormatDocDate(t time.Time) string {
	return t.UTC().Format(dateFormat)
}
