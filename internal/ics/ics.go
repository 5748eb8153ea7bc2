// Package ics exports materialized events as an ICS file for the rendering
// widget.
package ics

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	ical "github.com/emersion/go-ical"

	"github.com/cpuguy83/teamcal/internal/events"
)

// X- properties carrying the domain bag on each VEVENT.
const (
	propKind        = "X-TEAMCAL-KIND"
	propCategory    = "X-TEAMCAL-CATEGORY"
	propMember      = "X-TEAMCAL-MEMBER"
	propIterationID = "X-TEAMCAL-ITERATION"
)

// Write writes events to an ICS file atomically: temp file first, then
// rename to the final path.
func Write(path string, evs []events.Event) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//TeamCal//TeamCal//EN")

	for _, ev := range evs {
		comp := ical.NewComponent(ical.CompEvent)

		comp.Props.SetText(ical.PropUID, ev.ID)
		comp.Props.SetText(ical.PropSummary, ev.Title)

		// DTSTAMP is required by the ICS spec
		comp.Props.SetDateTime(ical.PropDateTimeStamp, time.Now())

		if ev.Description != "" {
			comp.Props.SetText(ical.PropDescription, ev.Description)
		}
		if ev.Color != "" {
			comp.Props.SetText("COLOR", ev.Color)
		}

		if ev.AllDay {
			comp.Props.SetDate(ical.PropDateTimeStart, ev.Start)
			comp.Props.SetDate(ical.PropDateTimeEnd, ev.End)
		} else {
			comp.Props.SetDateTime(ical.PropDateTimeStart, ev.Start)
			comp.Props.SetDateTime(ical.PropDateTimeEnd, ev.End)
		}

		comp.Props.SetText(propKind, ev.Kind.String())
		if ev.Category != "" {
			comp.Props.SetText(propCategory, ev.Category)
		}
		if ev.Member.DisplayName != "" {
			comp.Props.SetText(propMember, ev.Member.DisplayName)
		}
		if ev.IterationID != "" {
			comp.Props.SetText(propIterationID, ev.IterationID)
		}

		cal.Children = append(cal.Children, comp)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return fmt.Errorf("encode ICS: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// Read decodes the VEVENTs of an exported file back into summarized events.
// Used to inspect previous output; only the fields Write emits come back.
func Read(r io.Reader) ([]events.Event, error) {
	dec := ical.NewDecoder(r)

	var out []events.Event
	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode ICS: %w", err)
		}

		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			ev, err := parseComponent(comp)
			if err != nil {
				continue
			}
			out = append(out, ev)
		}
	}
	return out, nil
}

func parseComponent(comp *ical.Component) (events.Event, error) {
	var ev events.Event

	if prop := comp.Props.Get(ical.PropUID); prop != nil {
		ev.ID = prop.Value
	}
	if prop := comp.Props.Get(ical.PropSummary); prop != nil {
		ev.Title = prop.Value
	}
	if prop := comp.Props.Get(ical.PropDescription); prop != nil {
		ev.Description = prop.Value
	}
	if prop := comp.Props.Get(propCategory); prop != nil {
		ev.Category = prop.Value
	}
	if prop := comp.Props.Get(propIterationID); prop != nil {
		ev.IterationID = prop.Value
	}
	if prop := comp.Props.Get(propKind); prop != nil {
		switch prop.Value {
		case "daysOff":
			ev.Kind = events.KindDaysOff
		case "freeForm":
			ev.Kind = events.KindFreeForm
		default:
			ev.Kind = events.KindIteration
		}
	}

	if prop := comp.Props.Get(ical.PropDateTimeStart); prop != nil {
		t, err := prop.DateTime(time.UTC)
		if err != nil {
			return ev, fmt.Errorf("parse start: %w", err)
		}
		ev.Start = t
		ev.AllDay = true
	}
	if prop := comp.Props.Get(ical.PropDateTimeEnd); prop != nil {
		t, err := prop.DateTime(time.UTC)
		if err != nil {
			return ev, fmt.Errorf("parse end: %w", err)
		}
		ev.End = t
	}

	return ev, nil
}
