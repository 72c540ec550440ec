// Package schedule implements a station's recording calendar: a local
// event set the operator controls directly, a remote set folded in from
// peers' advertisements, and a merged view that admits remote events
// alongside the local set under a configurable cost budget.
package schedule

import (
	"encoding/json"
	"fmt"
	"time"
)

// Repeat is the recurrence variant of a ScheduledEvent.
type Repeat int

const (
	Single Repeat = iota
	Daily
	Weekly
)

func (r Repeat) String() string {
	switch r {
	case Single:
		return "never"
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	default:
		return "unknown"
	}
}

func parseRepeat(s string) (Repeat, error) {
	switch s {
	case "never":
		return Single, nil
	case "daily":
		return Daily, nil
	case "weekly":
		return Weekly, nil
	default:
		return 0, fmt.Errorf("schedule: unknown repeat %q", s)
	}
}

// Event is a recurrence rule anchored at an absolute instant. Equality is
// structural.
type Event struct {
	Repeat Repeat
	First  time.Time // absolute instant; for Single this is the fire time.
}

// Cost is the per-event integer proxy for weekly storage/capture load.
func (e Event) Cost() int {
	switch e.Repeat {
	case Single:
		return 1
	case Weekly:
		return 4
	case Daily:
		return 28
	default:
		return 0
	}
}

// NextEvent returns the next instant >= now consistent with the variant and
// the reference First time, or the zero Time (with ok=false) if the event
// has no future occurrence (a passed Single).
func (e Event) NextEvent(now time.Time) (time.Time, bool) {
	switch e.Repeat {
	case Single:
		if !now.After(e.First) {
			return e.First, true
		}
		return time.Time{}, false

	case Daily:
		candidate := time.Date(now.Year(), now.Month(), now.Day(),
			e.First.Hour(), e.First.Minute(), e.First.Second(), 0, now.Location())
		if candidate.Before(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, true

	case Weekly:
		candidate := time.Date(now.Year(), now.Month(), now.Day(),
			e.First.Hour(), e.First.Minute(), e.First.Second(), 0, now.Location())
		// Walk candidate to the First's weekday without overshooting: first
		// align the weekday, keeping time-of-day fixed, then check order.
		dayDiff := int(e.First.Weekday()) - int(candidate.Weekday())
		if dayDiff < 0 {
			dayDiff += 7
		}
		candidate = candidate.AddDate(0, 0, dayDiff)
		if candidate.Before(now) {
			candidate = candidate.AddDate(0, 0, 7)
		}
		return candidate, true

	default:
		return time.Time{}, false
	}
}

// Passed reports whether a Single event's fire time is strictly before t.
// Daily/Weekly events never "pass" since they recur indefinitely.
func (e Event) Passed(t time.Time) bool {
	return e.Repeat == Single && e.First.Before(t)
}

// Equal reports structural equality between two events.
func (e Event) Equal(other Event) bool {
	return e.Repeat == other.Repeat && e.First.Equal(other.First)
}

const wireLayout = "2006-01-02 15:04:05"

type wireEvent struct {
	First  string `json:"first"`
	Repeat string `json:"repeat"`
}

// MarshalJSON renders the event in its wire form: UTC, zero-padded
// "YYYY-MM-DD HH:MM:SS" plus the recurrence name.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		First:  e.First.UTC().Format(wireLayout),
		Repeat: e.Repeat.String(),
	})
}

// UnmarshalJSON parses the normative wire form.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	first, err := time.ParseInLocation(wireLayout, w.First, time.UTC)
	if err != nil {
		return fmt.Errorf("schedule: parse first %q: %w", w.First, err)
	}
	repeat, err := parseRepeat(w.Repeat)
	if err != nil {
		return err
	}
	e.Repeat = repeat
	e.First = first
	return nil
}
