package schedule

import (
	"sort"
	"sync"
	"time"
)

// DefaultMaxCost is the per-station admission budget (one daily-event
// equivalent), used unless a station configures otherwise.
const DefaultMaxCost = 28

// ScheduleView is the read-only interface both Local and Merged satisfy, so
// the capture pipeline doesn't need to know which one it's driven by.
type ScheduleView interface {
	NumEvents() int
	EventAt(i int) Event
	Next(now time.Time) (time.Time, bool)
	Contains(e Event) bool
}

// Merged composes a Local and Remote schedule by reference: local events
// always win, plus a budget-admitted subset of remote events recomputed
// whenever either input changes.
type Merged struct {
	local   *Local
	remote  *Remote
	maxCost int

	mu        sync.Mutex
	admitted  []Event
	nowFn     func() time.Time
	lastFired map[time.Time]time.Time
	lastTick  time.Time

	onRecordCB []func(time.Duration)
}

// NewMerged wires a Local and Remote schedule under a cost budget and
// recomputes admission immediately. It subscribes to Remote so any new
// peer event triggers a recompute.
func NewMerged(local *Local, remote *Remote, maxCost int) *Merged {
	if maxCost <= 0 {
		maxCost = DefaultMaxCost
	}
	m := &Merged{local: local, remote: remote, maxCost: maxCost, nowFn: time.Now}
	remote.Subscribe(func() { m.Recompute() })
	m.Recompute()
	return m
}

// Recompute re-runs the greedy admission pass: local events always stand,
// and the remaining budget is filled with remote events in increasing
// weight order (cost per advertising peer), skipping any that no longer
// fit or would duplicate a local event.
func (m *Merged) Recompute() {
	now := m.nowFn()
	localCost := m.local.TotalCost()
	remaining := m.maxCost - localCost

	var admitted []Event
	if remaining > 0 {
		candidates := m.remote.Events()
		filtered := candidates[:0]
		for _, c := range candidates {
			if m.local.Contains(c.Event) {
				continue
			}
			if c.Event.Passed(now) {
				continue
			}
			if c.Event.Cost() > remaining {
				continue
			}
			filtered = append(filtered, c)
		}

		sort.SliceStable(filtered, func(i, j int) bool {
			return filtered[i].Weight() < filtered[j].Weight()
		})

		for _, c := range filtered {
			if c.Event.Cost() > remaining {
				continue
			}
			admitted = append(admitted, c.Event)
			remaining -= c.Event.Cost()
		}
	}

	m.mu.Lock()
	m.admitted = admitted
	m.lastFired = nil
	m.mu.Unlock()
}

// NumEvents implements ScheduleView: local events first, then admitted
// remote events.
func (m *Merged) NumEvents() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.local.NumEvents() + len(m.admitted)
}

// EventAt implements ScheduleView.
func (m *Merged) EventAt(i int) Event {
	n := m.local.NumEvents()
	if i < n {
		return m.local.EventAt(i)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.admitted[i-n]
}

// Contains reports whether e is a local or admitted-remote event.
func (m *Merged) Contains(e Event) bool {
	if m.local.Contains(e) {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.admitted {
		if a.Equal(e) {
			return true
		}
	}
	return false
}

// Next returns the earliest upcoming instant across local and admitted
// remote events.
func (m *Merged) Next(now time.Time) (time.Time, bool) {
	best, found := m.local.Next(now)

	m.mu.Lock()
	admitted := append([]Event{}, m.admitted...)
	m.mu.Unlock()

	for _, e := range admitted {
		t, ok := e.NextEvent(now)
		if !ok {
			continue
		}
		if !found || t.Before(best) {
			best, found = t, true
		}
	}
	return best, found
}

// OnRecord registers a callback invoked when either a local or
// remote-admitted event comes due, with the same fire contract Local
// exposes on its own callbacks.
func (m *Merged) OnRecord(cb func(time.Duration)) {
	m.mu.Lock()
	m.onRecordCB = append(m.onRecordCB, cb)
	m.mu.Unlock()
	m.local.OnRecord(cb)
}

// Tick drives both the local schedule's own tick and fires admitted remote
// events that have come due since the previous Tick (on the first call, only
// occurrences at exactly now). Admitted events are not mutated on fire; each
// fired occurrence is remembered by its instant so it fires once.
func (m *Merged) Tick(now time.Time) {
	m.local.Tick(now)

	m.mu.Lock()
	admitted := append([]Event{}, m.admitted...)
	cbs := append([]func(time.Duration){}, m.onRecordCB...)
	lastFired := m.lastFired
	from := now
	if !m.lastTick.IsZero() && m.lastTick.Before(now) {
		from = m.lastTick.Add(time.Nanosecond)
	}
	m.lastTick = now
	m.mu.Unlock()

	for _, e := range admitted {
		t, ok := e.NextEvent(from)
		if !ok || t.After(now) {
			continue
		}
		if last, seen := lastFired[t]; seen && !last.Before(t) {
			continue
		}
		m.mu.Lock()
		if m.lastFired == nil {
			m.lastFired = make(map[time.Time]time.Time)
		}
		m.lastFired[t] = t
		m.mu.Unlock()

		for _, cb := range cbs {
			cb(DefaultRecordingDuration)
		}
	}
}
