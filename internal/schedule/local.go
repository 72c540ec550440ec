package schedule

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hmatuschek/vlfnet/internal/vlferr"
)

var log = logrus.WithField("component", "schedule")

// DefaultRecordingDuration is the capture window fired when a schedule
// entry comes due, absent any other configuration.
const DefaultRecordingDuration = 10 * time.Minute

// Local is an ordered collection of Events, persisted as a JSON array, with
// a memoized next-event computed on every mutation.
type Local struct {
	mu     sync.Mutex
	events []Event
	path   string

	next       time.Time
	nextOK     bool
	onRecordCB []func(time.Duration)
}

// NewLocal constructs an empty Local schedule not bound to a file.
func NewLocal() *Local {
	l := &Local{}
	l.recomputeNext(time.Now())
	return l
}

// LoadLocal loads a Local schedule from path. A missing file yields an
// empty schedule; a malformed entry is dropped with a warning and the rest
// still load.
func LoadLocal(path string) (*Local, error) {
	l := &Local{path: path}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		l.recomputeNext(time.Now())
		return l, nil
	}
	if err != nil {
		return nil, vlferr.Wrap(vlferr.ConfigError, "read %s: %v", path, err)
	}

	var rawEvents []json.RawMessage
	if err := json.Unmarshal(raw, &rawEvents); err != nil {
		return nil, vlferr.Wrap(vlferr.ConfigError, "parse %s: %v", path, err)
	}

	for _, re := range rawEvents {
		var e Event
		if err := json.Unmarshal(re, &e); err != nil {
			log.WithError(err).Warn("dropping malformed schedule entry")
			continue
		}
		l.events = append(l.events, e)
	}
	l.recomputeNext(time.Now())
	return l, nil
}

// Save persists the schedule as a JSON array to its bound path.
func (l *Local) Save() error {
	l.mu.Lock()
	path := l.path
	events := append([]Event(nil), l.events...)
	l.mu.Unlock()

	if path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return vlferr.Wrap(vlferr.IoError, "write %s: %v", path, err)
	}
	return nil
}

// SaveAs persists the schedule to a new path and binds it for future Save
// calls.
func (l *Local) SaveAs(path string) error {
	l.mu.Lock()
	l.path = path
	l.mu.Unlock()
	return l.Save()
}

// Add de-duplicates by structural equality and returns the event's index.
func (l *Local) Add(e Event) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, existing := range l.events {
		if existing.Equal(e) {
			return i
		}
	}
	l.events = append(l.events, e)
	idx := len(l.events) - 1
	l.recomputeNextLocked(time.Now())
	return idx
}

// Remove deletes the event at index, if valid.
func (l *Local) Remove(index int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.events) {
		return
	}
	l.events = append(l.events[:index], l.events[index+1:]...)
	l.recomputeNextLocked(time.Now())
}

// NumEvents implements ScheduleView.
func (l *Local) NumEvents() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// EventAt implements ScheduleView.
func (l *Local) EventAt(i int) Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[i]
}

// Contains reports whether e is present by structural equality.
func (l *Local) Contains(e Event) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.events {
		if existing.Equal(e) {
			return true
		}
	}
	return false
}

// TotalCost sums the cost of every local event.
func (l *Local) TotalCost() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, e := range l.events {
		total += e.Cost()
	}
	return total
}

// Next implements ScheduleView: the memoized next event across the whole
// schedule.
func (l *Local) Next(now time.Time) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.nextOK {
		return time.Time{}, false
	}
	return l.next, true
}

func (l *Local) recomputeNext(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recomputeNextLocked(now)
}

func (l *Local) recomputeNextLocked(now time.Time) {
	var best time.Time
	found := false
	for _, e := range l.events {
		t, ok := e.NextEvent(now)
		if !ok {
			continue
		}
		if !found || t.Before(best) {
			best, found = t, true
		}
	}
	l.next, l.nextOK = best, found
}

// OnRecord registers a callback invoked with the recording duration when
// Tick fires the schedule's next event.
func (l *Local) OnRecord(cb func(time.Duration)) {
	l.mu.Lock()
	l.onRecordCB = append(l.onRecordCB, cb)
	l.mu.Unlock()
}

// Tick is invoked by the station's event loop at sub-second cadence: if the
// memoized next event is due, it fires start_recording exactly once, then
// recomputes the next event.
func (l *Local) Tick(now time.Time) {
	l.mu.Lock()
	if !l.nextOK || l.next.After(now) {
		l.mu.Unlock()
		return
	}
	cbs := append([]func(time.Duration){}, l.onRecordCB...)
	// Recompute just past the fired instant so a Single event that just
	// fired is correctly excluded as "passed" rather than re-selected as
	// its own next occurrence (Single.NextEvent(now) holds at now == First).
	l.recomputeNextLocked(l.next.Add(time.Nanosecond))
	l.mu.Unlock()

	for _, cb := range cbs {
		cb(DefaultRecordingDuration)
	}
}
