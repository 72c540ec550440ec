package schedule

import (
	"sync"

	"github.com/hmatuschek/vlfnet/internal/ident"
)

// RemoteEvent is an Event augmented with the set of peer station
// identifiers whose schedules advertised it.
type RemoteEvent struct {
	Event   Event
	Origins map[ident.Identifier]struct{}
}

// Weight is cost/num_origins, ascending sort key for merge admission: cheap
// events advertised by many peers win.
func (r RemoteEvent) Weight() float64 {
	if len(r.Origins) == 0 {
		return float64(r.Event.Cost())
	}
	return float64(r.Event.Cost()) / float64(len(r.Origins))
}

// Remote aggregates per-peer schedules into a set of RemoteEvents, each
// carrying the union of peers that advertised it.
type Remote struct {
	mu        sync.Mutex
	events    []RemoteEvent
	observers []func()
}

// NewRemote constructs an empty remote schedule aggregator.
func NewRemote() *Remote {
	return &Remote{}
}

// Subscribe registers a callback invoked after every successful Add.
func (r *Remote) Subscribe(cb func()) {
	r.mu.Lock()
	r.observers = append(r.observers, cb)
	r.mu.Unlock()
}

// Add records that peer advertised evt: if an equal event already exists,
// peer is unioned into its origin set; otherwise a new RemoteEvent is
// appended.
func (r *Remote) Add(peer ident.Identifier, evt Event) {
	r.mu.Lock()
	found := false
	for i := range r.events {
		if r.events[i].Event.Equal(evt) {
			r.events[i].Origins[peer] = struct{}{}
			found = true
			break
		}
	}
	if !found {
		r.events = append(r.events, RemoteEvent{
			Event:   evt,
			Origins: map[ident.Identifier]struct{}{peer: {}},
		})
	}
	observers := append([]func(){}, r.observers...)
	r.mu.Unlock()

	for _, cb := range observers {
		cb()
	}
}

// Events returns a snapshot of every known remote event.
func (r *Remote) Events() []RemoteEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RemoteEvent, len(r.events))
	copy(out, r.events)
	return out
}

// RemoveOrigin drops peer from every event's origin set and prunes events
// left with no origins. It does not notify subscribers.
func (r *Remote) RemoveOrigin(peer ident.Identifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.events[:0]
	for _, e := range r.events {
		delete(e.Origins, peer)
		if len(e.Origins) > 0 {
			kept = append(kept, e)
		}
	}
	r.events = kept
}
