// Package registry keeps a station's live view of peer stations: a known
// list refreshed by periodic contact, and a candidate set fed by overlay
// discovery and peers' own /list responses. Updates are delivered through
// an explicit subscribe-callback publisher rather than any GUI event
// system.
package registry

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hmatuschek/vlfnet/internal/geo"
	"github.com/hmatuschek/vlfnet/internal/ident"
	"github.com/hmatuschek/vlfnet/internal/overlay"
	"github.com/hmatuschek/vlfnet/internal/query"
)

var log = logrus.WithField("component", "registry")

// TickInterval is the registry's default refresh cadence.
const TickInterval = 600 * time.Second

// candidateTopic is the gossipsub topic stations publish newly-known peer
// identifiers on, fanning candidate hints out across the overlay without a
// central directory.
const candidateTopic = "vlf::station::candidates"

// StationItem is a known peer's last-seen status.
type StationItem struct {
	ID          ident.Identifier
	Node        overlay.NodeAddr
	Location    geo.Location
	Description string
	LastSeen    time.Time
}

// Registry holds the known-station list and candidate set for one station.
// Self is never present in either set, and the two sets are disjoint.
type Registry struct {
	self      ident.Identifier
	transport overlay.Transport

	mu         sync.Mutex
	known      []StationItem
	candidates map[ident.Identifier]struct{}

	observers []func(StationItem)
}

// New constructs an empty Registry bound to self's identifier and the
// overlay transport used to contact peers. It subscribes to the overlay's
// candidate-gossip topic so hints other stations broadcast flow straight
// into AddCandidates.
func New(self ident.Identifier, transport overlay.Transport) *Registry {
	r := &Registry{
		self:       self,
		transport:  transport,
		candidates: make(map[ident.Identifier]struct{}),
	}
	if err := transport.Subscribe(candidateTopic, r.onGossip); err != nil {
		log.WithError(err).Debug("candidate gossip subscription failed")
	}
	return r
}

// onGossip handles an inbound candidate-gossip message: the payload is a
// single raw Identifier, the peer the sender most recently learned about.
func (r *Registry) onGossip(from ident.Identifier, data []byte) {
	id, err := ident.FromBytes(data)
	if err != nil {
		return
	}
	r.AddCandidates([]ident.Identifier{id})
}

// Subscribe registers a callback invoked after a station's entry is
// inserted or refreshed in the known list.
func (r *Registry) Subscribe(cb func(StationItem)) {
	r.mu.Lock()
	r.observers = append(r.observers, cb)
	r.mu.Unlock()
}

// NumKnown returns the number of known stations.
func (r *Registry) NumKnown() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.known)
}

// Known returns a snapshot of the known-station list.
func (r *Registry) Known() []StationItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StationItem(nil), r.known...)
}

// HasKnown reports whether id is in the known list.
func (r *Registry) HasKnown(id ident.Identifier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexOfLocked(id) >= 0
}

// NumCandidates returns the number of pending candidates.
func (r *Registry) NumCandidates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.candidates)
}

// HasCandidate reports whether id is in the candidate set.
func (r *Registry) HasCandidate(id ident.Identifier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.candidates[id]
	return ok
}

func (r *Registry) indexOfLocked(id ident.Identifier) int {
	for i, s := range r.known {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// AddCandidates unions ids \ known \ {self} into the candidate set.
func (r *Registry) AddCandidates(ids []ident.Identifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if id == r.self {
			continue
		}
		if r.indexOfLocked(id) >= 0 {
			continue
		}
		r.candidates[id] = struct{}{}
	}
}

// update upserts a station's status into the known list, removes it from
// candidates, and notifies subscribers.
func (r *Registry) update(item StationItem) {
	r.mu.Lock()
	delete(r.candidates, item.ID)
	idx := r.indexOfLocked(item.ID)
	isNew := idx < 0
	if isNew {
		r.known = append(r.known, item)
	} else {
		r.known[idx] = item
	}
	observers := append([]func(StationItem){}, r.observers...)
	r.mu.Unlock()

	if isNew {
		if err := r.transport.Broadcast(candidateTopic, item.ID[:]); err != nil {
			log.WithError(err).Debug("candidate gossip broadcast failed")
		}
	}

	for _, cb := range observers {
		cb(item)
	}
}

// Contact issues /status against id and, on success, updates the known
// list. Failures are logged and otherwise silent; the caller does not
// retry.
func (r *Registry) Contact(ctx context.Context, id ident.Identifier) {
	if id == r.self {
		return
	}
	res, err := query.Status(ctx, r.transport, id)
	if err != nil {
		log.WithError(err).WithField("peer", id).Debug("contact failed")
		return
	}
	peer, err := r.transport.FindNode(ctx, id)
	if err != nil {
		return
	}
	r.update(StationItem{
		ID:          res.ID,
		Node:        peer,
		Location:    res.Location,
		Description: res.Description,
		LastSeen:    time.Now(),
	})
}

// Tick runs one refresh step: drain a candidate if any are pending,
// otherwise refresh a uniformly random known station and query its /list
// to seed new candidates. A registry with no candidates and no known
// stations is a no-op.
func (r *Registry) Tick(ctx context.Context) {
	r.mu.Lock()
	var popped ident.Identifier
	havePopped := false
	for id := range r.candidates {
		popped, havePopped = id, true
		break
	}
	if havePopped {
		delete(r.candidates, popped)
	}
	r.mu.Unlock()

	if havePopped {
		r.Contact(ctx, popped)
		return
	}

	r.mu.Lock()
	n := len(r.known)
	var target ident.Identifier
	if n > 0 {
		target = r.known[rand.Intn(n)].ID
	}
	r.mu.Unlock()
	if n == 0 {
		return
	}

	r.Contact(ctx, target)
	ids, err := query.List(ctx, r.transport, target)
	if err != nil {
		log.WithError(err).WithField("peer", target).Debug("list query failed")
		return
	}
	r.AddCandidates(ids)
}
