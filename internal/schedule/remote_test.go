package schedule

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hmatuschek/vlfnet/internal/ident"
)

func TestRemoteAddUnionsOriginsForEqualEvent(t *testing.T) {
	r := NewRemote()
	evt := Event{Repeat: Single, First: utc(2024, 1, 1, 0, 0, 0)}
	p1, p2 := peerID(1), peerID(2)

	r.Add(p1, evt)
	r.Add(p2, evt)

	events := r.Events()
	require.Len(t, events, 1)
	require.Len(t, events[0].Origins, 2)
}

func TestRemoteAddKeepsDistinctEventsSeparate(t *testing.T) {
	r := NewRemote()
	a := Event{Repeat: Single, First: utc(2024, 1, 1, 0, 0, 0)}
	b := Event{Repeat: Daily, First: utc(2024, 1, 1, 6, 0, 0)}

	r.Add(peerID(1), a)
	r.Add(peerID(1), b)

	require.Len(t, r.Events(), 2)
}

func TestRemoteWeightFavorsCheapWidelyAdvertisedEvents(t *testing.T) {
	cheap := RemoteEvent{
		Event:   Event{Repeat: Single, First: utc(2024, 1, 1, 0, 0, 0)},
		Origins: map[ident.Identifier]struct{}{peerID(1): {}, peerID(2): {}},
	}
	expensive := RemoteEvent{
		Event:   Event{Repeat: Daily, First: utc(2024, 1, 1, 0, 0, 0)},
		Origins: map[ident.Identifier]struct{}{peerID(1): {}},
	}
	require.Less(t, cheap.Weight(), expensive.Weight())
}

func TestRemoteSubscribeFiresOnAdd(t *testing.T) {
	r := NewRemote()
	fired := 0
	r.Subscribe(func() { fired++ })
	r.Add(peerID(1), Event{Repeat: Single, First: utc(2024, 1, 1, 0, 0, 0)})
	require.Equal(t, 1, fired)
}

func TestRemoteRemoveOriginPrunesEmptyEvents(t *testing.T) {
	r := NewRemote()
	evt := Event{Repeat: Single, First: utc(2024, 1, 1, 0, 0, 0)}
	p1, p2 := peerID(1), peerID(2)
	r.Add(p1, evt)
	r.Add(p2, evt)

	r.RemoveOrigin(p1)
	events := r.Events()
	require.Len(t, events, 1)
	_, stillThere := events[0].Origins[p1]
	require.False(t, stillThere)

	r.RemoveOrigin(p2)
	require.Empty(t, r.Events())
}
