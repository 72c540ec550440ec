package geo

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsNull(t *testing.T) {
	var z Location
	require.True(t, z.IsNull())
	require.False(t, New(1, 2, 3).IsNull())
}

func TestRoundTripDegrees(t *testing.T) {
	l := New(12.34, -56.78, 123.4)
	require.InDelta(t, 12.34, l.Longitude(), 1e-9)
	require.InDelta(t, -56.78, l.Latitude(), 1e-9)
	require.InDelta(t, 123.4, l.Height(), 1e-6)
}

func TestJSONRoundTrip(t *testing.T) {
	l := New(8.54, 47.37, 408)
	raw, err := json.Marshal(l)
	require.NoError(t, err)

	var got Location
	require.NoError(t, json.Unmarshal(raw, &got))
	require.InDelta(t, l.Longitude(), got.Longitude(), 1e-9)
	require.InDelta(t, l.Latitude(), got.Latitude(), 1e-9)
	require.InDelta(t, l.Height(), got.Height(), 1e-6)
}

func TestGreatCircleDistSamePoint(t *testing.T) {
	l := New(8.54, 47.37, 0)
	require.InDelta(t, 0, l.GreatCircleDist(l), 1e-9)
}

func TestGreatCircleDistKnownPair(t *testing.T) {
	// Zurich and Geneva are roughly 225km apart great-circle.
	zurich := New(8.5417, 47.3769, 400)
	geneva := New(6.1432, 46.2044, 375)
	d := zurich.GreatCircleDist(geneva)
	require.InDelta(t, 225, d, 15)
}

func TestLineDistLessThanOrEqualGreatCircle(t *testing.T) {
	a := New(0, 0, 0)
	b := New(90, 0, 0)
	// Quarter of the globe apart: chord must be shorter than the arc.
	require.Less(t, a.LineDist(b), a.GreatCircleDist(b))
}

func TestLineDistSamePoint(t *testing.T) {
	l := New(10, 10, 500)
	require.InDelta(t, 0, l.LineDist(l), 1e-9)
}

func TestHeightAffectsRadius(t *testing.T) {
	low := New(0, 0, 0)
	high := New(0, 0, 10_000_000) // 10000km up
	require.Greater(t, math.Abs(high.Height()-low.Height()), 9_000_000.0)
}
