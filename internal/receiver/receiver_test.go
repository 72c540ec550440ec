package receiver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hmatuschek/vlfnet/internal/dataset"
	"github.com/hmatuschek/vlfnet/internal/geo"
)

type countingSource struct {
	next int16
}

func (s *countingSource) Read(n int) ([]int16, error) {
	out := make([]int16, n)
	for i := range out {
		s.next++
		out[i] = s.next
	}
	return out, nil
}

func TestRingSnapshotReturnsMostRecentSamples(t *testing.T) {
	r := newRing(4)
	r.write([]int16{1, 2, 3, 4, 5, 6})
	require.Equal(t, []int16{3, 4, 5, 6}, r.snapshot(4))
}

func TestRingSnapshotBeforeFillReturnsAvailable(t *testing.T) {
	r := newRing(10)
	r.write([]int16{1, 2, 3})
	require.Equal(t, []int16{1, 2, 3}, r.snapshot(10))
}

func TestNullSampleSourceProducesSilence(t *testing.T) {
	var src NullSampleSource
	samples, err := src.Read(5)
	require.NoError(t, err)
	require.Equal(t, []int16{0, 0, 0, 0, 0}, samples)
}

func TestStartRecordingSealsAndPublishes(t *testing.T) {
	dir := t.TempDir()
	store, err := dataset.Open(dir)
	require.NoError(t, err)

	src := &countingSource{}
	recv := New(src, 100, 1000, geo.New(1, 2, 3), store)

	ctx, cancel := context.WithCancel(context.Background())
	go recv.Run(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()

	id, err := recv.StartRecording(10 * time.Millisecond)
	require.NoError(t, err)
	require.True(t, store.Contains(id))
}

func TestSubscribeReceivesChunks(t *testing.T) {
	store, err := dataset.Open(t.TempDir())
	require.NoError(t, err)
	src := &countingSource{}
	recv := New(src, 100, 100, geo.New(0, 0, 0), store)

	received := 0
	recv.Subscribe(func(chunk []int16) { received += len(chunk) })

	ctx, cancel := context.WithCancel(context.Background())
	go recv.Run(ctx)
	time.Sleep(10 * time.Millisecond)
	cancel()

	require.Greater(t, received, 0)
}
