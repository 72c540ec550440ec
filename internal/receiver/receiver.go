// Package receiver implements the capture pipeline: a ring buffer fed by a
// SampleSource, sealed into a dataset.File and published to a dataset.Store
// when a schedule event fires a recording. There is no concrete capture
// device wired in; SampleSource is the boundary a real one would implement.
package receiver

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hmatuschek/vlfnet/internal/dataset"
	"github.com/hmatuschek/vlfnet/internal/geo"
	"github.com/hmatuschek/vlfnet/internal/ident"
)

var log = logrus.WithField("component", "receiver")

// SampleSource yields successive chunks of samples from a capture device.
// NullSampleSource is the only implementation in this module; a real audio
// backend is an external collaborator.
type SampleSource interface {
	Read(n int) ([]int16, error)
}

// NullSampleSource produces silence, standing in for the audio path the
// covered subsystem doesn't implement.
type NullSampleSource struct{}

// Read returns n zero samples.
func (NullSampleSource) Read(n int) ([]int16, error) {
	return make([]int16, n), nil
}

// ring is a fixed-capacity circular buffer of samples, overwriting the
// oldest data once full.
type ring struct {
	mu   sync.Mutex
	buf  []int16
	next int
	full bool
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]int16, capacity)}
}

func (r *ring) write(chunk []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range chunk {
		r.buf[r.next] = v
		r.next = (r.next + 1) % len(r.buf)
		if r.next == 0 {
			r.full = true
		}
	}
}

// snapshot returns up to n of the most recently written samples, in
// chronological order.
func (r *ring) snapshot(n int) []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	available := r.next
	if r.full {
		available = len(r.buf)
	}
	if n > available {
		n = available
	}
	out := make([]int16, n)
	start := (r.next - n + len(r.buf)) % len(r.buf)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// Receiver continuously drains a SampleSource into a ring buffer and, on
// StartRecording, seals a window of it into a content-addressed dataset
// file published to a Store.
type Receiver struct {
	source     SampleSource
	sampleRate uint32
	location   geo.Location
	store      *dataset.Store
	tmpDir     string

	chunkSize int
	ring      *ring

	mu        sync.Mutex
	observers []func([]int16)
}

// New constructs a Receiver. capacity bounds the ring buffer in samples
// (e.g. sampleRate * the longest schedule window this station admits).
func New(source SampleSource, sampleRate uint32, capacity int, location geo.Location, store *dataset.Store) *Receiver {
	return &Receiver{
		source:     source,
		sampleRate: sampleRate,
		location:   location,
		store:      store,
		tmpDir:     store.Dir(),
		chunkSize:  1024,
		ring:       newRing(capacity),
	}
}

// Subscribe registers a callback invoked with every chunk read from the
// source, feeding a future live-monitor view of the capture pipeline
// (grounded in the original client/monitor.cc spectrum display hook)
// without this package depending on any visualization code.
func (r *Receiver) Subscribe(cb func([]int16)) {
	r.mu.Lock()
	r.observers = append(r.observers, cb)
	r.mu.Unlock()
}

// Run drains the source into the ring buffer until ctx is cancelled.
func (r *Receiver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		chunk, err := r.source.Read(r.chunkSize)
		if err != nil {
			return err
		}
		r.ring.write(chunk)

		r.mu.Lock()
		observers := append([]func([]int16){}, r.observers...)
		r.mu.Unlock()
		for _, cb := range observers {
			cb(chunk)
		}
	}
}

// StartRecording seals the most recent duration of buffered samples into a
// dataset file and publishes it to the store, returning the new dataset's
// Identifier.
func (r *Receiver) StartRecording(duration time.Duration) (ident.Identifier, error) {
	nSamples := uint32(duration.Seconds() * float64(r.sampleRate))
	if nSamples == 0 {
		nSamples = 1
	}
	samples := r.ring.snapshot(int(nSamples))
	if len(samples) < int(nSamples) {
		padded := make([]int16, nSamples)
		copy(padded[int(nSamples)-len(samples):], samples)
		samples = padded
	}

	series := []dataset.SeriesSpec{{Location: r.location}}
	source := func(i int) ([]int16, error) { return samples, nil }

	tmpPath := r.tmpDir + "/" + uuid.NewString() + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return ident.Identifier{}, err
	}
	id, writeErr := dataset.Write(f, time.Now(), r.sampleRate, nSamples, series, source)
	closeErr := f.Close()
	defer os.Remove(tmpPath)
	if writeErr != nil {
		return ident.Identifier{}, writeErr
	}
	if closeErr != nil {
		return ident.Identifier{}, closeErr
	}

	if err := r.store.Insert(tmpPath, id); err != nil {
		return ident.Identifier{}, err
	}
	log.WithField("dataset", id).Info("sealed new recording")
	return id, nil
}
