// Package dataset implements the codec for the binary dataset container: a
// fixed, packed header followed by one TimeseriesHeader per channel and
// then the raw sample payload.
//
// The on-disk format mixes big-endian integers with host-layout (practically
// little-endian) floats; this file is the single place that knows that, so
// nothing else in the module ever struct-casts a byte slice.
package dataset

import (
	"bufio"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/hmatuschek/vlfnet/internal/geo"
	"github.com/hmatuschek/vlfnet/internal/ident"
	"github.com/hmatuschek/vlfnet/internal/vlferr"
)

const (
	headerSize        = 17 // year,month,day,hour,minute,second,n_timeseries,n_samples,sample_rate
	timeseriesHdrSize = 4 + 4 + 4 + ident.Size
)

// SeriesSpec describes one timeseries' header fields at write time. ID is
// optional; its zero value means "no identifier" in the rendered metadata.
type SeriesSpec struct {
	Location geo.Location
	ID       ident.Identifier
}

// TimeseriesEntry is the in-memory index built by Load: where a timeseries'
// sample payload starts, and its header fields, without the samples
// themselves loaded into memory.
type TimeseriesEntry struct {
	Offset   int64
	Location geo.Location
	ID       ident.Identifier
}

// File is a loaded (but not fully read) dataset: header fields plus an
// index of timeseries offsets for random access by index.
type File struct {
	path       string
	Timestamp  time.Time
	NSamples   uint32
	SampleRate uint32
	Series     []TimeseriesEntry
}

func invalid(format string, args ...any) error {
	return vlferr.Wrap(vlferr.InvalidFormat, format, args...)
}

// Load reads and validates a dataset file's header and timeseries headers,
// building a random-access index. It does not read sample payloads.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, vlferr.Wrap(vlferr.IoError, "open %s: %v", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, vlferr.Wrap(vlferr.IoError, "stat %s: %v", path, err)
	}
	totalSize := info.Size()

	hdr := make([]byte, headerSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return nil, invalid("%s: truncated header: %v", path, err)
	}

	year := binary.BigEndian.Uint16(hdr[0:2])
	month, day, hour, minute, second := hdr[2], hdr[3], hdr[4], hdr[5], hdr[6]
	nTimeseries := binary.BigEndian.Uint16(hdr[7:9])
	nSamples := binary.BigEndian.Uint32(hdr[9:13])
	sampleRate := binary.BigEndian.Uint32(hdr[13:17])

	if nSamples == 0 || sampleRate == 0 || nTimeseries == 0 {
		return nil, invalid("%s: zero-valued n_samples/sample_rate/n_timeseries", path)
	}

	timestamp, err := buildTimestamp(year, month, day, hour, minute, second)
	if err != nil {
		return nil, invalid("%s: %v", path, err)
	}

	tsHeaders := make([]byte, int(nTimeseries)*timeseriesHdrSize)
	if _, err := io.ReadFull(f, tsHeaders); err != nil {
		return nil, invalid("%s: truncated timeseries headers: %v", path, err)
	}

	expectedSize := int64(headerSize) + int64(nTimeseries)*int64(timeseriesHdrSize) +
		int64(nTimeseries)*int64(nSamples)*2
	if expectedSize != totalSize {
		return nil, invalid("%s: size mismatch: header declares %d bytes, file is %d", path, expectedSize, totalSize)
	}

	series := make([]TimeseriesEntry, nTimeseries)
	payloadStart := int64(headerSize) + int64(nTimeseries)*int64(timeseriesHdrSize)
	for i := 0; i < int(nTimeseries); i++ {
		b := tsHeaders[i*timeseriesHdrSize : (i+1)*timeseriesHdrSize]
		lon := math.Float32frombits(binary.LittleEndian.Uint32(b[0:4]))
		lat := math.Float32frombits(binary.LittleEndian.Uint32(b[4:8]))
		height := math.Float32frombits(binary.LittleEndian.Uint32(b[8:12]))
		var id ident.Identifier
		copy(id[:], b[12:12+ident.Size])

		series[i] = TimeseriesEntry{
			Offset:   payloadStart + int64(i)*int64(nSamples)*2,
			Location: geo.New(float64(lon), float64(lat), float64(height)),
			ID:       id,
		}
	}

	return &File{
		path:       path,
		Timestamp:  timestamp,
		NSamples:   nSamples,
		SampleRate: sampleRate,
		Series:     series,
	}, nil
}

func buildTimestamp(year uint16, month, day, hour, minute, second byte) (time.Time, error) {
	t := time.Date(int(year), time.Month(month), int(day), int(hour), int(minute), int(second), 0, time.UTC)
	if t.Month() != time.Month(month) || t.Day() != int(day) {
		return time.Time{}, fmt.Errorf("invalid calendar date %04d-%02d-%02d", year, month, day)
	}
	return t, nil
}

// ReadTimeseries seeks to the i-th timeseries' payload and fills buf (which
// must have length NSamples) with its samples, converting from network
// (big-endian) to host byte order.
func (f *File) ReadTimeseries(i int, buf []int16) error {
	if i < 0 || i >= len(f.Series) {
		return fmt.Errorf("dataset: timeseries index %d out of range", i)
	}
	if len(buf) != int(f.NSamples) {
		return fmt.Errorf("dataset: buffer length %d does not match n_samples %d", len(buf), f.NSamples)
	}

	fh, err := os.Open(f.path)
	if err != nil {
		return vlferr.Wrap(vlferr.IoError, "open %s: %v", f.path, err)
	}
	defer fh.Close()

	if _, err := fh.Seek(f.Series[i].Offset, io.SeekStart); err != nil {
		return vlferr.Wrap(vlferr.IoError, "seek: %v", err)
	}

	raw := make([]byte, int(f.NSamples)*2)
	if _, err := io.ReadFull(fh, raw); err != nil {
		return vlferr.Wrap(vlferr.IoError, "short read of timeseries %d: %v", i, err)
	}
	for j := range buf {
		buf[j] = int16(binary.BigEndian.Uint16(raw[j*2 : j*2+2]))
	}
	return nil
}

type metadataSeries struct {
	ID       *ident.Identifier `json:"id,omitempty"`
	Location geo.Location      `json:"location"`
}

type metadata struct {
	Timestamp  string           `json:"timestamp"`
	Samples    uint32           `json:"samples"`
	SampleRate uint32           `json:"samplerate"`
	Timeseries []metadataSeries `json:"timeseries"`
}

// MetadataJSON renders the file's header and per-series fields as JSON,
// without the sample payload.
func (f *File) MetadataJSON() ([]byte, error) {
	series := make([]metadataSeries, len(f.Series))
	for i, s := range f.Series {
		ms := metadataSeries{Location: s.Location}
		if s.ID.IsValid() {
			id := s.ID
			ms.ID = &id
		}
		series[i] = ms
	}
	return json.Marshal(metadata{
		Timestamp:  f.Timestamp.UTC().Format("2006-01-02 15:04:05"),
		Samples:    f.NSamples,
		SampleRate: f.SampleRate,
		Timeseries: series,
	})
}

// SampleSource yields the samples for timeseries i, in the same order the
// caller declared its SeriesSpec, so Write can stream one series at a time
// without holding the whole dataset in memory.
type SampleSource func(i int) ([]int16, error)

// Write streams a dataset file to w in canonical order (file header, then
// all timeseries headers, then per-timeseries sample blocks), feeding every
// byte through a hash so the returned Identifier is the content address of
// exactly what was written.
func Write(w io.Writer, timestamp time.Time, sampleRate, nSamples uint32, series []SeriesSpec, samples SampleSource) (ident.Identifier, error) {
	if len(series) == 0 {
		return ident.Identifier{}, fmt.Errorf("dataset: write requires at least one timeseries")
	}
	if nSamples == 0 || sampleRate == 0 {
		return ident.Identifier{}, fmt.Errorf("dataset: nSamples and sampleRate must be non-zero")
	}

	h := sha1.New()
	mw := io.MultiWriter(w, h)
	bw := bufio.NewWriter(mw)

	utc := timestamp.UTC()
	hdr := make([]byte, headerSize)
	binary.BigEndian.PutUint16(hdr[0:2], uint16(utc.Year()))
	hdr[2] = byte(utc.Month())
	hdr[3] = byte(utc.Day())
	hdr[4] = byte(utc.Hour())
	hdr[5] = byte(utc.Minute())
	hdr[6] = byte(utc.Second())
	binary.BigEndian.PutUint16(hdr[7:9], uint16(len(series)))
	binary.BigEndian.PutUint32(hdr[9:13], nSamples)
	binary.BigEndian.PutUint32(hdr[13:17], sampleRate)
	if _, err := bw.Write(hdr); err != nil {
		return ident.Identifier{}, vlferr.Wrap(vlferr.IoError, "write header: %v", err)
	}

	tsBuf := make([]byte, timeseriesHdrSize)
	for _, s := range series {
		binary.LittleEndian.PutUint32(tsBuf[0:4], math.Float32bits(float32(s.Location.Longitude())))
		binary.LittleEndian.PutUint32(tsBuf[4:8], math.Float32bits(float32(s.Location.Latitude())))
		binary.LittleEndian.PutUint32(tsBuf[8:12], math.Float32bits(float32(s.Location.Height())))
		copy(tsBuf[12:12+ident.Size], s.ID[:])
		if _, err := bw.Write(tsBuf); err != nil {
			return ident.Identifier{}, vlferr.Wrap(vlferr.IoError, "write timeseries header: %v", err)
		}
	}

	sampleBuf := make([]byte, int(nSamples)*2)
	for i := range series {
		values, err := samples(i)
		if err != nil {
			return ident.Identifier{}, fmt.Errorf("dataset: sample source for series %d: %w", i, err)
		}
		if len(values) != int(nSamples) {
			return ident.Identifier{}, fmt.Errorf("dataset: series %d produced %d samples, want %d", i, len(values), nSamples)
		}
		for j, v := range values {
			binary.BigEndian.PutUint16(sampleBuf[j*2:j*2+2], uint16(v))
		}
		if _, err := bw.Write(sampleBuf); err != nil {
			return ident.Identifier{}, vlferr.Wrap(vlferr.IoError, "write samples for series %d: %v", i, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return ident.Identifier{}, vlferr.Wrap(vlferr.IoError, "flush: %v", err)
	}

	return ident.FromBytes(h.Sum(nil))
}
