package dataset

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hmatuschek/vlfnet/internal/geo"
	"github.com/hmatuschek/vlfnet/internal/ident"
)

func writeFixture(t *testing.T, dir string, series []SeriesSpec, nSamples uint32, data [][]int16) (string, ident.Identifier) {
	t.Helper()
	path := filepath.Join(dir, "fixture.bin")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	id, err := Write(f, time.Date(2024, 6, 15, 6, 0, 0, 0, time.UTC), 1000, nSamples, series,
		func(i int) ([]int16, error) { return data[i], nil })
	require.NoError(t, err)
	return path, id
}

func TestWriteThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	id1, _ := ident.Sum([]byte("series-one"))
	series := []SeriesSpec{
		{Location: geo.New(8.5, 47.3, 400), ID: id1},
		{Location: geo.New(-1, -2, -3)},
	}
	data := [][]int16{
		{1, 2, 3, -4, 5},
		{-32768, 32767, 0, 0, 0},
	}
	path, id := writeFixture(t, dir, series, 5, data)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, id.IsValid())
	require.Equal(t, uint32(5), loaded.NSamples)
	require.Equal(t, uint32(1000), loaded.SampleRate)
	require.Equal(t, time.Date(2024, 6, 15, 6, 0, 0, 0, time.UTC), loaded.Timestamp)
	require.Len(t, loaded.Series, 2)

	// Longitude/latitude must round-trip distinctly: guards against mixing
	// up the two header fields during decode.
	require.InDelta(t, 8.5, loaded.Series[0].Location.Longitude(), 1e-3)
	require.InDelta(t, 47.3, loaded.Series[0].Location.Latitude(), 1e-3)
	require.NotEqual(t, loaded.Series[0].Location.Longitude(), loaded.Series[0].Location.Latitude())
	require.Equal(t, id1, loaded.Series[0].ID)
	require.False(t, loaded.Series[1].ID.IsValid())

	for i, want := range data {
		buf := make([]int16, 5)
		require.NoError(t, loaded.ReadTimeseries(i, buf))
		require.Equal(t, want, buf)
	}
}

func TestLoadRejectsTruncatedHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	series := []SeriesSpec{{Location: geo.New(1, 2, 3)}}
	path, _ := writeFixture(t, dir, series, 4, [][]int16{{1, 2, 3, 4}})

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(raw, 0, 0), 0o644))

	_, err = Load(path)
	require.Error(t, err)
}

func TestMetadataJSON(t *testing.T) {
	dir := t.TempDir()
	id1, _ := ident.Sum([]byte("x"))
	series := []SeriesSpec{{Location: geo.New(1, 2, 3), ID: id1}}
	path, _ := writeFixture(t, dir, series, 2, [][]int16{{1, 2}})

	loaded, err := Load(path)
	require.NoError(t, err)
	raw, err := loaded.MetadataJSON()
	require.NoError(t, err)
	require.Contains(t, string(raw), `"2024-06-15 06:00:00"`)
	require.Contains(t, string(raw), id1.String())
}

func TestWriteRejectsSampleCountMismatch(t *testing.T) {
	var buf bytes.Buffer
	series := []SeriesSpec{{Location: geo.New(1, 2, 3)}}
	_, err := Write(&buf, time.Now(), 100, 5, series, func(i int) ([]int16, error) {
		return []int16{1, 2}, nil // wrong length
	})
	require.Error(t, err)
}

func TestWriteRejectsEmptySeries(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(&buf, time.Now(), 100, 5, nil, nil)
	require.Error(t, err)
}
