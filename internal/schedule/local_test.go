package schedule

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalAddDedups(t *testing.T) {
	l := NewLocal()
	e := Event{Repeat: Single, First: utc(2024, 1, 1, 0, 0, 0)}
	i1 := l.Add(e)
	i2 := l.Add(e)
	require.Equal(t, i1, i2)
	require.Equal(t, 1, l.NumEvents())
}

func TestLocalRemoveThenReAdd(t *testing.T) {
	l := NewLocal()
	a := Event{Repeat: Single, First: utc(2024, 1, 1, 0, 0, 0)}
	b := Event{Repeat: Daily, First: utc(2024, 1, 1, 6, 0, 0)}
	l.Add(a)
	idx := l.Add(b)
	l.Remove(idx)
	l.Add(b)

	require.Equal(t, 2, l.NumEvents())
	require.True(t, l.Contains(a))
	require.True(t, l.Contains(b))
}

func TestLocalSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedule.json")

	l := NewLocal()
	l.Add(Event{Repeat: Single, First: utc(2024, 1, 1, 0, 0, 0)})
	l.Add(Event{Repeat: Weekly, First: utc(2024, 1, 1, 13, 0, 0)})
	require.NoError(t, l.SaveAs(path))

	loaded, err := LoadLocal(path)
	require.NoError(t, err)
	require.Equal(t, l.NumEvents(), loaded.NumEvents())
}

func TestLoadLocalMissingFileIsEmpty(t *testing.T) {
	l, err := LoadLocal(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Equal(t, 0, l.NumEvents())
}

func TestLoadLocalDropsMalformedEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedule.json")
	raw := `[{"first":"2024-01-01 00:00:00","repeat":"never"}, {"first":"not-a-date","repeat":"never"}, {"first":"2024-01-01 06:00:00","repeat":"daily"}]`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	l, err := LoadLocal(path)
	require.NoError(t, err)
	require.Equal(t, 2, l.NumEvents())
}

func TestLoadLocalEmptyArrayIsValid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedule.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))

	l, err := LoadLocal(path)
	require.NoError(t, err)
	require.Equal(t, 0, l.NumEvents())
}

func TestLocalTickFiresOnce(t *testing.T) {
	l := NewLocal()
	fireAt := utc(2030, 1, 1, 12, 0, 0)
	l.Add(Event{Repeat: Single, First: fireAt})

	count := 0
	l.OnRecord(func(d time.Duration) { count++ })

	l.Tick(fireAt.Add(-time.Second))
	require.Equal(t, 0, count)

	l.Tick(fireAt)
	require.Equal(t, 1, count)

	l.Tick(fireAt.Add(time.Second))
	require.Equal(t, 1, count, "must not refire the same single event")
}

func TestLocalNextIsMemoizedAcrossMutation(t *testing.T) {
	l := NewLocal()
	l.Add(Event{Repeat: Single, First: utc(2030, 1, 2, 0, 0, 0)})
	idx := l.Add(Event{Repeat: Single, First: utc(2030, 1, 1, 0, 0, 0)})

	next, ok := l.Next(utc(2030, 1, 1, 0, 0, 0))
	require.True(t, ok)
	require.True(t, next.Equal(utc(2030, 1, 1, 0, 0, 0)))

	l.Remove(idx)
	next, ok = l.Next(utc(2030, 1, 1, 0, 0, 0))
	require.True(t, ok)
	require.True(t, next.Equal(utc(2030, 1, 2, 0, 0, 0)))
}
