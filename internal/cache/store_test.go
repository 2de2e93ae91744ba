package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airtrack-mcp/internal/logging"
	"airtrack-mcp/internal/record"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := Open(filepath.Join(t.TempDir(), "cache.db"), logging.Nop())
	t.Cleanup(func() { s.Close() })
	require.False(t, s.Degraded())
	return s
}

func f64(v float64) *float64 { return &v }
func str(s string) *string   { return &s }

var icaoID = record.Identifier{ICAO: "a1b2c3"}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	p := record.Partial{
		Source:     record.SourceADSB,
		Callsign:   str("UAL123"),
		Lat:        f64(10.0),
		Lon:        f64(20.0),
		AltitudeFt: f64(3000),
	}
	put := s.Put(ctx, icaoID, p, at)

	got, ok := s.Get(ctx, "a1b2c3")
	require.True(t, ok)
	assert.Equal(t, put.Record, got.Record)
	assert.Equal(t, "a1b2c3", got.Record.ICAO)
	assert.Equal(t, 10.0, got.Record.Lat.Value)
	assert.Equal(t, "UAL123", got.Record.Callsign.Value)

	f, ok := got.Fetches[record.SourceADSB]
	require.True(t, ok)
	assert.Equal(t, at, f.At)
	assert.Equal(t, record.Set, f.Outcome)
}

func TestStore_GetAbsent(t *testing.T) {
	s := newTestStore(t)
	_, ok := s.Get(context.Background(), "ffffff")
	assert.False(t, ok)
}

func TestStore_PutMergesPerSource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	s.Put(ctx, icaoID, record.Partial{Source: record.SourceADSB, Lat: f64(10)}, t0)
	s.Put(ctx, icaoID, record.Partial{Source: record.SourceFAA, Owner: str("ACME AIR LLC")}, t1)

	got, ok := s.Get(ctx, "a1b2c3")
	require.True(t, ok)
	assert.Equal(t, 10.0, got.Record.Lat.Value)
	assert.Equal(t, "ACME AIR LLC", got.Record.Owner.Value)
	assert.Equal(t, t0, got.Fetches[record.SourceADSB].At)
	assert.Equal(t, t1, got.Fetches[record.SourceFAA].At)
}

func TestStore_PutNotFoundRecordsMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Second)

	s.Put(ctx, icaoID, record.Partial{Source: record.SourceFAA, NotFound: true}, at)

	got, ok := s.Get(ctx, "a1b2c3")
	require.True(t, ok)
	assert.Equal(t, record.Missing, got.Record.Owner.Status)
	assert.Equal(t, record.Missing, got.Fetches[record.SourceFAA].Outcome)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()
	at := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	s := Open(path, logging.Nop())
	s.Put(ctx, icaoID, record.Partial{Source: record.SourceADSB, Lat: f64(10)}, at)
	require.NoError(t, s.Close())

	s2 := Open(path, logging.Nop())
	defer s2.Close()
	got, ok := s2.Get(ctx, "a1b2c3")
	require.True(t, ok)
	assert.Equal(t, 10.0, got.Record.Lat.Value)
	assert.Equal(t, at, got.Fetches[record.SourceADSB].At)
}

func TestStore_DegradesToMemory(t *testing.T) {
	// A path inside a file cannot be created; the store must come up
	// degraded and still serve puts and gets.
	bad := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0o644))
	s := Open(filepath.Join(bad, "sub", "cache.db"), logging.Nop())
	defer s.Close()
	require.True(t, s.Degraded())

	ctx := context.Background()
	s.Put(ctx, icaoID, record.Partial{Source: record.SourceADSB, Lat: f64(10)}, time.Now())
	got, ok := s.Get(ctx, "a1b2c3")
	require.True(t, ok)
	assert.Equal(t, 10.0, got.Record.Lat.Value)
}

func TestStore_EmptyPathDegrades(t *testing.T) {
	s := Open("", logging.Nop())
	defer s.Close()
	assert.True(t, s.Degraded())
}

func TestStore_EvictOlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	old := record.Identifier{ICAO: "0000aa"}
	s.Put(ctx, old, record.Partial{Source: record.SourceADSB, Lat: f64(1)}, now.Add(-48*time.Hour))
	s.Put(ctx, icaoID, record.Partial{Source: record.SourceADSB, Lat: f64(2)}, now.Add(-time.Hour))

	n, err := s.EvictOlderThan(ctx, 24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok := s.Get(ctx, "0000aa")
	assert.False(t, ok)
	_, ok = s.Get(ctx, "a1b2c3")
	assert.True(t, ok)
}
