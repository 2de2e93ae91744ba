package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airtrack-mcp/internal/record"
)

const flightsBody = `[
  {"icao24":"a1b2c3","firstSeen":1755670000,"lastSeen":1755677200,
   "estDepartureAirport":"KSFO","estArrivalAirport":"KLAX","callsign":"UAL123  "},
  {"icao24":"a1b2c3","firstSeen":1755680000,"lastSeen":1755687200,
   "estDepartureAirport":"KLAX","estArrivalAirport":null,"callsign":null}
]`

func newOpenSkyTestClient(t *testing.T, handler http.HandlerFunc) *OpenSkyClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewOpenSkyClient(srv.URL, "", "", time.Hour)
	c.now = func() time.Time { return time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC) }
	return c
}

func TestOpenSkyFetch_BuildsSegments(t *testing.T) {
	var gotPath, gotICAO string
	c := newOpenSkyTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotICAO = r.URL.Query().Get("icao24")
		w.Write([]byte(flightsBody))
	})

	p, err := c.Fetch(context.Background(), record.Identifier{ICAO: "a1b2c3"})
	require.NoError(t, err)

	assert.Equal(t, "/flights/aircraft", gotPath)
	assert.Equal(t, "a1b2c3", gotICAO)
	assert.Equal(t, record.SourceOpenSky, p.Source)
	require.Len(t, p.Segments, 2)

	first := p.Segments[0]
	assert.Equal(t, "a1b2c3", first.ICAO24)
	assert.Equal(t, "UAL123", first.Callsign, "callsign is trimmed")
	assert.Equal(t, "KSFO", first.Departure)
	assert.Equal(t, "KLAX", first.Arrival)
	assert.Equal(t, time.Unix(1755670000, 0).UTC(), first.FirstSeen)

	second := p.Segments[1]
	assert.Empty(t, second.Callsign)
	assert.Empty(t, second.Arrival)
}

func TestOpenSkyFetch_RequiresICAO(t *testing.T) {
	c := newOpenSkyTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without an icao24")
	})

	_, err := c.Fetch(context.Background(), record.Identifier{Tail: "N464DF"})
	assert.Error(t, err)
}

func TestOpenSky_NoDataIs404(t *testing.T) {
	c := newOpenSkyTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := c.FlightsByAircraft(context.Background(), "a1b2c3", 0, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenSky_FlightsMemoized(t *testing.T) {
	var calls int
	c := newOpenSkyTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(flightsBody))
	})

	ctx := context.Background()
	_, err := c.ArrivalsByAirport(ctx, "KSFO", 100, 200)
	require.NoError(t, err)
	_, err = c.ArrivalsByAirport(ctx, "KSFO", 100, 200)
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "identical query must hit the memo")

	// Different interval is a different key.
	_, err = c.ArrivalsByAirport(ctx, "KSFO", 100, 300)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestOpenSky_BasicAuthWhenConfigured(t *testing.T) {
	var user, pass string
	var withAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, withAuth = r.BasicAuth()
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewOpenSkyClient(srv.URL, "alice", "secret", time.Hour)
	_, err := c.FlightsByAircraft(context.Background(), "a1b2c3", 0, 1)
	require.NoError(t, err)
	require.True(t, withAuth)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "secret", pass)
}

func TestOpenSky_FlightsInInterval(t *testing.T) {
	var gotPath string
	c := newOpenSkyTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(flightsBody))
	})

	flights, err := c.FlightsInInterval(context.Background(), 1755670000, 1755677200)
	require.NoError(t, err)
	assert.Equal(t, "/flights/all", gotPath)
	assert.Len(t, flights, 2)
}

const statesBody = `{"time":1755670000,"states":[
  ["a1b2c3","UAL123  ","United States",1755669990,1755669995,-122.3756,37.6188,914.4,false,110.5,280.5,2.6,null,930.0,"7421",false,0],
  ["def456",null,"Germany",null,1755669990,null,null,null,true,null,null,null,null,null,null,false,0]
]}`

func TestOpenSky_States(t *testing.T) {
	var gotQuery string
	c := newOpenSkyTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/states/all", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Write([]byte(statesBody))
	})

	sv, err := c.States(context.Background(), 0, []string{"A1B2C3"},
		&BBox{LatMin: 37, LatMax: 38, LonMin: -123, LonMax: -122})
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "icao24=a1b2c3")
	assert.Contains(t, gotQuery, "lamin=37")
	assert.Contains(t, gotQuery, "lomax=-122")
	assert.NotContains(t, gotQuery, "time=", "time 0 means the current snapshot")

	assert.Equal(t, int64(1755670000), sv.Time)
	require.Len(t, sv.States, 2)

	first := sv.States[0]
	assert.Equal(t, "a1b2c3", first.Icao24)
	assert.Equal(t, "United States", first.OriginCountry)
	require.NotNil(t, first.Lat)
	assert.Equal(t, 37.6188, *first.Lat)
	assert.Equal(t, 110.5, *first.Velocity)
	assert.Equal(t, "7421", *first.Squawk)
	assert.False(t, first.OnGround)

	second := sv.States[1]
	assert.Nil(t, second.Callsign)
	assert.Nil(t, second.Lat)
	assert.True(t, second.OnGround)
}

func TestOpenSky_MyStatesRequiresCredentials(t *testing.T) {
	c := newOpenSkyTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without credentials")
	})

	_, err := c.MyStates(context.Background(), 0, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials required")
}

func TestOpenSky_MyStates(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(statesBody))
	}))
	defer srv.Close()

	c := NewOpenSkyClient(srv.URL, "alice", "secret", time.Hour)
	sv, err := c.MyStates(context.Background(), 1755670000, nil, []string{"12345"})
	require.NoError(t, err)

	assert.Equal(t, "/states/own", gotPath)
	assert.Contains(t, gotQuery, "serials=12345")
	assert.Contains(t, gotQuery, "time=1755670000")
	assert.Len(t, sv.States, 2)
}

func TestTrackByAircraft(t *testing.T) {
	body := `{
	  "icao24":"a1b2c3","callsign":"UAL123","startTime":1755670000,"endTime":1755677200,
	  "path":[
	    [1755670000, 37.6188, -122.3756, 0, 280.5, true],
	    [1755670300, 37.7, -122.5, 4500, null, false]
	  ]
	}`
	c := newOpenSkyTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tracks/all", r.URL.Path)
		w.Write([]byte(body))
	})

	track, err := c.TrackByAircraft(context.Background(), "A1B2C3", 0)
	require.NoError(t, err)
	assert.Equal(t, "a1b2c3", track.Icao24)
	require.Len(t, track.Path, 2)

	wp := track.Path[0]
	assert.Equal(t, int64(1755670000), wp.Time)
	assert.Equal(t, 37.6188, wp.Lat)
	assert.True(t, wp.OnGround)
	require.NotNil(t, wp.TrueTrack)
	assert.Equal(t, 280.5, *wp.TrueTrack)

	assert.Nil(t, track.Path[1].TrueTrack, "null track decodes to nil")
	assert.Equal(t, 4500.0, *track.Path[1].BaroAltitude)
}
