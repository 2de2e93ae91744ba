package format

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"airtrack-mcp/internal/lookup"
	"airtrack-mcp/internal/record"
	"airtrack-mcp/internal/source"
)

func f64(v float64) *float64 { return &v }
func str(s string) *string   { return &s }

func TestSummary_LivePositionSection(t *testing.T) {
	at := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	rec := record.Merge(nil, "a1b2c3", record.Partial{
		Source:   record.SourceADSB,
		Callsign: str("UAL123"),
		Lat:      f64(37.6188),
		Lon:      f64(-122.3756),
	})
	res := &lookup.Result{
		Key:       "a1b2c3",
		Record:    rec,
		Freshness: map[record.Source]lookup.Freshness{record.SourceADSB: lookup.Fresh},
		Fetches:   map[record.Source]record.Fetch{record.SourceADSB: {At: at, Outcome: record.Set}},
	}

	out := Summary(res)

	assert.Contains(t, out, "# Aircraft a1b2c3")
	assert.Contains(t, out, "## Live position — adsb.lol (fresh, as of 2026-08-20 10:00:00 UTC)")
	assert.Contains(t, out, "- Callsign: UAL123")
	assert.Contains(t, out, "- Latitude: 37.61880")
	assert.Contains(t, out, "- Squawk: *not fetched*")
	assert.NotContains(t, out, "Registration record", "unrequested sections are omitted")
	assert.NotContains(t, out, "Recent flights")
}

func TestSummary_ConfirmedMissingAnnotated(t *testing.T) {
	rec := record.Merge(nil, "a1b2c3", record.Partial{Source: record.SourceADSB, Lat: f64(1)})
	rec = record.Merge(&rec, "a1b2c3", record.Partial{Source: record.SourceFAA, NotFound: true})
	res := &lookup.Result{
		Key:    "a1b2c3",
		Record: rec,
		Freshness: map[record.Source]lookup.Freshness{
			record.SourceADSB: lookup.Fresh,
			record.SourceFAA:  lookup.Missing,
		},
		Fetches: map[record.Source]record.Fetch{},
	}

	out := Summary(res)

	assert.Contains(t, out, "## Registration record — faa (missing)")
	assert.Contains(t, out, "- Registered owner: *confirmed missing*")
	assert.Contains(t, out, "- Latitude: 1.00000", "position survives the missing registration")
}

func TestSummary_StaleAnnotationAndDegradedNote(t *testing.T) {
	rec := record.Merge(nil, "a1b2c3", record.Partial{Source: record.SourceADSB, Lat: f64(1)})
	res := &lookup.Result{
		Key:       "a1b2c3",
		Record:    rec,
		Freshness: map[record.Source]lookup.Freshness{record.SourceADSB: lookup.Stale},
		Fetches:   map[record.Source]record.Fetch{},
		Degraded:  true,
	}

	out := Summary(res)
	assert.Contains(t, out, "(stale)")
	assert.Contains(t, out, "cache persistence is unavailable")
}

func TestSummary_Segments(t *testing.T) {
	rec := record.Merge(nil, "a1b2c3", record.Partial{
		Source: record.SourceOpenSky,
		Segments: []record.Segment{{
			ICAO24:    "a1b2c3",
			Callsign:  "UAL123",
			Departure: "KSFO",
			FirstSeen: time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC),
			LastSeen:  time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC),
		}},
	})
	res := &lookup.Result{
		Key:       "a1b2c3",
		Record:    rec,
		Freshness: map[record.Source]lookup.Freshness{record.SourceOpenSky: lookup.Fresh},
		Fetches:   map[record.Source]record.Fetch{},
	}

	out := Summary(res)
	assert.Contains(t, out, "## Recent flights — opensky (fresh)")
	assert.Contains(t, out, "- UAL123 KSFO → ? (2026-08-20 06:00 to 2026-08-20 08:00)")
}

func TestSummary_TailKeyedHeader(t *testing.T) {
	res := &lookup.Result{
		Key:       "N464DF",
		Record:    record.Aircraft{},
		Freshness: map[record.Source]lookup.Freshness{},
		Fetches:   map[record.Source]record.Fetch{},
	}
	out := Summary(res)
	assert.True(t, strings.HasPrefix(out, "# Aircraft N464DF"), "falls back to the lookup key")
}

func TestAircraftList(t *testing.T) {
	out := AircraftList([]map[string]any{
		{"hex": "abc123", "flight": "UAL123", "alt_baro": 3000.0},
		{"hex": "def456", "lastPosition": map[string]any{"lat": 1.5, "lon": 2.5}},
	})

	assert.Contains(t, out, "# hex\nabc123")
	assert.Contains(t, out, "# flight\nUAL123")
	assert.Contains(t, out, "\n---\n", "aircraft separated by rules")
	assert.Contains(t, out, "## lat\n1.5", "nested objects one level deeper")
}

func TestAircraftList_Empty(t *testing.T) {
	assert.Equal(t, "No aircraft found.", AircraftList(nil))
}

func TestFlightList(t *testing.T) {
	flights := []source.Flight{{
		Icao24:       "a1b2c3",
		FirstSeen:    time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC).Unix(),
		LastSeen:     time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC).Unix(),
		EstDeparture: str("KSFO"),
		Callsign:     str("UAL123 "),
	}}

	out := FlightList(flights)
	assert.Contains(t, out, "| Callsign | ICAO24 |")
	assert.Contains(t, out, "| UAL123 | a1b2c3 | KSFO | ? | 2026-08-20 06:00 | 2026-08-20 08:00 |")
}

func TestStateList(t *testing.T) {
	sv := source.StateVectors{
		Time: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC).Unix(),
		States: []source.State{
			{
				Icao24:        "a1b2c3",
				Callsign:      str("UAL123  "),
				OriginCountry: "United States",
				Lat:           f64(37.6188),
				Lon:           f64(-122.3756),
				BaroAltitude:  f64(914.4),
				Velocity:      f64(110.5),
				Squawk:        str("7421"),
			},
			{Icao24: "def456", OriginCountry: "Germany", OnGround: true},
		},
	}

	out := StateList(sv)
	assert.Contains(t, out, "State vectors as of 2026-08-20 10:00:00 UTC")
	assert.Contains(t, out, "| a1b2c3 | UAL123 | United States | 37.61880 | -122.37560 | 914.4 | 110.5 | false | 7421 |")
	assert.Contains(t, out, "| def456 | ? | Germany | ? | ? | ? | ? | true | ? |")
}

func TestStateList_Empty(t *testing.T) {
	assert.Equal(t, "No state vectors found.", StateList(source.StateVectors{}))
}

func TestTrackSummary_CapsWaypoints(t *testing.T) {
	track := source.Track{
		Icao24:   "a1b2c3",
		Callsign: "UAL123",
		Path: []source.Waypoint{
			{Time: 1755670000, Lat: 1, Lon: 2},
			{Time: 1755670300, Lat: 3, Lon: 4},
			{Time: 1755670600, Lat: 5, Lon: 6},
		},
	}

	out := TrackSummary(track, 2)
	assert.Contains(t, out, "# Track UAL123")
	assert.Contains(t, out, "- Waypoints: 3")
	assert.Contains(t, out, "*…1 more waypoints omitted.*")
	assert.Contains(t, out, "| 1.00000 | 2.00000 |")
	assert.Contains(t, out, "| 3.00000 | 4.00000 |")
	assert.NotContains(t, out, "| 5.00000", "only the capped rows rendered")
}
