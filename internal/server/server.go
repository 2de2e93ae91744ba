// Package server builds the MCP server and registers tools.
package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"airtrack-mcp/internal/format"
	"airtrack-mcp/internal/lookup"
	"airtrack-mcp/internal/record"
	"airtrack-mcp/internal/source"
)

const (
	ServerName    = "airtrack-mcp"
	ServerVersion = "1.0.0"
)

// Deps are the collaborators the tool handlers need. Lookup is the only
// path to the cache; ADSB and OpenSky are used directly by the live and
// history passthrough tools, which are not identifier-keyed.
type Deps struct {
	Lookup  *lookup.Orchestrator
	ADSB    *source.ADSBClient
	OpenSky *source.OpenSkyClient
}

// New returns an MCP server with all tools registered.
func New(deps Deps) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "ping",
		Description: "Simple health check. Returns pong.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ any) (*mcp.CallToolResult, PingOutput, error) {
		return nil, PingOutput{Message: "pong"}, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name: "lookup_aircraft",
		Description: "Look up one aircraft by ICAO hex code or tail number. Merges live position (adsb.lol), " +
			"FAA registration, and recent OpenSky flights, served from a local cache when fresh. " +
			"Optional sources restricts which data sources are consulted: adsb.lol, faa, opensky.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in LookupInput) (*mcp.CallToolResult, LookupOutput, error) {
		if in.Identifier == "" {
			return nil, LookupOutput{}, fmt.Errorf("identifier is required")
		}
		sources := make([]record.Source, 0, len(in.Sources))
		for _, name := range in.Sources {
			src := record.Source(name)
			if !src.Valid() {
				return nil, LookupOutput{}, fmt.Errorf("unknown source %q (valid: adsb.lol, faa, opensky)", name)
			}
			sources = append(sources, src)
		}
		res, err := deps.Lookup.Lookup(ctx, in.Identifier, sources)
		if err != nil {
			return nil, LookupOutput{}, err
		}
		return nil, LookupOutput{Summary: format.Summary(res)}, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name: "faa_registration_batch",
		Description: "Fetch and cache FAA registration records for a batch of N-Numbers. " +
			"Returns a per-aircraft summary plus success/failure counts.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in BatchInput) (*mcp.CallToolResult, BatchOutput, error) {
		if len(in.Tails) == 0 {
			return nil, BatchOutput{}, fmt.Errorf("tails is required (list of N-Numbers)")
		}
		out := BatchOutput{}
		for _, tail := range in.Tails {
			res, err := deps.Lookup.Lookup(ctx, tail, []record.Source{record.SourceFAA})
			if err != nil {
				out.Failed++
				out.Report += fmt.Sprintf("## %s\n\n*lookup failed: %v*\n\n", tail, err)
				continue
			}
			if res.Freshness[record.SourceFAA] == lookup.Missing {
				out.Failed++
			} else {
				out.Succeeded++
			}
			out.Report += format.Summary(res) + "\n"
		}
		return nil, out, nil
	})

	registerLiveTools(s, deps.ADSB)
	registerHistoryTools(s, deps.OpenSky)
	return s
}

// registerLiveTools adds the adsb.lol fleet-wide live queries. These hit
// the feed directly: the results are snapshots of whatever is airborne
// right now, not per-aircraft records worth caching.
func registerLiveTools(s *mcp.Server, adsb *source.ADSBClient) {
	listTool := func(name, desc string, fetch func(ctx context.Context, in FilterInput) ([]map[string]any, error)) {
		mcp.AddTool(s, &mcp.Tool{Name: name, Description: desc},
			func(ctx context.Context, req *mcp.CallToolRequest, in FilterInput) (*mcp.CallToolResult, AircraftListOutput, error) {
				items, err := fetch(ctx, in)
				if err != nil {
					return nil, AircraftListOutput{}, err
				}
				return nil, AircraftListOutput{Count: len(items), Report: format.AircraftList(items)}, nil
			})
	}

	listTool("aircraft_by_squawk",
		"List aircraft currently broadcasting the given transponder squawk code.",
		func(ctx context.Context, in FilterInput) ([]map[string]any, error) {
			if in.Value == "" {
				return nil, fmt.Errorf("value is required (squawk code)")
			}
			return adsb.BySquawk(ctx, in.Value)
		})
	listTool("aircraft_by_type",
		"List aircraft of the given ICAO type designator (e.g. B738) currently on the feed.",
		func(ctx context.Context, in FilterInput) ([]map[string]any, error) {
			if in.Value == "" {
				return nil, fmt.Errorf("value is required (type designator)")
			}
			return adsb.ByType(ctx, in.Value)
		})
	listTool("aircraft_by_registration",
		"List aircraft with the given registration code (e.g. G-KELS) currently on the feed.",
		func(ctx context.Context, in FilterInput) ([]map[string]any, error) {
			if in.Value == "" {
				return nil, fmt.Errorf("value is required (registration)")
			}
			return adsb.ByRegistration(ctx, in.Value)
		})
	listTool("aircraft_by_callsign",
		"List aircraft using the given callsign right now.",
		func(ctx context.Context, in FilterInput) ([]map[string]any, error) {
			if in.Value == "" {
				return nil, fmt.Errorf("value is required (callsign)")
			}
			return adsb.ByCallsign(ctx, in.Value)
		})
	listTool("military_aircraft",
		"List all military-registered aircraft currently on the feed.",
		func(ctx context.Context, _ FilterInput) ([]map[string]any, error) {
			return adsb.Military(ctx)
		})
	listTool("ladd_aircraft",
		"List aircraft on the FAA Limiting Aircraft Data Displayed (LADD) list currently on the feed.",
		func(ctx context.Context, _ FilterInput) ([]map[string]any, error) {
			return adsb.LADD(ctx)
		})
	listTool("pia_aircraft",
		"List aircraft flying with Privacy ICAO Addresses (PIA) currently on the feed.",
		func(ctx context.Context, _ FilterInput) ([]map[string]any, error) {
			return adsb.PIA(ctx)
		})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "aircraft_near",
		Description: "List aircraft within a radius (nautical miles) of a latitude/longitude point.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in PointInput) (*mcp.CallToolResult, AircraftListOutput, error) {
		if err := in.validate(); err != nil {
			return nil, AircraftListOutput{}, err
		}
		items, err := adsb.Near(ctx, in.Lat, in.Lon, in.RadiusNM)
		if err != nil {
			return nil, AircraftListOutput{}, err
		}
		return nil, AircraftListOutput{Count: len(items), Report: format.AircraftList(items)}, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "closest_aircraft",
		Description: "Return the closest aircraft to a latitude/longitude point within a radius up to 250 nautical miles.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in PointInput) (*mcp.CallToolResult, AircraftListOutput, error) {
		if err := in.validate(); err != nil {
			return nil, AircraftListOutput{}, err
		}
		items, err := adsb.Closest(ctx, in.Lat, in.Lon, in.RadiusNM)
		if err != nil {
			return nil, AircraftListOutput{}, err
		}
		return nil, AircraftListOutput{Count: len(items), Report: format.AircraftList(items)}, nil
	})
}

// registerHistoryTools adds the OpenSky history queries. Airport and
// interval queries are memoized inside the client keyed by parameters.
func registerHistoryTools(s *mcp.Server, osky *source.OpenSkyClient) {
	flightsTool := func(name, desc string, fetch func(ctx context.Context, in IntervalInput) ([]source.Flight, error)) {
		mcp.AddTool(s, &mcp.Tool{Name: name, Description: desc},
			func(ctx context.Context, req *mcp.CallToolRequest, in IntervalInput) (*mcp.CallToolResult, FlightsOutput, error) {
				if err := in.validate(); err != nil {
					return nil, FlightsOutput{}, err
				}
				flights, err := fetch(ctx, in)
				if errors.Is(err, source.ErrNotFound) {
					return nil, FlightsOutput{Report: "No flights found."}, nil
				}
				if err != nil {
					return nil, FlightsOutput{}, err
				}
				return nil, FlightsOutput{Count: len(flights), Report: format.FlightList(flights)}, nil
			})
	}

	flightsTool("arrivals_by_airport",
		"List flights that arrived at an airport (ICAO code, e.g. EDDF) in a Unix time interval.",
		func(ctx context.Context, in IntervalInput) ([]source.Flight, error) {
			if in.Airport == "" {
				return nil, fmt.Errorf("airport is required (ICAO code)")
			}
			return osky.ArrivalsByAirport(ctx, in.Airport, in.Begin, in.End)
		})
	flightsTool("departures_by_airport",
		"List flights that departed an airport (ICAO code, e.g. EDDF) in a Unix time interval.",
		func(ctx context.Context, in IntervalInput) ([]source.Flight, error) {
			if in.Airport == "" {
				return nil, fmt.Errorf("airport is required (ICAO code)")
			}
			return osky.DeparturesByAirport(ctx, in.Airport, in.Begin, in.End)
		})
	flightsTool("flights_by_aircraft",
		"List flights flown by one aircraft (ICAO24 hex address) in a Unix time interval.",
		func(ctx context.Context, in IntervalInput) ([]source.Flight, error) {
			if in.ICAO24 == "" {
				return nil, fmt.Errorf("icao24 is required")
			}
			return osky.FlightsByAircraft(ctx, in.ICAO24, in.Begin, in.End)
		})
	flightsTool("flights_in_interval",
		"List all flights seen anywhere in a Unix time interval (at most two hours).",
		func(ctx context.Context, in IntervalInput) ([]source.Flight, error) {
			if in.End-in.Begin > 7200 {
				return nil, fmt.Errorf("interval must be at most two hours")
			}
			return osky.FlightsInInterval(ctx, in.Begin, in.End)
		})

	mcp.AddTool(s, &mcp.Tool{
		Name: "aircraft_states",
		Description: "Return live state vectors (position, altitude, velocity), optionally filtered by " +
			"ICAO24 addresses or a latitude/longitude bounding box. time 0 or omitted means now.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in StatesInput) (*mcp.CallToolResult, StatesOutput, error) {
		box, err := in.bbox()
		if err != nil {
			return nil, StatesOutput{}, err
		}
		sv, err := osky.States(ctx, in.Time, in.ICAO24, box)
		if errors.Is(err, source.ErrNotFound) {
			return nil, StatesOutput{Report: "No state vectors found."}, nil
		}
		if err != nil {
			return nil, StatesOutput{}, err
		}
		return nil, StatesOutput{Count: len(sv.States), Report: format.StateList(sv)}, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name: "own_states",
		Description: "Return state vectors seen by your own OpenSky receivers, optionally filtered by " +
			"ICAO24 addresses or receiver serials. Requires OpenSky credentials.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in OwnStatesInput) (*mcp.CallToolResult, StatesOutput, error) {
		sv, err := osky.MyStates(ctx, in.Time, in.ICAO24, in.Serials)
		if errors.Is(err, source.ErrNotFound) {
			return nil, StatesOutput{Report: "No state vectors found."}, nil
		}
		if err != nil {
			return nil, StatesOutput{}, err
		}
		return nil, StatesOutput{Count: len(sv.States), Report: format.StateList(sv)}, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "track_by_aircraft",
		Description: "Return the waypoint track of an aircraft (ICAO24 hex address). time 0 or omitted means the live track.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in TrackInput) (*mcp.CallToolResult, TrackOutput, error) {
		if in.ICAO24 == "" {
			return nil, TrackOutput{}, fmt.Errorf("icao24 is required")
		}
		track, err := osky.TrackByAircraft(ctx, in.ICAO24, in.Time)
		if errors.Is(err, source.ErrNotFound) {
			return nil, TrackOutput{Report: "No track found."}, nil
		}
		if err != nil {
			return nil, TrackOutput{}, err
		}
		return nil, TrackOutput{Report: format.TrackSummary(track, 50)}, nil
	})
}

// PingOutput is the structured result of the ping tool.
type PingOutput struct {
	Message string `json:"message"`
}

// LookupInput is the input for lookup_aircraft.
type LookupInput struct {
	Identifier string   `json:"identifier"`
	Sources    []string `json:"sources,omitempty"`
}

// LookupOutput is the result of lookup_aircraft.
type LookupOutput struct {
	Summary string `json:"summary"`
}

// BatchInput is the input for faa_registration_batch.
type BatchInput struct {
	Tails []string `json:"tails"`
}

// BatchOutput is the result of faa_registration_batch.
type BatchOutput struct {
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Report    string `json:"report"`
}

// FilterInput is the input for the single-parameter live feed tools. The
// list tools (military, LADD, PIA) ignore it.
type FilterInput struct {
	Value string `json:"value,omitempty"`
}

// AircraftListOutput is the result of the live feed tools.
type AircraftListOutput struct {
	Count  int    `json:"count"`
	Report string `json:"report"`
}

// PointInput is the input for aircraft_near and closest_aircraft.
type PointInput struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	RadiusNM float64 `json:"radius_nm"`
}

func (in PointInput) validate() error {
	if in.Lat < -90 || in.Lat > 90 {
		return fmt.Errorf("lat must be in [-90, 90]")
	}
	if in.Lon < -180 || in.Lon > 180 {
		return fmt.Errorf("lon must be in [-180, 180]")
	}
	if in.RadiusNM <= 0 {
		return fmt.Errorf("radius_nm must be positive")
	}
	return nil
}

// IntervalInput is the input for the OpenSky interval tools.
type IntervalInput struct {
	Airport string `json:"airport,omitempty"`
	ICAO24  string `json:"icao24,omitempty"`
	Begin   int64  `json:"begin"`
	End     int64  `json:"end"`
}

func (in IntervalInput) validate() error {
	if in.Begin <= 0 || in.End <= 0 {
		return fmt.Errorf("begin and end are required (Unix seconds)")
	}
	if in.End <= in.Begin {
		return fmt.Errorf("end must be after begin")
	}
	return nil
}

// StatesInput is the input for aircraft_states. BBox, when present, is
// [lat_min, lat_max, lon_min, lon_max].
type StatesInput struct {
	Time   int64     `json:"time,omitempty"`
	ICAO24 []string  `json:"icao24,omitempty"`
	BBox   []float64 `json:"bbox,omitempty"`
}

func (in StatesInput) bbox() (*source.BBox, error) {
	if len(in.BBox) == 0 {
		return nil, nil
	}
	if len(in.BBox) != 4 {
		return nil, fmt.Errorf("bbox must be [lat_min, lat_max, lon_min, lon_max]")
	}
	box := &source.BBox{LatMin: in.BBox[0], LatMax: in.BBox[1], LonMin: in.BBox[2], LonMax: in.BBox[3]}
	if box.LatMin >= box.LatMax || box.LonMin >= box.LonMax {
		return nil, fmt.Errorf("bbox bounds must satisfy lat_min < lat_max and lon_min < lon_max")
	}
	return box, nil
}

// OwnStatesInput is the input for own_states.
type OwnStatesInput struct {
	Time    int64    `json:"time,omitempty"`
	ICAO24  []string `json:"icao24,omitempty"`
	Serials []string `json:"serials,omitempty"`
}

// StatesOutput is the result of the state vector tools.
type StatesOutput struct {
	Count  int    `json:"count"`
	Report string `json:"report"`
}

// TrackInput is the input for track_by_aircraft.
type TrackInput struct {
	ICAO24 string `json:"icao24"`
	Time   int64  `json:"time,omitempty"`
}

// TrackOutput is the result of track_by_aircraft.
type TrackOutput struct {
	Report string `json:"report"`
}

// FlightsOutput is the result of the OpenSky flight list tools.
type FlightsOutput struct {
	Count  int    `json:"count"`
	Report string `json:"report"`
}
