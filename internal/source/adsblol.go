package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"airtrack-mcp/internal/record"
)

// ADSBClient talks to the adsb.lol v2 API. Besides the identifier fetch
// used by the lookup orchestrator, it exposes the fleet-wide live queries
// (squawk, type, radius, special-interest lists) as raw aircraft objects
// for the passthrough tools.
type ADSBClient struct {
	BaseURL string
	HTTP    *http.Client

	now func() time.Time
}

// NewADSBClient returns a client for the given base URL (e.g.
// "https://api.adsb.lol").
func NewADSBClient(baseURL string) *ADSBClient {
	return &ADSBClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}
}

// Source implements Client.
func (c *ADSBClient) Source() record.Source { return record.SourceADSB }

// acItem is one aircraft object from the v2 "ac" array. alt_baro is a
// number or the string "ground".
type acItem struct {
	Hex     string          `json:"hex"`
	Flight  string          `json:"flight"`
	Reg     string          `json:"r"`
	Type    string          `json:"t"`
	Lat     *float64        `json:"lat"`
	Lon     *float64        `json:"lon"`
	AltBaro json.RawMessage `json:"alt_baro"`
	GS      *float64        `json:"gs"`
	Track   *float64        `json:"track"`
	Squawk  string          `json:"squawk"`
	SeenPos *float64        `json:"seen_pos"`
}

type acResponse struct {
	AC []json.RawMessage `json:"ac"`
}

// Fetch implements Client. ICAO hex identifiers query /v2/icao, tail
// numbers /v2/reg. An empty "ac" array means the aircraft is not currently
// on the feed, which the live source treats as confirmed missing.
func (c *ADSBClient) Fetch(ctx context.Context, id record.Identifier) (record.Partial, error) {
	var path string
	switch {
	case id.ICAO != "":
		path = "/v2/icao/" + url.PathEscape(id.ICAO)
	case id.Tail != "":
		path = "/v2/reg/" + url.PathEscape(id.Tail)
	default:
		return record.Partial{}, fmt.Errorf("adsb.lol: empty identifier")
	}

	raw, err := c.list(ctx, path)
	if err != nil {
		return record.Partial{}, err
	}
	if len(raw) == 0 {
		return record.Partial{}, fmt.Errorf("adsb.lol %s: %w", id.Key(), ErrNotFound)
	}

	var ac acItem
	if err := json.Unmarshal(raw[0], &ac); err != nil {
		return record.Partial{}, fmt.Errorf("adsb.lol decode aircraft: %w", err)
	}

	p := record.Partial{Source: record.SourceADSB}
	if hex := strings.ToLower(strings.TrimSpace(ac.Hex)); hex != "" {
		// Tail-keyed lookups learn the hex from the feed.
		p.ICAO = &hex
	}
	if cs := strings.TrimSpace(ac.Flight); cs != "" {
		p.Callsign = &cs
	}
	if ac.Reg != "" {
		reg := ac.Reg
		p.Registration = &reg
	}
	if ac.Type != "" {
		t := ac.Type
		p.TypeCode = &t
	}
	p.Lat = ac.Lat
	p.Lon = ac.Lon
	if alt, ok := parseAltBaro(ac.AltBaro); ok {
		p.AltitudeFt = &alt
	}
	p.GroundSpeedKt = ac.GS
	p.TrackDeg = ac.Track
	if ac.Squawk != "" {
		sq := ac.Squawk
		p.Squawk = &sq
	}
	if ac.Lat != nil && ac.Lon != nil {
		at := c.now().UTC()
		if ac.SeenPos != nil {
			at = at.Add(-time.Duration(*ac.SeenPos * float64(time.Second)))
		}
		p.PositionAt = &at
	}
	return p, nil
}

// parseAltBaro handles the "number or \"ground\"" encoding; on the ground
// the barometric altitude is reported as 0.
func parseAltBaro(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s == "ground" {
		return 0, true
	}
	return 0, false
}

// Live fleet queries. Each returns the raw aircraft objects so the
// formatter can render whatever fields the feed included.

// BySquawk returns aircraft broadcasting the given transponder code.
func (c *ADSBClient) BySquawk(ctx context.Context, squawk string) ([]map[string]any, error) {
	return c.listMaps(ctx, "/v2/sqk/"+url.PathEscape(squawk))
}

// ByType returns aircraft of the given ICAO type designator.
func (c *ADSBClient) ByType(ctx context.Context, typeCode string) ([]map[string]any, error) {
	return c.listMaps(ctx, "/v2/type/"+url.PathEscape(typeCode))
}

// ByRegistration returns aircraft with the given registration code.
func (c *ADSBClient) ByRegistration(ctx context.Context, reg string) ([]map[string]any, error) {
	return c.listMaps(ctx, "/v2/reg/"+url.PathEscape(reg))
}

// ByCallsign returns aircraft using the given callsign.
func (c *ADSBClient) ByCallsign(ctx context.Context, callsign string) ([]map[string]any, error) {
	return c.listMaps(ctx, "/v2/callsign/"+url.PathEscape(callsign))
}

// Military returns all military-registered aircraft on the feed.
func (c *ADSBClient) Military(ctx context.Context) ([]map[string]any, error) {
	return c.listMaps(ctx, "/v2/mil")
}

// LADD returns aircraft on the FAA Limiting Aircraft Data Displayed list.
func (c *ADSBClient) LADD(ctx context.Context) ([]map[string]any, error) {
	return c.listMaps(ctx, "/v2/ladd")
}

// PIA returns aircraft flying with Privacy ICAO Addresses.
func (c *ADSBClient) PIA(ctx context.Context) ([]map[string]any, error) {
	return c.listMaps(ctx, "/v2/pia")
}

// Near returns aircraft within radius nautical miles of a point.
func (c *ADSBClient) Near(ctx context.Context, lat, lon, radiusNM float64) ([]map[string]any, error) {
	return c.listMaps(ctx, fmt.Sprintf("/v2/point/%g/%g/%g", lat, lon, radiusNM))
}

// Closest returns the closest aircraft to a point within radius nautical
// miles (capped by the API at 250nm).
func (c *ADSBClient) Closest(ctx context.Context, lat, lon, radiusNM float64) ([]map[string]any, error) {
	return c.listMaps(ctx, fmt.Sprintf("/v2/closest/%g/%g/%g", lat, lon, radiusNM))
}

func (c *ADSBClient) listMaps(ctx context.Context, path string) ([]map[string]any, error) {
	raw, err := c.list(ctx, path)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		var m map[string]any
		if err := json.Unmarshal(r, &m); err != nil {
			return nil, fmt.Errorf("adsb.lol decode aircraft: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (c *ADSBClient) list(ctx context.Context, path string) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("adsb.lol request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("adsb.lol: unexpected status %d", resp.StatusCode)
	}
	var body acResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("adsb.lol decode response: %w", err)
	}
	return body.AC, nil
}

var _ Client = (*ADSBClient)(nil)
