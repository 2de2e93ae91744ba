package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"airtrack-mcp/internal/record"
)

// historyWindow is how far back the identifier fetch looks for flights.
const historyWindow = 24 * time.Hour

// OpenSkyClient talks to the OpenSky Network REST API. Credentials are
// optional; anonymous access works with tighter rate limits. Airport and
// interval history queries are memoized in-process keyed by their
// parameters, since they are not identifier-keyed and bypass the record
// cache.
type OpenSkyClient struct {
	BaseURL  string
	HTTP     *http.Client
	username string
	password string

	memo *gocache.Cache
	now  func() time.Time
}

// NewOpenSkyClient returns a client for the given base URL (e.g.
// "https://opensky-network.org/api"). memoTTL bounds how long airport and
// interval query results are reused.
func NewOpenSkyClient(baseURL, username, password string, memoTTL time.Duration) *OpenSkyClient {
	return &OpenSkyClient{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		username: username,
		password: password,
		memo:     gocache.New(memoTTL, 10*time.Minute),
		now:      time.Now,
	}
}

// Source implements Client.
func (c *OpenSkyClient) Source() record.Source { return record.SourceOpenSky }

// Flight is one flight as reported by the OpenSky flights endpoints.
type Flight struct {
	Icao24       string  `json:"icao24"`
	FirstSeen    int64   `json:"firstSeen"`
	LastSeen     int64   `json:"lastSeen"`
	EstDeparture *string `json:"estDepartureAirport"`
	EstArrival   *string `json:"estArrivalAirport"`
	Callsign     *string `json:"callsign"`
}

// Fetch implements Client: the flights flown by the aircraft over the last
// 24 hours. OpenSky answers 404 when it has no flights for the interval,
// which is confirmed missing, not an error.
func (c *OpenSkyClient) Fetch(ctx context.Context, id record.Identifier) (record.Partial, error) {
	if id.ICAO == "" {
		return record.Partial{}, fmt.Errorf("opensky: no icao24 known for %s", id.Key())
	}
	end := c.now().Unix()
	begin := c.now().Add(-historyWindow).Unix()

	flights, err := c.FlightsByAircraft(ctx, id.ICAO, begin, end)
	if err != nil {
		return record.Partial{}, err
	}

	segs := make([]record.Segment, 0, len(flights))
	for _, f := range flights {
		seg := record.Segment{
			ICAO24:    f.Icao24,
			FirstSeen: time.Unix(f.FirstSeen, 0).UTC(),
			LastSeen:  time.Unix(f.LastSeen, 0).UTC(),
		}
		if f.Callsign != nil {
			seg.Callsign = strings.TrimSpace(*f.Callsign)
		}
		if f.EstDeparture != nil {
			seg.Departure = *f.EstDeparture
		}
		if f.EstArrival != nil {
			seg.Arrival = *f.EstArrival
		}
		segs = append(segs, seg)
	}
	return record.Partial{Source: record.SourceOpenSky, Segments: segs}, nil
}

// FlightsByAircraft returns flights for one aircraft in [begin, end]
// (Unix seconds).
func (c *OpenSkyClient) FlightsByAircraft(ctx context.Context, icao24 string, begin, end int64) ([]Flight, error) {
	q := url.Values{
		"icao24": {strings.ToLower(icao24)},
		"begin":  {strconv.FormatInt(begin, 10)},
		"end":    {strconv.FormatInt(end, 10)},
	}
	return c.flights(ctx, "/flights/aircraft", q)
}

// ArrivalsByAirport returns flights that arrived at an airport (ICAO code)
// in [begin, end].
func (c *OpenSkyClient) ArrivalsByAirport(ctx context.Context, airport string, begin, end int64) ([]Flight, error) {
	q := url.Values{
		"airport": {strings.ToUpper(airport)},
		"begin":   {strconv.FormatInt(begin, 10)},
		"end":     {strconv.FormatInt(end, 10)},
	}
	return c.flights(ctx, "/flights/arrival", q)
}

// DeparturesByAirport returns flights that departed an airport (ICAO code)
// in [begin, end].
func (c *OpenSkyClient) DeparturesByAirport(ctx context.Context, airport string, begin, end int64) ([]Flight, error) {
	q := url.Values{
		"airport": {strings.ToUpper(airport)},
		"begin":   {strconv.FormatInt(begin, 10)},
		"end":     {strconv.FormatInt(end, 10)},
	}
	return c.flights(ctx, "/flights/departure", q)
}

// FlightsInInterval returns all flights seen anywhere in [begin, end].
// OpenSky caps the interval at two hours.
func (c *OpenSkyClient) FlightsInInterval(ctx context.Context, begin, end int64) ([]Flight, error) {
	q := url.Values{
		"begin": {strconv.FormatInt(begin, 10)},
		"end":   {strconv.FormatInt(end, 10)},
	}
	return c.flights(ctx, "/flights/all", q)
}

func (c *OpenSkyClient) flights(ctx context.Context, path string, q url.Values) ([]Flight, error) {
	key := path + "?" + q.Encode()
	if v, ok := c.memo.Get(key); ok {
		return v.([]Flight), nil
	}

	var flights []Flight
	if err := c.get(ctx, path, q, &flights); err != nil {
		return nil, err
	}
	c.memo.SetDefault(key, flights)
	return flights, nil
}

// Track is the waypoint trajectory of one flight.
type Track struct {
	Icao24    string     `json:"icao24"`
	Callsign  string     `json:"callsign"`
	StartTime float64    `json:"startTime"`
	EndTime   float64    `json:"endTime"`
	Path      []Waypoint `json:"path"`
}

// Waypoint is one point on a track. OpenSky encodes waypoints as
// positional arrays: [time, latitude, longitude, baro_altitude,
// true_track, on_ground].
type Waypoint struct {
	Time         int64
	Lat          float64
	Lon          float64
	BaroAltitude *float64
	TrueTrack    *float64
	OnGround     bool
}

// UnmarshalJSON decodes the positional array form.
func (w *Waypoint) UnmarshalJSON(data []byte) error {
	var a []json.RawMessage
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if len(a) < 6 {
		return fmt.Errorf("waypoint: expected 6 elements, got %d", len(a))
	}
	if err := json.Unmarshal(a[0], &w.Time); err != nil {
		return fmt.Errorf("waypoint time: %w", err)
	}
	if err := json.Unmarshal(a[1], &w.Lat); err != nil {
		return fmt.Errorf("waypoint lat: %w", err)
	}
	if err := json.Unmarshal(a[2], &w.Lon); err != nil {
		return fmt.Errorf("waypoint lon: %w", err)
	}
	// Altitude and track may be null.
	if err := json.Unmarshal(a[3], &w.BaroAltitude); err != nil {
		return fmt.Errorf("waypoint altitude: %w", err)
	}
	if err := json.Unmarshal(a[4], &w.TrueTrack); err != nil {
		return fmt.Errorf("waypoint track: %w", err)
	}
	if err := json.Unmarshal(a[5], &w.OnGround); err != nil {
		return fmt.Errorf("waypoint on_ground: %w", err)
	}
	return nil
}

// TrackByAircraft returns the live (t=0) or historical track of an
// aircraft.
func (c *OpenSkyClient) TrackByAircraft(ctx context.Context, icao24 string, t int64) (Track, error) {
	q := url.Values{
		"icao24": {strings.ToLower(icao24)},
		"time":   {strconv.FormatInt(t, 10)},
	}
	key := "/tracks/all?" + q.Encode()
	if v, ok := c.memo.Get(key); ok {
		return v.(Track), nil
	}

	var track Track
	if err := c.get(ctx, "/tracks/all", q, &track); err != nil {
		return Track{}, err
	}
	c.memo.SetDefault(key, track)
	return track, nil
}

// StateVectors is one snapshot of live aircraft states.
type StateVectors struct {
	Time   int64   `json:"time"`
	States []State `json:"states"`
}

// State is one live state vector. OpenSky encodes states as positional
// arrays: [icao24, callsign, origin_country, time_position, last_contact,
// longitude, latitude, baro_altitude, on_ground, velocity, true_track,
// vertical_rate, sensors, geo_altitude, squawk, spi, position_source].
type State struct {
	Icao24        string
	Callsign      *string
	OriginCountry string
	TimePosition  *int64
	LastContact   int64
	Lon           *float64
	Lat           *float64
	BaroAltitude  *float64
	OnGround      bool
	Velocity      *float64
	TrueTrack     *float64
	VerticalRate  *float64
	GeoAltitude   *float64
	Squawk        *string
	SPI           bool
}

// UnmarshalJSON decodes the positional array form.
func (s *State) UnmarshalJSON(data []byte) error {
	var a []json.RawMessage
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if len(a) < 17 {
		return fmt.Errorf("state: expected 17 elements, got %d", len(a))
	}
	fields := []struct {
		idx int
		dst any
	}{
		{0, &s.Icao24},
		{1, &s.Callsign},
		{2, &s.OriginCountry},
		{3, &s.TimePosition},
		{4, &s.LastContact},
		{5, &s.Lon},
		{6, &s.Lat},
		{7, &s.BaroAltitude},
		{8, &s.OnGround},
		{9, &s.Velocity},
		{10, &s.TrueTrack},
		{11, &s.VerticalRate},
		{13, &s.GeoAltitude},
		{14, &s.Squawk},
		{15, &s.SPI},
	}
	for _, f := range fields {
		if err := json.Unmarshal(a[f.idx], f.dst); err != nil {
			return fmt.Errorf("state element %d: %w", f.idx, err)
		}
	}
	return nil
}

// BBox is a latitude/longitude bounding box for state queries.
type BBox struct {
	LatMin float64
	LatMax float64
	LonMin float64
	LonMax float64
}

// States returns live state vectors, optionally filtered by aircraft and
// bounding box. t of 0 means the current snapshot.
func (c *OpenSkyClient) States(ctx context.Context, t int64, icao24 []string, box *BBox) (StateVectors, error) {
	q := url.Values{}
	if t > 0 {
		q.Set("time", strconv.FormatInt(t, 10))
	}
	for _, hex := range icao24 {
		q.Add("icao24", strings.ToLower(hex))
	}
	if box != nil {
		q.Set("lamin", strconv.FormatFloat(box.LatMin, 'f', -1, 64))
		q.Set("lamax", strconv.FormatFloat(box.LatMax, 'f', -1, 64))
		q.Set("lomin", strconv.FormatFloat(box.LonMin, 'f', -1, 64))
		q.Set("lomax", strconv.FormatFloat(box.LonMax, 'f', -1, 64))
	}
	return c.states(ctx, "/states/all", q)
}

// MyStates returns state vectors seen by the account's own receivers.
// Requires credentials.
func (c *OpenSkyClient) MyStates(ctx context.Context, t int64, icao24, serials []string) (StateVectors, error) {
	if c.username == "" {
		return StateVectors{}, fmt.Errorf("opensky: credentials required for own-sensor states")
	}
	q := url.Values{}
	if t > 0 {
		q.Set("time", strconv.FormatInt(t, 10))
	}
	for _, hex := range icao24 {
		q.Add("icao24", strings.ToLower(hex))
	}
	for _, serial := range serials {
		q.Add("serials", serial)
	}
	return c.states(ctx, "/states/own", q)
}

func (c *OpenSkyClient) states(ctx context.Context, path string, q url.Values) (StateVectors, error) {
	key := path + "?" + q.Encode()
	if v, ok := c.memo.Get(key); ok {
		return v.(StateVectors), nil
	}

	var sv StateVectors
	if err := c.get(ctx, path, q, &sv); err != nil {
		return StateVectors{}, err
	}
	c.memo.SetDefault(key, sv)
	return sv, nil
}

func (c *OpenSkyClient) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.BaseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("opensky request: %w", err)
	}
	defer resp.Body.Close()

	// The API answers 404 for intervals it has no data for.
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("opensky %s: %w", path, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("opensky: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("opensky decode response: %w", err)
	}
	return nil
}

var _ Client = (*OpenSkyClient)(nil)
