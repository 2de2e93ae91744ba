// Package record defines the normalized aircraft record, per-field source
// authority, and the merge rules that reconcile cached data with freshly
// fetched data. Each field is a tagged tri-state (unfetched, set, confirmed
// missing) so that "the source says there is no data" is never conflated
// with "we have not asked yet".
package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// Source identifies one remote data source. Each source is authoritative
// for a fixed subset of Aircraft fields and never overwrites another
// source's fields.
type Source string

const (
	// SourceADSB is the adsb.lol live feed: position, velocity, squawk,
	// callsign, and the registration as broadcast on the transponder.
	SourceADSB Source = "adsb.lol"
	// SourceFAA is the FAA aircraft registry: owner, manufacturer, model,
	// serial number, year of manufacture.
	SourceFAA Source = "faa"
	// SourceOpenSky is the OpenSky Network: historical flight segments.
	SourceOpenSky Source = "opensky"
)

// Sources lists all known sources in a stable order.
var Sources = []Source{SourceADSB, SourceFAA, SourceOpenSky}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceADSB, SourceFAA, SourceOpenSky:
		return true
	}
	return false
}

// Status is the tri-state of a field or of a whole source fetch.
type Status int

const (
	// Unfetched means no source has ever reported on this field.
	Unfetched Status = iota
	// Set means a source reported a value.
	Set
	// Missing means the authoritative source explicitly reported no data.
	Missing
)

var statusNames = map[Status]string{
	Unfetched: "unfetched",
	Set:       "set",
	Missing:   "missing",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalJSON encodes the status as its name so cache snapshots stay
// readable and stable across reorderings of the constants.
func (s Status) MarshalJSON() ([]byte, error) {
	n, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown field status %d", int(s))
	}
	return json.Marshal(n)
}

// UnmarshalJSON decodes a status name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	for st, name := range statusNames {
		if name == n {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown field status %q", n)
}

// Field is one record field with its tri-state and provenance. The zero
// value is an unfetched field.
type Field[T any] struct {
	Value  T      `json:"value"`
	Status Status `json:"status"`
	Source Source `json:"source,omitempty"`
}

// Known reports whether the field holds a value from a source.
func (f Field[T]) Known() bool { return f.Status == Set }

// Fetch records the outcome of the most recent fetch from one source.
type Fetch struct {
	At time.Time `json:"at"`
	// Outcome is Set for a successful fetch or Missing when the source
	// confirmed it has no record. Transient failures are never recorded.
	Outcome Status `json:"outcome"`
}

// Segment is one historical flight reported by OpenSky.
type Segment struct {
	ICAO24    string    `json:"icao24"`
	Callsign  string    `json:"callsign,omitempty"`
	Departure string    `json:"departure,omitempty"`
	Arrival   string    `json:"arrival,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Aircraft is the normalized merged record for one airframe. The ICAO hex
// identifier is immutable once assigned; every other field carries its own
// status and source tag and may be independently stale.
type Aircraft struct {
	ICAO string `json:"icao"`

	// adsb.lol live feed.
	Callsign      Field[string]    `json:"callsign"`
	Registration  Field[string]    `json:"registration"`
	TypeCode      Field[string]    `json:"type_code"`
	Lat           Field[float64]   `json:"lat"`
	Lon           Field[float64]   `json:"lon"`
	AltitudeFt    Field[float64]   `json:"altitude_ft"`
	GroundSpeedKt Field[float64]   `json:"ground_speed_kt"`
	TrackDeg      Field[float64]   `json:"track_deg"`
	Squawk        Field[string]    `json:"squawk"`
	PositionAt    Field[time.Time] `json:"position_at"`

	// FAA registry.
	Owner        Field[string] `json:"owner"`
	Manufacturer Field[string] `json:"manufacturer"`
	Model        Field[string] `json:"model"`
	SerialNumber Field[string] `json:"serial_number"`
	YearMfr      Field[string] `json:"year_mfr"`

	// OpenSky history.
	Segments Field[[]Segment] `json:"segments"`
}

// Partial is the subset of Aircraft fields one source reported in a single
// fetch. Nil pointers mean the response did not cover that field; NotFound
// means the source explicitly has no record for the identifier.
type Partial struct {
	Source   Source
	NotFound bool

	// ICAO fills in the hex identifier when the lookup was keyed by tail
	// number. It never overwrites an already-assigned identifier.
	ICAO *string

	Callsign      *string
	Registration  *string
	TypeCode      *string
	Lat           *float64
	Lon           *float64
	AltitudeFt    *float64
	GroundSpeedKt *float64
	TrackDeg      *float64
	Squawk        *string
	PositionAt    *time.Time

	Owner        *string
	Manufacturer *string
	Model        *string
	SerialNumber *string
	YearMfr      *string

	Segments []Segment
}

// Merge reconciles a partial fetch into a cached record and returns the
// result. cached may be nil (no prior entry). Rules, per field:
//
//   - a value present in the partial overwrites the cached value (the
//     fetching source is authoritative for every field it reports);
//   - a field the partial does not cover keeps its cached state untouched;
//   - NotFound flips every field the source owns to Missing, and only
//     those — a record is never regressed from known to unknown by a
//     source that does not own the field.
func Merge(cached *Aircraft, icao string, p Partial) Aircraft {
	var out Aircraft
	if cached != nil {
		out = *cached
	}
	if out.ICAO == "" {
		if p.ICAO != nil {
			out.ICAO = *p.ICAO
		} else {
			out.ICAO = icao
		}
	}

	if p.NotFound {
		clearOwned(&out, p.Source)
		return out
	}

	src := p.Source
	apply(&out.Callsign, p.Callsign, src)
	apply(&out.Registration, p.Registration, src)
	apply(&out.TypeCode, p.TypeCode, src)
	apply(&out.Lat, p.Lat, src)
	apply(&out.Lon, p.Lon, src)
	apply(&out.AltitudeFt, p.AltitudeFt, src)
	apply(&out.GroundSpeedKt, p.GroundSpeedKt, src)
	apply(&out.TrackDeg, p.TrackDeg, src)
	apply(&out.Squawk, p.Squawk, src)
	apply(&out.PositionAt, p.PositionAt, src)
	apply(&out.Owner, p.Owner, src)
	apply(&out.Manufacturer, p.Manufacturer, src)
	apply(&out.Model, p.Model, src)
	apply(&out.SerialNumber, p.SerialNumber, src)
	apply(&out.YearMfr, p.YearMfr, src)
	if p.Segments != nil {
		out.Segments = Field[[]Segment]{Value: p.Segments, Status: Set, Source: src}
	}
	return out
}

func apply[T any](dst *Field[T], v *T, src Source) {
	if v == nil {
		return
	}
	*dst = Field[T]{Value: *v, Status: Set, Source: src}
}

// clearOwned marks every field owned by src as confirmed missing. Fields
// owned by other sources are left untouched.
func clearOwned(a *Aircraft, src Source) {
	switch src {
	case SourceADSB:
		markMissing(&a.Callsign, src)
		markMissing(&a.Registration, src)
		markMissing(&a.TypeCode, src)
		markMissing(&a.Lat, src)
		markMissing(&a.Lon, src)
		markMissing(&a.AltitudeFt, src)
		markMissing(&a.GroundSpeedKt, src)
		markMissing(&a.TrackDeg, src)
		markMissing(&a.Squawk, src)
		markMissing(&a.PositionAt, src)
	case SourceFAA:
		markMissing(&a.Owner, src)
		markMissing(&a.Manufacturer, src)
		markMissing(&a.Model, src)
		markMissing(&a.SerialNumber, src)
		markMissing(&a.YearMfr, src)
	case SourceOpenSky:
		markMissing(&a.Segments, src)
	}
}

func markMissing[T any](dst *Field[T], src Source) {
	*dst = Field[T]{Status: Missing, Source: src}
}
