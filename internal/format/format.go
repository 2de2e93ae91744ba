// Package format renders lookup results and raw feed data as markdown for
// model consumption. Field annotations keep the distinction between a
// value, a confirmed-missing field, and a field no source has answered
// for.
package format

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"airtrack-mcp/internal/lookup"
	"airtrack-mcp/internal/record"
	"airtrack-mcp/internal/source"
)

// Summary renders one merged aircraft record section by section, one
// section per source, each annotated with its freshness.
func Summary(res *lookup.Result) string {
	var b strings.Builder

	name := res.Record.ICAO
	if name == "" {
		name = res.Key
	}
	fmt.Fprintf(&b, "# Aircraft %s\n\n", name)

	if fr, ok := res.Freshness[record.SourceADSB]; ok {
		section(&b, "Live position", record.SourceADSB, fr, res.Fetches)
		line(&b, "Callsign", res.Record.Callsign, id)
		line(&b, "Registration", res.Record.Registration, id)
		line(&b, "Type", res.Record.TypeCode, id)
		line(&b, "Latitude", res.Record.Lat, degrees)
		line(&b, "Longitude", res.Record.Lon, degrees)
		line(&b, "Altitude", res.Record.AltitudeFt, unit("ft"))
		line(&b, "Ground speed", res.Record.GroundSpeedKt, unit("kt"))
		line(&b, "Track", res.Record.TrackDeg, unit("deg"))
		line(&b, "Squawk", res.Record.Squawk, id)
		line(&b, "Position time", res.Record.PositionAt, timestamp)
		b.WriteString("\n")
	}

	if fr, ok := res.Freshness[record.SourceFAA]; ok {
		section(&b, "Registration record", record.SourceFAA, fr, res.Fetches)
		line(&b, "Registered owner", res.Record.Owner, id)
		line(&b, "Manufacturer", res.Record.Manufacturer, id)
		line(&b, "Model", res.Record.Model, id)
		line(&b, "Serial number", res.Record.SerialNumber, id)
		line(&b, "Year manufactured", res.Record.YearMfr, id)
		b.WriteString("\n")
	}

	if fr, ok := res.Freshness[record.SourceOpenSky]; ok {
		section(&b, "Recent flights", record.SourceOpenSky, fr, res.Fetches)
		segments(&b, res.Record.Segments)
		b.WriteString("\n")
	}

	if res.Degraded {
		b.WriteString("> Note: cache persistence is unavailable; results are held in memory for this session only.\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func section(b *strings.Builder, title string, src record.Source, fr lookup.Freshness, fetches map[record.Source]record.Fetch) {
	fmt.Fprintf(b, "## %s — %s (%s", title, src, fr)
	if f, ok := fetches[src]; ok && !f.At.IsZero() {
		fmt.Fprintf(b, ", as of %s", f.At.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	b.WriteString(")\n")
}

// line renders one field with its tri-state annotation.
func line[T any](b *strings.Builder, name string, f record.Field[T], render func(T) string) {
	switch f.Status {
	case record.Set:
		fmt.Fprintf(b, "- %s: %s\n", name, render(f.Value))
	case record.Missing:
		fmt.Fprintf(b, "- %s: *confirmed missing*\n", name)
	default:
		fmt.Fprintf(b, "- %s: *not fetched*\n", name)
	}
}

func segments(b *strings.Builder, f record.Field[[]record.Segment]) {
	switch f.Status {
	case record.Missing:
		b.WriteString("*No flights on record.*\n")
	case record.Unfetched:
		b.WriteString("*Not fetched.*\n")
	default:
		if len(f.Value) == 0 {
			b.WriteString("*No flights in the window.*\n")
			return
		}
		for _, s := range f.Value {
			cs := s.Callsign
			if cs == "" {
				cs = s.ICAO24
			}
			fmt.Fprintf(b, "- %s %s → %s (%s to %s)\n",
				cs, orUnknown(s.Departure), orUnknown(s.Arrival),
				s.FirstSeen.UTC().Format("2006-01-02 15:04"),
				s.LastSeen.UTC().Format("2006-01-02 15:04"))
		}
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

func id(s string) string { return s }

func degrees(v float64) string { return fmt.Sprintf("%.5f", v) }

func timestamp(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05 UTC") }

func unit(u string) func(float64) string {
	return func(v float64) string { return fmt.Sprintf("%g %s", v, u) }
}

// AircraftList renders raw adsb.lol aircraft objects, one markdown block
// per aircraft separated by horizontal rules.
func AircraftList(items []map[string]any) string {
	if len(items) == 0 {
		return "No aircraft found."
	}
	blocks := make([]string, len(items))
	for i, m := range items {
		blocks[i] = renderMap(m, 1)
	}
	return strings.Join(blocks, "\n---\n")
}

// renderMap formats a decoded JSON object with keys as headers, nested
// objects one level deeper, and lists as bullets. Keys are sorted for
// stable output.
func renderMap(m map[string]any, level int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		if level <= 6 {
			parts = append(parts, strings.Repeat("#", level)+" "+k)
		} else {
			parts = append(parts, "**"+k+"**")
		}
		parts = append(parts, renderValue(m[k], level), "")
	}
	return strings.Join(parts, "\n")
}

func renderValue(v any, level int) string {
	switch t := v.(type) {
	case nil:
		return "*None*"
	case map[string]any:
		return renderMap(t, level+1)
	case []any:
		if len(t) == 0 {
			return "*No items*"
		}
		var items []string
		for _, it := range t {
			if m, ok := it.(map[string]any); ok {
				items = append(items, "* "+strings.ReplaceAll(renderMap(m, level+1), "\n", "\n  "))
			} else {
				items = append(items, fmt.Sprintf("* %v", it))
			}
		}
		return strings.Join(items, "\n")
	default:
		return fmt.Sprintf("%v", t)
	}
}

// FlightList renders OpenSky flights as a markdown table.
func FlightList(flights []source.Flight) string {
	if len(flights) == 0 {
		return "No flights found."
	}
	var b strings.Builder
	b.WriteString("| Callsign | ICAO24 | Departure | Arrival | First seen | Last seen |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, f := range flights {
		cs := f.Icao24
		if f.Callsign != nil && strings.TrimSpace(*f.Callsign) != "" {
			cs = strings.TrimSpace(*f.Callsign)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			cs, f.Icao24,
			orUnknown(deref(f.EstDeparture)), orUnknown(deref(f.EstArrival)),
			time.Unix(f.FirstSeen, 0).UTC().Format("2006-01-02 15:04"),
			time.Unix(f.LastSeen, 0).UTC().Format("2006-01-02 15:04"))
	}
	return b.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StateList renders an OpenSky state vector snapshot as a markdown table.
func StateList(sv source.StateVectors) string {
	if len(sv.States) == 0 {
		return "No state vectors found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "State vectors as of %s\n\n",
		time.Unix(sv.Time, 0).UTC().Format("2006-01-02 15:04:05 UTC"))
	b.WriteString("| ICAO24 | Callsign | Country | Lat | Lon | Altitude (m) | Velocity (m/s) | On ground | Squawk |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|---|\n")
	for _, s := range sv.States {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %v | %s |\n",
			s.Icao24,
			orUnknown(strings.TrimSpace(deref(s.Callsign))),
			s.OriginCountry,
			degreesOrUnknown(s.Lat), degreesOrUnknown(s.Lon),
			floatOrUnknown(s.BaroAltitude), floatOrUnknown(s.Velocity),
			s.OnGround,
			orUnknown(deref(s.Squawk)))
	}
	return b.String()
}

func degreesOrUnknown(v *float64) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("%.5f", *v)
}

func floatOrUnknown(v *float64) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("%g", *v)
}

// TrackSummary renders an OpenSky track with a bounded number of
// waypoints.
func TrackSummary(t source.Track, maxWaypoints int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Track %s\n\n", strings.TrimSpace(t.Callsign))
	fmt.Fprintf(&b, "- ICAO24: %s\n", t.Icao24)
	fmt.Fprintf(&b, "- Start: %s\n", time.Unix(int64(t.StartTime), 0).UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "- End: %s\n", time.Unix(int64(t.EndTime), 0).UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "- Waypoints: %d\n", len(t.Path))

	n := len(t.Path)
	if maxWaypoints > 0 && n > maxWaypoints {
		n = maxWaypoints
	}
	if n > 0 {
		b.WriteString("\n| Time | Lat | Lon | Altitude (m) | On ground |\n|---|---|---|---|---|\n")
	}
	for _, w := range t.Path[:n] {
		alt := "?"
		if w.BaroAltitude != nil {
			alt = fmt.Sprintf("%g", *w.BaroAltitude)
		}
		fmt.Fprintf(&b, "| %s | %.5f | %.5f | %s | %v |\n",
			time.Unix(w.Time, 0).UTC().Format("15:04:05"), w.Lat, w.Lon, alt, w.OnGround)
	}
	if n < len(t.Path) {
		fmt.Fprintf(&b, "\n*…%d more waypoints omitted.*\n", len(t.Path)-n)
	}
	return b.String()
}
