package lookup

import (
	"time"

	"airtrack-mcp/internal/cache"
	"airtrack-mcp/internal/record"
)

// Policy decides whether a source's cached data is stale and a remote
// fetch is warranted. Each source carries its own max age. A confirmed
// missing result is held for the cooldown, capped at the source's own TTL:
// a slow registry is retried well before its week-long TTL, while a live
// feed miss (aircraft not airborne right now) is retried at live cadence
// instead of being pinned missing for hours.
type Policy struct {
	TTL             map[record.Source]time.Duration
	MissingCooldown time.Duration
}

// IsStale reports whether the entry's data from src is too old to serve.
// An absent fetch record is always stale.
func (p Policy) IsStale(e cache.Entry, src record.Source, now time.Time) bool {
	f, ok := e.Fetches[src]
	if !ok {
		return true
	}
	maxAge := p.TTL[src]
	if f.Outcome == record.Missing && p.MissingCooldown < maxAge {
		maxAge = p.MissingCooldown
	}
	return now.Sub(f.At) > maxAge
}

// Freshness annotates how trustworthy a source's contribution to a lookup
// result is.
type Freshness string

const (
	// Fresh data was fetched now or is within its staleness threshold.
	Fresh Freshness = "fresh"
	// Stale data comes from the cache after a failed refetch.
	Stale Freshness = "stale"
	// Missing means the source confirmed it has no record.
	Missing Freshness = "missing"
	// Unfetched means the source has never answered for this aircraft.
	Unfetched Freshness = "unfetched"
)
