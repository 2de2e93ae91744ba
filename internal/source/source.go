// Package source implements the remote data source clients: the adsb.lol
// live feed, the FAA aircraft registry, and the OpenSky Network. Each
// client returns the subset of record fields its source is authoritative
// for, or ErrNotFound when the source explicitly has no record.
package source

import (
	"context"
	"errors"

	"airtrack-mcp/internal/record"
)

// ErrNotFound means the source was reached and explicitly reported no
// record for the identifier. Callers must treat this as confirmed missing,
// not as a transient failure.
var ErrNotFound = errors.New("source has no record for identifier")

// Client fetches the fields one source is authoritative for.
type Client interface {
	// Source identifies which record fields this client owns.
	Source() record.Source
	// Fetch returns a partial record for the identifier. ErrNotFound
	// signals confirmed missing; any other error is a transient source
	// failure and leaves cached state untouched.
	Fetch(ctx context.Context, id record.Identifier) (record.Partial, error)
}
