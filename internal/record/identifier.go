package record

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidIdentifier is returned for input that is neither an ICAO hex
// code nor a plausible registration. It is the only error surfaced to
// callers as a hard failure.
var ErrInvalidIdentifier = errors.New("invalid aircraft identifier")

var (
	icaoHexRe = regexp.MustCompile(`^[0-9a-f]{6}$`)
	// Registrations: a 1-2 letter country prefix, optional dash, then up
	// to five letters/digits (N464DF, G-KELS, D-ABYT).
	tailRe = regexp.MustCompile(`^[A-Z]{1,2}-?[A-Z0-9]{1,5}$`)
)

// Identifier is a validated aircraft key. Exactly one of ICAO or Tail is
// set from user input; the orchestrator may fill in the other from cached
// data so every source can be queried.
type Identifier struct {
	ICAO string // lowercase hex, e.g. "a1b2c3"
	Tail string // uppercase registration, e.g. "N464DF"
}

// ParseIdentifier validates and normalizes user input. Six hex digits are
// taken as an ICAO hex code; anything matching a registration pattern is
// taken as a tail number.
func ParseIdentifier(s string) (Identifier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Identifier{}, fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if hex := strings.ToLower(s); icaoHexRe.MatchString(hex) {
		return Identifier{ICAO: hex}, nil
	}
	if tail := strings.ToUpper(s); tailRe.MatchString(tail) {
		return Identifier{Tail: tail}, nil
	}
	return Identifier{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
}

// Key is the canonical cache key for the identifier.
func (id Identifier) Key() string {
	if id.ICAO != "" {
		return id.ICAO
	}
	return id.Tail
}
