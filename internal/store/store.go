// Package store persists saved locations: a label, a point, the report and
// risk snapshot produced for it, and a free-text note.
//
// Two implementations satisfy LocationStore. MemoryStore is used when no
// DATABASE_URL is configured; PostgresStore wraps db.Querier with the
// transaction handling needed for the read-then-write upsert.
//
// Dependency rule: store imports db, geo and risk only. It never imports api,
// session or ai.
package store

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nyashahama/geoanalyzer/internal/geo"
	"github.com/nyashahama/geoanalyzer/internal/risk"
)

// ProximityDegrees is how close (in both lat and lon) two points must be for
// Save to treat them as the same place.
const ProximityDegrees = 0.0001

// ErrLocationNotFound is returned by Delete and UpdateNote for an unknown id.
var ErrLocationNotFound = errors.New("store: location not found")

// SavedLocation is one bookmarked analysis.
type SavedLocation struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name"`
	Coordinates geo.Coordinates  `json:"coords"`
	Address     string           `json:"address,omitempty"`
	Note        string           `json:"note,omitempty"`
	Report      string           `json:"report"`
	Risk        *risk.Assessment `json:"risk,omitempty"`
	CreatedAt   time.Time        `json:"date"`
}

// LocationStore is the persistence boundary used by the HTTP layer.
type LocationStore interface {
	// Save inserts loc, or merges it into an existing entry within
	// ProximityDegrees. A merged entry keeps its id, creation time and list
	// position; empty Address and Note do not overwrite stored values.
	Save(ctx context.Context, loc SavedLocation) (SavedLocation, error)

	// List returns every saved location, newest first.
	List(ctx context.Context) ([]SavedLocation, error)

	Delete(ctx context.Context, id uuid.UUID) error
	UpdateNote(ctx context.Context, id uuid.UUID, note string) (SavedLocation, error)
}

// near reports whether a and b are the same place for upsert purposes.
func near(a, b geo.Coordinates) bool {
	return math.Abs(a.Lat-b.Lat) < ProximityDegrees && math.Abs(a.Lon-b.Lon) < ProximityDegrees
}

// defaultName labels a location that was saved without a name.
func defaultName(loc SavedLocation) string {
	if name := strings.TrimSpace(loc.Name); name != "" {
		return name
	}
	if addr := strings.TrimSpace(loc.Address); addr != "" {
		return addr
	}
	return loc.Coordinates.String()
}
