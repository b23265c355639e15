package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nyashahama/geoanalyzer/internal/geo"
	"github.com/nyashahama/geoanalyzer/internal/geodata"
)

// Query is what the user asked for: an address typed into the search box, a
// clicked map point, or both.
type Query struct {
	Address     string           `json:"address,omitempty"`
	Coordinates *geo.Coordinates `json:"coordinates,omitempty"`
}

// ErrNoGeocoder is returned by Resolve when a lookup is needed but the
// Session was built without a Geocoder.
var ErrNoGeocoder = errors.New("session: no geocoder configured")

// Resolve turns q into a point and a label.
//
//   - Address only: geocode it and use the display name.
//   - Point only: reverse geocode it. A failed lookup still yields the
//     point, with no label.
//   - Both: used as given.
func (s *Session) Resolve(ctx context.Context, q Query) (geo.Coordinates, string, error) {
	address := strings.TrimSpace(q.Address)

	switch {
	case q.Coordinates != nil && address != "":
		return *q.Coordinates, address, nil

	case q.Coordinates != nil:
		if err := q.Coordinates.Validate(); err != nil {
			return geo.Coordinates{}, "", fmt.Errorf("%w: %w", ErrInvalidLocation, err)
		}
		if s.geocoder == nil {
			return *q.Coordinates, "", nil
		}
		label := s.geocoder.ReverseGeocode(ctx, *q.Coordinates)
		if label == geodata.NoAddress {
			label = ""
		}
		return *q.Coordinates, label, nil

	case address != "":
		if s.geocoder == nil {
			return geo.Coordinates{}, "", ErrNoGeocoder
		}
		res, err := s.geocoder.Geocode(ctx, address)
		if err != nil {
			return geo.Coordinates{}, "", err
		}
		return res.Coordinates, res.DisplayName, nil

	default:
		return geo.Coordinates{}, "", fmt.Errorf("%w: %w", ErrInvalidLocation, geodata.ErrEmptyAddress)
	}
}

// AnalyzeQuery resolves q and then runs Analyze.
func (s *Session) AnalyzeQuery(ctx context.Context, q Query) (Result, error) {
	if err := s.Ready(); err != nil {
		return Result{}, err
	}
	at, label, err := s.Resolve(ctx, q)
	if err != nil {
		return Result{}, err
	}
	return s.Analyze(ctx, at, label)
}
