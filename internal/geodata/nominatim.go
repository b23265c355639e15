package geodata

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/nyashahama/geoanalyzer/internal/geo"
)

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

type nominatimReverse struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
	Error       string            `json:"error"`
}

// Geocode resolves a free-text address to its best match. Results are cached
// by normalised address.
func (c *Client) Geocode(ctx context.Context, address string) (GeocodeResult, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return GeocodeResult{}, ErrEmptyAddress
	}

	key := strings.ToLower(address)
	if r, ok := c.geocodes.Get(key); ok {
		return r, nil
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("limit", "1")
	q.Set("q", address)

	var places []nominatimPlace
	if err := c.getJSON(ctx, ServiceNominatim, geocodeTimeout, c.opts.NominatimURL+"/search?"+q.Encode(), nil, &places); err != nil {
		return GeocodeResult{}, fmt.Errorf("geodata: geocode %q: %w", address, err)
	}
	if len(places) == 0 {
		return GeocodeResult{}, fmt.Errorf("geodata: geocode %q: %w", address, ErrNotFound)
	}

	lat, latErr := strconv.ParseFloat(places[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(places[0].Lon, 64)
	if err := errors.Join(latErr, lonErr); err != nil {
		return GeocodeResult{}, fmt.Errorf("geodata: geocode %q: %w", address,
			&APIError{Service: ServiceNominatim, Message: "invalid coordinates in response", Err: err})
	}

	r := GeocodeResult{
		Coordinates: geo.Coordinates{Lat: lat, Lon: lon},
		DisplayName: places[0].DisplayName,
	}
	c.geocodes.Set(key, r)
	return r, nil
}

// ReverseGeocodeDetails describes the point, including Nominatim's address
// breakdown.
func (c *Client) ReverseGeocodeDetails(ctx context.Context, at geo.Coordinates) (ReverseResult, error) {
	if err := at.Validate(); err != nil {
		return ReverseResult{}, fmt.Errorf("geodata: reverse geocode: %w", err)
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(at.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(at.Lon, 'f', -1, 64))
	q.Set("zoom", "18")
	q.Set("addressdetails", "1")

	var r nominatimReverse
	if err := c.getJSON(ctx, ServiceNominatim, geocodeTimeout, c.opts.NominatimURL+"/reverse?"+q.Encode(), nil, &r); err != nil {
		return ReverseResult{}, fmt.Errorf("geodata: reverse geocode %s: %w", at, err)
	}
	// Nominatim answers 200 {"error": "Unable to geocode"} for open sea etc.
	if r.Error != "" || r.DisplayName == "" {
		return ReverseResult{}, fmt.Errorf("geodata: reverse geocode %s: %w", at, ErrNotFound)
	}
	return ReverseResult{DisplayName: r.DisplayName, Address: r.Address}, nil
}

// ReverseGeocode returns a display name for the point, or NoAddress.
func (c *Client) ReverseGeocode(ctx context.Context, at geo.Coordinates) string {
	r, err := c.ReverseGeocodeDetails(ctx, at)
	if err != nil {
		c.degraded(ctx, "reverse geocode", err, "coords", at.String())
		return NoAddress
	}
	return r.DisplayName
}

// LandUse maps Nominatim address keys to land-use labels. A point with none
// of the known keys is "mixed".
func LandUse(address map[string]string) []string {
	var out []string
	for _, k := range []string{"residential", "commercial", "industrial", "retail"} {
		if address[k] != "" {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		out = []string{"mixed"}
	}
	return out
}
