package tools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nyashahama/geoanalyzer/internal/geo"
	"github.com/nyashahama/geoanalyzer/internal/geodata"
	"github.com/nyashahama/geoanalyzer/internal/risk"
)

// GeoData is the subset of geodata.Client the analysis tools call.
type GeoData interface {
	Geocode(ctx context.Context, address string) (geodata.GeocodeResult, error)
	QueryInfrastructure(ctx context.Context, at geo.Coordinates, radius float64) geodata.Infrastructure
	QueryUrbanLayer(ctx context.Context, at geo.Coordinates, radius float64) geodata.UrbanLayer
	QueryAirQuality(ctx context.Context, at geo.Coordinates) geodata.AirQuality
}

// RiskAssessor produces the flood / fire / seismic assessment for a point.
type RiskAssessor interface {
	Assess(ctx context.Context, at geo.Coordinates) (risk.Assessment, error)
}

// Tool names.
const (
	GeocodeAddress = "geocode_address"
	UrbanLayers    = "urban_layers"
	NaturalRisks   = "natural_risks"
	NearbyPlaces   = "nearby_places"
	AirQuality     = "air_quality"
)

const (
	defaultRadius = 1000.0
	minRadius     = 100.0
	maxRadius     = 5000.0
)

type pointArgs struct {
	Lat    float64  `json:"lat"`
	Lon    float64  `json:"lon"`
	Radius *float64 `json:"radius,omitempty"`
}

func (a pointArgs) coords() geo.Coordinates { return geo.Coordinates{Lat: a.Lat, Lon: a.Lon} }

func (a pointArgs) radius() float64 {
	if a.Radius == nil {
		return defaultRadius
	}
	return *a.Radius
}

func pointSchema(withRadius bool) Schema {
	s := Schema{
		Type: "object",
		Properties: map[string]Property{
			"lat": {Type: "number", Description: "Latitude in decimal degrees", Minimum: Bound(-90), Maximum: Bound(90)},
			"lon": {Type: "number", Description: "Longitude in decimal degrees", Minimum: Bound(-180), Maximum: Bound(180)},
		},
		Required: []string{"lat", "lon"},
	}
	if withRadius {
		s.Properties["radius"] = Property{
			Type:        "number",
			Description: "Search radius in meters (default 1000)",
			Minimum:     Bound(minRadius),
			Maximum:     Bound(maxRadius),
		}
	}
	return s
}

// pointHandler decodes the common lat/lon/radius arguments.
func pointHandler(fn func(ctx context.Context, a pointArgs) (any, error)) Handler {
	return func(ctx context.Context, args json.RawMessage) (any, error) {
		a, err := Decode[pointArgs](args)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a)
	}
}

// GeoTools returns the analysis tools backed by gd and ra.
func GeoTools(gd GeoData, ra RiskAssessor) []Tool {
	return []Tool{
		{
			Definition: Definition{
				Name:        GeocodeAddress,
				Description: "Find the geographic coordinates (latitude and longitude) of an address or place name using OpenStreetMap Nominatim.",
				Parameters: Schema{
					Type: "object",
					Properties: map[string]Property{
						"address": {Type: "string", Description: `Full address or place name, e.g. "Plaza Mayor, Madrid"`},
					},
					Required: []string{"address"},
				},
			},
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				a, err := Decode[struct {
					Address string `json:"address"`
				}](args)
				if err != nil {
					return nil, err
				}
				return gd.Geocode(ctx, a.Address)
			},
		},
		{
			Definition: Definition{
				Name: UrbanLayers,
				Description: "Urban infrastructure and land use around a point: counts of hospitals, schools, parks, shops " +
					"and public transport, plus zoning, density and land-use classification. Source: OpenStreetMap.",
				Parameters: pointSchema(true),
			},
			Handler: pointHandler(func(ctx context.Context, a pointArgs) (any, error) {
				return gd.QueryInfrastructure(ctx, a.coords(), a.radius()), nil
			}),
		},
		{
			Definition: Definition{
				Name: NaturalRisks,
				Description: "Natural hazard assessment for a point: flood, seismic and wildfire risk derived from elevation " +
					"(Open-Elevation), 30-day precipitation (Open-Meteo) and nearby rivers (OpenStreetMap).",
				Parameters: pointSchema(false),
			},
			Handler: pointHandler(func(ctx context.Context, a pointArgs) (any, error) {
				return ra.Assess(ctx, a.coords())
			}),
		},
		{
			Definition: Definition{
				Name: NearbyPlaces,
				Description: "Named points of interest near a point, nearest first: health services, schools, pharmacies, " +
					"shops, transport stops, industrial areas and pollution sources. Source: OpenStreetMap.",
				Parameters: pointSchema(true),
			},
			Handler: pointHandler(func(ctx context.Context, a pointArgs) (any, error) {
				return gd.QueryUrbanLayer(ctx, a.coords(), a.radius()), nil
			}),
		},
		{
			Definition: Definition{
				Name:        AirQuality,
				Description: "Latest air quality readings from the nearest monitoring station within 10 km, with an AQI band. Source: OpenAQ.",
				Parameters:  pointSchema(false),
			},
			Handler: pointHandler(func(ctx context.Context, a pointArgs) (any, error) {
				return gd.QueryAirQuality(ctx, a.coords()), nil
			}),
		},
	}
}

// NewGeoRegistry builds a registry holding GeoTools.
func NewGeoRegistry(gd GeoData, ra RiskAssessor, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	for _, t := range GeoTools(gd, ra) {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}
