package geodata

import "github.com/nyashahama/geoanalyzer/internal/geo"

// GeocodeResult is the best match for a free-text address.
type GeocodeResult struct {
	Coordinates geo.Coordinates `json:"coordinates"`
	DisplayName string          `json:"display_name"`
}

// ReverseResult is Nominatim's description of a point.
type ReverseResult struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address,omitempty"`
}

// Infrastructure counts amenities around a point and derives coarse urban
// labels from them. Degraded is set when Overpass could not be reached and
// the counts are zero by default rather than by observation.
type Infrastructure struct {
	Hospitals int      `json:"hospitals"`
	Schools   int      `json:"schools"`
	Parks     int      `json:"parks"`
	Commerce  int      `json:"commerce"`
	Transport int      `json:"transport"`
	LandUse   []string `json:"land_use"`
	Zoning    string   `json:"zoning"`
	Density   string   `json:"density"`
	Degraded  bool     `json:"degraded,omitempty"`
}

// POI is a named feature with its distance from the analysed point.
type POI struct {
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	DistanceM int     `json:"distance_m"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

// UrbanLayer groups nearby POIs by category, each list sorted nearest first.
type UrbanLayer struct {
	Hospitals  []POI `json:"hospitals"`
	Schools    []POI `json:"schools"`
	Pharmacies []POI `json:"pharmacies"`
	Shops      []POI `json:"shops"`
	Transport  []POI `json:"transport"`
	Industry   []POI `json:"industry"`
	Pollution  []POI `json:"pollution"`
	Degraded   bool  `json:"degraded,omitempty"`
}

// WaterFeatures summarises rivers and streams near a point.
type WaterFeatures struct {
	Count    int      `json:"count"`
	Details  []string `json:"details"`            // "name (type, N m)", nearest first, at most five
	Degraded bool     `json:"degraded,omitempty"` // lookup failed; Count is unknown, not zero
}

// AQLevel is a coarse air-quality band.
type AQLevel string

const (
	AQExcellent AQLevel = "excellent"
	AQGood      AQLevel = "good"
	AQModerate  AQLevel = "moderate"
	AQPoor      AQLevel = "poor"
	AQCritical  AQLevel = "critical"
	AQUnknown   AQLevel = "unknown"
)

// Measurement is one pollutant reading from a monitoring station.
type Measurement struct {
	Parameter string  `json:"parameter"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
}

// AirQuality is the nearest station's latest readings. AQI is nil when no
// PM2.5 reading was available.
type AirQuality struct {
	AQI          *int          `json:"aqi"`
	Level        AQLevel       `json:"level"`
	Measurements []Measurement `json:"measurements,omitempty"`
	Source       string        `json:"source"`
}
