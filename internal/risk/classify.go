// Package risk turns elevation, precipitation, water-feature counts and a
// coordinate into discrete flood / fire / seismic hazard levels.
//
// The classifiers in this file are pure and deterministic: no I/O, no clock.
// They are coarse heuristics over fetched data, not physical models. The
// Assessor in assessor.go does the fetching and then calls Assess.
package risk

import (
	"fmt"
	"strings"

	"github.com/nyashahama/geoanalyzer/internal/geo"
)

// ─── CONSTANTS ────────────────────────────────────────────────────────────────

// Flood thresholds.
const (
	floodLowElevationM      = 10.0 // elev < 10 m, together with heavy rain → high
	floodHeavyRainMm        = 50.0 // precip > 50 mm, together with low elevation → high
	floodModerateElevationM = 50.0 // elev < 50 m → at least medium
	floodModerateRainMm     = 30.0 // precip > 30 mm → at least medium
	waterHighCount          = 5    // ≥ 5 water features nearby → high
	waterMediumCount        = 2    // 2..4 water features nearby → medium
)

// Fire thresholds (recent precipitation).
const (
	fireDryMm      = 5.0  // < 5 mm  → high
	fireModerateMm = 20.0 // < 20 mm → medium
)

// Mediterranean / Iberian seismic bounding box. Bounds are exclusive.
const (
	seismicMinLat = 35.0
	seismicMaxLat = 45.0
	seismicMinLon = -10.0
	seismicMaxLon = 20.0
)

// ─── TYPES ────────────────────────────────────────────────────────────────────

// Severity is the per-hazard classification.
type Severity string

const (
	Low    Severity = "low"
	Medium Severity = "medium"
	High   Severity = "high"
)

// rank orders severities low < medium < high. Unknown values rank lowest.
func (s Severity) rank() int {
	switch s {
	case High:
		return 2
	case Medium:
		return 1
	default:
		return 0
	}
}

// Level is the aggregate classification across all hazards.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Inputs is everything Assess needs. Elevation and Precipitation of 0 mean
// "unknown" when the upstream lookup failed; they are classified as sea level
// and no rain, which errs towards higher flood/fire severity.
type Inputs struct {
	Coordinates     geo.Coordinates
	ElevationM      float64
	PrecipitationMm float64 // over the recent window
	WaterBodies     int
	WaterDetails    []string // "name (type, N m)" for the closest features
	WaterUnknown    bool     // the water lookup failed; WaterBodies is not a real zero
}

// Assessment is the classified result. It is built once per analysis and never
// mutated afterwards.
type Assessment struct {
	FloodRisk        Severity `json:"flood_risk"`
	FireRisk         Severity `json:"fire_risk"`
	SeismicRisk      Severity `json:"seismic_risk"`
	Level            Level    `json:"level"`
	WaterBodiesCount int      `json:"water_bodies_count"`
	ElevationM       float64  `json:"elevation_m"`
	PrecipitationMm  float64  `json:"precipitation_mm"`
	Details          []string `json:"details"`

	// WaterLookupFailed means flood risk was classified without water
	// features and may be understated.
	WaterLookupFailed bool `json:"water_lookup_failed,omitempty"`
}

// ─── CLASSIFIERS ──────────────────────────────────────────────────────────────

// ClassifyFlood combines two independent signals. Either high-severity
// condition yields High:
//
//	High:   elev < 10 AND precip > 50, OR water features ≥ 5
//	Medium: elev < 50 OR precip > 30 OR water features in [2,4]
//	Low:    otherwise
func ClassifyFlood(elevationM, precipitationMm float64, waterFeatures int) Severity {
	switch {
	case elevationM < floodLowElevationM && precipitationMm > floodHeavyRainMm:
		return High
	case waterFeatures >= waterHighCount:
		return High
	case elevationM < floodModerateElevationM || precipitationMm > floodModerateRainMm:
		return Medium
	case waterFeatures >= waterMediumCount:
		return Medium
	default:
		return Low
	}
}

// ClassifySeismic returns Medium inside the Mediterranean/Iberian box and Low
// elsewhere. It is a placeholder predicate, not a seismic model.
func ClassifySeismic(lat, lon float64) Severity {
	if lat > seismicMinLat && lat < seismicMaxLat && lon > seismicMinLon && lon < seismicMaxLon {
		return Medium
	}
	return Low
}

// ClassifyFire keys off recent precipitation only.
func ClassifyFire(precipitationMm float64) Severity {
	switch {
	case precipitationMm < fireDryMm:
		return High
	case precipitationMm < fireModerateMm:
		return Medium
	default:
		return Low
	}
}

// AggregateLevel is the maximum severity of the three hazards. Argument order
// does not matter.
func AggregateLevel(flood, fire, seismic Severity) Level {
	worst := flood
	for _, s := range []Severity{fire, seismic} {
		if s.rank() > worst.rank() {
			worst = s
		}
	}
	switch worst {
	case High:
		return LevelHigh
	case Medium:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ─── ASSESS ───────────────────────────────────────────────────────────────────

// Assess classifies in and assembles the ordered detail lines shown in the
// report: the inputs first, then nearby water features, then one warning per
// elevated hazard.
func Assess(in Inputs) Assessment {
	flood := ClassifyFlood(in.ElevationM, in.PrecipitationMm, in.WaterBodies)
	fire := ClassifyFire(in.PrecipitationMm)
	seismic := ClassifySeismic(in.Coordinates.Lat, in.Coordinates.Lon)

	details := make([]string, 0, 4+len(in.WaterDetails))
	details = append(details,
		fmt.Sprintf("Elevation: %.1f m above sea level", in.ElevationM),
		fmt.Sprintf("Recent precipitation: %.1f mm", in.PrecipitationMm),
		fmt.Sprintf("Coordinates: %.4f, %.4f", in.Coordinates.Lat, in.Coordinates.Lon),
	)

	switch {
	case in.WaterUnknown:
		details = append(details, "Water-feature lookup failed: nearby rivers and streams could not be checked, flood risk may be understated")
	case in.WaterBodies == 0:
		details = append(details, "No rivers or streams detected nearby")
	default:
		details = append(details, fmt.Sprintf("Water features nearby: %d (%s)",
			in.WaterBodies, strings.Join(in.WaterDetails, "; ")))
	}

	if flood == High {
		details = append(details, "Warning: low-lying or water-adjacent area with potential flood risk")
	}
	if seismic != Low {
		details = append(details, "Warning: area with recorded seismic activity")
	}
	if fire == High {
		details = append(details, "Warning: dry conditions increase wildfire risk")
	}

	return Assessment{
		FloodRisk:        flood,
		FireRisk:         fire,
		SeismicRisk:      seismic,
		Level:            AggregateLevel(flood, fire, seismic),
		WaterBodiesCount: in.WaterBodies,
		ElevationM:       in.ElevationM,
		PrecipitationMm:  in.PrecipitationMm,
		Details:          details,

		WaterLookupFailed: in.WaterUnknown,
	}
}
