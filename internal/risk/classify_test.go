package risk_test

import (
	"strings"
	"testing"

	"github.com/nyashahama/geoanalyzer/internal/geo"
	"github.com/nyashahama/geoanalyzer/internal/risk"
)

// ─── ClassifyFlood ────────────────────────────────────────────────────────────

func TestClassifyFlood(t *testing.T) {
	tests := []struct {
		name   string
		elev   float64
		precip float64
		water  int
		want   risk.Severity
	}{
		{"low + wet → high", 5, 60, 0, risk.High},
		{"elevation exactly 10 is not low", 10, 60, 0, risk.Medium},
		{"precip exactly 50 is not heavy", 5, 50, 0, risk.Medium},
		{"just under 10 and just over 50", 9.99, 50.01, 0, risk.High},
		{"five water features → high regardless", 500, 0.0 + 40, 5, risk.High},
		{"many water features on high dry ground", 800, 25, 9, risk.High},
		{"elevation under 50 → medium", 49.9, 10, 0, risk.Medium},
		{"elevation exactly 50 with dry → low", 50, 30, 0, risk.Low},
		{"precip just over 30 → medium", 200, 30.1, 0, risk.Medium},
		{"two water features → medium", 200, 10, 2, risk.Medium},
		{"four water features → medium", 200, 10, 4, risk.Medium},
		{"one water feature → low", 200, 10, 1, risk.Low},
		{"high dry ground → low", 650, 0, 0, risk.Low},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := risk.ClassifyFlood(tt.elev, tt.precip, tt.water); got != tt.want {
				t.Errorf("ClassifyFlood(%v, %v, %d) = %s, want %s", tt.elev, tt.precip, tt.water, got, tt.want)
			}
		})
	}
}

func TestClassifyFlood_Properties(t *testing.T) {
	// Every elevation < 10 with precipitation > 50 is high.
	for elev := -20.0; elev < 10; elev += 0.5 {
		for precip := 50.5; precip < 400; precip += 17.3 {
			if got := risk.ClassifyFlood(elev, precip, 0); got != risk.High {
				t.Fatalf("ClassifyFlood(%v, %v, 0) = %s, want high", elev, precip, got)
			}
		}
	}
	// Every elevation ≥ 50 with precipitation ≤ 30 (and no water) is low.
	for elev := 50.0; elev < 3000; elev += 97.1 {
		for precip := 0.0; precip <= 30; precip += 2.5 {
			if got := risk.ClassifyFlood(elev, precip, 0); got != risk.Low {
				t.Fatalf("ClassifyFlood(%v, %v, 0) = %s, want low", elev, precip, got)
			}
		}
	}
}

// ─── ClassifySeismic ──────────────────────────────────────────────────────────

func TestClassifySeismic(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		want     risk.Severity
	}{
		{"madrid", 40.4168, -3.7038, risk.Medium},
		{"granada", 37.1773, -3.5986, risk.Medium},
		{"rome", 41.9028, 12.4964, risk.Medium},
		{"london", 51.5074, -0.1278, risk.Low},
		{"lisbon west of box", 38.7223, -10.5, risk.Low},
		{"lat exactly 35 is outside", 35, 0, risk.Low},
		{"lon exactly 20 is outside", 40, 20, risk.Low},
		{"tokyo", 35.6762, 139.6503, risk.Low},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := risk.ClassifySeismic(tt.lat, tt.lon); got != tt.want {
				t.Errorf("ClassifySeismic(%v, %v) = %s, want %s", tt.lat, tt.lon, got, tt.want)
			}
		})
	}
}

// ─── ClassifyFire ─────────────────────────────────────────────────────────────

func TestClassifyFire(t *testing.T) {
	tests := []struct {
		precip float64
		want   risk.Severity
	}{
		{0, risk.High},
		{4.99, risk.High},
		{5, risk.Medium},
		{19.99, risk.Medium},
		{20, risk.Low},
		{120, risk.Low},
	}
	for _, tt := range tests {
		if got := risk.ClassifyFire(tt.precip); got != tt.want {
			t.Errorf("ClassifyFire(%v) = %s, want %s", tt.precip, got, tt.want)
		}
	}
}

// ─── AggregateLevel ───────────────────────────────────────────────────────────

func TestAggregateLevel(t *testing.T) {
	if got := risk.AggregateLevel(risk.Low, risk.Low, risk.Low); got != risk.LevelLow {
		t.Errorf("all low = %s, want LOW", got)
	}

	// A single high wins regardless of position.
	perms := [][3]risk.Severity{
		{risk.High, risk.Low, risk.Low},
		{risk.Low, risk.High, risk.Low},
		{risk.Low, risk.Low, risk.High},
		{risk.Medium, risk.High, risk.Medium},
	}
	for _, p := range perms {
		if got := risk.AggregateLevel(p[0], p[1], p[2]); got != risk.LevelHigh {
			t.Errorf("AggregateLevel(%v) = %s, want HIGH", p, got)
		}
	}

	if got := risk.AggregateLevel(risk.Low, risk.Medium, risk.Low); got != risk.LevelMedium {
		t.Errorf("one medium = %s, want MEDIUM", got)
	}
}

// ─── Assess ───────────────────────────────────────────────────────────────────

func TestAssess_Madrid(t *testing.T) {
	a := risk.Assess(risk.Inputs{
		Coordinates:     geo.Coordinates{Lat: 40.4168, Lon: -3.7038},
		ElevationM:      657,
		PrecipitationMm: 12,
		WaterBodies:     1,
		WaterDetails:    []string{"Manzanares (river, 640 m)"},
	})

	if a.FloodRisk != risk.Low {
		t.Errorf("flood = %s, want low", a.FloodRisk)
	}
	if a.FireRisk != risk.Medium {
		t.Errorf("fire = %s, want medium", a.FireRisk)
	}
	if a.SeismicRisk != risk.Medium {
		t.Errorf("seismic = %s, want medium", a.SeismicRisk)
	}
	if a.Level != risk.LevelMedium {
		t.Errorf("level = %s, want MEDIUM", a.Level)
	}
	if a.WaterBodiesCount != 1 {
		t.Errorf("water count = %d, want 1", a.WaterBodiesCount)
	}
	if !strings.HasPrefix(a.Details[0], "Elevation: 657.0 m") {
		t.Errorf("first detail should describe elevation, got %q", a.Details[0])
	}
	if !strings.Contains(strings.Join(a.Details, "\n"), "Manzanares") {
		t.Errorf("details should mention the water feature: %v", a.Details)
	}
}

func TestAssess_LevelIsMaxOfHazards(t *testing.T) {
	a := risk.Assess(risk.Inputs{
		Coordinates:     geo.Coordinates{Lat: 52.37, Lon: 4.89}, // outside seismic box
		ElevationM:      -2,
		PrecipitationMm: 80,
	})
	if a.FloodRisk != risk.High || a.Level != risk.LevelHigh {
		t.Errorf("got flood=%s level=%s, want high/HIGH", a.FloodRisk, a.Level)
	}
	if a.FireRisk != risk.Low {
		t.Errorf("fire = %s, want low after heavy rain", a.FireRisk)
	}
	found := false
	for _, d := range a.Details {
		if strings.Contains(d, "flood risk") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a flood warning in details: %v", a.Details)
	}
}

func TestAssess_WaterLookupFailedIsNotNoneDetected(t *testing.T) {
	a := risk.Assess(risk.Inputs{
		Coordinates:     geo.Coordinates{Lat: 40.4168, Lon: -3.7038},
		ElevationM:      657,
		PrecipitationMm: 12,
		WaterUnknown:    true,
	})

	joined := strings.Join(a.Details, "\n")
	if strings.Contains(joined, "No rivers or streams detected") {
		t.Errorf("a failed lookup must not claim no water: %v", a.Details)
	}
	if !strings.Contains(joined, "Water-feature lookup failed") {
		t.Errorf("details should report the failed lookup: %v", a.Details)
	}
	if !a.WaterLookupFailed {
		t.Error("WaterLookupFailed should be set")
	}
}

func TestAssess_NoWaterDetected(t *testing.T) {
	a := risk.Assess(risk.Inputs{
		Coordinates: geo.Coordinates{Lat: 40.4168, Lon: -3.7038},
		ElevationM:  657,
	})
	if !strings.Contains(strings.Join(a.Details, "\n"), "No rivers or streams detected") {
		t.Errorf("details = %v", a.Details)
	}
	if a.WaterLookupFailed {
		t.Error("WaterLookupFailed should be unset after a successful empty lookup")
	}
}
