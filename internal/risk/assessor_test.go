package risk_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/nyashahama/geoanalyzer/internal/geo"
	"github.com/nyashahama/geoanalyzer/internal/geodata"
	"github.com/nyashahama/geoanalyzer/internal/risk"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSource struct {
	elevation float64
	precip    float64
	water     geodata.WaterFeatures
	calls     atomic.Int32
	radius    float64
}

func (s *stubSource) QueryElevation(context.Context, geo.Coordinates) float64 {
	s.calls.Add(1)
	return s.elevation
}

func (s *stubSource) QueryRecentPrecipitation(context.Context, geo.Coordinates) float64 {
	s.calls.Add(1)
	return s.precip
}

func (s *stubSource) CountWaterFeatures(_ context.Context, _ geo.Coordinates, radius float64) geodata.WaterFeatures {
	s.calls.Add(1)
	s.radius = radius
	return s.water
}

func TestAssessor_CombinesSources(t *testing.T) {
	src := &stubSource{
		elevation: 4,
		precip:    72,
		water:     geodata.WaterFeatures{Count: 3, Details: []string{"Turia (river, 120 m)"}},
	}
	a := risk.NewAssessor(src, discardLogger())

	got, err := a.Assess(context.Background(), geo.Coordinates{Lat: 39.47, Lon: -0.376})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if src.calls.Load() != 3 {
		t.Errorf("expected 3 source calls, got %d", src.calls.Load())
	}
	if src.radius != risk.WaterRadius {
		t.Errorf("water radius = %v, want %v", src.radius, risk.WaterRadius)
	}
	if got.FloodRisk != risk.High || got.Level != risk.LevelHigh {
		t.Errorf("flood=%s level=%s, want high/HIGH", got.FloodRisk, got.Level)
	}
	if got.WaterBodiesCount != 3 || got.ElevationM != 4 || got.PrecipitationMm != 72 {
		t.Errorf("inputs not carried into assessment: %+v", got)
	}
}

func TestAssessor_DegradedSourcesStillClassify(t *testing.T) {
	// Every lookup failed: zero elevation and zero rain.
	a := risk.NewAssessor(&stubSource{}, discardLogger())

	got, err := a.Assess(context.Background(), geo.Coordinates{Lat: 60, Lon: 25})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if got.FloodRisk != risk.Medium {
		t.Errorf("flood = %s, want medium for unknown elevation", got.FloodRisk)
	}
	if got.FireRisk != risk.High {
		t.Errorf("fire = %s, want high for no rain", got.FireRisk)
	}
}

func TestAssessor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := risk.NewAssessor(&stubSource{}, discardLogger()).Assess(ctx, geo.Coordinates{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAssessor_DegradedWaterLookupIsReported(t *testing.T) {
	src := &stubSource{
		elevation: 657,
		precip:    12,
		water:     geodata.WaterFeatures{Details: []string{}, Degraded: true},
	}
	got, err := risk.NewAssessor(src, discardLogger()).Assess(context.Background(), geo.Coordinates{Lat: 40.4168, Lon: -3.7038})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if !got.WaterLookupFailed {
		t.Errorf("degraded water lookup not carried into assessment: %+v", got)
	}
}
