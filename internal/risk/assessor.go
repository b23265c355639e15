package risk

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/nyashahama/geoanalyzer/internal/geo"
	"github.com/nyashahama/geoanalyzer/internal/geodata"
)

// Source is the subset of geodata.Client the risk pipeline reads. Each query
// degrades to its default on failure, so none of them return an error.
type Source interface {
	QueryElevation(ctx context.Context, at geo.Coordinates) float64
	QueryRecentPrecipitation(ctx context.Context, at geo.Coordinates) float64
	CountWaterFeatures(ctx context.Context, at geo.Coordinates, radius float64) geodata.WaterFeatures
}

// WaterRadius is how far from the point rivers and streams are counted.
const WaterRadius = 800.0

// Assessor fetches the hazard inputs for a point concurrently and classifies
// them.
type Assessor struct {
	src    Source
	logger *slog.Logger
}

func NewAssessor(src Source, logger *slog.Logger) *Assessor {
	return &Assessor{src: src, logger: logger}
}

// Assess fetches elevation, precipitation and water features in parallel.
// Upstream failures degrade to defaults inside Source; the only error is
// cancellation of ctx.
func (a *Assessor) Assess(ctx context.Context, at geo.Coordinates) (Assessment, error) {
	var (
		elevation float64
		precip    float64
		water     geodata.WaterFeatures
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		elevation = a.src.QueryElevation(gctx, at)
		return nil
	})
	g.Go(func() error {
		precip = a.src.QueryRecentPrecipitation(gctx, at)
		return nil
	})
	g.Go(func() error {
		water = a.src.CountWaterFeatures(gctx, at, WaterRadius)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Assessment{}, err
	}

	out := Assess(Inputs{
		Coordinates:     at,
		ElevationM:      elevation,
		PrecipitationMm: precip,
		WaterBodies:     water.Count,
		WaterDetails:    water.Details,
		WaterUnknown:    water.Degraded,
	})
	a.logger.Debug("risk assessed",
		"coords", at.String(),
		"level", out.Level,
		"flood", out.FloodRisk,
		"fire", out.FireRisk,
		"seismic", out.SeismicRisk,
	)
	return out, nil
}
