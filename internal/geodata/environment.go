package geodata

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nyashahama/geoanalyzer/internal/geo"
)

// ─── ELEVATION ────────────────────────────────────────────────────────────────

type elevationResponse struct {
	Results []struct {
		Elevation *float64 `json:"elevation"`
	} `json:"results"`
}

// QueryElevation returns meters above sea level. 0 means unknown as well as
// sea level; callers cannot tell the two apart.
func (c *Client) QueryElevation(ctx context.Context, at geo.Coordinates) float64 {
	u := fmt.Sprintf("%s?locations=%s,%s", c.opts.ElevationURL, formatCoord(at.Lat), formatCoord(at.Lon))

	var r elevationResponse
	if err := c.getJSON(ctx, ServiceElevation, elevationTimeout, u, nil, &r); err != nil {
		c.degraded(ctx, "elevation lookup", err, "coords", at.String())
		return 0
	}
	if len(r.Results) == 0 || r.Results[0].Elevation == nil {
		return 0
	}
	return *r.Results[0].Elevation
}

// ─── PRECIPITATION ────────────────────────────────────────────────────────────

type weatherResponse struct {
	Daily struct {
		PrecipitationSum []*float64 `json:"precipitation_sum"`
	} `json:"daily"`
}

// QueryRecentPrecipitation sums the daily precipitation of the last 30 days,
// in millimeters. Days without data count as dry. 0 on failure.
func (c *Client) QueryRecentPrecipitation(ctx context.Context, at geo.Coordinates) float64 {
	q := url.Values{}
	q.Set("latitude", formatCoord(at.Lat))
	q.Set("longitude", formatCoord(at.Lon))
	q.Set("daily", "precipitation_sum")
	q.Set("past_days", "30")
	q.Set("forecast_days", "1")
	q.Set("timezone", "auto")

	var r weatherResponse
	if err := c.getJSON(ctx, ServiceWeather, weatherTimeout, c.opts.WeatherURL+"?"+q.Encode(), nil, &r); err != nil {
		c.degraded(ctx, "precipitation lookup", err, "coords", at.String())
		return 0
	}

	var total float64
	for _, v := range r.Daily.PrecipitationSum {
		if v != nil {
			total += *v
		}
	}
	return math.Round(total*10) / 10
}

// ─── AIR QUALITY ──────────────────────────────────────────────────────────────

type openAQResponse struct {
	Results []struct {
		Location     string        `json:"location"`
		City         string        `json:"city"`
		Measurements []Measurement `json:"measurements"`
	} `json:"results"`
}

// QueryAirQuality reads the latest measurements of the nearest OpenAQ
// stations within 10 km and derives a US EPA AQI from PM2.5. Failures and
// missing stations yield AQUnknown.
func (c *Client) QueryAirQuality(ctx context.Context, at geo.Coordinates) AirQuality {
	q := url.Values{}
	q.Set("coordinates", formatCoord(at.Lat)+","+formatCoord(at.Lon))
	q.Set("radius", "10000")
	q.Set("limit", "10")

	var header http.Header
	if c.opts.AirQualityKey != "" {
		header = http.Header{"X-API-Key": []string{c.opts.AirQualityKey}}
	}

	var r openAQResponse
	if err := c.getJSON(ctx, ServiceAirQuality, airQualityTimeout, c.opts.AirQualityURL+"?"+q.Encode(), header, &r); err != nil {
		c.degraded(ctx, "air quality lookup", err, "coords", at.String())
		return AirQuality{Level: AQUnknown, Source: "air quality data could not be retrieved"}
	}
	if len(r.Results) == 0 {
		return AirQuality{Level: AQUnknown, Source: "no OpenAQ station data for this location"}
	}

	// Prefer the first station reporting PM2.5; otherwise report the nearest.
	pick := 0
	for i, res := range r.Results {
		if _, ok := pm25(res.Measurements); ok {
			pick = i
			break
		}
	}
	station := r.Results[pick]

	name := station.City
	if name == "" {
		name = station.Location
	}
	if name == "" {
		name = "nearby station"
	}
	aq := AirQuality{
		Level:        AQUnknown,
		Measurements: station.Measurements,
		Source:       fmt.Sprintf("measurement from %s - OpenAQ", name),
	}
	if v, ok := pm25(station.Measurements); ok {
		aqi := PM25ToAQI(v)
		aq.AQI = &aqi
		aq.Level = AQILevel(aqi)
	}
	return aq
}

func pm25(ms []Measurement) (float64, bool) {
	for _, m := range ms {
		if m.Parameter == "pm25" && m.Value >= 0 {
			return m.Value, true
		}
	}
	return 0, false
}

// AQILevel bands an AQI value.
func AQILevel(aqi int) AQLevel {
	switch {
	case aqi <= 50:
		return AQExcellent
	case aqi <= 100:
		return AQGood
	case aqi <= 150:
		return AQModerate
	case aqi <= 200:
		return AQPoor
	default:
		return AQCritical
	}
}

// pm25Breakpoints are the US EPA PM2.5 (µg/m³) to AQI segments.
var pm25Breakpoints = []struct {
	cLo, cHi float64
	iLo, iHi float64
}{
	{0.0, 12.0, 0, 50},
	{12.1, 35.4, 51, 100},
	{35.5, 55.4, 101, 150},
	{55.5, 150.4, 151, 200},
	{150.5, 250.4, 201, 300},
	{250.5, 350.4, 301, 400},
	{350.5, 500.4, 401, 500},
}

// PM25ToAQI converts a PM2.5 concentration to an AQI value, clamped to 500.
func PM25ToAQI(c float64) int {
	c = math.Floor(c*10) / 10 // EPA truncates to one decimal
	for _, bp := range pm25Breakpoints {
		if c <= bp.cHi {
			if c < bp.cLo {
				c = bp.cLo
			}
			return int(math.Round((bp.iHi-bp.iLo)/(bp.cHi-bp.cLo)*(c-bp.cLo) + bp.iLo))
		}
	}
	return 500
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
