// Package geodata wraps the public geodata services a location analysis is
// built from: Nominatim (geocoding), Overpass (OpenStreetMap features),
// Open-Elevation, Open-Meteo and OpenAQ.
//
// Only Geocode and ReverseGeocodeDetails report errors. The remaining queries
// are best effort: a failing upstream is logged at Warn and the query returns
// its documented default, so one flaky service never sinks a whole analysis.
package geodata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// ─── ERRORS ───────────────────────────────────────────────────────────────────

var (
	// ErrNotFound means the upstream answered but had no match for the query.
	ErrNotFound = errors.New("geodata: location not found")

	// ErrServiceUnavailable means the upstream could not be reached, timed out,
	// or answered with a non-2xx status or an unreadable body.
	ErrServiceUnavailable = errors.New("geodata: service unavailable")

	// ErrEmptyAddress is returned by Geocode for a blank query.
	ErrEmptyAddress = errors.New("geodata: address is required")
)

// APIError carries the failing service and, when there was one, the HTTP
// status. It matches ErrServiceUnavailable under errors.Is.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("geodata: %s returned %d: %s", e.Service, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("geodata: %s: %v", e.Service, e.Err)
	default:
		return fmt.Sprintf("geodata: %s: %s", e.Service, e.Message)
	}
}

func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrServiceUnavailable}
	}
	return []error{ErrServiceUnavailable, e.Err}
}

// ─── CONSTANTS ────────────────────────────────────────────────────────────────

// Per-call timeouts, sized by how expensive each upstream is.
const (
	geocodeTimeout    = 10 * time.Second
	overpassTimeout   = 12 * time.Second // per endpoint
	urbanTimeout      = 8 * time.Second  // per endpoint
	waterTimeout      = 6 * time.Second  // per endpoint
	elevationTimeout  = 8 * time.Second
	weatherTimeout    = 8 * time.Second
	airQualityTimeout = 10 * time.Second
)

const (
	maxResponseBytes = 4 << 20
	defaultCacheSize = 256

	// NoAddress is what ReverseGeocode returns when no address could be resolved.
	NoAddress = "no address available"
)

// ─── OPTIONS ──────────────────────────────────────────────────────────────────

// Options configures a Client. Zero values are replaced by DefaultOptions.
type Options struct {
	NominatimURL      string
	OverpassEndpoints []string // tried in order; first success wins
	ElevationURL      string
	WeatherURL        string
	AirQualityURL     string
	AirQualityKey     string // sent as X-API-Key when set
	UserAgent         string
	CacheSize         int
	HTTPClient        *http.Client
	Limiter           *RateLimiter
}

// DefaultOptions points at the public instances of every service.
func DefaultOptions() Options {
	return Options{
		NominatimURL: "https://nominatim.openstreetmap.org",
		OverpassEndpoints: []string{
			"https://overpass-api.de/api/interpreter",
			"https://overpass.kumi.systems/api/interpreter",
		},
		ElevationURL:  "https://api.open-elevation.com/api/v1/lookup",
		WeatherURL:    "https://api.open-meteo.com/v1/forecast",
		AirQualityURL: "https://api.openaq.org/v2/latest",
		UserAgent:     "GeoAnalyzer/1.0 (+https://github.com/nyashahama/geoanalyzer)",
		CacheSize:     defaultCacheSize,
	}
}

// ─── CLIENT ───────────────────────────────────────────────────────────────────

// Client is safe for concurrent use. Its caches live as long as it does.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *RateLimiter
	logger  *slog.Logger

	geocodes *Cache[string, GeocodeResult]
	infra    *Cache[string, Infrastructure]
	urban    *Cache[string, UrbanLayer]
	water    *Cache[string, WaterFeatures]

	// waterFlight collapses concurrent identical water queries; the risk
	// pipeline and the natural_risks tool ask for the same point together.
	waterFlight singleflight.Group
}

// New builds a Client, filling any unset option from DefaultOptions.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	def := DefaultOptions()
	if opts.NominatimURL == "" {
		opts.NominatimURL = def.NominatimURL
	}
	if len(opts.OverpassEndpoints) == 0 {
		opts.OverpassEndpoints = def.OverpassEndpoints
	}
	if opts.ElevationURL == "" {
		opts.ElevationURL = def.ElevationURL
	}
	if opts.WeatherURL == "" {
		opts.WeatherURL = def.WeatherURL
	}
	if opts.AirQualityURL == "" {
		opts.AirQualityURL = def.AirQualityURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = def.CacheSize
	}
	if opts.HTTPClient == nil {
		// Per-call deadlines come from context; this is only a backstop.
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Limiter == nil {
		opts.Limiter = NewRateLimiter()
	}
	if logger == nil {
		logger = slog.Default()
	}

	geocodes, err := NewCache[string, GeocodeResult](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("geodata: geocode cache: %w", err)
	}
	infra, err := NewCache[string, Infrastructure](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("geodata: infrastructure cache: %w", err)
	}
	urban, err := NewCache[string, UrbanLayer](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("geodata: urban cache: %w", err)
	}
	water, err := NewCache[string, WaterFeatures](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("geodata: water cache: %w", err)
	}

	return &Client{
		opts:     opts,
		http:     opts.HTTPClient,
		limiter:  opts.Limiter,
		logger:   logger.With("component", "geodata"),
		geocodes: geocodes,
		infra:    infra,
		urban:    urban,
		water:    water,
	}, nil
}

// getJSON performs a throttled GET against service and decodes the body into
// out. Every failure other than caller cancellation is an *APIError.
func (c *Client) getJSON(ctx context.Context, service string, timeout time.Duration, rawURL string, header http.Header, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx, service); err != nil {
		return transportError(service, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("geodata: build %s request: %w", service, err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(service, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Service: service, StatusCode: resp.StatusCode, Message: snippet(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{Service: service, Message: "decode response", Err: err}
	}
	return nil
}

// transportError leaves caller cancellation untouched so that superseded
// analyses can be told apart from broken upstreams.
func transportError(service string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &APIError{Service: service, Err: err}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}

// degraded logs a best-effort failure. Cancellation is not worth a warning.
func (c *Client) degraded(ctx context.Context, op string, err error, args ...any) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		c.logger.Debug(op+" cancelled", args...)
		return
	}
	c.logger.Warn(op+" failed, using default", append(args, "error", err)...)
}
