// Package api implements the HTTP layer for geoanalyzer. Handlers are methods
// on *Server. Each handler file is responsible for one resource group and
// only uses the dependencies it needs.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nyashahama/geoanalyzer/internal/geo"
	"github.com/nyashahama/geoanalyzer/internal/geodata"
	"github.com/nyashahama/geoanalyzer/internal/session"
	"github.com/nyashahama/geoanalyzer/internal/store"
	"github.com/nyashahama/geoanalyzer/internal/tools"
)

// Analyzer is the slice of *session.Session the handlers drive.
type Analyzer interface {
	Ready() error
	Resolve(ctx context.Context, q session.Query) (geo.Coordinates, string, error)
	AnalyzeQuery(ctx context.Context, q session.Query) (session.Result, error)
	Start(at geo.Coordinates, address string) (uint64, error)
	State() session.State
	Subscribe() (<-chan session.State, func())
}

// Geocoder is the slice of *geodata.Client used by the lookup routes.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geodata.GeocodeResult, error)
	ReverseGeocodeDetails(ctx context.Context, at geo.Coordinates) (geodata.ReverseResult, error)
}

// ToolCatalog lists the tools offered to the model.
type ToolCatalog interface {
	Describe() []tools.Definition
}

// Config holds values read from environment variables at startup.
type Config struct {
	// Env is "production", "staging", or "development".
	Env string

	// RequestTimeout bounds every route except the blocking analysis and
	// the event stream. Default: 30s.
	RequestTimeout time.Duration

	// Heartbeat is the interval between SSE keep-alive comments.
	// Default: 15s.
	Heartbeat time.Duration
}

// Server holds all shared dependencies. Each handler file attaches methods to
// this type and uses only the fields it needs.
type Server struct {
	analyzer  Analyzer
	geocoder  Geocoder
	catalog   ToolCatalog
	locations store.LocationStore

	cfg    Config
	logger *slog.Logger
}

// NewServer constructs the Server and wires the chi router. The returned
// http.Handler is ready to pass to http.Server.
func NewServer(
	analyzer Analyzer,
	geocoder Geocoder,
	catalog ToolCatalog,
	locations store.LocationStore,
	cfg Config,
	logger *slog.Logger,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 15 * time.Second
	}
	s := &Server{
		analyzer:  analyzer,
		geocoder:  geocoder,
		catalog:   catalog,
		locations: locations,
		cfg:       cfg,
		logger:    logger,
	}

	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	// ── Health ────────────────────────────────────────────────────────────────
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		// Long-lived: a blocking analysis runs under the session's own
		// timeout, and the event stream stays open until the client leaves.
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/analysis/events", s.handleAnalysisEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))

			r.Get("/analysis", s.handleAnalysisState)

			r.Get("/geocode", s.handleGeocode)
			r.Get("/reverse", s.handleReverse)
			r.Get("/tools", s.handleListTools)

			r.Route("/locations", func(r chi.Router) {
				r.Get("/", s.handleListLocations)
				r.Post("/", s.handleSaveLocation)
				r.Delete("/{locationID}", s.handleDeleteLocation)
				r.Patch("/{locationID}/note", s.handleUpdateNote)
			})
		})
	})

	return r
}
