package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/nyashahama/geoanalyzer/internal/geo"
	"github.com/nyashahama/geoanalyzer/internal/geodata"
)

// ─── GET /api/geocode?q= ──────────────────────────────────────────────────────

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondErr(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	res, err := s.geocoder.Geocode(r.Context(), q)
	if err != nil {
		s.respondDomainErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, res)
}

// ─── GET /api/reverse?lat=&lon= ───────────────────────────────────────────────

type reverseResponse struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address,omitempty"`
	LandUse     []string          `json:"land_use"`
}

func (s *Server) handleReverse(w http.ResponseWriter, r *http.Request) {
	at, ok := coordsParam(w, r)
	if !ok {
		return
	}

	res, err := s.geocoder.ReverseGeocodeDetails(r.Context(), at)
	if err != nil {
		s.respondDomainErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, reverseResponse{
		DisplayName: res.DisplayName,
		Address:     res.Address,
		LandUse:     geodata.LandUse(res.Address),
	})
}

// ─── GET /api/tools ───────────────────────────────────────────────────────────

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{"tools": s.catalog.Describe()})
}

// coordsParam reads and validates lat/lon query parameters, writing 400 on
// failure.
func coordsParam(w http.ResponseWriter, r *http.Request) (geo.Coordinates, bool) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLon != nil {
		respondErr(w, http.StatusBadRequest, "lat and lon must be numbers")
		return geo.Coordinates{}, false
	}
	at := geo.Coordinates{Lat: lat, Lon: lon}
	if err := at.Validate(); err != nil {
		respondErr(w, http.StatusBadRequest, err.Error())
		return geo.Coordinates{}, false
	}
	return at, true
}
