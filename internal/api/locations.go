package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nyashahama/geoanalyzer/internal/geo"
	"github.com/nyashahama/geoanalyzer/internal/risk"
	"github.com/nyashahama/geoanalyzer/internal/session"
	"github.com/nyashahama/geoanalyzer/internal/store"
)

// ─── GET /api/locations ───────────────────────────────────────────────────────

func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := s.locations.List(r.Context())
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("list locations: %w", err))
		return
	}
	respond(w, http.StatusOK, map[string]any{"locations": locs})
}

// ─── POST /api/locations ──────────────────────────────────────────────────────

// saveLocationRequest bookmarks a location. Without lat/lon the current
// analysis result is saved, with Name and Note applied on top.
type saveLocationRequest struct {
	Name    string           `json:"name"`
	Lat     *float64         `json:"lat"`
	Lon     *float64         `json:"lon"`
	Address string           `json:"address"`
	Note    string           `json:"note"`
	Report  string           `json:"report"`
	Risk    *risk.Assessment `json:"risk"`
}

func (s *Server) handleSaveLocation(w http.ResponseWriter, r *http.Request) {
	var req saveLocationRequest
	if !decode(w, r, &req) {
		return
	}

	loc := store.SavedLocation{
		Name:    req.Name,
		Address: req.Address,
		Note:    req.Note,
		Report:  req.Report,
		Risk:    req.Risk,
	}

	switch {
	case req.Lat != nil && req.Lon != nil:
		loc.Coordinates = geo.Coordinates{Lat: *req.Lat, Lon: *req.Lon}
		if err := loc.Coordinates.Validate(); err != nil {
			respondErr(w, http.StatusBadRequest, err.Error())
			return
		}

	case req.Lat == nil && req.Lon == nil:
		st := s.analyzer.State()
		if st.Status != session.StatusSucceeded || st.Result == nil {
			respondErr(w, http.StatusConflict, "no completed analysis to save")
			return
		}
		res := st.Result
		loc.Coordinates = res.Coordinates
		if loc.Address == "" {
			loc.Address = res.Address
		}
		if loc.Report == "" {
			loc.Report = res.Report
		}
		if loc.Risk == nil {
			assessment := res.RiskAssessment
			loc.Risk = &assessment
		}

	default:
		respondErr(w, http.StatusBadRequest, "lat and lon must be given together")
		return
	}

	saved, err := s.locations.Save(r.Context(), loc)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("save location: %w", err))
		return
	}
	respond(w, http.StatusOK, saved)
}

// ─── DELETE /api/locations/{locationID} ───────────────────────────────────────

func (s *Server) handleDeleteLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := locationID(w, r)
	if !ok {
		return
	}

	err := s.locations.Delete(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrLocationNotFound):
		respondErr(w, http.StatusNotFound, "location not found")
	case err != nil:
		s.respondInternalErr(w, r, fmt.Errorf("delete location: %w", err))
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// ─── PATCH /api/locations/{locationID}/note ───────────────────────────────────

type updateNoteRequest struct {
	Note string `json:"note"`
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := locationID(w, r)
	if !ok {
		return
	}
	var req updateNoteRequest
	if !decode(w, r, &req) {
		return
	}

	loc, err := s.locations.UpdateNote(r.Context(), id, req.Note)
	switch {
	case errors.Is(err, store.ErrLocationNotFound):
		respondErr(w, http.StatusNotFound, "location not found")
	case err != nil:
		s.respondInternalErr(w, r, fmt.Errorf("update note: %w", err))
	default:
		respond(w, http.StatusOK, loc)
	}
}
