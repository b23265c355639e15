package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/tmaxmax/go-sse"

	"github.com/nyashahama/geoanalyzer/internal/geo"
	"github.com/nyashahama/geoanalyzer/internal/session"
)

// ─── POST /api/analyze ────────────────────────────────────────────────────────

// analyzeRequest is either a map click (lat/lon), an address search, or both.
type analyzeRequest struct {
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	Address string   `json:"address"`
}

type analyzeAccepted struct {
	Generation  uint64          `json:"generation"`
	Coordinates geo.Coordinates `json:"coordinates"`
	Address     string          `json:"address,omitempty"`
}

// handleAnalyze starts an analysis. By default it resolves the location,
// starts the pipeline in the background and returns 202; progress is then
// read from GET /api/analysis or the event stream. With ?wait=true it blocks
// and returns the result.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decode(w, r, &req) {
		return
	}

	q := session.Query{Address: req.Address}
	switch {
	case req.Lat != nil && req.Lon != nil:
		q.Coordinates = &geo.Coordinates{Lat: *req.Lat, Lon: *req.Lon}
	case req.Lat != nil || req.Lon != nil:
		respondErr(w, http.StatusBadRequest, "lat and lon must be given together")
		return
	}

	// Configuration errors surface before any geocoding.
	if err := s.analyzer.Ready(); err != nil {
		s.respondDomainErr(w, r, err)
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		res, err := s.analyzer.AnalyzeQuery(r.Context(), q)
		if err != nil {
			s.respondDomainErr(w, r, err)
			return
		}
		respond(w, http.StatusOK, res)
		return
	}

	at, label, err := s.analyzer.Resolve(r.Context(), q)
	if err != nil {
		s.respondDomainErr(w, r, err)
		return
	}
	gen, err := s.analyzer.Start(at, label)
	if err != nil {
		s.respondDomainErr(w, r, err)
		return
	}

	s.logger.Info("analysis accepted", "generation", gen, "coords", at.String(), logField(r))
	respond(w, http.StatusAccepted, analyzeAccepted{Generation: gen, Coordinates: at, Address: label})
}

// ─── GET /api/analysis ────────────────────────────────────────────────────────

func (s *Server) handleAnalysisState(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, s.analyzer.State())
}

// ─── GET /api/analysis/events ─────────────────────────────────────────────────

var stateEvent = sse.Type("state")

// handleAnalysisEvents streams session state changes as server-sent events.
// The first event is the current snapshot. Comment lines are sent as a
// heartbeat so idle proxies keep the connection open.
func (s *Server) handleAnalysisEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Accel-Buffering", "no")
	sess, err := sse.Upgrade(w, r)
	if err != nil {
		s.logger.Warn("event stream: upgrade failed", "error", err, logField(r))
		return
	}
	if err := sess.Flush(); err != nil {
		s.logger.Warn("event stream: flush unsupported", "error", err, logField(r))
		return
	}

	states, cancel := s.analyzer.Subscribe()
	defer cancel()

	heartbeat := time.NewTicker(s.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-heartbeat.C:
			ping := &sse.Message{}
			ping.AppendComment("ping")
			if err := sess.Send(ping); err != nil {
				return
			}

		case st, ok := <-states:
			if !ok {
				return
			}
			body, err := json.Marshal(st)
			if err != nil {
				s.logger.Error("event stream: marshal state", "error", err, logField(r))
				return
			}
			msg := &sse.Message{
				ID:   sse.ID(strconv.FormatUint(st.Generation, 10)),
				Type: stateEvent,
			}
			msg.AppendData(string(body))
			if err := sess.Send(msg); err != nil {
				return
			}
		}
		if err := sess.Flush(); err != nil {
			return
		}
	}
}
