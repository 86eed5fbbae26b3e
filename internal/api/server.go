// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package api is a thin gorilla/mux HTTP shell around the engine: upload a
// session's three input documents, then trigger discovery, evaluation, or
// the critical-flow metric against it. Adapted from the teacher's
// internal/api.Server (internal/api/server.go) and its gorilla/mux-based
// handler grouping (internal/api/ebpf_handlers.go's RegisterRoutes(*mux.Router)
// shape), stripped to the operations this engine actually has — no auth,
// TLS, websockets, or UI asset serving, none of which this domain calls for.
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flowmesh.dev/flowmesh/internal/discovery"
	"flowmesh.dev/flowmesh/internal/engineconfig"
	"flowmesh.dev/flowmesh/internal/errors"
	"flowmesh.dev/flowmesh/internal/evalengine"
	"flowmesh.dev/flowmesh/internal/logging"
	"flowmesh.dev/flowmesh/internal/metrics"
	"flowmesh.dev/flowmesh/internal/rule"
	"flowmesh.dev/flowmesh/internal/schema"
	"flowmesh.dev/flowmesh/internal/topo"
)

// session is one loaded topology plus whatever catalog discovery last
// produced for it, addressed by a server-issued id.
type session struct {
	topology *topo.Topology
	catalog  schema.Catalog
	diag     *rule.Diagnostics
}

// Server holds every loaded session in memory, keyed by a uuid the caller
// gets back from POST /sessions.
type Server struct {
	router   *mux.Router
	logger   *logging.Logger
	defaults engineconfig.SessionDefaults
	metrics  *metrics.Registry

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewServer builds the router and registers every route.
func NewServer(logger *logging.Logger, defaults engineconfig.SessionDefaults) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		defaults: defaults,
		metrics:  metrics.Get(),
		sessions: make(map[string]*session),
	}
	s.registerRoutes()
	return s
}

// Router returns the assembled mux.Router for use with http.Serve / httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{id}/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	s.router.HandleFunc("/sessions/{id}/discover", s.handleDiscover).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{id}/evaluate", s.handleEvaluate).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{id}/metric", s.handleMetric).Methods(http.MethodPost)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registerer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

type createSessionRequest struct {
	Topology  json.RawMessage `json:"topology"`
	Rules     json.RawMessage `json:"rules"`
	IPMapping json.RawMessage `json:"ip_mapping"`
}

type createSessionResponse struct {
	SessionID   string   `json:"session_id"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	top, diag, err := schema.LoadSession(req.Topology, req.Rules, req.IPMapping)
	if err != nil {
		respondWithAPIError(w, err)
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &session{topology: top, diag: diag}
	s.mu.Unlock()

	s.logger.Info("created session", "session_id", id, "switches", len(top.Switches))
	respondWithJSON(w, http.StatusCreated, createSessionResponse{SessionID: id, Diagnostics: diagnosticStrings(diag)})
}

func diagnosticStrings(diag *rule.Diagnostics) []string {
	if diag == nil {
		return nil
	}
	var out []string
	for name := range diag.RuleAttrs {
		out = append(out, "unknown rule attribute: "+name)
	}
	for name := range diag.MatchAttrs {
		out = append(out, "unknown match attribute: "+name)
	}
	for name := range diag.ActionVerbs {
		out = append(out, "unknown action verb: "+name)
	}
	return out
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session, bool) {
	id := mux.Vars(r)["id"]
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		respondWithError(w, http.StatusNotFound, "unknown session id")
		return nil, false
	}
	return sess, true
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, schema.Snapshot(sess.topology))
}

type discoverRequest struct {
	MinimumHops *int `json:"minimum_hops,omitempty"`
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req discoverRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	minHops := s.defaults.MinimumHops
	if req.MinimumHops != nil {
		minHops = *req.MinimumHops
	}

	start := time.Now()
	flows := discovery.DiscoverCatalog(sess.topology, minHops)
	catalog := schema.BuildCatalog(flows)
	s.metrics.ObserveDiscovery(time.Since(start), len(catalog))

	s.mu.Lock()
	sess.catalog = catalog
	s.mu.Unlock()

	respondWithJSON(w, http.StatusOK, catalog)
}

type evaluateRequest struct {
	FlowNames []string `json:"flow_names"`
	DownLinks []string `json:"down_links"`
}

type evaluateResponse struct {
	Failed []string `json:"failed"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if sess.catalog == nil {
		respondWithError(w, http.StatusConflict, "session has no discovered catalog yet; call discover first")
		return
	}

	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	start := time.Now()
	failed := evalengine.RunSingleEvaluation(sess.topology, sess.catalog, req.FlowNames, req.DownLinks)
	s.metrics.ObserveEvaluation(time.Since(start), len(failed))

	respondWithJSON(w, http.StatusOK, evaluateResponse{Failed: failed})
}

type metricRequest struct {
	Variant     string   `json:"variant"` // "link", "switch", or "neighborhood"
	FlowName    string   `json:"flow_name"`
	Links       []string `json:"links,omitempty"`
	Switches    []string `json:"switches,omitempty"`
	Center      string   `json:"center,omitempty"`
	Hops        int      `json:"hops,omitempty"`
	FailureRate float64  `json:"failure_rate"`
	TimeWindow  float64  `json:"time_window"`
	Tolerance   float64  `json:"tolerance"`
}

func (s *Server) handleMetric(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if sess.catalog == nil {
		respondWithError(w, http.StatusConflict, "session has no discovered catalog yet; call discover first")
		return
	}

	var req metricRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	params := evalengine.Parameters{
		FailureRate: orDefault(req.FailureRate, s.defaults.FailureRate),
		TimeWindow:  orDefault(req.TimeWindow, s.defaults.TimeWindow),
		Tolerance:   orDefault(req.Tolerance, s.defaults.Tolerance),
	}

	start := time.Now()
	var (
		result evalengine.MetricResult
		err    error
	)
	switch req.Variant {
	case "link":
		result, err = evalengine.LinkMetric(sess.topology, sess.catalog, req.FlowName, req.Links, params)
	case "switch":
		result, err = evalengine.SwitchMetric(sess.topology, sess.catalog, req.FlowName, req.Switches, params)
	case "neighborhood":
		result, err = evalengine.NeighborhoodMetric(sess.topology, sess.catalog, req.Center, req.Hops, params)
	default:
		respondWithError(w, http.StatusBadRequest, "variant must be one of link, switch, neighborhood")
		return
	}
	if err != nil {
		respondWithAPIError(w, err)
		return
	}
	s.metrics.ObserveMetric(req.Variant, time.Since(start))

	respondWithJSON(w, http.StatusOK, result)
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// respondWithJSON sends a JSON response (internal/api/ebpf_handlers.go's
// respondWithJSON, carried over unchanged).
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithAPIError maps an internal/errors.Error's Kind to an HTTP
// status code, falling back to 500 for anything not recognized.
func respondWithAPIError(w http.ResponseWriter, err error) {
	kind := errors.GetKind(err)
	code := http.StatusInternalServerError
	switch kind {
	case errors.KindMalformedInput, errors.KindUnknownAttribute:
		code = http.StatusBadRequest
	case errors.KindSemanticInconsistency:
		code = http.StatusUnprocessableEntity
	case errors.KindUnroutable:
		code = http.StatusOK
	}
	respondWithError(w, code, err.Error())
}
