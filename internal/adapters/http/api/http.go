// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/shelfrank/internal/adapters/repository"
	service "github.com/okian/shelfrank/internal/app"
	"github.com/okian/shelfrank/internal/domain/model"
	"github.com/okian/shelfrank/internal/domain/scoring"
	"github.com/okian/shelfrank/internal/domain/tree"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	TreeDependencies
	TopicDependencies
	CandidateDependencies
}

// Server wires HTTP routes for the read-only API.
type Server struct {
	healthHandler    *HealthHandler
	treeHandler      *TreeHandler
	topicHandler     *TopicHandler
	candidateHandler *CandidateHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		treeHandler:      NewTreeHandler(deps),
		topicHandler:     NewTopicHandler(deps),
		candidateHandler: NewCandidateHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /worksets/{ws}/trees/{root}", MetricsMiddleware(s.treeHandler.HandleExport, "tree"))
	mux.HandleFunc("GET /worksets/{ws}/topics/{kind}", MetricsMiddleware(s.topicHandler.HandleList, "topics"))
	mux.HandleFunc("GET /entities/{id}", MetricsMiddleware(s.topicHandler.HandleEntity, "entity"))
	mux.HandleFunc("GET /candidates/{id}/score", MetricsMiddleware(s.candidateHandler.HandleScore, "candidate_score"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps domain errors to HTTP status codes.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, tree.ErrRootNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, scoring.ErrNotMaterialized):
		writeError(w, http.StatusConflict, "not_materialized", err)
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, scoring.ErrInvalidWindow),
		errors.Is(err, scoring.ErrNoWeights),
		errors.Is(err, tree.ErrUnknownMode),
		errors.Is(err, model.ErrUnknownKind),
		errors.Is(err, model.ErrUnknownSource),
		errors.Is(err, service.ErrUnknownOrder),
		errors.Is(err, service.ErrInvalidLimit):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
