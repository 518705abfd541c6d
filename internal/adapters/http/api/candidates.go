package api

import (
	"context"
	"net/http"
	"strconv"

	service "github.com/okian/shelfrank/internal/app"
	"github.com/okian/shelfrank/internal/domain/model"
	"github.com/okian/shelfrank/internal/domain/scoring"
)

// CandidateDependencies defines the interface for composite scores.
type CandidateDependencies interface {
	CandidateScore(ctx context.Context, req service.ScoreRequest) (scoring.Result, error)
}

// CandidateHandler handles candidate score requests.
type CandidateHandler struct {
	deps CandidateDependencies
}

// NewCandidateHandler creates a new candidate handler.
func NewCandidateHandler(deps CandidateDependencies) *CandidateHandler {
	return &CandidateHandler{deps: deps}
}

// HandleScore handles
// GET /candidates/{id}/score?window=&source=&weights=kind:w,...&cached=1
// requests.
func (h *CandidateHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	weights, err := scoring.ParseWeights(q.Get("weights"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	source, err := model.ParseScoreSource(q.Get("source"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	cached := false
	if raw := q.Get("cached"); raw != "" {
		cached, err = strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
			return
		}
	}
	res, err := h.deps.CandidateScore(r.Context(), service.ScoreRequest{
		CandidateID: r.PathValue("id"),
		Window:      q.Get("window"),
		Source:      source,
		Weights:     weights,
		Cached:      cached,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
