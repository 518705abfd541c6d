package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	service "github.com/okian/shelfrank/internal/app"
	"github.com/okian/shelfrank/internal/domain/model"
	"github.com/okian/shelfrank/internal/domain/tree"
	"gopkg.in/yaml.v3"
)

// TreeDependencies defines the interface for tree exports.
type TreeDependencies interface {
	ExportTree(ctx context.Context, req service.ExportRequest) (*tree.Document, error)
}

// TreeHandler handles tree export requests.
type TreeHandler struct {
	deps TreeDependencies
}

// NewTreeHandler creates a new tree handler.
func NewTreeHandler(deps TreeDependencies) *TreeHandler {
	return &TreeHandler{deps: deps}
}

// HandleExport handles
// GET /worksets/{ws}/trees/{root}?mode=&window=&candidate_filters=&format=
// requests. format=yaml switches the body to YAML.
func (h *TreeHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := model.ParseCandidateFilter(q.Get("candidate_filters"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	doc, err := h.deps.ExportTree(r.Context(), service.ExportRequest{
		WorkSet: r.PathValue("ws"),
		Root:    r.PathValue("root"),
		Mode:    tree.Mode(q.Get("mode")),
		Window:  q.Get("window"),
		Filter:  filter,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}

	if strings.EqualFold(q.Get("format"), "yaml") {
		body, err := yaml.Marshal(doc)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
