package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	service "github.com/okian/shelfrank/internal/app"
	"github.com/okian/shelfrank/internal/domain/model"
)

const defaultTopicLimit = 10

// TopicDependencies defines the interface for topic listings and lookups.
type TopicDependencies interface {
	TopTopics(ctx context.Context, workSet string, kind model.Kind, order service.Order, limit int) ([]service.TopicRank, error)
	Entity(ctx context.Context, id string) (model.Entity, error)
}

// TopicHandler handles topic listing and entity requests.
type TopicHandler struct {
	deps TopicDependencies
}

// NewTopicHandler creates a new topic handler.
func NewTopicHandler(deps TopicDependencies) *TopicHandler {
	return &TopicHandler{deps: deps}
}

// HandleList handles GET /worksets/{ws}/topics/{kind}?order=&limit= requests.
func (h *TopicHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	kind, err := model.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	limit := defaultTopicLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: limit %q", ErrBadRequest, raw))
			return
		}
	}
	order, err := service.ParseOrder(r.URL.Query().Get("order"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	rows, err := h.deps.TopTopics(r.Context(), r.PathValue("ws"), kind, order, limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

type entityResponse struct {
	ID              string              `json:"id"`
	Kind            model.Kind          `json:"kind"`
	WorkSet         string              `json:"work_set"`
	Name            string              `json:"name"`
	UID             string              `json:"uid,omitempty"`
	ParentID        string              `json:"parent_id,omitempty"`
	StaticScore     model.ScoreMap      `json:"static_score"`
	NormalizedScore model.NormalizedMap `json:"normalized_score"`
	ScorePastYr     int64               `json:"score_past_yr"`
	ScoreYrB4       int64               `json:"score_yr_b4"`
	AbsoluteGrowth  int64               `json:"absolute_growth"`
	RelativeGrowth  *float64            `json:"relative_growth"`
}

// HandleEntity handles GET /entities/{id} requests.
func (h *TopicHandler) HandleEntity(w http.ResponseWriter, r *http.Request) {
	e, err := h.deps.Entity(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entityResponse{
		ID:              e.ID,
		Kind:            e.Kind,
		WorkSet:         e.WorkSet,
		Name:            e.Name,
		UID:             e.UID,
		ParentID:        e.ParentID,
		StaticScore:     e.StaticScore,
		NormalizedScore: e.NormalizedScore,
		ScorePastYr:     e.Growth.ScorePastYr,
		ScoreYrB4:       e.Growth.ScoreYrB4,
		AbsoluteGrowth:  e.Growth.AbsoluteGrowth,
		RelativeGrowth:  e.Growth.RelativeGrowth,
	})
}
