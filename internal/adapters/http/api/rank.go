package api

import (
	"context"
	"net/http"

	"github.com/okian/tutormarket/internal/domain/scoring"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	Rank(ctx context.Context, profileID string, interests, hobbies []string) (scoring.Result, error)
	RankCandidates(ctx context.Context, profileIDs []string, interests, hobbies []string) ([]scoring.Result, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

type rankRequest struct {
	Interests []string `json:"interests" validate:"omitempty,max=50,dive,required,max=64"`
	Hobbies   []string `json:"hobbies" validate:"omitempty,max=50,dive,required,max=64"`
}

type candidatesRequest struct {
	ProfileIDs []string `json:"profileIds" validate:"required,min=1,max=200,dive,required,max=64"`
	Interests  []string `json:"interests" validate:"omitempty,max=50,dive,required,max=64"`
	Hobbies    []string `json:"hobbies" validate:"omitempty,max=50,dive,required,max=64"`
}

type candidatesResponse struct {
	Results []scoring.Result `json:"results"`
}

// HandleRank handles POST /api/v1/ranking/{profileID}.
func (h *RankHandler) HandleRank(w http.ResponseWriter, r *http.Request) {
	profileID, err := pathParam(r, "profileID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req rankRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.deps.Rank(r.Context(), profileID, req.Interests, req.Hobbies)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleRankCandidates handles POST /api/v1/ranking.
func (h *RankHandler) HandleRankCandidates(w http.ResponseWriter, r *http.Request) {
	var req candidatesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.deps.RankCandidates(r.Context(), req.ProfileIDs, req.Interests, req.Hobbies)
	if err != nil {
		writeError(w, err)
		return
	}
	if res == nil {
		res = []scoring.Result{}
	}
	writeJSON(w, http.StatusOK, candidatesResponse{Results: res})
}
