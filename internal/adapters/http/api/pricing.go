package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/okian/tutormarket/internal/domain/model"
	"github.com/okian/tutormarket/internal/domain/pricing"
	"github.com/okian/tutormarket/internal/domain/types"
)

// PricingDependencies defines the pricing and suggestion log operations.
type PricingDependencies interface {
	SuggestPrice(ctx context.Context, profileID string, req pricing.Request) (pricing.Suggestion, error)
	GetMarketComparables(ctx context.Context, profileID string, req pricing.Request) (pricing.Comparables, error)
	LogSuggestion(ctx context.Context, rec model.SuggestionRecord) (string, error)
	LogAcceptance(ctx context.Context, suggestionID string, price float64) (bool, error)
	Suggestion(ctx context.Context, id string) (types.SuggestionLog, error)
}

// PricingHandler handles pricing requests.
type PricingHandler struct {
	deps PricingDependencies
}

// NewPricingHandler creates a new pricing handler.
func NewPricingHandler(deps PricingDependencies) *PricingHandler {
	return &PricingHandler{deps: deps}
}

// gradeLevels accepts either a single grade or a list of grades.
type gradeLevels []string

func (g *gradeLevels) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one = strings.TrimSpace(one); one != "" {
			*g = gradeLevels{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("gradeLevel must be a string or a list of strings: %w", err)
	}
	*g = many
	return nil
}

// priceRequest mirrors the OpenAPI schema shared by suggest and comparables.
type priceRequest struct {
	TimePeriodMonths int         `json:"timePeriodMonths" validate:"gte=0"`
	CourseIDs        []string    `json:"courseIds" validate:"omitempty,max=100,dive,required,max=64"`
	GradeLevel       gradeLevels `json:"gradeLevel" validate:"omitempty,max=14,dive,required,max=32"`
	SessionFormat    string      `json:"sessionFormat" validate:"omitempty,max=32"`
}

func (p priceRequest) toDomain() pricing.Request {
	return pricing.Request{
		TimePeriodMonths: p.TimePeriodMonths,
		CourseIDs:        p.CourseIDs,
		GradeLevels:      p.GradeLevel,
		SessionFormat:    p.SessionFormat,
	}
}

type acceptRequest struct {
	AcceptedPrice float64 `json:"acceptedPrice" validate:"gt=0"`
}

func pathParam(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(chi.URLParam(r, name))
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingPath, name)
	}
	return v, nil
}

// HandleSuggest handles POST /api/v1/pricing/{profileID}/suggest.
func (h *PricingHandler) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	profileID, err := pathParam(r, "profileID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req priceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sug, err := h.deps.SuggestPrice(r.Context(), profileID, req.toDomain())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sug)
}

// HandleComparables handles POST /api/v1/pricing/{profileID}/comparables.
func (h *PricingHandler) HandleComparables(w http.ResponseWriter, r *http.Request) {
	profileID, err := pathParam(r, "profileID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req priceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	cmp, err := h.deps.GetMarketComparables(r.Context(), profileID, req.toDomain())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

// HandleLogSuggestion handles POST /api/v1/pricing/suggestions.
func (h *PricingHandler) HandleLogSuggestion(w http.ResponseWriter, r *http.Request) {
	var rec model.SuggestionRecord
	if err := decodeBody(r, &rec); err != nil {
		writeError(w, err)
		return
	}
	id, err := h.deps.LogSuggestion(r.Context(), rec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.Accepted{Status: "accepted", SuggestionID: id})
}

// HandleGetSuggestion handles GET /api/v1/pricing/suggestions/{suggestionID}.
func (h *PricingHandler) HandleGetSuggestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "suggestionID")
	if err != nil {
		writeError(w, err)
		return
	}
	log, err := h.deps.Suggestion(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

// HandleAccept handles POST /api/v1/pricing/suggestions/{suggestionID}/accept.
func (h *PricingHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "suggestionID")
	if err != nil {
		writeError(w, err)
		return
	}
	var req acceptRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	dup, err := h.deps.LogAcceptance(r.Context(), id, req.AcceptedPrice)
	if err != nil {
		writeError(w, err)
		return
	}
	if dup {
		writeJSON(w, http.StatusOK, types.Accepted{Status: "duplicate", SuggestionID: id, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, types.Accepted{Status: "accepted", SuggestionID: id})
}
