package api

import (
	"context"
	"net/http"

	"github.com/ashureev/pairline/internal/consent"
	"github.com/ashureev/pairline/internal/domain"
	"github.com/go-chi/chi/v5"
)

// ConsentService is the consent state machine as seen by the HTTP layer.
type ConsentService interface {
	Advance(ctx context.Context, req consent.AdvanceRequest) (domain.ConsentResult, error)
	State(ctx context.Context, userID, partnerID string) (*domain.DirectedConsent, error)
	RecordInteraction(ctx context.Context, userID, partnerID string) (bool, error)
}

// ConsentHandler serves consent endpoints.
type ConsentHandler struct {
	svc ConsentService
}

// NewConsentHandler creates a new consent handler.
func NewConsentHandler(svc ConsentService) *ConsentHandler {
	return &ConsentHandler{svc: svc}
}

// RegisterRoutes registers consent routes.
func (h *ConsentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/consent", h.Advance)
	r.Get("/api/consent", h.State)
	r.Post("/api/interactions", h.RecordInteraction)
}

// Advance applies a consent decision.
func (h *ConsentHandler) Advance(w http.ResponseWriter, r *http.Request) {
	var req consent.AdvanceRequest
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Advance(r.Context(), req)
	if err != nil {
		serviceError(w, "advance consent", err)
		return
	}

	if result.Deleted {
		JSON(w, http.StatusOK, map[string]bool{"deleted": true})
		return
	}
	JSON(w, http.StatusOK, map[string]int{"step": int(result.Step)})
}

type consentState struct {
	UserID           string `json:"userId"`
	PartnerID        string `json:"partnerId"`
	InteractionCount int    `json:"interactionCount"`
	MyAgree          int    `json:"myAgree"`
	PartnerAgree     int    `json:"partnerAgree"`
	Step             int    `json:"step"`
}

// State returns the caller's directed view of a pair.
func (h *ConsentHandler) State(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	row, err := h.svc.State(r.Context(), q.Get("userId"), q.Get("partnerId"))
	if err != nil {
		serviceError(w, "consent state", err)
		return
	}

	JSON(w, http.StatusOK, consentState{
		UserID:           row.FromID,
		PartnerID:        row.ToID,
		InteractionCount: row.InteractionCount,
		MyAgree:          int(row.MyAgree),
		PartnerAgree:     int(row.PartnerAgree),
		Step:             int(row.Step),
	})
}

type interactionRequest struct {
	UserID    string `json:"userId"`
	PartnerID string `json:"partnerId"`
}

// RecordInteraction counts a terminated call reported by the caller.
func (h *ConsentHandler) RecordInteraction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	counted, err := h.svc.RecordInteraction(r.Context(), req.UserID, req.PartnerID)
	if err != nil {
		serviceError(w, "record interaction", err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"recorded": counted})
}
