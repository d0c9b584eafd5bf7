package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/pairline/internal/domain"
	"github.com/ashureev/pairline/internal/identity"
	"github.com/go-chi/chi/v5"
)

// Matcher is the matchmaking surface used by the HTTP layer.
type Matcher interface {
	RequestMatch(requester string) (string, error)
	LeaveWaiting(identity string)
}

// MatchHandler serves matchmaking endpoints.
type MatchHandler struct {
	matcher Matcher
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(matcher Matcher) *MatchHandler {
	return &MatchHandler{matcher: matcher}
}

// RegisterRoutes registers matchmaking routes.
func (h *MatchHandler) RegisterRoutes(r chi.Router) {
	r.With(identity.Middleware()).Get("/match", h.Match)
	r.Post("/api/waiting/leave", h.LeaveWaiting)
}

// Match picks a random online partner for the caller.
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusBadRequest, "userId is required")
		return
	}

	matched, err := h.matcher.RequestMatch(userID)
	switch {
	case err == nil:
		JSON(w, http.StatusOK, map[string]string{"matchedUserId": matched})
	case errors.Is(err, domain.ErrNoMatchAvailable):
		Error(w, http.StatusNotFound, "no match available, try again later")
	default:
		serviceError(w, "match", err)
	}
}

type leaveRequest struct {
	UserID string `json:"userId"`
}

// LeaveWaiting withdraws the caller from the waiting list.
func (h *MatchHandler) LeaveWaiting(w http.ResponseWriter, r *http.Request) {
	var req leaveRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		req.UserID = r.Header.Get(identity.HeaderName)
	}

	userID, err := identity.Normalize(req.UserID)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	h.matcher.LeaveWaiting(userID)
	slog.Debug("Leave waiting requested", "user_id", userID)
	JSON(w, http.StatusOK, map[string]string{"status": "left"})
}
