package handlers

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
)

// VerificationHandler handles verification-session HTTP requests
type VerificationHandler struct {
	verifier    interfaces.VerificationService
	maxAttempts int
	validate    *validator.Validate
	logger      arbor.ILogger
}

// NewVerificationHandler creates a new verification handler
func NewVerificationHandler(verifier interfaces.VerificationService, cfg *common.VerificationConfig, logger arbor.ILogger) *VerificationHandler {
	return &VerificationHandler{
		verifier:    verifier,
		maxAttempts: cfg.MaxAttempts,
		validate:    validator.New(),
		logger:      logger,
	}
}

// SubmitCodeRequest is the payload for POST /api/verification/{id}/code
type SubmitCodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// verificationView is the API shape of a verification session
type verificationView struct {
	ID                string                   `json:"id"`
	State             models.VerificationState `json:"state"`
	AttemptsRemaining int                      `json:"attempts_remaining"`
	Deadline          string                   `json:"deadline"`
	EmailAddress      string                   `json:"email_address,omitempty"`
}

func (h *VerificationHandler) toView(session *models.VerificationSession) verificationView {
	view := verificationView{
		ID:                session.ID,
		State:             session.State,
		AttemptsRemaining: session.AttemptsRemaining(h.maxAttempts),
		Deadline:          session.Deadline.Format("2006-01-02T15:04:05Z07:00"),
	}
	if session.Context != nil {
		view.EmailAddress = session.Context.EmailAddress
	}
	return view
}

// ListVerificationsHandler handles GET /api/verification
func (h *VerificationHandler) ListVerificationsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	sessions := h.verifier.List()
	views := make([]verificationView, len(sessions))
	for i, session := range sessions {
		views[i] = h.toView(session)
	}
	WriteJSON(w, http.StatusOK, views)
}

// VerificationRoutesHandler dispatches /api/verification/{id} and
// /api/verification/{id}/code
func (h *VerificationHandler) VerificationRoutesHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/verification/")
	if rest == "" {
		WriteError(w, http.StatusBadRequest, "Missing verification session id")
		return
	}

	if id, ok := strings.CutSuffix(rest, "/code"); ok {
		h.submitCode(w, r, id)
		return
	}
	if strings.Contains(rest, "/") {
		WriteError(w, http.StatusNotFound, "Unknown verification route")
		return
	}

	if !RequireMethod(w, r, "GET") {
		return
	}
	session, ok := h.verifier.Get(rest)
	if !ok {
		WriteError(w, http.StatusNotFound, "Verification session not found")
		return
	}
	WriteJSON(w, http.StatusOK, h.toView(session))
}

// submitCode handles POST /api/verification/{id}/code. The response always
// carries the session state and remaining attempts so the operator knows
// whether another try is worthwhile.
func (h *VerificationHandler) submitCode(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req SubmitCodeRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.verifier.Submit(r.Context(), id, req.Code)
	if err != nil {
		if session == nil {
			WriteError(w, http.StatusNotFound, "Verification session not found")
			return
		}
		// terminal session: report its state without spending an attempt
		WriteJSON(w, http.StatusConflict, map[string]interface{}{
			"status":  "error",
			"error":   err.Error(),
			"session": h.toView(session),
		})
		return
	}

	status := "rejected"
	if session.State == models.VerificationVerified {
		status = "accepted"
	} else if session.State == models.VerificationFailed {
		status = "failed"
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"session": h.toView(session),
	})
}
