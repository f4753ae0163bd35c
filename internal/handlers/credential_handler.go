package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
)

// CredentialHandler handles provisioning-credential HTTP requests
type CredentialHandler struct {
	credentials interfaces.CredentialStorage
	rotator     interfaces.CredentialRotator
	validate    *validator.Validate
	logger      arbor.ILogger
}

// NewCredentialHandler creates a new credential handler
func NewCredentialHandler(credentials interfaces.CredentialStorage, rotator interfaces.CredentialRotator, logger arbor.ILogger) *CredentialHandler {
	return &CredentialHandler{
		credentials: credentials,
		rotator:     rotator,
		validate:    validator.New(),
		logger:      logger,
	}
}

// CreateCredentialRequest is the payload for POST /api/credentials
type CreateCredentialRequest struct {
	EmailAddress string `json:"email_address" validate:"required,email"`
	APIToken     string `json:"api_token" validate:"required,min=16"`
}

// credentialView is the API shape of a credential; the token is masked
type credentialView struct {
	ID           string    `json:"id"`
	EmailAddress string    `json:"email_address"`
	APIToken     string    `json:"api_token"`
	Valid        bool      `json:"valid"`
	RegisteredAt time.Time `json:"registered_at"`
}

func toCredentialView(cred *models.Credential) credentialView {
	return credentialView{
		ID:           cred.ID,
		EmailAddress: cred.EmailAddress,
		APIToken:     maskToken(cred.APIToken),
		Valid:        cred.Valid,
		RegisteredAt: cred.RegisteredAt,
	}
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// CredentialsHandler handles GET (list) and POST (create) on /api/credentials
func (h *CredentialHandler) CredentialsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listCredentials(w, r)
	case http.MethodPost:
		h.createCredential(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CredentialHandler) listCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.credentials.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list credentials")
		WriteError(w, http.StatusInternalServerError, "Failed to list credentials")
		return
	}

	views := make([]credentialView, len(creds))
	for i, cred := range creds {
		views[i] = toCredentialView(cred)
	}
	WriteJSON(w, http.StatusOK, views)
}

func (h *CredentialHandler) createCredential(w http.ResponseWriter, r *http.Request) {
	var req CreateCredentialRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	cred := models.NewCredential(common.NewCredentialID(), req.EmailAddress, req.APIToken)
	if err := h.credentials.Save(r.Context(), cred); err != nil {
		h.logger.Error().Err(err).Msg("Failed to save credential")
		WriteError(w, http.StatusInternalServerError, "Failed to save credential")
		return
	}

	h.logger.Info().
		Str("credential_id", cred.ID).
		Str("email", cred.EmailAddress).
		Msg("Credential registered")
	WriteJSON(w, http.StatusCreated, toCredentialView(cred))
}

// RevalidateHandler handles POST /api/credentials/revalidate - re-probe
// invalid credentials and restore the ones that pass
func (h *CredentialHandler) RevalidateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	restored, err := h.rotator.Revalidate(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Revalidation sweep failed")
		WriteError(w, http.StatusInternalServerError, "Revalidation sweep failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "success",
		"restored": restored,
	})
}

// CredentialRoutesHandler dispatches /api/credentials/{id}
func (h *CredentialHandler) CredentialRoutesHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/credentials/")
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, http.StatusNotFound, "Unknown credential route")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getCredential(w, r, id)
	case http.MethodDelete:
		h.deleteCredential(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CredentialHandler) getCredential(w http.ResponseWriter, r *http.Request, id string) {
	cred, err := h.credentials.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Credential not found")
			return
		}
		h.logger.Error().Err(err).Str("credential_id", id).Msg("Failed to load credential")
		WriteError(w, http.StatusInternalServerError, "Failed to load credential")
		return
	}
	WriteJSON(w, http.StatusOK, toCredentialView(cred))
}

// deleteCredential removes a credential. Accounts referencing it keep a
// dangling weak reference, which is a tolerated state.
func (h *CredentialHandler) deleteCredential(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.credentials.Delete(r.Context(), id); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Credential not found")
			return
		}
		h.logger.Error().Err(err).Str("credential_id", id).Msg("Failed to delete credential")
		WriteError(w, http.StatusInternalServerError, "Failed to delete credential")
		return
	}
	WriteSuccess(w, "Credential deleted")
}
