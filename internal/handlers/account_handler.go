package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
	"github.com/ternarybob/renovo/internal/services/accounts"
)

// AccountOrchestrator is the operation surface the account handler drives
type AccountOrchestrator interface {
	Register(ctx context.Context, fullName string) (models.LoginOutcome, error)
	Import(ctx context.Context, req accounts.ImportRequest) (models.LoginOutcome, error)
	Run(ctx context.Context, accountID string) (models.LoginOutcome, error)
	Rename(ctx context.Context, accountID, name string) (*models.Account, error)
	Remove(ctx context.Context, accountID string) error
}

// AccountHandler handles account management and account operation HTTP requests
type AccountHandler struct {
	accounts     interfaces.AccountStorage
	orchestrator AccountOrchestrator
	tracker      interfaces.ProcessTracker
	validate     *validator.Validate
	logger       arbor.ILogger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(accounts interfaces.AccountStorage, orchestrator AccountOrchestrator, tracker interfaces.ProcessTracker, logger arbor.ILogger) *AccountHandler {
	return &AccountHandler{
		accounts:     accounts,
		orchestrator: orchestrator,
		tracker:      tracker,
		validate:     validator.New(),
		logger:       logger,
	}
}

// RegisterAccountRequest is the payload for POST /api/accounts/register
type RegisterAccountRequest struct {
	Name string `json:"name" validate:"required,min=2,max=64"`
}

// ImportAccountRequest is the payload for POST /api/accounts/import
type ImportAccountRequest struct {
	Name         string `json:"name" validate:"required,min=2,max=64"`
	EmailAddress string `json:"email_address" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=8"`
}

// RenameAccountRequest is the payload for PATCH /api/accounts/{id}
type RenameAccountRequest struct {
	Name string `json:"name" validate:"required,min=2,max=64"`
}

// accountView is the API shape of an account; the password never leaves the server
type accountView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	EmailAddress string    `json:"email_address"`
	CredentialID string    `json:"credential_id,omitempty"`
	AutoCreated  bool      `json:"auto_created"`
	BundlePath   string    `json:"bundle_path"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toAccountView(account *models.Account) accountView {
	return accountView{
		ID:           account.ID,
		Name:         account.Name,
		EmailAddress: account.EmailAddress,
		CredentialID: account.CredentialID,
		AutoCreated:  account.AutoCreated,
		BundlePath:   account.BundlePath,
		CreatedAt:    account.CreatedAt,
		UpdatedAt:    account.UpdatedAt,
	}
}

// ListAccountsHandler handles GET /api/accounts
func (h *AccountHandler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list accounts")
		WriteError(w, http.StatusInternalServerError, "Failed to list accounts")
		return
	}

	views := make([]accountView, len(accounts))
	for i, account := range accounts {
		views[i] = toAccountView(account)
	}
	WriteJSON(w, http.StatusOK, views)
}

// RegisterHandler handles POST /api/accounts/register - create a brand-new
// account asynchronously
func (h *AccountHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req RegisterAccountRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := models.ProcessName(models.ProcessKindRegister, strings.ToLower(strings.ReplaceAll(req.Name, " ", "-")))
	h.startProcess(w, name, func(ctx context.Context) (interface{}, error) {
		return h.orchestrator.Register(ctx, req.Name)
	})
}

// ImportHandler handles POST /api/accounts/import - bind a manually created
// account asynchronously
func (h *AccountHandler) ImportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req ImportAccountRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := models.ProcessName(models.ProcessKindImport, req.EmailAddress)
	h.startProcess(w, name, func(ctx context.Context) (interface{}, error) {
		return h.orchestrator.Import(ctx, accounts.ImportRequest{
			Name:         req.Name,
			EmailAddress: req.EmailAddress,
			Password:     req.Password,
		})
	})
}

// AccountRoutesHandler dispatches /api/accounts/{id} and /api/accounts/{id}/run
func (h *AccountHandler) AccountRoutesHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
	if rest == "" {
		WriteError(w, http.StatusBadRequest, "Missing account id")
		return
	}

	if id, ok := strings.CutSuffix(rest, "/run"); ok {
		h.runAccount(w, r, id)
		return
	}
	if strings.Contains(rest, "/") {
		WriteError(w, http.StatusNotFound, "Unknown account route")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getAccount(w, r, rest)
	case http.MethodPatch:
		h.renameAccount(w, r, rest)
	case http.MethodDelete:
		h.deleteAccount(w, r, rest)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// runAccount handles POST /api/accounts/{id}/run
func (h *AccountHandler) runAccount(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if _, err := h.accounts.Get(r.Context(), id); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Account not found")
			return
		}
		h.logger.Error().Err(err).Str("account_id", id).Msg("Failed to load account")
		WriteError(w, http.StatusInternalServerError, "Failed to load account")
		return
	}

	name := models.ProcessName(models.ProcessKindRun, id)
	h.startProcess(w, name, func(ctx context.Context) (interface{}, error) {
		return h.orchestrator.Run(ctx, id)
	})
}

func (h *AccountHandler) getAccount(w http.ResponseWriter, r *http.Request, id string) {
	account, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Account not found")
			return
		}
		h.logger.Error().Err(err).Str("account_id", id).Msg("Failed to load account")
		WriteError(w, http.StatusInternalServerError, "Failed to load account")
		return
	}
	WriteJSON(w, http.StatusOK, toAccountView(account))
}

func (h *AccountHandler) renameAccount(w http.ResponseWriter, r *http.Request, id string) {
	var req RenameAccountRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.orchestrator.Rename(r.Context(), id, req.Name)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Account not found")
			return
		}
		h.logger.Error().Err(err).Str("account_id", id).Msg("Failed to rename account")
		WriteError(w, http.StatusInternalServerError, "Failed to rename account")
		return
	}
	WriteJSON(w, http.StatusOK, toAccountView(account))
}

func (h *AccountHandler) deleteAccount(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.orchestrator.Remove(r.Context(), id); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Account not found")
			return
		}
		h.logger.Error().Err(err).Str("account_id", id).Msg("Failed to delete account")
		WriteError(w, http.StatusInternalServerError, "Failed to delete account")
		return
	}
	WriteSuccess(w, "Account deleted")
}

// startProcess schedules op under the tracker. A duplicate in-flight name
// answers 409 with the running process, per the fail-fast rule.
func (h *AccountHandler) startProcess(w http.ResponseWriter, name string, op interfaces.ProcessOperation) {
	info, err := h.tracker.Start(name, op)
	if err != nil {
		var dup *models.DuplicateProcessError
		if errors.As(err, &dup) {
			WriteJSON(w, http.StatusConflict, map[string]interface{}{
				"status":  "error",
				"error":   "Operation already in flight",
				"process": dup.Name,
			})
			return
		}
		h.logger.Error().Err(err).Str("process", name).Msg("Failed to start process")
		WriteError(w, http.StatusInternalServerError, "Failed to start process")
		return
	}
	WriteStarted(w, info.Name)
}
