package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/services/mailbox"
)

// SettingsHandler handles operator-tunable settings HTTP requests
type SettingsHandler struct {
	imap     *mailbox.IMAPService
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(imap *mailbox.IMAPService, logger arbor.ILogger) *SettingsHandler {
	return &SettingsHandler{
		imap:     imap,
		validate: validator.New(),
		logger:   logger,
	}
}

// IMAPSettingsRequest is the payload for PUT /api/settings/imap
type IMAPSettingsRequest struct {
	Host     string `json:"host" validate:"required,hostname"`
	Port     int    `json:"port" validate:"required,min=1,max=65535"`
	Username string `json:"username" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	UseTLS   bool   `json:"use_tls"`
}

// IMAPSettingsHandler handles GET and PUT on /api/settings/imap
func (h *SettingsHandler) IMAPSettingsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getIMAPSettings(w, r)
	case http.MethodPut:
		h.putIMAPSettings(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandler) getIMAPSettings(w http.ResponseWriter, r *http.Request) {
	config := h.imap.GetConfig(r.Context())
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"host":       config.Host,
		"port":       config.Port,
		"username":   config.Username,
		"use_tls":    config.UseTLS,
		"configured": h.imap.IsConfigured(r.Context()),
	})
}

func (h *SettingsHandler) putIMAPSettings(w http.ResponseWriter, r *http.Request) {
	var req IMAPSettingsRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	config := common.IMAPConfig{
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
		UseTLS:   req.UseTLS,
	}
	if err := h.imap.SetConfig(r.Context(), config); err != nil {
		h.logger.Error().Err(err).Msg("Failed to save IMAP settings")
		WriteError(w, http.StatusInternalServerError, "Failed to save IMAP settings")
		return
	}
	WriteSuccess(w, "IMAP settings saved")
}

// TestIMAPHandler handles POST /api/settings/imap/test - connect to the
// linked inbox and report how many unseen messages it holds
func (h *SettingsHandler) TestIMAPHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	inbox, err := h.imap.Open(r.Context())
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := inbox.Messages(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("IMAP connectivity test failed")
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "success",
		"unseen_messages": len(messages),
	})
}
