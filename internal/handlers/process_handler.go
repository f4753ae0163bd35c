package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
)

// ProcessHandler handles process tracking HTTP requests
type ProcessHandler struct {
	tracker interfaces.ProcessTracker
	logger  arbor.ILogger
}

// NewProcessHandler creates a new process handler
func NewProcessHandler(tracker interfaces.ProcessTracker, logger arbor.ILogger) *ProcessHandler {
	return &ProcessHandler{
		tracker: tracker,
		logger:  logger,
	}
}

// ListProcessesHandler handles GET /api/processes
func (h *ProcessHandler) ListProcessesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	running := h.tracker.ListRunning()
	if running == nil {
		running = []models.ProcessInfo{}
	}
	WriteJSON(w, http.StatusOK, running)
}

// ProcessRoutesHandler dispatches /api/processes/{name} and
// /api/processes/{name}/result
func (h *ProcessHandler) ProcessRoutesHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/processes/")
	if rest == "" {
		WriteError(w, http.StatusBadRequest, "Missing process name")
		return
	}

	if name, ok := strings.CutSuffix(rest, "/result"); ok {
		h.consumeResult(w, r, name)
		return
	}

	if !RequireMethod(w, r, "DELETE") {
		return
	}
	h.cancelProcess(w, r, rest)
}

// consumeResult handles GET /api/processes/{name}/result. It blocks until
// the operation completes; consuming the result releases the name for a new
// run.
func (h *ProcessHandler) consumeResult(w http.ResponseWriter, r *http.Request, name string) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	value, err := h.tracker.Result(r.Context(), name)
	if err != nil {
		var verifErr *models.VerificationRequiredError
		if errors.As(err, &verifErr) {
			WriteJSON(w, http.StatusOK, map[string]interface{}{
				"status":              "pending_verification",
				"verification_id":     verifErr.SessionID,
				"manual_input_needed": verifErr.ManualInputNeeded,
			})
			return
		}
		h.logger.Warn().Err(err).Str("process", name).Msg("Process finished with error")
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status": "failed",
			"error":  err.Error(),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "completed",
		"result": value,
	})
}

func (h *ProcessHandler) cancelProcess(w http.ResponseWriter, r *http.Request, name string) {
	if err := h.tracker.Cancel(name); err != nil {
		WriteError(w, http.StatusNotFound, "Process not running")
		return
	}
	h.logger.Info().Str("process", name).Msg("Cancellation requested")
	WriteSuccess(w, "Cancellation requested")
}
