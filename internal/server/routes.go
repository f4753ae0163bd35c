package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (operator event stream)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Accounts
	mux.HandleFunc("/api/accounts", s.app.AccountHandler.ListAccountsHandler)        // GET - list accounts
	mux.HandleFunc("/api/accounts/register", s.app.AccountHandler.RegisterHandler)   // POST - create brand-new account
	mux.HandleFunc("/api/accounts/import", s.app.AccountHandler.ImportHandler)       // POST - bind manually created account
	mux.HandleFunc("/api/accounts/", s.app.AccountHandler.AccountRoutesHandler)      // GET/PATCH/DELETE /{id}, POST /{id}/run

	// API routes - Credentials
	mux.HandleFunc("/api/credentials", s.app.CredentialHandler.CredentialsHandler)            // GET (list), POST (create)
	mux.HandleFunc("/api/credentials/revalidate", s.app.CredentialHandler.RevalidateHandler)  // POST - re-probe invalid credentials
	mux.HandleFunc("/api/credentials/", s.app.CredentialHandler.CredentialRoutesHandler)      // GET/DELETE /{id}

	// API routes - Processes
	mux.HandleFunc("/api/processes", s.app.ProcessHandler.ListProcessesHandler) // GET - running operations
	mux.HandleFunc("/api/processes/", s.app.ProcessHandler.ProcessRoutesHandler) // DELETE /{name}, GET /{name}/result

	// API routes - Verification
	mux.HandleFunc("/api/verification", s.app.VerificationHandler.ListVerificationsHandler)      // GET - live sessions
	mux.HandleFunc("/api/verification/", s.app.VerificationHandler.VerificationRoutesHandler)    // GET /{id}, POST /{id}/code

	// API routes - Scheduler
	mux.HandleFunc("/api/scheduler/jobs", s.app.SchedulerHandler.ListJobsHandler)    // GET - registered jobs
	mux.HandleFunc("/api/scheduler/jobs/", s.app.SchedulerHandler.TriggerJobHandler) // POST /{name}/trigger

	// API routes - Settings
	mux.HandleFunc("/api/settings/imap", s.app.SettingsHandler.IMAPSettingsHandler)   // GET/PUT - linked inbox
	mux.HandleFunc("/api/settings/imap/test", s.app.SettingsHandler.TestIMAPHandler)  // POST - connectivity check

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler) // GET - application status
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}
