package interfaces

import (
	"context"

	"github.com/ternarybob/renovo/internal/models"
)

// CodeSubmitter forwards a verification code to the underlying login flow.
// It reports whether the code was accepted.
type CodeSubmitter func(ctx context.Context, code string) (bool, error)

// VerificationService manages bounded-attempt, bounded-time code-verification
// sessions triggered mid-login
type VerificationService interface {
	// Begin opens a session in AWAITING_CODE holding the pending login
	// context and starts the single deadline timer
	Begin(ctx context.Context, loginCtx *models.LoginContext, submit CodeSubmitter) (*models.VerificationSession, error)

	// Submit forwards a code. Acceptance moves the session to VERIFIED;
	// rejection keeps it in AWAITING_CODE until the attempt budget is spent,
	// then FAILED. Submissions against terminal or expired sessions are
	// rejected without incrementing attempts.
	Submit(ctx context.Context, sessionID, code string) (*models.VerificationSession, error)

	// Get returns a snapshot of the session, if it exists
	Get(sessionID string) (*models.VerificationSession, bool)

	// List returns snapshots of all live sessions
	List() []*models.VerificationSession
}
