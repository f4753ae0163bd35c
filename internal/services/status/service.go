package status

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/interfaces"
)

// Service aggregates the operator-facing status snapshot
type Service struct {
	credentials interfaces.CredentialStorage
	accounts    interfaces.AccountStorage
	tracker     interfaces.ProcessTracker
	verifier    interfaces.VerificationService
	startedAt   time.Time
	logger      arbor.ILogger
}

// NewService creates a new status service
func NewService(credentials interfaces.CredentialStorage, accounts interfaces.AccountStorage, tracker interfaces.ProcessTracker, verifier interfaces.VerificationService, logger arbor.ILogger) *Service {
	return &Service{
		credentials: credentials,
		accounts:    accounts,
		tracker:     tracker,
		verifier:    verifier,
		startedAt:   time.Now().UTC(),
		logger:      logger,
	}
}

// GetStatus returns counts of accounts, credentials, running processes, and
// live verification sessions
func (s *Service) GetStatus(ctx context.Context) map[string]interface{} {
	accountCount, err := s.accounts.Count(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to count accounts")
	}

	validCreds := 0
	invalidCreds := 0
	if creds, err := s.credentials.List(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list credentials")
	} else {
		for _, cred := range creds {
			if cred.Valid {
				validCreds++
			} else {
				invalidCreds++
			}
		}
	}

	return map[string]interface{}{
		"version":               common.GetVersion(),
		"uptime":                time.Since(s.startedAt).Round(time.Second).String(),
		"accounts":              accountCount,
		"credentials_valid":     validCreds,
		"credentials_invalid":   invalidCreds,
		"processes_running":     len(s.tracker.ListRunning()),
		"verification_sessions": len(s.verifier.List()),
		"goroutines_spawned":    common.GetGoroutineCount(),
		"timestamp":             time.Now().UTC(),
	}
}
