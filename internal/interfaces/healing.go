package interfaces

import (
	"context"

	"github.com/ternarybob/renovo/internal/models"
)

// HealingService recovers an account whose bound profile or credential has
// become unusable by migrating its session to a freshly provisioned profile
type HealingService interface {
	// Heal runs the healing workflow for the account. When both the bound
	// credential and profile are healthy it is a no-op beyond the
	// direct-reuse check. May surface *models.NoValidCredentialsError,
	// *models.VerificationRequiredError, or *models.ProfileServiceError.
	Heal(ctx context.Context, accountID string) (models.LoginOutcome, error)
}
