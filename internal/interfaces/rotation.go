package interfaces

import (
	"context"

	"github.com/ternarybob/renovo/internal/models"
)

// CredentialRotator selects usable provisioning credentials, demotes failing
// ones, and auto-provisions a new credential when none remain
type CredentialRotator interface {
	// GetUsableCredential returns the oldest-registered credential that
	// passes a live probe. Failing candidates are persistently marked
	// invalid. When no candidate remains, auto-provisioning is attempted;
	// if that fails too a *models.NoValidCredentialsError is returned.
	GetUsableCredential(ctx context.Context) (*models.Credential, error)

	// ExecuteWithRotation obtains a usable credential and invokes op exactly
	// once with it. An auth/quota error from op marks the credential invalid
	// and is returned unchanged - rotation is never silently retried within
	// the same call because op may have produced partial side effects.
	// Returns the credential the operation ran under.
	ExecuteWithRotation(ctx context.Context, op func(ctx context.Context, cred *models.Credential) error) (*models.Credential, error)

	// Revalidate re-probes invalid credentials and restores the ones that
	// pass. This is the only path by which Valid flips back to true.
	// Returns the number of credentials restored.
	Revalidate(ctx context.Context) (int, error)
}

// CredentialProvisioner registers a brand-new provisioning credential
// end-to-end (mailbox, signup flow, token extraction)
type CredentialProvisioner interface {
	Provision(ctx context.Context) (*models.Credential, error)
}
