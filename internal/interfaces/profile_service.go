package interfaces

import (
	"context"

	"github.com/ternarybob/renovo/internal/models"
)

// ProfileService wraps the remote profile-provisioning API. All calls are
// authenticated with the token of a specific credential, passed explicitly so
// the rotator can route calls across credentials.
type ProfileService interface {
	// Create requests a new profile (optionally replaying a sanitized
	// fingerprint payload) and attaches the network-egress recipe from the
	// spec. Returns the opaque profile id issued by the service.
	Create(ctx context.Context, token string, spec models.ProfileSpec) (string, error)

	// Start boots the profile remotely and returns the connection endpoint
	// an automation driver can attach to. Transient network failures are
	// retried up to 3 times with 2s/4s/8s backoff; HTTP application errors
	// are terminal.
	Start(ctx context.Context, token, profileID string) (string, error)

	// Stop stops the remote session. When persist is true the session
	// bundle is first captured through the active automation session and
	// written to durable storage; when false the remote profile is deleted
	// after stopping.
	Stop(ctx context.Context, token, profileID string, session BrowserSession, persist bool) error

	// Delete removes the remote profile
	Delete(ctx context.Context, token, profileID string) error

	// GetProfile fetches the raw profile payload (fingerprint, navigator)
	GetProfile(ctx context.Context, token, profileID string) (map[string]interface{}, error)

	// AttachProxy links a network-egress recipe to the profile
	AttachProxy(ctx context.Context, token, profileID string, recipe models.ProxyRecipe) error

	// ProbeCredential issues a minimal authenticated call. 401/403 yields
	// (false, nil); any other failure is propagated because it is not
	// evidence the credential itself is bad.
	ProbeCredential(ctx context.Context, cred *models.Credential) (bool, error)
}
