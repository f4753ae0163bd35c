package models

import "time"

// Credential is a rate/quota-limited token granting access to the
// profile-provisioning service. Multiple accounts may reference one
// credential. Valid flips to false when a probe or live call reports an
// auth/quota error; it is never flipped back without an explicit
// revalidation step.
type Credential struct {
	ID           string    `json:"id"`
	EmailAddress string    `json:"email_address"`
	APIToken     string    `json:"api_token"`
	Valid        bool      `json:"valid"`
	RegisteredAt time.Time `json:"registered_at"`
}

// NewCredential creates a valid credential registered now
func NewCredential(id, emailAddress, apiToken string) *Credential {
	return &Credential{
		ID:           id,
		EmailAddress: emailAddress,
		APIToken:     apiToken,
		Valid:        true,
		RegisteredAt: time.Now().UTC(),
	}
}
