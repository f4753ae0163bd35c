package models

import (
	"path/filepath"
	"time"
)

// Account is a synthetic account on the target site. Its ID is the opaque id
// of the browser profile that is its canonical identity; after healing the ID
// is replaced atomically and the old value is retired, never reused.
//
// CredentialID is a weak reference resolved by lookup. An empty value is a
// normal, tolerated state (the credential was deleted out from under the
// account).
type Account struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	EmailAddress string    `json:"email_address"`
	Password     string    `json:"password"`
	CredentialID string    `json:"credential_id,omitempty"`
	AutoCreated  bool      `json:"auto_created"`
	BundlePath   string    `json:"bundle_path"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewAccount creates an account bound to the given profile id
func NewAccount(profileID, name, emailAddress, password, credentialID string, autoCreated bool, bundleDir string) *Account {
	now := time.Now().UTC()
	return &Account{
		ID:           profileID,
		Name:         name,
		EmailAddress: emailAddress,
		Password:     password,
		CredentialID: credentialID,
		AutoCreated:  autoCreated,
		BundlePath:   filepath.Join(bundleDir, profileID+".json"),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
