package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/renovo/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// ErrKeyNotFound is returned when a key/value pair does not exist
var ErrKeyNotFound = errors.New("key not found")

// CredentialStorage persists provisioning credentials
type CredentialStorage interface {
	Save(ctx context.Context, cred *models.Credential) error

	Get(ctx context.Context, id string) (*models.Credential, error)

	// List returns all credentials ordered oldest-registered-first
	List(ctx context.Context) ([]*models.Credential, error)

	// ListValid returns credentials with Valid=true ordered
	// oldest-registered-first (the rotation fairness order)
	ListValid(ctx context.Context) ([]*models.Credential, error)

	// ListInvalid returns credentials with Valid=false, the candidates for
	// an explicit revalidation sweep
	ListInvalid(ctx context.Context) ([]*models.Credential, error)

	// MarkInvalid persistently flips Valid to false
	MarkInvalid(ctx context.Context, id string) error

	// MarkValid restores a credential after successful revalidation
	MarkValid(ctx context.Context, id string) error

	// Delete removes a credential. Accounts referencing it keep a dangling
	// weak reference, which is a tolerated state.
	Delete(ctx context.Context, id string) error

	Count(ctx context.Context) (int, error)
}

// AccountStorage persists target-site accounts
type AccountStorage interface {
	Save(ctx context.Context, account *models.Account) error

	Get(ctx context.Context, id string) (*models.Account, error)

	List(ctx context.Context) ([]*models.Account, error)

	// ListByCredential returns accounts referencing the given credential
	ListByCredential(ctx context.Context, credentialID string) ([]*models.Account, error)

	Delete(ctx context.Context, id string) error

	// Swap replaces the record keyed by oldID with the updated account
	// (keyed by its new ID) in a single transaction. The updated record is
	// written before the old one is removed so an interruption can only
	// leave both records present, never neither.
	Swap(ctx context.Context, oldID string, updated *models.Account) error

	Count(ctx context.Context) (int, error)
}

// KeyValuePair represents a stored key/value setting
type KeyValuePair struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// KeyValueStorage stores operator-tunable settings (IMAP credentials,
// mailbox overrides) outside the TOML config
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, description string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]KeyValuePair, error)
}

// StorageManager provides access to all storage implementations
type StorageManager interface {
	CredentialStorage() CredentialStorage
	AccountStorage() AccountStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}

// BundleStore persists session bundles as durable files keyed by profile id
type BundleStore interface {
	Save(ctx context.Context, bundle *models.SessionBundle) error
	Load(ctx context.Context, profileID string) (*models.SessionBundle, error)
	Delete(ctx context.Context, profileID string) error
	Exists(profileID string) bool
	PathFor(profileID string) string
}
