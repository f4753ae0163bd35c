package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AccountStorage implements the AccountStorage interface for Badger
type AccountStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAccountStorage creates a new AccountStorage instance
func NewAccountStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AccountStorage {
	return &AccountStorage{
		db:     db,
		logger: logger,
	}
}

// Save inserts or updates an account
func (s *AccountStorage) Save(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		return fmt.Errorf("account ID is required")
	}
	account.UpdatedAt = time.Now().UTC()
	if err := s.db.Store().Upsert(account.ID, account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// Get retrieves an account by ID (its profile id)
func (s *AccountStorage) Get(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	if err := s.db.Store().Get(id, &account); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// List returns all accounts ordered by name
func (s *AccountStorage) List(ctx context.Context) ([]*models.Account, error) {
	var accounts []models.Account
	if err := s.db.Store().Find(&accounts, nil); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Name < accounts[j].Name
	})
	result := make([]*models.Account, len(accounts))
	for i := range accounts {
		result[i] = &accounts[i]
	}
	return result, nil
}

// ListByCredential returns accounts referencing the given credential
func (s *AccountStorage) ListByCredential(ctx context.Context, credentialID string) ([]*models.Account, error) {
	var accounts []models.Account
	if err := s.db.Store().Find(&accounts, badgerhold.Where("CredentialID").Eq(credentialID)); err != nil {
		return nil, fmt.Errorf("failed to list accounts by credential: %w", err)
	}
	result := make([]*models.Account, len(accounts))
	for i := range accounts {
		result[i] = &accounts[i]
	}
	return result, nil
}

// Delete removes an account
func (s *AccountStorage) Delete(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Account{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

// Swap replaces the record keyed by oldID with the updated account in one
// transaction. The new record is written before the old one is removed, so
// an interruption can only leave both present - never neither. Callers
// reconcile a both-present state on next read.
func (s *AccountStorage) Swap(ctx context.Context, oldID string, updated *models.Account) error {
	if updated.ID == "" {
		return fmt.Errorf("updated account ID is required")
	}
	if updated.ID == oldID {
		return s.Save(ctx, updated)
	}

	updated.UpdatedAt = time.Now().UTC()

	err := s.db.Store().Badger().Update(func(tx *badgerdb.Txn) error {
		if err := s.db.Store().TxUpsert(tx, updated.ID, updated); err != nil {
			return fmt.Errorf("failed to write new account record: %w", err)
		}
		if err := s.db.Store().TxDelete(tx, oldID, &models.Account{}); err != nil && err != badgerhold.ErrNotFound {
			return fmt.Errorf("failed to remove old account record: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to swap account identity: %w", err)
	}

	s.logger.Info().
		Str("old_id", oldID).
		Str("new_id", updated.ID).
		Msg("Account identity swapped")

	return nil
}

// Count returns the number of stored accounts
func (s *AccountStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Account{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return int(count), nil
}
