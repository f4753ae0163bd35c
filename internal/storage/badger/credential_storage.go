package badger

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// CredentialStorage implements the CredentialStorage interface for Badger
type CredentialStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCredentialStorage creates a new CredentialStorage instance
func NewCredentialStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CredentialStorage {
	return &CredentialStorage{
		db:     db,
		logger: logger,
	}
}

// Save inserts or updates a credential
func (s *CredentialStorage) Save(ctx context.Context, cred *models.Credential) error {
	if cred.ID == "" {
		return fmt.Errorf("credential ID is required")
	}
	if err := s.db.Store().Upsert(cred.ID, cred); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Get retrieves a credential by ID
func (s *CredentialStorage) Get(ctx context.Context, id string) (*models.Credential, error) {
	var cred models.Credential
	if err := s.db.Store().Get(id, &cred); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &cred, nil
}

// List returns all credentials ordered oldest-registered-first
func (s *CredentialStorage) List(ctx context.Context) ([]*models.Credential, error) {
	var creds []models.Credential
	if err := s.db.Store().Find(&creds, nil); err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	return sortByRegistration(creds), nil
}

// ListValid returns valid credentials ordered oldest-registered-first.
// This is the rotation fairness order: long-lived credentials carry load
// before newer ones.
func (s *CredentialStorage) ListValid(ctx context.Context) ([]*models.Credential, error) {
	var creds []models.Credential
	if err := s.db.Store().Find(&creds, badgerhold.Where("Valid").Eq(true)); err != nil {
		return nil, fmt.Errorf("failed to list valid credentials: %w", err)
	}
	return sortByRegistration(creds), nil
}

// ListInvalid returns invalidated credentials ordered oldest-registered-first
func (s *CredentialStorage) ListInvalid(ctx context.Context) ([]*models.Credential, error) {
	var creds []models.Credential
	if err := s.db.Store().Find(&creds, badgerhold.Where("Valid").Eq(false)); err != nil {
		return nil, fmt.Errorf("failed to list invalid credentials: %w", err)
	}
	return sortByRegistration(creds), nil
}

// MarkInvalid persistently flips Valid to false
func (s *CredentialStorage) MarkInvalid(ctx context.Context, id string) error {
	return s.setValid(ctx, id, false)
}

// MarkValid restores a credential after successful revalidation
func (s *CredentialStorage) MarkValid(ctx context.Context, id string) error {
	return s.setValid(ctx, id, true)
}

func (s *CredentialStorage) setValid(ctx context.Context, id string, valid bool) error {
	var cred models.Credential
	if err := s.db.Store().Get(id, &cred); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to get credential: %w", err)
	}
	if cred.Valid == valid {
		return nil
	}
	cred.Valid = valid
	if err := s.db.Store().Upsert(id, &cred); err != nil {
		return fmt.Errorf("failed to update credential validity: %w", err)
	}

	s.logger.Info().
		Str("credential_id", id).
		Bool("valid", valid).
		Msg("Credential validity updated")

	return nil
}

// Delete removes a credential
func (s *CredentialStorage) Delete(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Credential{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// Count returns the number of stored credentials
func (s *CredentialStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Credential{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count credentials: %w", err)
	}
	return int(count), nil
}

func sortByRegistration(creds []models.Credential) []*models.Credential {
	sort.Slice(creds, func(i, j int) bool {
		return creds[i].RegisteredAt.Before(creds[j].RegisteredAt)
	})
	result := make([]*models.Credential, len(creds))
	for i := range creds {
		result[i] = &creds[i]
	}
	return result
}
