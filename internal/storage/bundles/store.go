// -----------------------------------------------------------------------
// Bundle store - durable session bundle files keyed by profile id
// -----------------------------------------------------------------------

package bundles

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
)

// Store persists session bundles as JSON files under a single directory,
// one file per source profile id
type Store struct {
	dir    string
	logger arbor.ILogger
}

// NewStore creates a bundle store rooted at dir
func NewStore(dir string, logger arbor.ILogger) (interfaces.BundleStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create bundle directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// PathFor returns the file path for a profile's bundle
func (s *Store) PathFor(profileID string) string {
	return filepath.Join(s.dir, profileID+".json")
}

// Exists reports whether a bundle file exists for the profile
func (s *Store) Exists(profileID string) bool {
	_, err := os.Stat(s.PathFor(profileID))
	return err == nil
}

// Save writes the bundle for its source profile. The write goes through a
// temp file and rename so a crash cannot leave a truncated bundle.
func (s *Store) Save(ctx context.Context, bundle *models.SessionBundle) error {
	if bundle.SourceProfileID == "" {
		return fmt.Errorf("bundle source profile id is required")
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}

	path := s.PathFor(bundle.SourceProfileID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write bundle file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize bundle file: %w", err)
	}

	s.logger.Info().
		Str("profile_id", bundle.SourceProfileID).
		Str("path", path).
		Msg("Session bundle saved")

	return nil
}

// Load reads the bundle for a profile
func (s *Store) Load(ctx context.Context, profileID string) (*models.SessionBundle, error) {
	data, err := os.ReadFile(s.PathFor(profileID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read bundle file: %w", err)
	}

	var bundle models.SessionBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to decode bundle for profile %s: %w", profileID, err)
	}

	return &bundle, nil
}

// Delete removes the bundle file for a profile. Missing files are not an
// error; the stale-bundle cleanup after healing must be idempotent.
func (s *Store) Delete(ctx context.Context, profileID string) error {
	err := os.Remove(s.PathFor(profileID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete bundle file: %w", err)
	}
	return nil
}
