package rotation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
)

// memCredentialStore is an in-memory CredentialStorage for rotation tests
type memCredentialStore struct {
	mu    sync.Mutex
	creds map[string]*models.Credential
}

func newMemCredentialStore() *memCredentialStore {
	return &memCredentialStore{creds: make(map[string]*models.Credential)}
}

func (m *memCredentialStore) Save(ctx context.Context, cred *models.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *cred
	m.creds[cred.ID] = &copied
	return nil
}

func (m *memCredentialStore) Get(ctx context.Context, id string) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := *cred
	return &copied, nil
}

func (m *memCredentialStore) List(ctx context.Context) ([]*models.Credential, error) {
	return m.filtered(func(c *models.Credential) bool { return true }), nil
}

func (m *memCredentialStore) ListValid(ctx context.Context) ([]*models.Credential, error) {
	return m.filtered(func(c *models.Credential) bool { return c.Valid }), nil
}

func (m *memCredentialStore) ListInvalid(ctx context.Context) ([]*models.Credential, error) {
	return m.filtered(func(c *models.Credential) bool { return !c.Valid }), nil
}

func (m *memCredentialStore) filtered(keep func(*models.Credential) bool) []*models.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Credential
	for _, c := range m.creds {
		if keep(c) {
			copied := *c
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out
}

func (m *memCredentialStore) MarkInvalid(ctx context.Context, id string) error {
	return m.setValid(id, false)
}

func (m *memCredentialStore) MarkValid(ctx context.Context, id string) error {
	return m.setValid(id, true)
}

func (m *memCredentialStore) setValid(id string, valid bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	cred.Valid = valid
	return nil
}

func (m *memCredentialStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, id)
	return nil
}

func (m *memCredentialStore) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.creds), nil
}

// probeFunc scripts ProbeCredential; every other ProfileService method is
// unused by the rotator
type fakeProfiles struct {
	interfaces.ProfileService
	probe func(cred *models.Credential) (bool, error)
}

func (f *fakeProfiles) ProbeCredential(ctx context.Context, cred *models.Credential) (bool, error) {
	return f.probe(cred)
}

type fakeProvisioner struct {
	cred *models.Credential
	err  error
}

func (f *fakeProvisioner) Provision(ctx context.Context) (*models.Credential, error) {
	return f.cred, f.err
}

func seedCredential(t *testing.T, store *memCredentialStore, id string, age time.Duration) {
	t.Helper()
	cred := models.NewCredential(id, id+"@example.com", "token-"+id)
	cred.RegisteredAt = time.Now().UTC().Add(-age)
	require.NoError(t, store.Save(context.Background(), cred))
}

func TestGetUsableCredentialOldestFirst(t *testing.T) {
	store := newMemCredentialStore()
	seedCredential(t, store, "cred-new", time.Hour)
	seedCredential(t, store, "cred-old", 48*time.Hour)

	profiles := &fakeProfiles{probe: func(cred *models.Credential) (bool, error) { return true, nil }}
	rotator := NewRotator(store, profiles, nil, nil, arbor.NewLogger())

	cred, err := rotator.GetUsableCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cred-old", cred.ID)
}

func TestGetUsableCredentialDemotesProbeFailures(t *testing.T) {
	store := newMemCredentialStore()
	seedCredential(t, store, "cred-dead", 48*time.Hour)
	seedCredential(t, store, "cred-live", time.Hour)

	profiles := &fakeProfiles{probe: func(cred *models.Credential) (bool, error) {
		return cred.ID == "cred-live", nil
	}}
	rotator := NewRotator(store, profiles, nil, nil, arbor.NewLogger())

	cred, err := rotator.GetUsableCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cred-live", cred.ID)

	// The failing candidate was demoted persistently and is never offered
	// again on subsequent selections
	dead, err := store.Get(context.Background(), "cred-dead")
	require.NoError(t, err)
	assert.False(t, dead.Valid)

	for i := 0; i < 3; i++ {
		cred, err := rotator.GetUsableCredential(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "cred-live", cred.ID)
	}
}

func TestGetUsableCredentialProbeErrorDoesNotDemote(t *testing.T) {
	store := newMemCredentialStore()
	seedCredential(t, store, "cred-1", time.Hour)

	probeErr := &models.TransientNetworkError{Op: "GET /user", Err: errors.New("connect refused")}
	profiles := &fakeProfiles{probe: func(cred *models.Credential) (bool, error) { return false, probeErr }}
	rotator := NewRotator(store, profiles, nil, nil, arbor.NewLogger())

	_, err := rotator.GetUsableCredential(context.Background())
	require.Error(t, err)

	cred, err := store.Get(context.Background(), "cred-1")
	require.NoError(t, err)
	assert.True(t, cred.Valid, "a probe transport failure must not demote the credential")
}

func TestGetUsableCredentialProvisionsWhenExhausted(t *testing.T) {
	store := newMemCredentialStore()
	fresh := models.NewCredential("cred-fresh", "fresh@example.com", "token-fresh")
	profiles := &fakeProfiles{probe: func(cred *models.Credential) (bool, error) { return true, nil }}
	rotator := NewRotator(store, profiles, &fakeProvisioner{cred: fresh}, nil, arbor.NewLogger())

	cred, err := rotator.GetUsableCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cred-fresh", cred.ID)

	// The provisioned credential was persisted
	stored, err := store.Get(context.Background(), "cred-fresh")
	require.NoError(t, err)
	assert.True(t, stored.Valid)
}

func TestGetUsableCredentialTerminalWhenProvisioningFails(t *testing.T) {
	store := newMemCredentialStore()
	profiles := &fakeProfiles{probe: func(cred *models.Credential) (bool, error) { return true, nil }}
	provisionErr := errors.New("signup flow failed")
	rotator := NewRotator(store, profiles, &fakeProvisioner{err: provisionErr}, nil, arbor.NewLogger())

	_, err := rotator.GetUsableCredential(context.Background())
	var terminal *models.NoValidCredentialsError
	require.ErrorAs(t, err, &terminal)
	assert.ErrorIs(t, err, provisionErr)
}

func TestExecuteWithRotationDemotesOnQuota(t *testing.T) {
	store := newMemCredentialStore()
	seedCredential(t, store, "cred-1", time.Hour)

	profiles := &fakeProfiles{probe: func(cred *models.Credential) (bool, error) { return true, nil }}
	rotator := NewRotator(store, profiles, nil, nil, arbor.NewLogger())

	calls := 0
	cred, err := rotator.ExecuteWithRotation(context.Background(), func(ctx context.Context, cred *models.Credential) error {
		calls++
		return &models.ProfileServiceError{StatusCode: 403, Body: "profile limit reached"}
	})

	require.Error(t, err)
	var quota *models.UpstreamQuotaError
	require.ErrorAs(t, err, &quota)
	assert.Equal(t, "cred-1", quota.CredentialID)
	assert.Equal(t, 1, calls, "the operation must run at most once per call")
	assert.Equal(t, "cred-1", cred.ID)

	demoted, err := store.Get(context.Background(), "cred-1")
	require.NoError(t, err)
	assert.False(t, demoted.Valid)
}

func TestExecuteWithRotationKeepsCredentialOnNeutralError(t *testing.T) {
	store := newMemCredentialStore()
	seedCredential(t, store, "cred-1", time.Hour)

	profiles := &fakeProfiles{probe: func(cred *models.Credential) (bool, error) { return true, nil }}
	rotator := NewRotator(store, profiles, nil, nil, arbor.NewLogger())

	opErr := errors.New("page never settled")
	_, err := rotator.ExecuteWithRotation(context.Background(), func(ctx context.Context, cred *models.Credential) error {
		return opErr
	})
	assert.ErrorIs(t, err, opErr)

	cred, err := store.Get(context.Background(), "cred-1")
	require.NoError(t, err)
	assert.True(t, cred.Valid, "a non-auth failure must not demote the credential")
}

func TestRevalidateRestoresPassingCredentials(t *testing.T) {
	store := newMemCredentialStore()
	seedCredential(t, store, "cred-back", 48*time.Hour)
	seedCredential(t, store, "cred-gone", 24*time.Hour)
	require.NoError(t, store.MarkInvalid(context.Background(), "cred-back"))
	require.NoError(t, store.MarkInvalid(context.Background(), "cred-gone"))

	profiles := &fakeProfiles{probe: func(cred *models.Credential) (bool, error) {
		return cred.ID == "cred-back", nil
	}}
	rotator := NewRotator(store, profiles, nil, nil, arbor.NewLogger())

	restored, err := rotator.Revalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	valid, err := store.ListValid(context.Background())
	require.NoError(t, err)
	require.Len(t, valid, 1)
	assert.Equal(t, "cred-back", valid[0].ID)
}
