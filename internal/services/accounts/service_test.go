package accounts

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[string]*models.Account)}
}

func (s *memAccounts) Save(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *account
	s.accounts[account.ID] = &copied
	return nil
}

func (s *memAccounts) Get(ctx context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := *account
	return &copied, nil
}

func (s *memAccounts) List(ctx context.Context) ([]*models.Account, error) { return nil, nil }

func (s *memAccounts) ListByCredential(ctx context.Context, credentialID string) ([]*models.Account, error) {
	return nil, nil
}

func (s *memAccounts) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
	return nil
}

func (s *memAccounts) Swap(ctx context.Context, oldID string, updated *models.Account) error {
	return nil
}

func (s *memAccounts) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts), nil
}

type fakeBundles struct {
	interfaces.BundleStore
	deleted []string
}

func (f *fakeBundles) Delete(ctx context.Context, profileID string) error {
	f.deleted = append(f.deleted, profileID)
	return nil
}

func (f *fakeBundles) PathFor(profileID string) string { return profileID + ".json" }

type fakeProfiles struct {
	mu        sync.Mutex
	calls     []string
	createErr error
	createID  string
}

func (f *fakeProfiles) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeProfiles) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeProfiles) Create(ctx context.Context, token string, spec models.ProfileSpec) (string, error) {
	f.record("create:" + spec.Name)
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.createID, nil
}

func (f *fakeProfiles) Start(ctx context.Context, token, profileID string) (string, error) {
	f.record("start:" + profileID)
	return "ws://127.0.0.1:9222/" + profileID, nil
}

func (f *fakeProfiles) Stop(ctx context.Context, token, profileID string, session interfaces.BrowserSession, persist bool) error {
	if persist {
		f.record("stop-persist:" + profileID)
	} else {
		f.record("stop-delete:" + profileID)
	}
	return nil
}

func (f *fakeProfiles) Delete(ctx context.Context, token, profileID string) error {
	f.record("delete:" + profileID)
	return nil
}

func (f *fakeProfiles) GetProfile(ctx context.Context, token, profileID string) (map[string]interface{}, error) {
	return nil, nil
}

func (f *fakeProfiles) AttachProxy(ctx context.Context, token, profileID string, recipe models.ProxyRecipe) error {
	return nil
}

func (f *fakeProfiles) ProbeCredential(ctx context.Context, cred *models.Credential) (bool, error) {
	return true, nil
}

type fakeRotator struct {
	cred *models.Credential
	err  error
}

func (r *fakeRotator) GetUsableCredential(ctx context.Context) (*models.Credential, error) {
	return r.cred, r.err
}

func (r *fakeRotator) ExecuteWithRotation(ctx context.Context, op func(context.Context, *models.Credential) error) (*models.Credential, error) {
	if r.err != nil {
		return nil, r.err
	}
	if err := op(ctx, r.cred); err != nil {
		return r.cred, models.ClassifyServiceError(err, r.cred.ID, "")
	}
	return r.cred, nil
}

func (r *fakeRotator) Revalidate(ctx context.Context) (int, error) { return 0, nil }

type fakeSession struct {
	closed bool
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error { return nil }

func (s *fakeSession) CaptureState(ctx context.Context, origins []string) (*models.SessionBundle, error) {
	return models.NewSessionBundle("captured"), nil
}

func (s *fakeSession) RestoreState(ctx context.Context, bundle *models.SessionBundle) error {
	return nil
}

func (s *fakeSession) IsAuthenticated(ctx context.Context) (bool, error) { return true, nil }

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeDriver struct {
	session *fakeSession
}

func (d *fakeDriver) Attach(ctx context.Context, endpoint string) (interfaces.BrowserSession, error) {
	return d.session, nil
}

type fakeFlow struct {
	registerOutcome models.LoginOutcome
	loginOutcomes   []models.LoginOutcome
}

func (f *fakeFlow) Login(ctx context.Context, session interfaces.BrowserSession, account *models.Account, code string) (models.LoginOutcome, error) {
	if len(f.loginOutcomes) == 0 {
		return models.FailedOutcome("no scripted outcome"), nil
	}
	outcome := f.loginOutcomes[0]
	if len(f.loginOutcomes) > 1 {
		f.loginOutcomes = f.loginOutcomes[1:]
	}
	return outcome, nil
}

func (f *fakeFlow) Register(ctx context.Context, session interfaces.BrowserSession, mailbox interfaces.Mailbox, fullName string) (models.LoginOutcome, error) {
	return f.registerOutcome, nil
}

type fakeVerifier struct {
	submit interfaces.CodeSubmitter
}

func (v *fakeVerifier) Begin(ctx context.Context, loginCtx *models.LoginContext, submit interfaces.CodeSubmitter) (*models.VerificationSession, error) {
	v.submit = submit
	return &models.VerificationSession{ID: "verif-1", State: models.VerificationAwaiting}, nil
}

func (v *fakeVerifier) Submit(ctx context.Context, sessionID, code string) (*models.VerificationSession, error) {
	return nil, nil
}

func (v *fakeVerifier) Get(sessionID string) (*models.VerificationSession, bool) { return nil, false }
func (v *fakeVerifier) List() []*models.VerificationSession                      { return nil }

type fakeMailbox struct {
	address  string
	password string
}

func (m *fakeMailbox) Address() string  { return m.address }
func (m *fakeMailbox) Password() string { return m.password }

func (m *fakeMailbox) Messages(ctx context.Context) ([]interfaces.MailMessage, error) {
	return nil, nil
}

type fakeMailboxes struct {
	mailbox *fakeMailbox
}

func (f *fakeMailboxes) CreateMailbox(ctx context.Context) (interfaces.Mailbox, error) {
	return f.mailbox, nil
}

func (f *fakeMailboxes) OpenMailbox(ctx context.Context, address, password string) (interfaces.Mailbox, error) {
	return f.mailbox, nil
}

type fakeHealer struct {
	healed []string
}

func (h *fakeHealer) Heal(ctx context.Context, accountID string) (models.LoginOutcome, error) {
	h.healed = append(h.healed, accountID)
	return models.CompletedOutcome(accountID), nil
}

// ---------------------------------------------------------------------------
// fixture
// ---------------------------------------------------------------------------

type fixture struct {
	service  *Service
	accounts *memAccounts
	profiles *fakeProfiles
	session  *fakeSession
	flow     *fakeFlow
	verifier *fakeVerifier
	healer   *fakeHealer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cred := models.NewCredential("cred-1", "owner@mail.gw", "token-1")
	f := &fixture{
		accounts: newMemAccounts(),
		profiles: &fakeProfiles{createID: "prof-1"},
		session:  &fakeSession{},
		flow:     &fakeFlow{},
		verifier: &fakeVerifier{},
		healer:   &fakeHealer{},
	}

	f.service = NewService(Deps{
		Accounts:  f.accounts,
		Bundles:   &fakeBundles{},
		Profiles:  f.profiles,
		Rotator:   &fakeRotator{cred: cred},
		Driver:    &fakeDriver{session: f.session},
		Flow:      f.flow,
		Verifier:  f.verifier,
		Mailboxes: &fakeMailboxes{mailbox: &fakeMailbox{address: "fresh@mail.gw", password: "mbpass12"}},
		Healer:    f.healer,
	}, common.NewDefaultConfig(), arbor.NewLogger())

	return f
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestRegisterCreatesAccountOnFreshProfile(t *testing.T) {
	f := newFixture(t)
	f.flow.registerOutcome = models.CompletedOutcome("")

	outcome, err := f.service.Register(context.Background(), "Avery Quinn")
	require.NoError(t, err)
	assert.Equal(t, models.LoginCompleted, outcome.Status)
	assert.Equal(t, "prof-1", outcome.ProfileID)

	account, err := f.accounts.Get(context.Background(), "prof-1")
	require.NoError(t, err)
	assert.True(t, account.AutoCreated)
	assert.Equal(t, "fresh@mail.gw", account.EmailAddress)
	assert.Equal(t, "mbpass12", account.Password)
	assert.Equal(t, "cred-1", account.CredentialID)

	assert.Contains(t, f.profiles.recorded(), "stop-persist:prof-1")
	assert.True(t, f.session.closed)
}

func TestRegisterFailedFlowDiscardsProfile(t *testing.T) {
	f := newFixture(t)
	f.flow.registerOutcome = models.FailedOutcome("signup rejected")

	outcome, err := f.service.Register(context.Background(), "Avery Quinn")
	require.NoError(t, err)
	assert.Equal(t, models.LoginFailed, outcome.Status)

	count, _ := f.accounts.Count(context.Background())
	assert.Zero(t, count)
	assert.Contains(t, f.profiles.recorded(), "stop-delete:prof-1")
}

func TestImportCompletedSavesManualAccount(t *testing.T) {
	f := newFixture(t)
	f.flow.loginOutcomes = []models.LoginOutcome{models.CompletedOutcome("prof-1")}

	outcome, err := f.service.Import(context.Background(), ImportRequest{
		Name:         "Imported",
		EmailAddress: "owner@example.com",
		Password:     "hunter22",
	})
	require.NoError(t, err)
	assert.Equal(t, models.LoginCompleted, outcome.Status)

	account, err := f.accounts.Get(context.Background(), "prof-1")
	require.NoError(t, err)
	assert.False(t, account.AutoCreated)
	assert.Equal(t, "owner@example.com", account.EmailAddress)
}

func TestImportPendingEscalatesToManualVerification(t *testing.T) {
	f := newFixture(t)
	f.flow.loginOutcomes = []models.LoginOutcome{
		models.PendingOutcome(&models.LoginContext{ProfileID: "prof-1", EmailAddress: "owner@example.com"}),
		models.CompletedOutcome("prof-1"),
	}

	outcome, err := f.service.Import(context.Background(), ImportRequest{
		Name:         "Imported",
		EmailAddress: "owner@example.com",
		Password:     "hunter22",
	})

	var verifErr *models.VerificationRequiredError
	require.ErrorAs(t, err, &verifErr)
	assert.True(t, verifErr.ManualInputNeeded)
	assert.Equal(t, models.LoginPendingVerification, outcome.Status)

	// nothing is persisted and the session stays open while the code is out
	count, _ := f.accounts.Count(context.Background())
	assert.Zero(t, count)
	assert.False(t, f.session.closed)

	// operator supplies the code; the submitter persists the account
	accepted, err := f.verifier.submit(context.Background(), "481516")
	require.NoError(t, err)
	assert.True(t, accepted)

	account, err := f.accounts.Get(context.Background(), "prof-1")
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", account.EmailAddress)
	assert.True(t, f.session.closed)
}

func TestImportFailedLoginDiscardsProfile(t *testing.T) {
	f := newFixture(t)
	f.flow.loginOutcomes = []models.LoginOutcome{models.FailedOutcome("bad password")}

	outcome, err := f.service.Import(context.Background(), ImportRequest{
		Name:         "Imported",
		EmailAddress: "owner@example.com",
		Password:     "wrong",
	})
	require.NoError(t, err)
	assert.Equal(t, models.LoginFailed, outcome.Status)
	assert.Contains(t, f.profiles.recorded(), "stop-delete:prof-1")
}

func TestRunDelegatesToHealing(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.service.Run(context.Background(), "prof-9")
	require.NoError(t, err)
	assert.Equal(t, models.LoginCompleted, outcome.Status)
	assert.Equal(t, []string{"prof-9"}, f.healer.healed)
}

func TestRenameUpdatesDisplayName(t *testing.T) {
	f := newFixture(t)
	account := models.NewAccount("prof-1", "Old Name", "a@b.c", "pw", "cred-1", false, "/tmp")
	require.NoError(t, f.accounts.Save(context.Background(), account))

	renamed, err := f.service.Rename(context.Background(), "prof-1", "New Name")
	require.NoError(t, err)
	assert.Equal(t, "New Name", renamed.Name)

	stored, err := f.accounts.Get(context.Background(), "prof-1")
	require.NoError(t, err)
	assert.Equal(t, "New Name", stored.Name)
}
