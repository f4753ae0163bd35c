package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
	"github.com/ternarybob/renovo/internal/services/accounts"
)

type stubAccounts struct {
	interfaces.AccountStorage
	byID map[string]*models.Account
}

func (s *stubAccounts) Get(ctx context.Context, id string) (*models.Account, error) {
	account, ok := s.byID[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return account, nil
}

func (s *stubAccounts) List(ctx context.Context) ([]*models.Account, error) {
	out := make([]*models.Account, 0, len(s.byID))
	for _, a := range s.byID {
		out = append(out, a)
	}
	return out, nil
}

type stubOrchestrator struct {
	mu         sync.Mutex
	registered []string
	imported   []accounts.ImportRequest
	ran        []string
}

func (s *stubOrchestrator) Register(ctx context.Context, fullName string) (models.LoginOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registered = append(s.registered, fullName)
	return models.CompletedOutcome("prof-1"), nil
}

func (s *stubOrchestrator) Import(ctx context.Context, req accounts.ImportRequest) (models.LoginOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imported = append(s.imported, req)
	return models.CompletedOutcome("prof-1"), nil
}

func (s *stubOrchestrator) Run(ctx context.Context, accountID string) (models.LoginOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ran = append(s.ran, accountID)
	return models.CompletedOutcome(accountID), nil
}

func (s *stubOrchestrator) Rename(ctx context.Context, accountID, name string) (*models.Account, error) {
	return models.NewAccount(accountID, name, "a@b.c", "pw", "", false, "/tmp"), nil
}

func (s *stubOrchestrator) Remove(ctx context.Context, accountID string) error { return nil }

type stubTracker struct {
	mu      sync.Mutex
	started []string
	dup     bool
}

func (s *stubTracker) Start(name string, op interfaces.ProcessOperation) (*models.ProcessInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dup {
		return nil, &models.DuplicateProcessError{Name: name}
	}
	s.started = append(s.started, name)
	return &models.ProcessInfo{Name: name}, nil
}

func (s *stubTracker) Result(ctx context.Context, name string) (interface{}, error) {
	return nil, nil
}

func (s *stubTracker) Cancel(name string) error           { return nil }
func (s *stubTracker) ListRunning() []models.ProcessInfo  { return nil }
func (s *stubTracker) Shutdown(ctx context.Context) error { return nil }

func newAccountHandler(t *testing.T, tracker *stubTracker) (*AccountHandler, *stubOrchestrator) {
	t.Helper()
	account := models.NewAccount("prof-1", "Existing", "a@b.c", "pw", "cred-1", false, "/tmp")
	orch := &stubOrchestrator{}
	h := NewAccountHandler(&stubAccounts{byID: map[string]*models.Account{"prof-1": account}}, orch, tracker, arbor.NewLogger())
	return h, orch
}

func TestRunAccountStartsTrackedProcess(t *testing.T) {
	tracker := &stubTracker{}
	h, _ := newAccountHandler(t, tracker)

	req := httptest.NewRequest("POST", "/api/accounts/prof-1/run", nil)
	rec := httptest.NewRecorder()
	h.AccountRoutesHandler(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"process":"run:prof-1"`)
	assert.Equal(t, []string{"run:prof-1"}, tracker.started)
}

func TestRunAccountDuplicateAnswersConflict(t *testing.T) {
	tracker := &stubTracker{dup: true}
	h, _ := newAccountHandler(t, tracker)

	req := httptest.NewRequest("POST", "/api/accounts/prof-1/run", nil)
	rec := httptest.NewRecorder()
	h.AccountRoutesHandler(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "run:prof-1")
}

func TestRunUnknownAccount(t *testing.T) {
	h, _ := newAccountHandler(t, &stubTracker{})

	req := httptest.NewRequest("POST", "/api/accounts/prof-9/run", nil)
	rec := httptest.NewRecorder()
	h.AccountRoutesHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterValidatesPayload(t *testing.T) {
	h, _ := newAccountHandler(t, &stubTracker{})

	req := httptest.NewRequest("POST", "/api/accounts/register", strings.NewReader(`{"name":"x"}`))
	rec := httptest.NewRecorder()
	h.RegisterHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportStartsProcessWithValidPayload(t *testing.T) {
	tracker := &stubTracker{}
	h, _ := newAccountHandler(t, tracker)

	body := `{"name":"Imported","email_address":"owner@example.com","password":"hunter22"}`
	req := httptest.NewRequest("POST", "/api/accounts/import", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ImportHandler(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"import:owner@example.com"}, tracker.started)
}

func TestImportRejectsBadEmail(t *testing.T) {
	h, _ := newAccountHandler(t, &stubTracker{})

	body := `{"name":"Imported","email_address":"not-an-email","password":"hunter22"}`
	req := httptest.NewRequest("POST", "/api/accounts/import", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ImportHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAccountHidesPassword(t *testing.T) {
	h, _ := newAccountHandler(t, &stubTracker{})

	req := httptest.NewRequest("GET", "/api/accounts/prof-1", nil)
	rec := httptest.NewRecorder()
	h.AccountRoutesHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a@b.c")
	assert.NotContains(t, rec.Body.String(), "pw")
	assert.NotContains(t, rec.Body.String(), "password")
}
