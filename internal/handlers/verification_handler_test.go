package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
)

type stubVerifier struct {
	session *models.VerificationSession
	err     error
}

func (s *stubVerifier) Begin(ctx context.Context, loginCtx *models.LoginContext, submit interfaces.CodeSubmitter) (*models.VerificationSession, error) {
	return nil, errors.New("not used")
}

func (s *stubVerifier) Submit(ctx context.Context, sessionID, code string) (*models.VerificationSession, error) {
	if s.session == nil || s.session.ID != sessionID {
		return nil, errors.New("verification session not found")
	}
	return s.session, s.err
}

func (s *stubVerifier) Get(sessionID string) (*models.VerificationSession, bool) {
	if s.session == nil || s.session.ID != sessionID {
		return nil, false
	}
	return s.session, true
}

func (s *stubVerifier) List() []*models.VerificationSession {
	if s.session == nil {
		return nil
	}
	return []*models.VerificationSession{s.session}
}

func newVerificationHandler(verifier interfaces.VerificationService) *VerificationHandler {
	cfg := common.NewDefaultConfig()
	return NewVerificationHandler(verifier, &cfg.Verification, arbor.NewLogger())
}

func TestSubmitCodeReportsRemainingAttempts(t *testing.T) {
	verifier := &stubVerifier{session: &models.VerificationSession{
		ID:           "vrf-1",
		State:        models.VerificationAwaiting,
		AttemptCount: 1,
		Deadline:     time.Now().Add(time.Minute),
	}}
	h := newVerificationHandler(verifier)

	req := httptest.NewRequest("POST", "/api/verification/vrf-1/code", strings.NewReader(`{"code":"123456"}`))
	rec := httptest.NewRecorder()
	h.VerificationRoutesHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"attempts_remaining":2`)
	assert.Contains(t, rec.Body.String(), `"rejected"`)
}

func TestSubmitCodeValidatesFormat(t *testing.T) {
	h := newVerificationHandler(&stubVerifier{})

	req := httptest.NewRequest("POST", "/api/verification/vrf-1/code", strings.NewReader(`{"code":"12ab56"}`))
	rec := httptest.NewRecorder()
	h.VerificationRoutesHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitCodeUnknownSession(t *testing.T) {
	h := newVerificationHandler(&stubVerifier{})

	req := httptest.NewRequest("POST", "/api/verification/vrf-9/code", strings.NewReader(`{"code":"123456"}`))
	rec := httptest.NewRecorder()
	h.VerificationRoutesHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitCodeTerminalSessionConflicts(t *testing.T) {
	verifier := &stubVerifier{
		session: &models.VerificationSession{
			ID:       "vrf-1",
			State:    models.VerificationExpired,
			Deadline: time.Now().Add(-time.Minute),
		},
		err: errors.New("session is expired"),
	}
	h := newVerificationHandler(verifier)

	req := httptest.NewRequest("POST", "/api/verification/vrf-1/code", strings.NewReader(`{"code":"123456"}`))
	rec := httptest.NewRecorder()
	h.VerificationRoutesHandler(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired")
}

func TestGetVerificationSession(t *testing.T) {
	verifier := &stubVerifier{session: &models.VerificationSession{
		ID:       "vrf-1",
		State:    models.VerificationAwaiting,
		Deadline: time.Now().Add(time.Minute),
		Context:  &models.LoginContext{EmailAddress: "acct@mail.gw"},
	}}
	h := newVerificationHandler(verifier)

	req := httptest.NewRequest("GET", "/api/verification/vrf-1", nil)
	rec := httptest.NewRecorder()
	h.VerificationRoutesHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "acct@mail.gw")
}
