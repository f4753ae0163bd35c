package profiles

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
	"github.com/ternarybob/renovo/internal/storage/bundles"
)

// fakeAPI is a scriptable stand-in for the provisioning API
type fakeAPI struct {
	mu       sync.Mutex
	requests []string
	handler  func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.mu.Unlock()
	f.handler(w, r)
}

func (f *fakeAPI) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func newTestService(t *testing.T, api *fakeAPI) (*Service, interfaces.BundleStore) {
	t.Helper()

	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	cfg := common.NewDefaultConfig()
	cfg.Provisioner.BaseURL = server.URL
	cfg.Provisioner.RequestTimeout = 2 * time.Second
	cfg.Provisioner.MaxAttempts = 1
	cfg.Target.Origins = []string{"https://chatgpt.com"}

	logger := arbor.NewLogger()
	store, err := bundles.NewStore(t.TempDir(), logger)
	require.NoError(t, err)

	client := NewClient(&cfg.Provisioner, logger)
	return NewService(client, store, cfg, logger), store
}

func TestCreateQuickProfileAttachesProxy(t *testing.T) {
	api := &fakeAPI{handler: func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/browser/quick":
			json.NewEncoder(w).Encode(map[string]string{"id": "prof-123"})
		case "/users-proxies/mobile-proxy":
			var payload map[string]interface{}
			json.NewDecoder(r.Body).Decode(&payload)
			if payload["profileIdToLink"] != "prof-123" {
				http.Error(w, "wrong profile", http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}}
	svc, _ := newTestService(t, api)

	id, err := svc.Create(context.Background(), "token-a", models.ProfileSpec{Name: "acct-1", OS: "win"})
	require.NoError(t, err)
	assert.Equal(t, "prof-123", id)
	assert.Equal(t, []string{"POST /browser/quick", "POST /users-proxies/mobile-proxy"}, api.seen())
}

func TestCreateDeletesOrphanWhenProxyAttachFails(t *testing.T) {
	api := &fakeAPI{handler: func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/browser/quick":
			json.NewEncoder(w).Encode(map[string]string{"id": "prof-orphan"})
		case r.URL.Path == "/users-proxies/mobile-proxy":
			http.Error(w, "no proxies available", http.StatusServiceUnavailable)
		case r.Method == "DELETE" && r.URL.Path == "/browser/prof-orphan":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}}
	svc, _ := newTestService(t, api)

	_, err := svc.Create(context.Background(), "token-a", models.ProfileSpec{Name: "acct-1", OS: "win"})
	require.Error(t, err)
	assert.Contains(t, api.seen(), "DELETE /browser/prof-orphan")
}

func TestStartCorruptedProfile(t *testing.T) {
	api := &fakeAPI{handler: func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "fingerprint is incomplete", http.StatusUnprocessableEntity)
	}}
	svc, _ := newTestService(t, api)

	_, err := svc.Start(context.Background(), "token-a", "prof-bad")
	var corrupted *models.ProfileCorruptedError
	require.ErrorAs(t, err, &corrupted)
	assert.Equal(t, "prof-bad", corrupted.ProfileID)
}

func TestProbeCredential(t *testing.T) {
	status := http.StatusOK
	api := &fakeAPI{handler: func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			http.Error(w, "denied", status)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"email": "a@example.com"})
	}}
	svc, _ := newTestService(t, api)
	cred := models.NewCredential("cred-1", "a@example.com", "token-a")

	ok, err := svc.ProbeCredential(context.Background(), cred)
	require.NoError(t, err)
	assert.True(t, ok)

	status = http.StatusUnauthorized
	ok, err = svc.ProbeCredential(context.Background(), cred)
	require.NoError(t, err)
	assert.False(t, ok)

	status = http.StatusForbidden
	ok, err = svc.ProbeCredential(context.Background(), cred)
	require.NoError(t, err)
	assert.False(t, ok)

	// A server fault says nothing about the credential
	status = http.StatusInternalServerError
	_, err = svc.ProbeCredential(context.Background(), cred)
	assert.Error(t, err)
}

// fakeSession implements interfaces.BrowserSession for capture tests
type fakeSession struct {
	bundle *models.SessionBundle
	err    error
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error { return nil }
func (f *fakeSession) CaptureState(ctx context.Context, origins []string) (*models.SessionBundle, error) {
	return f.bundle, f.err
}
func (f *fakeSession) RestoreState(ctx context.Context, bundle *models.SessionBundle) error {
	return nil
}
func (f *fakeSession) IsAuthenticated(ctx context.Context) (bool, error) { return true, nil }
func (f *fakeSession) Close() error                                      { return nil }

func TestStopPersistCapturesBundle(t *testing.T) {
	api := &fakeAPI{handler: func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "GET" && r.URL.Path == "/browser/prof-1":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":        "prof-1",
				"name":      "acct-1",
				"navigator": map[string]interface{}{"userAgent": "ua"},
				"proxy":     map[string]interface{}{"countryCode": "us", "isDC": true, "isMobile": false},
			})
		default:
			w.WriteHeader(http.StatusOK)
		}
	}}
	svc, store := newTestService(t, api)

	captured := models.NewSessionBundle("")
	captured.UserAgent = "Mozilla/5.0"
	captured.Cookies["https://chatgpt.com"] = []models.Cookie{{Name: "session", Value: "v"}}

	err := svc.Stop(context.Background(), "token-a", "prof-1", &fakeSession{bundle: captured}, true)
	require.NoError(t, err)

	saved, err := store.Load(context.Background(), "prof-1")
	require.NoError(t, err)
	assert.Equal(t, "prof-1", saved.SourceProfileID)
	assert.Equal(t, "us", saved.ProxyRecipe.CountryCode)
	// Service-issued ids must not survive into the replayable payload
	assert.NotContains(t, saved.ProfilePayload, "id")
	assert.Contains(t, saved.ProfilePayload, "navigator")
}

func TestStopEphemeralDeletesProfile(t *testing.T) {
	api := &fakeAPI{handler: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}}
	svc, _ := newTestService(t, api)

	err := svc.Stop(context.Background(), "token-a", "prof-2", nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"DELETE /browser/prof-2/web", "DELETE /browser/prof-2"}, api.seen())
}
