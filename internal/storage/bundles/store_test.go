package bundles

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
)

func newTestStore(t *testing.T) interfaces.BundleStore {
	t.Helper()
	store, err := NewStore(t.TempDir(), arbor.NewLogger())
	require.NoError(t, err)
	return store
}

func TestBundleRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bundle := models.NewSessionBundle("profile-1")
	bundle.UserAgent = "Mozilla/5.0 test agent"
	bundle.ProxyRecipe = models.ProxyRecipe{CountryCode: "us", Mobile: true}
	bundle.Cookies["https://chatgpt.com"] = []models.Cookie{
		{Name: "session", Value: "abc", Domain: "chatgpt.com", Path: "/", Secure: true, ExpirationDate: time.Now().Add(time.Hour).Unix()},
	}
	bundle.LocalStorage["https://chatgpt.com"] = map[string]string{"oai/locale": "en-US"}

	require.NoError(t, store.Save(ctx, bundle))
	assert.True(t, store.Exists("profile-1"))

	loaded, err := store.Load(ctx, "profile-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionBundleSchema, loaded.Schema)
	assert.Equal(t, "profile-1", loaded.SourceProfileID)
	assert.Equal(t, "us", loaded.ProxyRecipe.CountryCode)
	assert.True(t, loaded.ProxyRecipe.Mobile)
	assert.Len(t, loaded.Cookies["https://chatgpt.com"], 1)
	assert.Equal(t, "en-US", loaded.LocalStorage["https://chatgpt.com"]["oai/locale"])
}

func TestBundleLoadMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load(context.Background(), "no-such-profile")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestBundleDeleteIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bundle := models.NewSessionBundle("profile-2")
	require.NoError(t, store.Save(ctx, bundle))

	require.NoError(t, store.Delete(ctx, "profile-2"))
	assert.False(t, store.Exists("profile-2"))

	// Deleting a bundle that is already gone is not an error
	require.NoError(t, store.Delete(ctx, "profile-2"))
}

func TestBundleSaveRequiresProfileID(t *testing.T) {
	store := newTestStore(t)

	bundle := models.NewSessionBundle("")
	assert.Error(t, store.Save(context.Background(), bundle))
}
