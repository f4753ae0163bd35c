package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/models"
)

func TestConvertCookiesNormalizesExpiry(t *testing.T) {
	future := time.Now().Add(24 * time.Hour)

	raw := []*network.Cookie{
		{Name: "session", Value: "v", Domain: ".chatgpt.com", Path: "/", Secure: true, HTTPOnly: true, SameSite: network.CookieSameSiteLax, Expires: float64(future.Unix())},
		{Name: "ms", Value: "v", Domain: "chatgpt.com", Path: "/", Expires: float64(future.UnixMilli())},
		{Name: "transient", Value: "v", Domain: "chatgpt.com", Path: "/", Expires: -1},
	}

	cookies := convertCookies(raw)
	require.Len(t, cookies, 3)

	assert.Equal(t, future.Unix(), cookies[0].ExpirationDate)
	assert.Equal(t, "lax", cookies[0].SameSite)
	// Millisecond expiries are normalized down to seconds
	assert.Equal(t, future.Unix(), cookies[1].ExpirationDate)
	// Session cookies carry no expiry
	assert.Zero(t, cookies[2].ExpirationDate)
}

func TestConvertCookieParamsSkipsExpired(t *testing.T) {
	now := time.Now()
	cookies := []models.Cookie{
		{Name: "live", Value: "v", Domain: ".chatgpt.com", Path: "/", SameSite: "none", ExpirationDate: now.Add(time.Hour).Unix()},
		{Name: "dead", Value: "v", Domain: "chatgpt.com", Path: "/", ExpirationDate: now.Add(-time.Hour).Unix()},
		{Name: "session", Value: "v", Domain: "chatgpt.com", Path: "/"},
	}

	params := convertCookieParams(cookies, now)
	require.Len(t, params, 2)
	assert.Equal(t, "live", params[0].Name)
	// Leading dots confuse the devtools protocol
	assert.Equal(t, "chatgpt.com", params[0].Domain)
	assert.Equal(t, network.CookieSameSiteNone, params[0].SameSite)
	assert.Equal(t, "session", params[1].Name)
	assert.Nil(t, params[1].Expires)
}

func TestRestoreLocalStorageScriptQuotesContent(t *testing.T) {
	script := restoreLocalStorageScript(map[string]string{
		`key"with`: `value'); localStorage.clear(); ('`,
	})
	assert.Contains(t, script, "localStorage.clear();")
	assert.Contains(t, script, `"key\"with"`)
	assert.NotContains(t, script, `('value');`)
}

func TestAttachBlocksWhenPoolSaturated(t *testing.T) {
	driver := NewDriver(common.BrowserConfig{MaxSessions: 1}, arbor.NewLogger())

	first, err := driver.Attach(context.Background(), "ws://127.0.0.1:9222/devtools/browser/x")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = driver.Attach(ctx, "ws://127.0.0.1:9222/devtools/browser/y")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Closing the held session frees the slot
	require.NoError(t, first.Close())
	second, err := driver.Attach(context.Background(), "ws://127.0.0.1:9222/devtools/browser/y")
	require.NoError(t, err)
	require.NoError(t, second.Close())

	// Close is idempotent
	require.NoError(t, first.Close())
}
