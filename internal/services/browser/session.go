// -----------------------------------------------------------------------
// Browser Session - navigation, state capture and transplant
// -----------------------------------------------------------------------

package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/renovo/internal/models"
)

// localStorageDumpScript maps every localStorage key to its value
const localStorageDumpScript = `(function() {
	var out = {};
	for (var i = 0; i < localStorage.length; i++) {
		var k = localStorage.key(i);
		out[k] = localStorage.getItem(k);
	}
	return out;
})()`

// Navigate opens the url and waits for the page to settle
func (s *Session) Navigate(ctx context.Context, url string) error {
	actions := []chromedp.Action{chromedp.Navigate(url)}
	if s.cfg.NavigateWait > 0 {
		actions = append(actions, chromedp.Sleep(s.cfg.NavigateWait))
	}
	if err := s.run(ctx, actions...); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// CaptureState collects cookies, localStorage and the user agent for the
// given origins into a portable bundle. The proxy recipe and fingerprint
// payload are filled in by the lifecycle manager.
func (s *Session) CaptureState(ctx context.Context, origins []string) (*models.SessionBundle, error) {
	bundle := models.NewSessionBundle("")

	var userAgent string
	if err := s.run(ctx, chromedp.Evaluate(`navigator.userAgent`, &userAgent)); err != nil {
		return nil, fmt.Errorf("failed to read user agent: %w", err)
	}
	bundle.UserAgent = userAgent

	for _, origin := range origins {
		if err := s.Navigate(ctx, origin); err != nil {
			return nil, err
		}

		var cookies []*network.Cookie
		err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().WithURLs([]string{origin}).Do(ctx)
			return err
		}))
		if err != nil {
			return nil, fmt.Errorf("failed to read cookies for %s: %w", origin, err)
		}
		bundle.Cookies[origin] = convertCookies(cookies)

		var localStorage map[string]string
		if err := s.run(ctx, chromedp.Evaluate(localStorageDumpScript, &localStorage)); err != nil {
			return nil, fmt.Errorf("failed to read localStorage for %s: %w", origin, err)
		}
		bundle.LocalStorage[origin] = localStorage
	}

	s.logger.Info().
		Int("origins", len(origins)).
		Msg("Session state captured")

	return bundle, nil
}

// RestoreState transplants the bundle's cookies and localStorage onto the
// current profile, origin by origin, reloading each origin afterwards so the
// page picks the state up
func (s *Session) RestoreState(ctx context.Context, bundle *models.SessionBundle) error {
	now := time.Now()

	for origin, cookies := range bundle.Cookies {
		if err := s.Navigate(ctx, origin); err != nil {
			return err
		}

		params := convertCookieParams(cookies, now)
		err := s.run(ctx, network.Enable(), chromedp.ActionFunc(func(ctx context.Context) error {
			for _, cookie := range params {
				if err := network.SetCookie(cookie.Name, cookie.Value).
					WithDomain(cookie.Domain).
					WithPath(cookie.Path).
					WithSecure(cookie.Secure).
					WithHTTPOnly(cookie.HTTPOnly).
					WithSameSite(cookie.SameSite).
					WithExpires(cookie.Expires).
					Do(ctx); err != nil {
					s.logger.Warn().
						Err(err).
						Str("cookie", cookie.Name).
						Str("origin", origin).
						Msg("Failed to transplant cookie")
				}
			}
			return nil
		}))
		if err != nil {
			return fmt.Errorf("failed to transplant cookies for %s: %w", origin, err)
		}

		if stored := bundle.LocalStorage[origin]; len(stored) > 0 {
			var ignored interface{}
			if err := s.run(ctx, chromedp.Evaluate(restoreLocalStorageScript(stored), &ignored)); err != nil {
				return fmt.Errorf("failed to transplant localStorage for %s: %w", origin, err)
			}
		}

		if err := s.Navigate(ctx, origin); err != nil {
			return err
		}
	}

	s.logger.Info().
		Str("source_profile", bundle.SourceProfileID).
		Msg("Session state transplanted")

	return nil
}

// IsAuthenticated probes for the authenticated marker on the current page
func (s *Session) IsAuthenticated(ctx context.Context) (bool, error) {
	var present bool
	script := fmt.Sprintf(`document.querySelector(%q) !== null`, s.cfg.MarkerSelector)
	if err := s.run(ctx, chromedp.Evaluate(script, &present)); err != nil {
		return false, fmt.Errorf("failed to probe authenticated marker: %w", err)
	}
	return present, nil
}

func convertCookies(cookies []*network.Cookie) []models.Cookie {
	out := make([]models.Cookie, 0, len(cookies))
	for _, c := range cookies {
		cookie := models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: strings.ToLower(string(c.SameSite)),
		}
		if c.Expires > 0 {
			cookie.ExpirationDate = models.NormalizeCookieExpiry(c.Expires)
		}
		out = append(out, cookie)
	}
	return out
}

func convertCookieParams(cookies []models.Cookie, now time.Time) []*network.CookieParam {
	out := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Expired(now) {
			continue
		}

		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   strings.TrimPrefix(c.Domain, "."),
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.ExpirationDate > 0 {
			timestamp := cdp.TimeSinceEpoch(time.Unix(c.ExpirationDate, 0))
			param.Expires = &timestamp
		}
		switch strings.ToLower(c.SameSite) {
		case "strict":
			param.SameSite = network.CookieSameSiteStrict
		case "lax":
			param.SameSite = network.CookieSameSiteLax
		case "none":
			param.SameSite = network.CookieSameSiteNone
		}
		out = append(out, param)
	}
	return out
}

// restoreLocalStorageScript builds a script that clears localStorage and
// replays the stored pairs. Keys and values go through %q so arbitrary
// content cannot break out of the script.
func restoreLocalStorageScript(data map[string]string) string {
	var b strings.Builder
	b.WriteString("(function() { localStorage.clear();")
	for k, v := range data {
		fmt.Fprintf(&b, " localStorage.setItem(%q, %q);", k, v)
	}
	b.WriteString(" return true; })()")
	return b.String()
}
