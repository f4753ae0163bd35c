package models

import (
	"time"
)

// SessionBundleSchema is the current bundle file schema version
const SessionBundleSchema = 1

// maxInt32 is the threshold above which a cookie expiry is assumed to be
// expressed in milliseconds and normalized to seconds.
const maxInt32 = 2_147_483_647

// Cookie is the portable cookie representation stored in a session bundle.
// ExpirationDate is epoch seconds; zero means a session cookie.
type Cookie struct {
	Name           string `json:"name"`
	Value          string `json:"value"`
	Domain         string `json:"domain"`
	Path           string `json:"path"`
	Secure         bool   `json:"secure"`
	HTTPOnly       bool   `json:"httpOnly"`
	SameSite       string `json:"sameSite,omitempty"`
	ExpirationDate int64  `json:"expirationDate,omitempty"`
}

// Expired reports whether the cookie has an expiry in the past.
// Session cookies (no expiry) never report expired.
func (c Cookie) Expired(now time.Time) bool {
	if c.ExpirationDate == 0 {
		return false
	}
	return time.Unix(c.ExpirationDate, 0).Before(now)
}

// NormalizeCookieExpiry converts a raw expiry value to epoch seconds.
// Values beyond 32-bit range are treated as milliseconds and divided by 1000.
func NormalizeCookieExpiry(raw float64) int64 {
	expiry := int64(raw)
	if expiry > maxInt32 {
		expiry = expiry / 1000
	}
	return expiry
}

// ProxyRecipe is the network-egress recipe attached to a profile. Field names
// match the provisioning API payload.
type ProxyRecipe struct {
	CountryCode string `json:"countryCode"`
	Datacenter  bool   `json:"isDC"`
	Mobile      bool   `json:"isMobile"`
}

// SessionBundle is the durable artifact needed to reproduce a login session
// on a freshly provisioned profile: cookies and localStorage per origin, the
// user agent, the proxy recipe, and a sanitized fingerprint payload.
type SessionBundle struct {
	Schema          int                          `json:"schema"`
	SavedAt         time.Time                    `json:"saved_at"`
	SourceProfileID string                       `json:"source_profile_id"`
	UserAgent       string                       `json:"user_agent"`
	ProxyRecipe     ProxyRecipe                  `json:"proxy_recipe"`
	Cookies         map[string][]Cookie          `json:"cookies"`
	LocalStorage    map[string]map[string]string `json:"localStorage"`
	ProfilePayload  map[string]interface{}       `json:"profile_payload"`
}

// NewSessionBundle creates an empty bundle for the given source profile
func NewSessionBundle(sourceProfileID string) *SessionBundle {
	return &SessionBundle{
		Schema:          SessionBundleSchema,
		SavedAt:         time.Now().UTC(),
		SourceProfileID: sourceProfileID,
		Cookies:         make(map[string][]Cookie),
		LocalStorage:    make(map[string]map[string]string),
	}
}

// HasLiveCookies reports whether at least one cookie in the bundle is still
// unexpired. A bundle with only expired cookies cannot reproduce a session.
func (b *SessionBundle) HasLiveCookies(now time.Time) bool {
	for _, cookies := range b.Cookies {
		for _, c := range cookies {
			if !c.Expired(now) {
				return true
			}
		}
	}
	return false
}

// SanitizeProfilePayload strips service-issued identifiers from a fingerprint
// payload so it can be replayed on a create call without id collisions.
func SanitizeProfilePayload(payload map[string]interface{}) map[string]interface{} {
	sanitized := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		switch k {
		case "id", "_id", "profile_id":
			continue
		}
		sanitized[k] = v
	}
	return sanitized
}
