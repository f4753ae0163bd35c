package models

// ProfileSpec describes a profile to be created on the provisioning service
type ProfileSpec struct {
	Name  string      `json:"name"`
	OS    string      `json:"os"`
	Proxy ProxyRecipe `json:"proxy"`

	// Payload carries a sanitized fingerprint payload to replay (session
	// transplant). Empty for a random-fingerprint quick profile.
	Payload map[string]interface{} `json:"payload,omitempty"`
}
