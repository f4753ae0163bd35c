package common

import (
	"github.com/google/uuid"
)

// NewCredentialID generates a unique credential ID with the "cred_" prefix
// Format: cred_<uuid>
func NewCredentialID() string {
	return "cred_" + uuid.New().String()
}

// NewVerificationID generates a unique verification session ID with the "vrf_" prefix
// Format: vrf_<uuid>
func NewVerificationID() string {
	return "vrf_" + uuid.New().String()
}
