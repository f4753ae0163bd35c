package models

import "time"

// VerificationState is the state of a code-verification session.
// Transitions: idle -> awaiting_code -> {verified, failed, expired}.
// The last three are terminal.
type VerificationState string

const (
	VerificationIdle     VerificationState = "idle"
	VerificationAwaiting VerificationState = "awaiting_code"
	VerificationVerified VerificationState = "verified"
	VerificationFailed   VerificationState = "failed"
	VerificationExpired  VerificationState = "expired"
)

// Terminal reports whether the state admits no further transitions
func (s VerificationState) Terminal() bool {
	switch s {
	case VerificationVerified, VerificationFailed, VerificationExpired:
		return true
	}
	return false
}

// VerificationSession tracks one pending one-time-code challenge. It exists
// only between "code required" and a terminal outcome.
type VerificationSession struct {
	ID           string            `json:"id"`
	State        VerificationState `json:"state"`
	Context      *LoginContext     `json:"context,omitempty"`
	AttemptCount int               `json:"attempt_count"`
	Deadline     time.Time         `json:"deadline"`
	CreatedAt    time.Time         `json:"created_at"`
}

// AttemptsRemaining returns how many code submissions are left
func (s *VerificationSession) AttemptsRemaining(maxAttempts int) int {
	remaining := maxAttempts - s.AttemptCount
	if remaining < 0 {
		return 0
	}
	return remaining
}
