// -----------------------------------------------------------------------
// Error taxonomy - every failure class the orchestration layer routes on
// -----------------------------------------------------------------------

package models

import (
	"errors"
	"fmt"
	"strings"
)

// ProfileServiceError is returned when the profile-provisioning API answers
// with a non-2xx status. It carries the HTTP status and response body so
// callers can classify auth/quota/corrupted-state failures.
type ProfileServiceError struct {
	StatusCode int
	Body       string
}

func (e *ProfileServiceError) Error() string {
	return fmt.Sprintf("profile service error %d: %s", e.StatusCode, e.Body)
}

// IsAuth reports whether the response indicates an invalid or exhausted credential
func (e *ProfileServiceError) IsAuth() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// IsQuota reports whether the response carries a quota/limit signal
func (e *ProfileServiceError) IsQuota() bool {
	if e.StatusCode != 403 {
		return false
	}
	body := strings.ToLower(e.Body)
	return strings.Contains(body, "quota") || strings.Contains(body, "limit")
}

// IsCorrupted reports whether the service considers the profile state unprocessable
func (e *ProfileServiceError) IsCorrupted() bool {
	return e.StatusCode == 422
}

// TransientNetworkError wraps a timeout/connect/network failure. Only this
// class is retried inside the lifecycle manager; everything else propagates.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network error during %s: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error {
	return e.Err
}

// UpstreamAuthError marks a credential as rejected by the provisioning service (401/403)
type UpstreamAuthError struct {
	CredentialID string
	StatusCode   int
}

func (e *UpstreamAuthError) Error() string {
	return fmt.Sprintf("credential %s rejected by provisioning service (status %d)", e.CredentialID, e.StatusCode)
}

// UpstreamQuotaError marks a credential whose provisioning quota is exhausted.
// Reported distinctly from generic auth failure.
type UpstreamQuotaError struct {
	CredentialID string
}

func (e *UpstreamQuotaError) Error() string {
	return fmt.Sprintf("credential %s has exhausted its provisioning quota", e.CredentialID)
}

// ProfileCorruptedError indicates the service reports the profile in an
// unprocessable state. Never blindly retried; triggers the healing workflow.
type ProfileCorruptedError struct {
	ProfileID string
	Reason    string
}

func (e *ProfileCorruptedError) Error() string {
	return fmt.Sprintf("profile %s is corrupted: %s", e.ProfileID, e.Reason)
}

// VerificationRequiredError signals that a login flow is blocked on an emailed
// code. ManualInputNeeded is true when automatic mailbox polling is not
// possible (or failed) and the operator must supply the code.
type VerificationRequiredError struct {
	SessionID         string
	ManualInputNeeded bool
}

func (e *VerificationRequiredError) Error() string {
	if e.ManualInputNeeded {
		return fmt.Sprintf("verification code required for session %s (manual input needed)", e.SessionID)
	}
	return fmt.Sprintf("verification code required for session %s", e.SessionID)
}

// NoValidCredentialsError is terminal: no stored credential works and
// auto-provisioning a new one failed too.
type NoValidCredentialsError struct {
	Err error
}

func (e *NoValidCredentialsError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no valid credentials available: %v", e.Err)
	}
	return "no valid credentials available"
}

func (e *NoValidCredentialsError) Unwrap() error {
	return e.Err
}

// DuplicateProcessError is returned when a second operation is requested for
// a name that is already running. The request fails fast; nothing is queued.
type DuplicateProcessError struct {
	Name string
}

func (e *DuplicateProcessError) Error() string {
	return fmt.Sprintf("process %q is already running", e.Name)
}

// IsTransient reports whether err belongs to the retryable network class
func IsTransient(err error) bool {
	var transient *TransientNetworkError
	return errors.As(err, &transient)
}

// ClassifyServiceError refines a ProfileServiceError into the taxonomy used
// by the orchestration layer. Non-service errors pass through unchanged.
func ClassifyServiceError(err error, credentialID, profileID string) error {
	var svcErr *ProfileServiceError
	if !errors.As(err, &svcErr) {
		return err
	}

	switch {
	case svcErr.IsQuota():
		return &UpstreamQuotaError{CredentialID: credentialID}
	case svcErr.IsAuth():
		return &UpstreamAuthError{CredentialID: credentialID, StatusCode: svcErr.StatusCode}
	case svcErr.IsCorrupted():
		return &ProfileCorruptedError{ProfileID: profileID, Reason: svcErr.Body}
	default:
		return err
	}
}
