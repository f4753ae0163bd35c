package models

// LoginStatus is the tag of a LoginOutcome
type LoginStatus string

const (
	LoginCompleted           LoginStatus = "completed"
	LoginPendingVerification LoginStatus = "pending_verification"
	LoginFailed              LoginStatus = "failed"
)

// LoginContext is the pending state of a login flow blocked on a
// verification code. It is held by the verification session until the code
// is accepted, the attempts run out, or the deadline passes.
type LoginContext struct {
	AccountID    string `json:"account_id"`
	ProfileID    string `json:"profile_id"`
	EmailAddress string `json:"email_address"`
	AutoCreated  bool   `json:"auto_created"`
}

// LoginOutcome is the tagged result of a login or registration flow.
// "Verification needed" is a routine branch of login, not an exception:
// callers switch on Status instead of catching control-flow errors.
type LoginOutcome struct {
	Status    LoginStatus   `json:"status"`
	ProfileID string        `json:"profile_id,omitempty"`
	Context   *LoginContext `json:"context,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// CompletedOutcome builds a successful outcome for the given profile
func CompletedOutcome(profileID string) LoginOutcome {
	return LoginOutcome{Status: LoginCompleted, ProfileID: profileID}
}

// PendingOutcome builds an outcome blocked on a verification code
func PendingOutcome(ctx *LoginContext) LoginOutcome {
	return LoginOutcome{Status: LoginPendingVerification, Context: ctx}
}

// FailedOutcome builds a failed outcome with a reason
func FailedOutcome(reason string) LoginOutcome {
	return LoginOutcome{Status: LoginFailed, Reason: reason}
}
