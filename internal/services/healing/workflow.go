// -----------------------------------------------------------------------
// Healing Workflow - migrate a broken account onto a fresh profile
// -----------------------------------------------------------------------

package healing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
)

// Workflow recovers accounts whose bound profile or credential stopped
// working. The order is fixed: direct reuse, classify, reprovision with
// session transplant, confirm, and only then the identity swap.
type Workflow struct {
	accounts      interfaces.AccountStorage
	credentials   interfaces.CredentialStorage
	bundles       interfaces.BundleStore
	profiles      interfaces.ProfileService
	rotator       interfaces.CredentialRotator
	driver        interfaces.BrowserDriver
	flow          interfaces.LoginFlow
	verifier      interfaces.VerificationService
	mailboxes     interfaces.MailboxProvider
	inbox         InboxSource
	poller        interfaces.CodePoller
	events        interfaces.EventService
	target        common.TargetConfig
	profileOS     string
	verifDeadline time.Duration
	logger        arbor.ILogger
}

// InboxSource provides the operator-linked inbox, the code source for
// manually imported accounts when one is configured
type InboxSource interface {
	IsConfigured(ctx context.Context) bool
	Open(ctx context.Context) (interfaces.Mailbox, error)
}

// Deps bundles the workflow's collaborators
type Deps struct {
	Accounts    interfaces.AccountStorage
	Credentials interfaces.CredentialStorage
	Bundles     interfaces.BundleStore
	Profiles    interfaces.ProfileService
	Rotator     interfaces.CredentialRotator
	Driver      interfaces.BrowserDriver
	Flow        interfaces.LoginFlow
	Verifier    interfaces.VerificationService
	Mailboxes   interfaces.MailboxProvider
	Inbox       InboxSource
	Poller      interfaces.CodePoller
	Events      interfaces.EventService
}

// NewWorkflow creates the healing workflow
func NewWorkflow(deps Deps, cfg *common.Config, logger arbor.ILogger) *Workflow {
	return &Workflow{
		accounts:      deps.Accounts,
		credentials:   deps.Credentials,
		bundles:       deps.Bundles,
		profiles:      deps.Profiles,
		rotator:       deps.Rotator,
		driver:        deps.Driver,
		flow:          deps.Flow,
		verifier:      deps.Verifier,
		mailboxes:     deps.Mailboxes,
		inbox:         deps.Inbox,
		poller:        deps.Poller,
		events:        deps.Events,
		target:        cfg.Target,
		profileOS:     cfg.Provisioner.ProfileOS,
		verifDeadline: cfg.Verification.Deadline,
		logger:        logger,
	}
}

// Heal recovers the account. When the bound credential and profile both
// probe healthy this is a no-op beyond the direct-reuse check: no new
// profile is ever created in that case.
func (w *Workflow) Heal(ctx context.Context, accountID string) (models.LoginOutcome, error) {
	account, err := w.accounts.Get(ctx, accountID)
	if err != nil {
		return models.LoginOutcome{}, fmt.Errorf("failed to load account %s: %w", accountID, err)
	}

	outcome, reusable, err := w.directReuse(ctx, account)
	if err != nil {
		return models.LoginOutcome{}, err
	}
	if reusable {
		return outcome, nil
	}

	return w.reprovision(ctx, account)
}

// directReuse tries the account's existing profile under its bound
// credential. The second return value reports whether the existing identity
// was usable (possibly after an in-place login); false routes to
// reprovisioning.
func (w *Workflow) directReuse(ctx context.Context, account *models.Account) (models.LoginOutcome, bool, error) {
	cred := w.boundCredential(ctx, account)
	if cred == nil {
		w.logger.Info().
			Str("account_id", account.ID).
			Msg("No valid bound credential, reprovisioning")
		return models.LoginOutcome{}, false, nil
	}

	endpoint, err := w.profiles.Start(ctx, cred.APIToken, account.ID)
	if err != nil {
		return models.LoginOutcome{}, false, w.classifyStartFailure(ctx, cred, account.ID, err)
	}

	session, err := w.driver.Attach(ctx, endpoint)
	if err != nil {
		return models.LoginOutcome{}, false, err
	}
	keepOpen := false
	defer func() {
		if !keepOpen {
			session.Close()
		}
	}()

	if err := session.Navigate(ctx, w.target.BaseURL); err != nil {
		return models.LoginOutcome{}, false, err
	}
	authed, err := session.IsAuthenticated(ctx)
	if err != nil {
		return models.LoginOutcome{}, false, err
	}
	if authed {
		w.logger.Info().Str("account_id", account.ID).Msg("Existing profile still authenticated")
		if err := w.profiles.Stop(ctx, cred.APIToken, account.ID, session, true); err != nil {
			return models.LoginOutcome{}, false, err
		}
		return models.CompletedOutcome(account.ID), true, nil
	}

	// Session lost but the profile itself is healthy: log in in place
	outcome, err := w.flow.Login(ctx, session, account, "")
	if err != nil {
		return models.LoginOutcome{}, false, err
	}

	switch outcome.Status {
	case models.LoginCompleted:
		if err := w.profiles.Stop(ctx, cred.APIToken, account.ID, session, true); err != nil {
			return models.LoginOutcome{}, false, err
		}
		return models.CompletedOutcome(account.ID), true, nil

	case models.LoginPendingVerification:
		persist := func(ctx context.Context) error {
			return w.profiles.Stop(ctx, cred.APIToken, account.ID, session, true)
		}
		// resolvePending owns the session from here
		keepOpen = true
		outcome, err := w.resolvePending(ctx, session, account, outcome, persist)
		return outcome, true, err

	default:
		// Login on the existing profile failed outright. Stop it without
		// deleting (the identity survives until a replacement is confirmed)
		// and fall back to reprovisioning.
		w.logger.Warn().
			Str("account_id", account.ID).
			Str("reason", outcome.Reason).
			Msg("In-place login failed, reprovisioning")
		if err := w.profiles.Stop(ctx, cred.APIToken, account.ID, nil, true); err != nil {
			w.logger.Warn().Err(err).Str("account_id", account.ID).Msg("Failed to stop existing profile")
		}
		return models.LoginOutcome{}, false, nil
	}
}

// reprovision creates a brand-new profile, transplants the saved session
// bundle onto it, confirms authentication, and only then swaps identities
func (w *Workflow) reprovision(ctx context.Context, account *models.Account) (models.LoginOutcome, error) {
	cred, err := w.rotator.GetUsableCredential(ctx)
	if err != nil {
		return models.LoginOutcome{}, err
	}

	bundle, err := w.bundles.Load(ctx, account.ID)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return models.LoginOutcome{}, err
	}

	spec := models.ProfileSpec{Name: account.Name, OS: w.profileOS}
	if bundle != nil {
		spec.Payload = bundle.ProfilePayload
		spec.Proxy = bundle.ProxyRecipe
	}

	newProfileID, err := w.profiles.Create(ctx, cred.APIToken, spec)
	if err != nil {
		return models.LoginOutcome{}, w.classifyCreateFailure(ctx, cred, err)
	}

	w.logger.Info().
		Str("account_id", account.ID).
		Str("new_profile_id", newProfileID).
		Str("credential_id", cred.ID).
		Msg("Replacement profile created")

	endpoint, err := w.profiles.Start(ctx, cred.APIToken, newProfileID)
	if err != nil {
		w.discardProfile(ctx, cred, newProfileID)
		return models.LoginOutcome{}, models.ClassifyServiceError(err, cred.ID, newProfileID)
	}

	session, err := w.driver.Attach(ctx, endpoint)
	if err != nil {
		w.discardProfile(ctx, cred, newProfileID)
		return models.LoginOutcome{}, err
	}
	keepOpen := false
	defer func() {
		if !keepOpen {
			session.Close()
		}
	}()

	if bundle != nil && bundle.HasLiveCookies(time.Now()) {
		if err := session.RestoreState(ctx, bundle); err != nil {
			w.logger.Warn().Err(err).Str("account_id", account.ID).Msg("Bundle transplant failed, falling back to login")
		}
	}

	if err := session.Navigate(ctx, w.target.BaseURL); err != nil {
		w.discardProfile(ctx, cred, newProfileID)
		return models.LoginOutcome{}, err
	}
	authed, err := session.IsAuthenticated(ctx)
	if err != nil {
		w.discardProfile(ctx, cred, newProfileID)
		return models.LoginOutcome{}, err
	}

	if !authed {
		outcome, err := w.flow.Login(ctx, session, account, "")
		if err != nil {
			w.discardProfile(ctx, cred, newProfileID)
			return models.LoginOutcome{}, err
		}

		switch outcome.Status {
		case models.LoginCompleted:
			// confirmed, fall through to the swap

		case models.LoginPendingVerification:
			commit := func(ctx context.Context) error {
				return w.commitSwap(ctx, account, cred, newProfileID, session)
			}
			// resolvePending owns the session from here
			keepOpen = true
			return w.resolvePending(ctx, session, account, outcome, commit)

		default:
			w.discardProfile(ctx, cred, newProfileID)
			return outcome, nil
		}
	}

	if err := w.commitSwap(ctx, account, cred, newProfileID, session); err != nil {
		return models.LoginOutcome{}, err
	}
	return models.CompletedOutcome(newProfileID), nil
}

// commitSwap finalizes a confirmed replacement: persist the new session
// bundle, swap the account identity in one transaction, then retire the old
// bundle and remote profile. The new record lands before anything old is
// removed, so an interruption can only leave both identities present.
func (w *Workflow) commitSwap(ctx context.Context, account *models.Account, cred *models.Credential, newProfileID string, session interfaces.BrowserSession) error {
	if err := w.profiles.Stop(ctx, cred.APIToken, newProfileID, session, true); err != nil {
		return fmt.Errorf("failed to persist session for replacement profile %s: %w", newProfileID, err)
	}

	updated := *account
	updated.ID = newProfileID
	updated.CredentialID = cred.ID
	updated.BundlePath = w.bundles.PathFor(newProfileID)
	updated.UpdatedAt = time.Now().UTC()

	if err := w.accounts.Swap(ctx, account.ID, &updated); err != nil {
		return fmt.Errorf("failed to swap account identity %s -> %s: %w", account.ID, newProfileID, err)
	}

	if err := w.bundles.Delete(ctx, account.ID); err != nil {
		w.logger.Warn().Err(err).Str("profile_id", account.ID).Msg("Failed to delete stale bundle")
	}
	w.retireOldProfile(ctx, account)

	w.logger.Info().
		Str("account_id", account.ID).
		Str("new_profile_id", newProfileID).
		Msg("Account healed")
	w.publishHealed(ctx, account.ID, newProfileID)

	return nil
}

// resolvePending sources a verification code for a login blocked on one.
// Auto-created accounts poll their own disposable mailbox first; when that
// fails (or the account was imported manually) a verification session is
// opened and the caller is told manual input is needed. resolvePending owns
// the browser session: every synchronous exit closes it, and the manual
// branch keeps it open until the code arrives or the deadline lapses.
func (w *Workflow) resolvePending(ctx context.Context, session interfaces.BrowserSession, account *models.Account, pending models.LoginOutcome, commit func(context.Context) error) (models.LoginOutcome, error) {
	if code, ok := w.sourceCode(ctx, account); ok {
		defer session.Close()
		outcome, err := w.flow.Login(ctx, session, account, code)
		if err != nil {
			return models.LoginOutcome{}, err
		}
		if outcome.Status == models.LoginCompleted {
			if err := commit(ctx); err != nil {
				return models.LoginOutcome{}, err
			}
		}
		return outcome, nil
	}

	submit := func(ctx context.Context, code string) (bool, error) {
		outcome, err := w.flow.Login(ctx, session, account, code)
		if err != nil {
			return false, err
		}
		if outcome.Status != models.LoginCompleted {
			return false, nil
		}
		if err := commit(ctx); err != nil {
			return false, err
		}
		session.Close()
		return true, nil
	}

	vs, err := w.verifier.Begin(ctx, pending.Context, submit)
	if err != nil {
		session.Close()
		return models.LoginOutcome{}, err
	}

	// Release the held session once the verification window cannot produce
	// further submissions. Close is idempotent, so an earlier accepted code
	// makes this a no-op.
	time.AfterFunc(w.verifDeadline+30*time.Second, func() {
		session.Close()
	})

	return pending, &models.VerificationRequiredError{SessionID: vs.ID, ManualInputNeeded: true}
}

// sourceCode tries the automatic code sources: the account's own disposable
// mailbox for auto-created accounts, the operator-linked inbox for imported
// ones. Returns false when no source produced a code.
func (w *Workflow) sourceCode(ctx context.Context, account *models.Account) (string, bool) {
	var (
		mailbox interfaces.Mailbox
		err     error
	)
	switch {
	case account.AutoCreated && w.mailboxes != nil:
		mailbox, err = w.mailboxes.OpenMailbox(ctx, account.EmailAddress, account.Password)
	case !account.AutoCreated && w.inbox != nil && w.inbox.IsConfigured(ctx):
		mailbox, err = w.inbox.Open(ctx)
	default:
		return "", false
	}
	if err != nil {
		w.logger.Warn().Err(err).Str("account_id", account.ID).Msg("Failed to open code-source mailbox, requesting manual input")
		return "", false
	}

	code, err := w.poller.WaitForCode(ctx, mailbox)
	if err != nil {
		w.logger.Warn().Err(err).Str("account_id", account.ID).Msg("Automatic code sourcing failed, requesting manual input")
		return "", false
	}
	return code, true
}

// boundCredential resolves the account's weak credential reference. A
// dangling or invalid reference yields nil, which routes to reprovisioning.
func (w *Workflow) boundCredential(ctx context.Context, account *models.Account) *models.Credential {
	if account.CredentialID == "" {
		return nil
	}
	cred, err := w.credentials.Get(ctx, account.CredentialID)
	if err != nil || !cred.Valid {
		return nil
	}
	return cred
}

// classifyStartFailure routes a start failure on the existing profile:
// credential failures demote the credential and heal onward; a corrupted or
// missing profile heals onward; anything else propagates
func (w *Workflow) classifyStartFailure(ctx context.Context, cred *models.Credential, profileID string, err error) error {
	classified := models.ClassifyServiceError(err, cred.ID, profileID)

	var authErr *models.UpstreamAuthError
	var quotaErr *models.UpstreamQuotaError
	if errors.As(classified, &authErr) || errors.As(classified, &quotaErr) {
		if markErr := w.credentials.MarkInvalid(ctx, cred.ID); markErr != nil {
			w.logger.Warn().Err(markErr).Str("credential_id", cred.ID).Msg("Failed to demote credential")
		}
		w.logger.Warn().
			Str("credential_id", cred.ID).
			Str("profile_id", profileID).
			Msg("Bound credential rejected, reprovisioning")
		return nil
	}

	var corrupted *models.ProfileCorruptedError
	if errors.As(classified, &corrupted) {
		w.logger.Warn().
			Str("profile_id", profileID).
			Str("reason", corrupted.Reason).
			Msg("Profile corrupted, reprovisioning")
		return nil
	}

	var svcErr *models.ProfileServiceError
	if errors.As(classified, &svcErr) && svcErr.StatusCode == 404 {
		w.logger.Warn().Str("profile_id", profileID).Msg("Profile gone upstream, reprovisioning")
		return nil
	}

	return classified
}

// classifyCreateFailure demotes the credential on auth/quota and returns the
// classified error. No silent retry under another credential: the caller may
// have partial side effects upstream.
func (w *Workflow) classifyCreateFailure(ctx context.Context, cred *models.Credential, err error) error {
	classified := models.ClassifyServiceError(err, cred.ID, "")

	var authErr *models.UpstreamAuthError
	var quotaErr *models.UpstreamQuotaError
	if errors.As(classified, &authErr) || errors.As(classified, &quotaErr) {
		if markErr := w.credentials.MarkInvalid(ctx, cred.ID); markErr != nil {
			w.logger.Warn().Err(markErr).Str("credential_id", cred.ID).Msg("Failed to demote credential")
		}
	}
	return classified
}

// discardProfile deletes an unconfirmed replacement profile so it does not
// leak against the credential's quota
func (w *Workflow) discardProfile(ctx context.Context, cred *models.Credential, profileID string) {
	if err := w.profiles.Stop(ctx, cred.APIToken, profileID, nil, false); err != nil {
		w.logger.Warn().Err(err).Str("profile_id", profileID).Msg("Failed to discard replacement profile")
	}
}

// retireOldProfile best-effort deletes the replaced remote profile under
// whatever credential still references it
func (w *Workflow) retireOldProfile(ctx context.Context, account *models.Account) {
	cred := w.boundCredential(ctx, account)
	if cred == nil {
		return
	}
	if err := w.profiles.Delete(ctx, cred.APIToken, account.ID); err != nil {
		w.logger.Warn().Err(err).Str("profile_id", account.ID).Msg("Failed to delete replaced remote profile")
	}
}

func (w *Workflow) publishHealed(ctx context.Context, oldID, newID string) {
	if w.events == nil {
		return
	}
	event := interfaces.Event{
		Type:      interfaces.EventAccountHealed,
		Timestamp: time.Now().UTC(),
		Payload: map[string]interface{}{
			"old_profile_id": oldID,
			"new_profile_id": newID,
		},
	}
	if err := w.events.Publish(ctx, event); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to publish healed event")
	}
}
