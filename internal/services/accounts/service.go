// -----------------------------------------------------------------------
// Account Orchestrator - register, import, and run target-site accounts
// -----------------------------------------------------------------------

package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
)

// Service drives the account-facing operations: registering brand-new
// accounts, importing manually created ones, and running (re-validating) an
// existing account. Each operation provisions a fresh profile under a
// rotated credential; recovery of broken accounts is delegated to the
// healing workflow.
type Service struct {
	accounts    interfaces.AccountStorage
	credentials interfaces.CredentialStorage
	bundles     interfaces.BundleStore
	profiles    interfaces.ProfileService
	rotator     interfaces.CredentialRotator
	driver      interfaces.BrowserDriver
	flow        interfaces.LoginFlow
	verifier    interfaces.VerificationService
	mailboxes   interfaces.MailboxProvider
	healer      interfaces.HealingService
	bundleDir   string
	profileOS   string
	logger      arbor.ILogger
}

// Deps bundles the orchestrator's collaborators
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
	Healer      interfaces.HealingService
}

// NewService creates the account orchestrator
func NewService(deps Deps, cfg *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		accounts:    deps.Accounts,
		credentials: deps.Credentials,
		bundles:     deps.Bundles,
		profiles:    deps.Profiles,
		rotator:     deps.Rotator,
		driver:      deps.Driver,
		flow:        deps.Flow,
		verifier:    deps.Verifier,
		mailboxes:   deps.Mailboxes,
		healer:      deps.Healer,
		bundleDir:   cfg.Storage.Bundles.Dir,
		profileOS:   cfg.Provisioner.ProfileOS,
		logger:      logger,
	}
}

// Register creates a brand-new target-site account on a fresh profile. A
// disposable mailbox supplies the address, the password, and the emailed
// verification code, so registration completes without operator input.
func (s *Service) Register(ctx context.Context, fullName string) (models.LoginOutcome, error) {
	mailbox, err := s.mailboxes.CreateMailbox(ctx)
	if err != nil {
		return models.LoginOutcome{}, fmt.Errorf("failed to create mailbox: %w", err)
	}

	cred, profileID, session, err := s.freshProfile(ctx, fullName)
	if err != nil {
		return models.LoginOutcome{}, err
	}
	defer session.Close()

	outcome, err := s.flow.Register(ctx, session, mailbox, fullName)
	if err != nil {
		s.discardProfile(ctx, cred, profileID)
		return models.LoginOutcome{}, err
	}
	if outcome.Status != models.LoginCompleted {
		s.discardProfile(ctx, cred, profileID)
		return outcome, nil
	}

	account := models.NewAccount(profileID, fullName, mailbox.Address(), mailbox.Password(), cred.ID, true, s.bundleDir)
	if err := s.persist(ctx, cred, account, session); err != nil {
		return models.LoginOutcome{}, err
	}

	s.logger.Info().
		Str("profile_id", profileID).
		Str("email", mailbox.Address()).
		Msg("Account registered")
	return models.CompletedOutcome(profileID), nil
}

// ImportRequest carries the identity of a manually created account
type ImportRequest struct {
	Name         string
	EmailAddress string
	Password     string
}

// Import binds a manually created target-site account to a fresh profile by
// logging in once. A verification challenge cannot be answered automatically
// for imported accounts, so the pending outcome escalates to a manual
// verification session.
func (s *Service) Import(ctx context.Context, req ImportRequest) (models.LoginOutcome, error) {
	cred, profileID, session, err := s.freshProfile(ctx, req.Name)
	if err != nil {
		return models.LoginOutcome{}, err
	}
	keepOpen := false
	defer func() {
		if !keepOpen {
			session.Close()
		}
	}()

	account := models.NewAccount(profileID, req.Name, req.EmailAddress, req.Password, cred.ID, false, s.bundleDir)

	outcome, err := s.flow.Login(ctx, session, account, "")
	if err != nil {
		s.discardProfile(ctx, cred, profileID)
		return models.LoginOutcome{}, err
	}

	switch outcome.Status {
	case models.LoginCompleted:
		if err := s.persist(ctx, cred, account, session); err != nil {
			return models.LoginOutcome{}, err
		}
		s.logger.Info().
			Str("profile_id", profileID).
			Str("email", req.EmailAddress).
			Msg("Account imported")
		return models.CompletedOutcome(profileID), nil

	case models.LoginPendingVerification:
		submit := func(ctx context.Context, code string) (bool, error) {
			resolved, err := s.flow.Login(ctx, session, account, code)
			if err != nil {
				return false, err
			}
			if resolved.Status != models.LoginCompleted {
				return false, nil
			}
			if err := s.persist(ctx, cred, account, session); err != nil {
				return false, err
			}
			session.Close()
			return true, nil
		}
		vs, err := s.verifier.Begin(ctx, outcome.Context, submit)
		if err != nil {
			s.discardProfile(ctx, cred, profileID)
			return models.LoginOutcome{}, err
		}
		keepOpen = true
		return outcome, &models.VerificationRequiredError{SessionID: vs.ID, ManualInputNeeded: true}

	default:
		s.discardProfile(ctx, cred, profileID)
		return outcome, nil
	}
}

// Run re-validates an account end to end. Running is the same workflow as
// healing: reuse the existing identity when it still works, migrate to a
// replacement profile when it does not.
func (s *Service) Run(ctx context.Context, accountID string) (models.LoginOutcome, error) {
	return s.healer.Heal(ctx, accountID)
}

// Rename updates the display name of an account
func (s *Service) Rename(ctx context.Context, accountID, name string) (*models.Account, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	account.Name = name
	account.UpdatedAt = time.Now().UTC()
	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Remove deletes the account record, its session bundle, and (best effort)
// the remote profile
func (s *Service) Remove(ctx context.Context, accountID string) error {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}

	if err := s.accounts.Delete(ctx, accountID); err != nil {
		return err
	}
	if err := s.bundles.Delete(ctx, accountID); err != nil {
		s.logger.Warn().Err(err).Str("profile_id", accountID).Msg("Failed to delete session bundle")
	}

	if account.CredentialID != "" {
		cred, err := s.credentials.Get(ctx, account.CredentialID)
		if err == nil && cred.Valid {
			if err := s.profiles.Delete(ctx, cred.APIToken, accountID); err != nil {
				s.logger.Warn().Err(err).Str("profile_id", accountID).Msg("Failed to delete remote profile")
			}
		}
	}
	return nil
}

// freshProfile provisions and starts a new profile under a rotated
// credential and attaches an automation session to it. On auth/quota
// failures the credential is demoted and the classified error returned;
// nothing is retried under another credential.
func (s *Service) freshProfile(ctx context.Context, name string) (*models.Credential, string, interfaces.BrowserSession, error) {
	var profileID string
	cred, err := s.rotator.ExecuteWithRotation(ctx, func(ctx context.Context, cred *models.Credential) error {
		id, err := s.profiles.Create(ctx, cred.APIToken, models.ProfileSpec{Name: name, OS: s.profileOS})
		if err != nil {
			return err
		}
		profileID = id
		return nil
	})
	if err != nil {
		return nil, "", nil, err
	}

	endpoint, err := s.profiles.Start(ctx, cred.APIToken, profileID)
	if err != nil {
		s.discardProfile(ctx, cred, profileID)
		return nil, "", nil, models.ClassifyServiceError(err, cred.ID, profileID)
	}

	session, err := s.driver.Attach(ctx, endpoint)
	if err != nil {
		s.discardProfile(ctx, cred, profileID)
		return nil, "", nil, err
	}

	return cred, profileID, session, nil
}

// persist captures the live session into a bundle, stops the remote profile,
// and saves the account record
func (s *Service) persist(ctx context.Context, cred *models.Credential, account *models.Account, session interfaces.BrowserSession) error {
	if err := s.profiles.Stop(ctx, cred.APIToken, account.ID, session, true); err != nil {
		return fmt.Errorf("failed to persist session for profile %s: %w", account.ID, err)
	}
	if err := s.accounts.Save(ctx, account); err != nil {
		return fmt.Errorf("failed to save account %s: %w", account.ID, err)
	}
	return nil
}

// discardProfile deletes a profile whose account never materialized
func (s *Service) discardProfile(ctx context.Context, cred *models.Credential, profileID string) {
	if profileID == "" {
		return
	}
	if err := s.profiles.Stop(ctx, cred.APIToken, profileID, nil, false); err != nil {
		s.logger.Warn().Err(err).Str("profile_id", profileID).Msg("Failed to discard profile")
	}
}
