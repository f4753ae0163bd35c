// -----------------------------------------------------------------------
// Login Flows - drive the target site's login and signup pages
// -----------------------------------------------------------------------

package browser

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
)

// Target site selectors. The login/signup pages are owned by the target and
// change without notice; failures here surface as failed outcomes, not bugs.
const (
	selectorLoginButton  = `button[data-testid="login-button"]`
	selectorSignupButton = `button[data-testid="signup-button"]`
	selectorEmail        = `input[name="email"]`
	selectorPassword     = `input[name="current-password"]`
	selectorNewPassword  = `input[name="new-password"]`
	selectorCode         = `input[name="code"]`
	selectorFullName     = `input[name="name"]`
	selectorSubmit       = `button[type="submit"]`
)

// Flow drives the target site's pages through an attached session
type Flow struct {
	target common.TargetConfig
	poller interfaces.CodePoller
	logger arbor.ILogger
}

// NewFlow creates a login flow for the configured target site
func NewFlow(target common.TargetConfig, poller interfaces.CodePoller, logger arbor.ILogger) *Flow {
	return &Flow{target: target, poller: poller, logger: logger}
}

// Login authenticates an existing account. A non-empty code answers a
// pending verification challenge within the same flow; without one, a
// verification challenge yields a pending outcome carrying the login context.
func (f *Flow) Login(ctx context.Context, session interfaces.BrowserSession, account *models.Account, code string) (models.LoginOutcome, error) {
	s, err := rawSession(session)
	if err != nil {
		return models.LoginOutcome{}, err
	}

	f.logger.Info().
		Str("account_id", account.ID).
		Str("email", account.EmailAddress).
		Msg("Driving login flow")

	if err := session.Navigate(ctx, f.target.BaseURL+f.target.LoginPath); err != nil {
		return models.LoginOutcome{}, err
	}

	if err := s.run(ctx,
		chromedp.WaitVisible(selectorLoginButton),
		chromedp.Click(selectorLoginButton),
		chromedp.WaitVisible(selectorEmail),
		chromedp.SendKeys(selectorEmail, account.EmailAddress),
		chromedp.Click(selectorSubmit),
		chromedp.WaitVisible(selectorPassword),
		chromedp.SendKeys(selectorPassword, account.Password),
		chromedp.Click(selectorSubmit),
	); err != nil {
		return models.FailedOutcome(fmt.Sprintf("login form did not accept credentials: %v", err)), nil
	}

	challenged, err := elementPresent(ctx, s, selectorCode)
	if err != nil {
		return models.LoginOutcome{}, err
	}
	if challenged {
		if code == "" {
			return models.PendingOutcome(&models.LoginContext{
				AccountID:    account.ID,
				ProfileID:    account.ID,
				EmailAddress: account.EmailAddress,
				AutoCreated:  account.AutoCreated,
			}), nil
		}
		if err := s.run(ctx,
			chromedp.SendKeys(selectorCode, code),
			chromedp.Click(selectorSubmit),
		); err != nil {
			return models.FailedOutcome(fmt.Sprintf("code submission failed: %v", err)), nil
		}
	}

	return f.confirm(ctx, s, account.ID)
}

// Register creates a brand-new account on the target site using a disposable
// mailbox for the verification code. The mailbox password becomes the
// account password.
func (f *Flow) Register(ctx context.Context, session interfaces.BrowserSession, mailbox interfaces.Mailbox, fullName string) (models.LoginOutcome, error) {
	s, err := rawSession(session)
	if err != nil {
		return models.LoginOutcome{}, err
	}

	f.logger.Info().
		Str("email", mailbox.Address()).
		Str("name", fullName).
		Msg("Driving registration flow")

	if err := session.Navigate(ctx, f.target.BaseURL+f.target.LoginPath); err != nil {
		return models.LoginOutcome{}, err
	}

	if err := s.run(ctx,
		chromedp.WaitVisible(selectorSignupButton),
		chromedp.Click(selectorSignupButton),
		chromedp.WaitVisible(selectorEmail),
		chromedp.SendKeys(selectorEmail, mailbox.Address()),
		chromedp.Click(selectorSubmit),
		chromedp.WaitVisible(selectorNewPassword),
		chromedp.SendKeys(selectorNewPassword, mailbox.Password()),
		chromedp.Click(selectorSubmit),
	); err != nil {
		return models.FailedOutcome(fmt.Sprintf("signup form did not accept credentials: %v", err)), nil
	}

	code, err := f.poller.WaitForCode(ctx, mailbox)
	if err != nil {
		return models.FailedOutcome(fmt.Sprintf("verification code never arrived: %v", err)), nil
	}

	if err := s.run(ctx,
		chromedp.WaitVisible(selectorCode),
		chromedp.SendKeys(selectorCode, code),
		chromedp.Click(selectorSubmit),
		chromedp.WaitVisible(selectorFullName),
		chromedp.SendKeys(selectorFullName, fullName),
		chromedp.KeyEvent("\t"),
		chromedp.KeyEvent(randomBirthDate()),
		chromedp.Click(selectorSubmit),
	); err != nil {
		return models.FailedOutcome(fmt.Sprintf("profile details not accepted: %v", err)), nil
	}

	return f.confirm(ctx, s, "")
}

// confirm waits for the authenticated marker and converts its presence into
// a completed or failed outcome
func (f *Flow) confirm(ctx context.Context, s *Session, profileID string) (models.LoginOutcome, error) {
	ok, err := s.IsAuthenticated(ctx)
	if err != nil {
		return models.LoginOutcome{}, err
	}
	if !ok {
		// Give a slow page one settle cycle before giving up
		if err := s.run(ctx, chromedp.Sleep(s.cfg.NavigateWait), chromedp.WaitVisible(s.cfg.MarkerSelector)); err != nil {
			return models.FailedOutcome("authenticated marker never appeared"), nil
		}
	}
	return models.CompletedOutcome(profileID), nil
}

// elementPresent reports whether the selector matches anything on the page
func elementPresent(ctx context.Context, s *Session, selector string) (bool, error) {
	var present bool
	script := fmt.Sprintf(`document.querySelector(%q) !== null`, selector)
	if err := s.run(ctx, chromedp.Evaluate(script, &present)); err != nil {
		return false, err
	}
	return present, nil
}

// rawSession unwraps the concrete session the flows drive. Flows need the
// low-level action runner, not just the portable session surface.
func rawSession(session interfaces.BrowserSession) (*Session, error) {
	s, ok := session.(*Session)
	if !ok {
		return nil, fmt.Errorf("unsupported browser session type %T", session)
	}
	return s, nil
}

// randomBirthDate produces an adult birth date in MMDDYYYY keyboard form
func randomBirthDate() string {
	month := 10 + rand.Intn(3)
	day := 10 + rand.Intn(19)
	year := 2000 + rand.Intn(3)
	return fmt.Sprintf("%02d%02d%d", month, day, year)
}
