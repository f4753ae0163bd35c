// -----------------------------------------------------------------------
// Credential Provisioner - end-to-end signup for a fresh credential
// -----------------------------------------------------------------------

package rotation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
	"golang.org/x/time/rate"
)

// Signup page selectors for the provisioning service's web console
const (
	selectorSignupEmail    = `input[placeholder="Email address"]`
	selectorSignupPassword = `input[placeholder="Password"]`
	selectorSignupConfirm  = `input[placeholder="Confirm password"]`
	selectorSignupSubmit   = `button[type="submit"]`
	selectorTokenValue     = `div[class*="InputToken"]`

	tokenPagePath = "/personalArea/TokenApi"
)

// Provisioner registers a brand-new credential: it creates a disposable
// mailbox, drives the signup flow in a local headless browser, confirms the
// address through the emailed link, then issues and reveals an API token.
// Signups are rate limited because the upstream treats bursts as abuse.
type Provisioner struct {
	mailboxes interfaces.MailboxProvider
	poller    interfaces.CodePoller
	cfg       *common.ProvisionerConfig
	limiter   *rate.Limiter
	logger    arbor.ILogger
}

// NewProvisioner creates a credential provisioner
func NewProvisioner(mailboxes interfaces.MailboxProvider, poller interfaces.CodePoller, cfg *common.ProvisionerConfig, logger arbor.ILogger) *Provisioner {
	return &Provisioner{
		mailboxes: mailboxes,
		poller:    poller,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Every(time.Minute), 1),
		logger:    logger,
	}
}

// Provision runs the full signup flow and returns the new credential. The
// mailbox password doubles as the account password so the credential can be
// recovered later from its stored mailbox.
func (p *Provisioner) Provision(ctx context.Context) (*models.Credential, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	mailbox, err := p.mailboxes.CreateMailbox(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create signup mailbox: %w", err)
	}

	p.logger.Info().Str("email", mailbox.Address()).Msg("Driving signup flow")

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("incognito", true),
		chromedp.Flag("lang", "en-US"),
	)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	token, err := p.signup(browserCtx, mailbox)
	if err != nil {
		return nil, fmt.Errorf("signup flow failed for %s: %w", mailbox.Address(), err)
	}

	return models.NewCredential(common.NewCredentialID(), mailbox.Address(), token), nil
}

func (p *Provisioner) signup(ctx context.Context, mailbox interfaces.Mailbox) (string, error) {
	password := mailbox.Password()
	tokenURL := p.tokenPageURL()

	err := chromedp.Run(ctx,
		chromedp.Navigate(p.cfg.SignupURL),
		chromedp.WaitVisible(selectorSignupEmail),
		chromedp.SendKeys(selectorSignupEmail, mailbox.Address()),
		chromedp.SendKeys(selectorSignupPassword, password),
		chromedp.SendKeys(selectorSignupConfirm, password),
		chromedp.Click(selectorSignupSubmit),
		chromedp.WaitNotPresent(selectorSignupSubmit),
	)
	if err != nil {
		return "", fmt.Errorf("signup form submission: %w", err)
	}

	confirmLink, err := p.poller.WaitForConfirmLink(ctx, mailbox)
	if err != nil {
		return "", fmt.Errorf("confirmation link never arrived: %w", err)
	}

	var token string
	err = chromedp.Run(ctx,
		chromedp.Navigate(confirmLink),
		chromedp.Navigate(tokenURL),
		chromedp.Click(`//span[contains(text(), "New Token")]`, chromedp.BySearch),
		chromedp.Click(`//span[contains(text(), "Reveal token")]`, chromedp.BySearch),
		chromedp.WaitVisible(selectorTokenValue),
		chromedp.Text(selectorTokenValue, &token),
	)
	if err != nil {
		return "", fmt.Errorf("token issuance: %w", err)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("token page revealed an empty token")
	}
	return token, nil
}

func (p *Provisioner) tokenPageURL() string {
	base := strings.TrimSuffix(p.cfg.SignupURL, "/sign_up")
	return base + tokenPagePath
}
