// -----------------------------------------------------------------------
// Code Poller - bounded polling for verification codes and confirm links
// -----------------------------------------------------------------------

package mailbox

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/interfaces"
)

var (
	// Verification codes are exactly six digits on their own word boundary
	codePattern = regexp.MustCompile(`\b\d{6}\b`)

	// Confirmation links are the provisioning service's email-confirm URLs
	confirmLinkPattern = regexp.MustCompile(`https://[^\s"<>]+/email/confirm/[^\s"<>]+`)
)

// Poller polls a mailbox within a bounded time budget. When the budget runs
// out without a match the caller downgrades to manual input; the poller
// itself just reports the timeout.
type Poller struct {
	interval time.Duration
	budget   time.Duration
	logger   arbor.ILogger
}

// NewPoller creates a code poller from the mailbox config
func NewPoller(cfg *common.MailboxConfig, logger arbor.ILogger) *Poller {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	budget := cfg.PollBudget
	if budget <= 0 {
		budget = 120 * time.Second
	}
	return &Poller{interval: interval, budget: budget, logger: logger}
}

// WaitForCode polls until a 6-digit code appears in any message
func (p *Poller) WaitForCode(ctx context.Context, mailbox interfaces.Mailbox) (string, error) {
	return p.wait(ctx, mailbox, "verification code", codePattern)
}

// WaitForConfirmLink polls until a confirmation URL appears in any message
func (p *Poller) WaitForConfirmLink(ctx context.Context, mailbox interfaces.Mailbox) (string, error) {
	return p.wait(ctx, mailbox, "confirmation link", confirmLinkPattern)
}

func (p *Poller) wait(ctx context.Context, mailbox interfaces.Mailbox, what string, pattern *regexp.Regexp) (string, error) {
	deadline := time.Now().Add(p.budget)

	for {
		messages, err := mailbox.Messages(ctx)
		if err != nil {
			// Keep polling through transient mailbox failures; the budget
			// bounds how long that can go on.
			p.logger.Warn().Err(err).Str("mailbox", mailbox.Address()).Msg("Mailbox poll failed")
		}
		for _, msg := range messages {
			if match := pattern.FindString(msg.Body); match != "" {
				p.logger.Info().
					Str("mailbox", mailbox.Address()).
					Str("message_id", msg.ID).
					Msgf("Found %s", what)
				return match, nil
			}
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("no %s arrived within %s", what, p.budget)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.interval):
		}
	}
}
