// -----------------------------------------------------------------------
// Disposable Mailbox Provider - mail.tm compatible REST API
// -----------------------------------------------------------------------

package mailbox

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/httpclient"
	"github.com/ternarybob/renovo/internal/interfaces"
)

const addressAlphabet = "abcdefghijklmnopqrstuvwxyz"

// Provider creates and reopens disposable mailboxes on a mail.tm compatible
// service
type Provider struct {
	baseURL string
	http    *httpclient.Client
	logger  arbor.ILogger
}

// NewProvider creates a disposable mailbox provider
func NewProvider(cfg *common.MailboxConfig, logger arbor.ILogger) *Provider {
	return &Provider{
		baseURL: cfg.BaseURL,
		http:    httpclient.New(30*time.Second, 3, logger),
		logger:  logger,
	}
}

// CreateMailbox registers a fresh mailbox under the service's first
// available domain with a random local part and password
func (p *Provider) CreateMailbox(ctx context.Context) (interfaces.Mailbox, error) {
	domain, err := p.firstDomain(ctx)
	if err != nil {
		return nil, err
	}

	address := fmt.Sprintf("%s@%s", randomLocalPart(), domain)
	password := randomString(12)

	resp, err := p.http.DoJSON(ctx, "POST", p.baseURL+"/accounts", nil, map[string]string{
		"address":  address,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 && resp.StatusCode != 201 {
		return nil, fmt.Errorf("mailbox registration failed with status %d: %s", resp.StatusCode, resp.Body)
	}

	p.logger.Info().Str("address", address).Msg("Disposable mailbox created")
	return p.OpenMailbox(ctx, address, password)
}

// OpenMailbox authenticates against an existing mailbox and returns a
// pollable handle
func (p *Provider) OpenMailbox(ctx context.Context, address, password string) (interfaces.Mailbox, error) {
	resp, err := p.http.DoJSON(ctx, "POST", p.baseURL+"/token", nil, map[string]string{
		"address":  address,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	var auth struct {
		Token string `json:"token"`
	}
	if err := resp.JSON(&auth); err != nil {
		return nil, err
	}
	if auth.Token == "" {
		return nil, fmt.Errorf("mailbox login for %s returned no token (status %d)", address, resp.StatusCode)
	}

	return &tempMailbox{
		provider: p,
		address:  address,
		password: password,
		token:    auth.Token,
	}, nil
}

func (p *Provider) firstDomain(ctx context.Context) (string, error) {
	resp, err := p.http.DoJSON(ctx, "GET", p.baseURL+"/domains", nil, nil)
	if err != nil {
		return "", err
	}

	var domains struct {
		Members []struct {
			Domain string `json:"domain"`
		} `json:"hydra:member"`
	}
	if err := resp.JSON(&domains); err != nil {
		return "", err
	}
	if len(domains.Members) == 0 {
		return "", fmt.Errorf("mailbox service offered no domains")
	}
	return domains.Members[0].Domain, nil
}

// tempMailbox is an authenticated handle on one disposable mailbox
type tempMailbox struct {
	provider *Provider
	address  string
	password string
	token    string
}

func (m *tempMailbox) Address() string  { return m.address }
func (m *tempMailbox) Password() string { return m.password }

// Messages lists the inbox and fetches each message's full text. The list
// endpoint only carries previews, so bodies come from per-message fetches.
func (m *tempMailbox) Messages(ctx context.Context) ([]interfaces.MailMessage, error) {
	headers := map[string]string{"Authorization": "Bearer " + m.token}

	resp, err := m.provider.http.DoJSON(ctx, "GET", m.provider.baseURL+"/messages", headers, nil)
	if err != nil {
		return nil, err
	}

	var listing struct {
		Members []struct {
			ID      string `json:"id"`
			Subject string `json:"subject"`
			From    struct {
				Address string `json:"address"`
			} `json:"from"`
			CreatedAt time.Time `json:"createdAt"`
		} `json:"hydra:member"`
	}
	if err := resp.JSON(&listing); err != nil {
		return nil, err
	}

	messages := make([]interfaces.MailMessage, 0, len(listing.Members))
	for _, item := range listing.Members {
		full, err := m.provider.http.DoJSON(ctx, "GET", m.provider.baseURL+"/messages/"+item.ID, headers, nil)
		if err != nil {
			return nil, err
		}

		var detail struct {
			Text string   `json:"text"`
			HTML []string `json:"html"`
		}
		if err := full.JSON(&detail); err != nil {
			return nil, err
		}

		body := detail.Text
		if body == "" && len(detail.HTML) > 0 {
			body = detail.HTML[0]
		}

		messages = append(messages, interfaces.MailMessage{
			ID:      item.ID,
			From:    item.From.Address,
			Subject: item.Subject,
			Body:    body,
			Date:    item.CreatedAt,
		})
	}
	return messages, nil
}

func randomLocalPart() string {
	return fmt.Sprintf("%s%d", randomString(10), time.Now().UnixMilli())
}

func randomString(length int) string {
	out := make([]byte, length)
	for i := range out {
		out[i] = addressAlphabet[rand.Intn(len(addressAlphabet))]
	}
	return string(out)
}
