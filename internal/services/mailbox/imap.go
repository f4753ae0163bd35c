// -----------------------------------------------------------------------
// IMAP Mailbox - operator-linked inbox read over IMAP
// Credentials are stored in KeyValue storage with imap_ prefix
// -----------------------------------------------------------------------

package mailbox

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/interfaces"
)

// IMAPService reads an operator-linked inbox over IMAP. It is the code
// source for manually imported accounts whose mailbox is not disposable.
// KeyValue storage overrides the TOML config so the operator can link an
// inbox at runtime without a restart.
type IMAPService struct {
	kvStorage interfaces.KeyValueStorage
	defaults  common.IMAPConfig
	logger    arbor.ILogger
}

// NewIMAPService creates the IMAP mailbox service
func NewIMAPService(kvStorage interfaces.KeyValueStorage, defaults common.IMAPConfig, logger arbor.ILogger) *IMAPService {
	return &IMAPService{
		kvStorage: kvStorage,
		defaults:  defaults,
		logger:    logger,
	}
}

// GetConfig merges the TOML defaults with KeyValue overrides
func (s *IMAPService) GetConfig(ctx context.Context) common.IMAPConfig {
	config := s.defaults
	if config.Port == 0 {
		config.Port = 993
	}

	if host, err := s.kvStorage.Get(ctx, "imap_host"); err == nil && host != "" {
		config.Host = host
	}
	if portStr, err := s.kvStorage.Get(ctx, "imap_port"); err == nil && portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			config.Port = port
		}
	}
	if username, err := s.kvStorage.Get(ctx, "imap_username"); err == nil && username != "" {
		config.Username = username
	}
	if password, err := s.kvStorage.Get(ctx, "imap_password"); err == nil && password != "" {
		config.Password = password
	}
	if tlsStr, err := s.kvStorage.Get(ctx, "imap_use_tls"); err == nil && tlsStr != "" {
		config.UseTLS = strings.ToLower(tlsStr) == "true" || tlsStr == "1"
	}

	return config
}

// SetConfig saves IMAP settings to KeyValue storage
func (s *IMAPService) SetConfig(ctx context.Context, config common.IMAPConfig) error {
	if err := s.kvStorage.Set(ctx, "imap_host", config.Host, "IMAP server hostname"); err != nil {
		return fmt.Errorf("failed to set imap_host: %w", err)
	}
	if err := s.kvStorage.Set(ctx, "imap_port", strconv.Itoa(config.Port), "IMAP server port"); err != nil {
		return fmt.Errorf("failed to set imap_port: %w", err)
	}
	if err := s.kvStorage.Set(ctx, "imap_username", config.Username, "IMAP username (email address)"); err != nil {
		return fmt.Errorf("failed to set imap_username: %w", err)
	}
	if err := s.kvStorage.Set(ctx, "imap_password", config.Password, "IMAP password or app password"); err != nil {
		return fmt.Errorf("failed to set imap_password: %w", err)
	}
	tlsStr := "false"
	if config.UseTLS {
		tlsStr = "true"
	}
	if err := s.kvStorage.Set(ctx, "imap_use_tls", tlsStr, "Use TLS encryption"); err != nil {
		return fmt.Errorf("failed to set imap_use_tls: %w", err)
	}

	s.logger.Info().
		Str("host", config.Host).
		Int("port", config.Port).
		Msg("IMAP configuration saved")

	return nil
}

// IsConfigured checks if IMAP has the minimum required settings
func (s *IMAPService) IsConfigured(ctx context.Context) bool {
	config := s.GetConfig(ctx)
	return config.Host != "" && config.Username != "" && config.Password != ""
}

// Open returns a pollable handle on the linked inbox
func (s *IMAPService) Open(ctx context.Context) (interfaces.Mailbox, error) {
	config := s.GetConfig(ctx)
	if config.Host == "" || config.Username == "" || config.Password == "" {
		return nil, fmt.Errorf("IMAP not configured")
	}
	return &imapMailbox{config: config, logger: s.logger}, nil
}

// imapMailbox reads unseen messages; a fresh connection per poll keeps the
// handle stateless across the long poll window
type imapMailbox struct {
	config common.IMAPConfig
	logger arbor.ILogger
}

func (m *imapMailbox) Address() string  { return m.config.Username }
func (m *imapMailbox) Password() string { return m.config.Password }

func (m *imapMailbox) Messages(ctx context.Context) ([]interfaces.MailMessage, error) {
	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)

	var c *client.Client
	var err error
	if m.config.UseTLS {
		c, err = client.DialTLS(addr, nil)
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer c.Logout()

	if err := c.Login(m.config.Username, m.config.Password); err != nil {
		return nil, fmt.Errorf("IMAP login failed: %w", err)
	}

	mbox, err := c.Select("INBOX", false)
	if err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}
	if mbox.Messages == 0 {
		return []interfaces.MailMessage{}, nil
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search for unseen messages: %w", err)
	}
	if len(seqNums) == 0 {
		return []interfaces.MailMessage{}, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	messages := make(chan *imap.Message, len(seqNums))
	section := &imap.BodySectionName{}

	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, section.FetchItem()}, messages)
	}()

	var out []interfaces.MailMessage
	for msg := range messages {
		if msg == nil {
			continue
		}

		body, err := parseMessageBody(msg, section)
		if err != nil {
			m.logger.Warn().Err(err).Int64("seq", int64(msg.SeqNum)).Msg("Failed to parse message body")
			continue
		}

		from := ""
		if len(msg.Envelope.From) > 0 {
			from = msg.Envelope.From[0].Address()
		}

		out = append(out, interfaces.MailMessage{
			ID:      strconv.FormatUint(uint64(msg.SeqNum), 10),
			From:    from,
			Subject: msg.Envelope.Subject,
			Body:    body,
			Date:    msg.Envelope.Date,
		})
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return out, nil
}

// parseMessageBody extracts the text body from an IMAP message
func parseMessageBody(msg *imap.Message, section *imap.BodySectionName) (string, error) {
	r := msg.GetBody(section)
	if r == nil {
		return "", fmt.Errorf("no body section")
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to create mail reader: %w", err)
	}

	var body string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read next part: %w", err)
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			if strings.HasPrefix(contentType, "text/plain") {
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return "", fmt.Errorf("failed to read body: %w", err)
				}
				body = string(b)
			}
		}
	}

	return strings.TrimSpace(body), nil
}
