package interfaces

import (
	"context"
	"time"
)

// MailMessage is a fetched mailbox message
type MailMessage struct {
	ID      string
	From    string
	Subject string
	Body    string
	Date    time.Time
}

// Mailbox is an open mailbox whose messages can be polled
type Mailbox interface {
	Address() string
	Password() string
	Messages(ctx context.Context) ([]MailMessage, error)
}

// MailboxProvider creates and reopens disposable mailboxes
type MailboxProvider interface {
	// CreateMailbox registers a fresh mailbox with a random address
	CreateMailbox(ctx context.Context) (Mailbox, error)

	// OpenMailbox re-authenticates against an existing mailbox
	OpenMailbox(ctx context.Context, address, password string) (Mailbox, error)
}

// CodePoller polls a mailbox within a bounded time window
type CodePoller interface {
	// WaitForCode polls until a 6-digit numeric code appears
	WaitForCode(ctx context.Context, mailbox Mailbox) (string, error)

	// WaitForConfirmLink polls until a confirmation URL appears
	WaitForConfirmLink(ctx context.Context, mailbox Mailbox) (string, error)
}
