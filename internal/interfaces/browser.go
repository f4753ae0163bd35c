package interfaces

import (
	"context"

	"github.com/ternarybob/renovo/internal/models"
)

// BrowserSession is an automation session attached to a started profile's
// remote debugging endpoint
type BrowserSession interface {
	// Navigate opens the url and waits for the page to settle
	Navigate(ctx context.Context, url string) error

	// CaptureState collects cookies, localStorage, and the user agent for
	// the given origins into a portable bundle (proxy recipe and fingerprint
	// payload are filled in by the lifecycle manager)
	CaptureState(ctx context.Context, origins []string) (*models.SessionBundle, error)

	// RestoreState transplants the bundle's cookies and localStorage onto
	// the current profile
	RestoreState(ctx context.Context, bundle *models.SessionBundle) error

	// IsAuthenticated probes for the authenticated marker on the target site
	IsAuthenticated(ctx context.Context) (bool, error)

	// Close detaches from the remote browser. The remote profile keeps
	// running until the provisioning service is told to stop it.
	Close() error
}

// BrowserDriver attaches automation sessions to remote profiles. Attach
// blocks while the bounded session pool is saturated, so it cannot open more
// simultaneous browser sessions than the operator configured.
type BrowserDriver interface {
	Attach(ctx context.Context, endpoint string) (BrowserSession, error)
}

// LoginFlow is the external collaborator that drives the target site's pages.
// Flows return a tagged LoginOutcome instead of signalling "verification
// needed" through errors.
type LoginFlow interface {
	// Login authenticates an existing account. A non-empty code answers a
	// pending verification challenge within the same flow.
	Login(ctx context.Context, session BrowserSession, account *models.Account, code string) (models.LoginOutcome, error)

	// Register creates a brand-new account on the target site using a
	// disposable mailbox for the verification code
	Register(ctx context.Context, session BrowserSession, mailbox Mailbox, fullName string) (models.LoginOutcome, error)
}
