package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/handlers"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/services/accounts"
	"github.com/ternarybob/renovo/internal/services/browser"
	"github.com/ternarybob/renovo/internal/services/events"
	"github.com/ternarybob/renovo/internal/services/healing"
	"github.com/ternarybob/renovo/internal/services/mailbox"
	"github.com/ternarybob/renovo/internal/services/profiles"
	"github.com/ternarybob/renovo/internal/services/rotation"
	"github.com/ternarybob/renovo/internal/services/scheduler"
	"github.com/ternarybob/renovo/internal/services/status"
	"github.com/ternarybob/renovo/internal/services/tracker"
	"github.com/ternarybob/renovo/internal/services/verification"
	"github.com/ternarybob/renovo/internal/storage/badger"
	"github.com/ternarybob/renovo/internal/storage/bundles"
)

// App holds all application components and dependencies
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	ctx       context.Context
	cancelCtx context.CancelFunc

	// Storage
	StorageManager interfaces.StorageManager
	BundleStore    interfaces.BundleStore

	// Event-driven services
	EventService interfaces.EventService
	Tracker      *tracker.Service

	// Profile provisioning
	ProfilesClient *profiles.Client
	ProfileService *profiles.Service

	// Mailboxes (disposable provider + operator-linked IMAP inbox)
	MailboxProvider *mailbox.Provider
	IMAPService     *mailbox.IMAPService
	Poller          *mailbox.Poller

	// Browser automation
	Driver *browser.Driver
	Flow   *browser.Flow

	// Account lifecycle
	Verifier       *verification.Service
	Provisioner    *rotation.Provisioner
	Rotator        *rotation.Rotator
	Healer         *healing.Workflow
	AccountService *accounts.Service

	// System services
	StatusService    *status.Service
	SchedulerService *scheduler.Service

	// HTTP handlers
	APIHandler          *handlers.APIHandler
	WSHandler           *handlers.WebSocketHandler
	AccountHandler      *handlers.AccountHandler
	CredentialHandler   *handlers.CredentialHandler
	ProcessHandler      *handlers.ProcessHandler
	VerificationHandler *handlers.VerificationHandler
	SchedulerHandler    *handlers.SchedulerHandler
	SettingsHandler     *handlers.SettingsHandler
	StatusHandler       *handlers.StatusHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	if err := app.initStorage(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	if err := app.initScheduler(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	logger.Info().
		Str("provisioner", cfg.Provisioner.BaseURL).
		Str("target", cfg.Target.BaseURL).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage opens the badger-backed record stores and the on-disk
// bundle store
func (a *App) initStorage() error {
	storageManager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	bundleStore, err := bundles.NewStore(a.Config.Storage.Bundles.Dir, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create bundle store: %w", err)
	}
	a.BundleStore = bundleStore

	a.Logger.Debug().
		Str("path", a.Config.Storage.Bundles.Dir).
		Msg("Bundle store initialized")

	return nil
}

// initServices initializes all business services in dependency order:
// events and tracker first (everything publishes through them), then the
// provisioning client, mailboxes and browser automation, and finally the
// composed lifecycle services (rotator, healer, accounts) that sit on top.
func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)
	a.Tracker = tracker.NewService(a.EventService, a.Logger)

	// Remote profile provisioning
	a.ProfilesClient = profiles.NewClient(&a.Config.Provisioner, a.Logger)
	a.ProfileService = profiles.NewService(a.ProfilesClient, a.BundleStore, a.Config, a.Logger)

	// Mailboxes
	a.MailboxProvider = mailbox.NewProvider(&a.Config.Mailbox, a.Logger)
	a.IMAPService = mailbox.NewIMAPService(a.StorageManager.KeyValueStorage(), a.Config.Mailbox.IMAP, a.Logger)
	a.Poller = mailbox.NewPoller(&a.Config.Mailbox, a.Logger)

	// Browser automation
	a.Driver = browser.NewDriver(a.Config.Browser, a.Logger)
	a.Flow = browser.NewFlow(a.Config.Target, a.Poller, a.Logger)

	// Verification sessions
	a.Verifier = verification.NewService(&a.Config.Verification, a.EventService, a.Logger)

	// Credential rotation with auto-provision fallback
	a.Provisioner = rotation.NewProvisioner(a.MailboxProvider, a.Poller, &a.Config.Provisioner, a.Logger)
	a.Rotator = rotation.NewRotator(a.StorageManager.CredentialStorage(), a.ProfileService, a.Provisioner, a.EventService, a.Logger)

	// Healing workflow
	a.Healer = healing.NewWorkflow(healing.Deps{
		Accounts:    a.StorageManager.AccountStorage(),
		Credentials: a.StorageManager.CredentialStorage(),
		Bundles:     a.BundleStore,
		Profiles:    a.ProfileService,
		Rotator:     a.Rotator,
		Driver:      a.Driver,
		Flow:        a.Flow,
		Verifier:    a.Verifier,
		Mailboxes:   a.MailboxProvider,
		Inbox:       a.IMAPService,
		Poller:      a.Poller,
		Events:      a.EventService,
	}, a.Config, a.Logger)

	// Account lifecycle orchestration
	a.AccountService = accounts.NewService(accounts.Deps{
		Accounts:    a.StorageManager.AccountStorage(),
		Credentials: a.StorageManager.CredentialStorage(),
		Bundles:     a.BundleStore,
		Profiles:    a.ProfileService,
		Rotator:     a.Rotator,
		Driver:      a.Driver,
		Flow:        a.Flow,
		Verifier:    a.Verifier,
		Mailboxes:   a.MailboxProvider,
		Healer:      a.Healer,
	}, a.Config, a.Logger)

	a.StatusService = status.NewService(
		a.StorageManager.CredentialStorage(),
		a.StorageManager.AccountStorage(),
		a.Tracker,
		a.Verifier,
		a.Logger,
	)

	a.SchedulerService = scheduler.NewService(a.Logger)

	a.Logger.Debug().Msg("Services initialized")
	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler()
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger)
	a.AccountHandler = handlers.NewAccountHandler(a.StorageManager.AccountStorage(), a.AccountService, a.Tracker, a.Logger)
	a.CredentialHandler = handlers.NewCredentialHandler(a.StorageManager.CredentialStorage(), a.Rotator, a.Logger)
	a.ProcessHandler = handlers.NewProcessHandler(a.Tracker, a.Logger)
	a.VerificationHandler = handlers.NewVerificationHandler(a.Verifier, &a.Config.Verification, a.Logger)
	a.SchedulerHandler = handlers.NewSchedulerHandler(a.SchedulerService, a.Logger)
	a.SettingsHandler = handlers.NewSettingsHandler(a.IMAPService, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.StatusService, a.Logger)

	a.Logger.Debug().Msg("Handlers initialized")
	return nil
}

// initScheduler registers recurring jobs and starts the cron runner when
// scheduling is enabled
func (a *App) initScheduler() error {
	err := a.SchedulerService.RegisterJob(
		"credential-revalidation",
		a.Config.Scheduler.RevalidationSchedule,
		"Re-probe invalid credentials and restore the ones that pass",
		func() error {
			ctx, cancel := context.WithTimeout(a.ctx, 10*time.Minute)
			defer cancel()

			restored, err := a.Rotator.Revalidate(ctx)
			if err != nil {
				return err
			}
			if restored > 0 {
				a.Logger.Info().Int("restored", restored).Msg("Revalidation sweep restored credentials")
			}
			return nil
		},
	)
	if err != nil {
		return fmt.Errorf("failed to register revalidation job: %w", err)
	}

	if !a.Config.Scheduler.Enabled {
		a.Logger.Info().Msg("Scheduler disabled by configuration")
		return nil
	}

	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	return nil
}

// Close shuts down application components in reverse dependency order
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.SchedulerService != nil {
		a.SchedulerService.Stop()
		a.Logger.Info().Msg("Scheduler stopped")
	}

	// Wait for in-flight processes to finish or time out
	if a.Tracker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.Tracker.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Process tracker shutdown incomplete")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
