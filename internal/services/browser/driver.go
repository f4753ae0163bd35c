// -----------------------------------------------------------------------
// Browser Driver - remote CDP sessions behind a bounded pool
// -----------------------------------------------------------------------

package browser

import (
	"context"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/interfaces"
)

// Driver attaches automation sessions to remote profile endpoints. A slot
// semaphore caps simultaneously open sessions at the configured pool size, so
// Attach blocks while the pool is saturated.
type Driver struct {
	cfg    common.BrowserConfig
	slots  chan struct{}
	logger arbor.ILogger
}

// NewDriver creates a browser driver with a bounded session pool
func NewDriver(cfg common.BrowserConfig, logger arbor.ILogger) *Driver {
	size := cfg.MaxSessions
	if size < 1 {
		size = 1
	}
	return &Driver{
		cfg:    cfg,
		slots:  make(chan struct{}, size),
		logger: logger,
	}
}

// Attach connects to the profile's remote debugging endpoint. The returned
// session holds a pool slot until Close.
func (d *Driver) Attach(ctx context.Context, endpoint string) (interfaces.BrowserSession, error) {
	select {
	case d.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	d.logger.Info().Str("endpoint", endpoint).Msg("Attaching browser session")

	// The session outlives the attach call, so its lifetime is not tied to
	// the caller's context.
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(context.Background(), endpoint, chromedp.NoModifyURL)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	session := &Session{
		ctx:    browserCtx,
		cfg:    d.cfg,
		logger: d.logger,
	}
	session.close = func() {
		cancelBrowser()
		cancelAlloc()
		<-d.slots
	}
	return session, nil
}

// Session is one automation session attached to a remote browser
type Session struct {
	ctx       context.Context
	cfg       common.BrowserConfig
	logger    arbor.ILogger
	close     func()
	closeOnce sync.Once
}

// Close detaches from the remote browser and frees the pool slot. The remote
// profile keeps running until the provisioning service is told to stop it.
func (s *Session) Close() error {
	s.closeOnce.Do(s.close)
	return nil
}

// run executes actions under the configured per-interaction timeout while
// still honoring the caller's context
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if s.cfg.ActionTimeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, s.cfg.ActionTimeout)
		defer cancel()
	}

	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}
