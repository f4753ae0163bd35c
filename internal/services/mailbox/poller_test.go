package mailbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/interfaces"
)

// scriptedMailbox returns a different message set on each poll
type scriptedMailbox struct {
	mu    sync.Mutex
	polls int
	pages [][]interfaces.MailMessage
}

func (m *scriptedMailbox) Address() string  { return "test@example.com" }
func (m *scriptedMailbox) Password() string { return "pw" }

func (m *scriptedMailbox) Messages(ctx context.Context) ([]interfaces.MailMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page := m.polls
	if page >= len(m.pages) {
		page = len(m.pages) - 1
	}
	m.polls++
	return m.pages[page], nil
}

func newTestPoller(budget time.Duration) *Poller {
	cfg := &common.MailboxConfig{PollInterval: 10 * time.Millisecond, PollBudget: budget}
	return NewPoller(cfg, arbor.NewLogger())
}

func TestWaitForCodeFindsCodeOnLaterPoll(t *testing.T) {
	mbox := &scriptedMailbox{pages: [][]interfaces.MailMessage{
		{},
		{{ID: "1", Subject: "Welcome", Body: "Thanks for signing up"}},
		{{ID: "2", Subject: "Your code", Body: "Your verification code is 481516 - it expires soon"}},
	}}

	code, err := newTestPoller(2 * time.Second).WaitForCode(context.Background(), mbox)
	require.NoError(t, err)
	assert.Equal(t, "481516", code)
}

func TestWaitForCodeIgnoresShorterNumbers(t *testing.T) {
	mbox := &scriptedMailbox{pages: [][]interfaces.MailMessage{
		{{ID: "1", Body: "Order #12345 confirmed"}},
	}}

	_, err := newTestPoller(50 * time.Millisecond).WaitForCode(context.Background(), mbox)
	assert.Error(t, err)
}

func TestWaitForCodeTimesOut(t *testing.T) {
	mbox := &scriptedMailbox{pages: [][]interfaces.MailMessage{{}}}

	start := time.Now()
	_, err := newTestPoller(50 * time.Millisecond).WaitForCode(context.Background(), mbox)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitForConfirmLink(t *testing.T) {
	body := `Click <a href="https://api.gologin.com/user/email/confirm/abc123?sig=xyz">here</a> to confirm`
	mbox := &scriptedMailbox{pages: [][]interfaces.MailMessage{
		{{ID: "1", Subject: "Confirm your email", Body: body}},
	}}

	link, err := newTestPoller(time.Second).WaitForConfirmLink(context.Background(), mbox)
	require.NoError(t, err)
	assert.Equal(t, "https://api.gologin.com/user/email/confirm/abc123?sig=xyz", link)
}

func TestWaitForCodeHonorsContextCancellation(t *testing.T) {
	mbox := &scriptedMailbox{pages: [][]interfaces.MailMessage{{}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPoller(time.Minute).WaitForCode(ctx, mbox)
	assert.ErrorIs(t, err, context.Canceled)
}
