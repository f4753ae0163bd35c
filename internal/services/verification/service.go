// -----------------------------------------------------------------------
// Verification Service - bounded-attempt, bounded-time code sessions
// -----------------------------------------------------------------------

package verification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/renovo/internal/common"
	"github.com/ternarybob/renovo/internal/interfaces"
	"github.com/ternarybob/renovo/internal/models"
)

// terminalRetention is how long a terminal session stays queryable before it
// is evicted. Long enough for the operator surface to read the outcome, short
// enough that finished sessions don't pile up.
const terminalRetention = time.Minute

// session pairs the portable snapshot with the submitter and expiry timer
type session struct {
	state  *models.VerificationSession
	submit interfaces.CodeSubmitter
	timer  *time.Timer
}

// Service manages code-verification sessions. Each session gets exactly one
// deadline timer armed at Begin; the timer is never re-armed, so the
// AWAITING_CODE lifetime is bounded regardless of how often codes arrive.
type Service struct {
	mu          sync.Mutex
	sessions    map[string]*session
	maxAttempts int
	deadline    time.Duration
	retention   time.Duration
	events      interfaces.EventService
	logger      arbor.ILogger
}

// NewService creates the verification service
func NewService(cfg *common.VerificationConfig, events interfaces.EventService, logger arbor.ILogger) *Service {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = 5 * time.Minute
	}
	return &Service{
		sessions:    make(map[string]*session),
		maxAttempts: maxAttempts,
		deadline:    deadline,
		retention:   terminalRetention,
		events:      events,
		logger:      logger,
	}
}

// Begin opens a session in AWAITING_CODE holding the pending login context
func (s *Service) Begin(ctx context.Context, loginCtx *models.LoginContext, submit interfaces.CodeSubmitter) (*models.VerificationSession, error) {
	if submit == nil {
		return nil, fmt.Errorf("code submitter is required")
	}

	id := common.NewVerificationID()
	now := time.Now().UTC()

	state := &models.VerificationSession{
		ID:        id,
		State:     models.VerificationAwaiting,
		Context:   loginCtx,
		Deadline:  now.Add(s.deadline),
		CreatedAt: now,
	}

	sess := &session{state: state, submit: submit}
	sess.timer = time.AfterFunc(s.deadline, func() { s.expire(id) })

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.logger.Info().
		Str("session_id", id).
		Str("account_id", loginCtx.AccountID).
		Str("deadline", state.Deadline.Format(time.RFC3339)).
		Msg("Verification session opened")
	s.publish(ctx, interfaces.EventVerificationPending, state)

	return snapshot(state), nil
}

// Submit forwards a code to the session's submitter. Acceptance is terminal
// VERIFIED; rejection spends one attempt and, once the budget is gone,
// terminal FAILED. Terminal sessions reject submissions without spending
// attempts.
func (s *Service) Submit(ctx context.Context, sessionID, code string) (*models.VerificationSession, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("no verification session %q", sessionID)
	}
	if sess.state.State.Terminal() {
		state := snapshot(sess.state)
		s.mu.Unlock()
		return state, fmt.Errorf("verification session %s is already %s", sessionID, state.State)
	}
	submit := sess.submit
	s.mu.Unlock()

	// The submitter drives a live browser page; it runs outside the lock so
	// a slow page cannot stall the whole service.
	accepted, err := submit(ctx, code)

	s.mu.Lock()
	defer s.mu.Unlock()

	// The deadline may have fired while the code was in flight. The timer
	// decision wins: a terminal state never rolls back.
	if sess.state.State.Terminal() {
		return snapshot(sess.state), fmt.Errorf("verification session %s is already %s", sessionID, sess.state.State)
	}

	if err != nil {
		return snapshot(sess.state), fmt.Errorf("code submission failed: %w", err)
	}

	if accepted {
		sess.state.State = models.VerificationVerified
		s.logger.Info().Str("session_id", sessionID).Msg("Verification code accepted")
		s.publish(ctx, interfaces.EventVerificationDone, sess.state)
		s.finalize(sess)
		return snapshot(sess.state), nil
	}

	sess.state.AttemptCount++
	s.logger.Warn().
		Str("session_id", sessionID).
		Int("attempts", sess.state.AttemptCount).
		Int("remaining", sess.state.AttemptsRemaining(s.maxAttempts)).
		Msg("Verification code rejected")

	if sess.state.AttemptCount >= s.maxAttempts {
		sess.state.State = models.VerificationFailed
		s.publish(ctx, interfaces.EventVerificationDone, sess.state)
		s.finalize(sess)
	}
	return snapshot(sess.state), nil
}

// Get returns a snapshot of the session, if it exists
func (s *Service) Get(sessionID string) (*models.VerificationSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return snapshot(sess.state), true
}

// List returns snapshots of all held sessions: awaiting ones plus terminal
// ones still inside the retention window
func (s *Service) List() []*models.VerificationSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.VerificationSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, snapshot(sess.state))
	}
	return out
}

// finalize runs on every terminal transition: the pending login context and
// submitter are dropped so the session no longer pins a browser page, and the
// record is evicted after a short retention window. Callers hold s.mu.
func (s *Service) finalize(sess *session) {
	sess.state.Context = nil
	sess.submit = nil
	sess.timer.Stop()

	id := sess.state.ID
	time.AfterFunc(s.retention, func() {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
	})
}

// expire is the deadline timer callback
func (s *Service) expire(sessionID string) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.state.State.Terminal() {
		s.mu.Unlock()
		return
	}
	sess.state.State = models.VerificationExpired
	state := snapshot(sess.state)
	s.finalize(sess)
	s.mu.Unlock()

	s.logger.Warn().
		Str("session_id", sessionID).
		Int("attempts", state.AttemptCount).
		Msg("Verification session expired")
	s.publish(context.Background(), interfaces.EventVerificationDone, state)
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, state *models.VerificationSession) {
	if s.events == nil {
		return
	}
	event := interfaces.Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload: map[string]interface{}{
			"session_id": state.ID,
			"state":      string(state.State),
		},
	}
	if state.Context != nil {
		event.Payload["account_id"] = state.Context.AccountID
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("session_id", state.ID).Msg("Failed to publish verification event")
	}
}

func snapshot(state *models.VerificationSession) *models.VerificationSession {
	copied := *state
	return &copied
}
