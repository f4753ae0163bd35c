// -----------------------------------------------------------------------
// Process Tracker - named concurrent operations, one in flight per name
// -----------------------------------------------------------------------

package tracker

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

// process is the bookkeeping for one tracked operation. done is closed when
// the operation finishes; value/err are only read after done.
type process struct {
	info   models.ProcessInfo
	cancel context.CancelFunc
	done   chan struct{}
	value  interface{}
	err    error
}

// Service tracks named operations and enforces that at most one operation
// is in flight per name at any time
type Service struct {
	mu        sync.Mutex
	processes map[string]*process
	events    interfaces.EventService
	logger    arbor.ILogger
	wg        sync.WaitGroup
	closed    bool
}

// NewService creates a process tracker. The event service is optional.
func NewService(events interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		processes: make(map[string]*process),
		events:    events,
		logger:    logger,
	}
}

// Start registers op under name and schedules it on its own goroutine.
// If an operation with the same name has not yet completed, Start fails fast
// with *models.DuplicateProcessError and op is never invoked.
func (s *Service) Start(name string, op interfaces.ProcessOperation) (*models.ProcessInfo, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("tracker is shut down")
	}
	if existing, ok := s.processes[name]; ok {
		select {
		case <-existing.done:
			// Finished but never consumed. A completed operation does not
			// block a restart; the stale result is discarded.
			delete(s.processes, name)
		default:
			s.mu.Unlock()
			return nil, &models.DuplicateProcessError{Name: name}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &process{
		info:   models.ProcessInfo{Name: name, StartedAt: time.Now().UTC()},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.processes[name] = p
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info().Str("process", name).Msg("Process started")
	s.publish(interfaces.EventProcessStarted, name, nil)

	common.SafeGo(s.logger, "process:"+name, func() {
		defer s.wg.Done()
		defer cancel()

		value, err := op(ctx)

		s.mu.Lock()
		p.value = value
		p.err = err
		close(p.done)
		s.mu.Unlock()

		if err != nil {
			s.logger.Warn().Str("process", name).Err(err).Msg("Process failed")
			s.publish(interfaces.EventProcessFailed, name, map[string]interface{}{"error": err.Error()})
			return
		}
		s.logger.Info().Str("process", name).Msg("Process finished")
		s.publish(interfaces.EventProcessFinished, name, nil)
	})

	info := p.info
	return &info, nil
}

// Result blocks until the named operation completes, then returns its value
// or error. Consuming the result releases the name for a fresh Start.
func (s *Service) Result(ctx context.Context, name string) (interface{}, error) {
	s.mu.Lock()
	p, ok := s.processes[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no process named %q", name)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
	}

	s.mu.Lock()
	// Only the consumer that still sees this exact process releases the name;
	// a concurrent restart after another consumer must not be clobbered.
	if current, ok := s.processes[name]; ok && current == p {
		delete(s.processes, name)
	}
	s.mu.Unlock()

	return p.value, p.err
}

// Cancel requests cooperative cancellation of the named operation. The
// operation stays tracked until it actually returns.
func (s *Service) Cancel(name string) error {
	s.mu.Lock()
	p, ok := s.processes[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no process named %q", name)
	}

	s.logger.Info().Str("process", name).Msg("Process cancellation requested")
	p.cancel()
	return nil
}

// ListRunning returns the operations that have not yet completed
func (s *Service) ListRunning() []models.ProcessInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	running := make([]models.ProcessInfo, 0, len(s.processes))
	for _, p := range s.processes {
		select {
		case <-p.done:
		default:
			running = append(running, p.info)
		}
	}
	return running
}

// Shutdown cancels every running operation and waits for all of them to
// return, or for the context to expire
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, p := range s.processes {
		p.cancel()
	}
	s.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-finished:
		return nil
	}
}

func (s *Service) publish(eventType interfaces.EventType, name string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["process"] = name
	event := interfaces.Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	if err := s.events.Publish(context.Background(), event); err != nil {
		s.logger.Warn().Err(err).Str("process", name).Msg("Failed to publish process event")
	}
}
