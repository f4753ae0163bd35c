package interfaces

import (
	"context"
	"time"
)

// EventType identifies the kind of operator-visible event
type EventType string

const (
	EventProcessStarted      EventType = "process.started"
	EventProcessFinished     EventType = "process.finished"
	EventProcessFailed       EventType = "process.failed"
	EventVerificationPending EventType = "verification.pending"
	EventVerificationDone    EventType = "verification.done"
	EventCredentialInvalid   EventType = "credential.invalid"
	EventCredentialCreated   EventType = "credential.created"
	EventAccountHealed       EventType = "account.healed"
)

// Event is a published operator-visible event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// EventHandler processes a published event
type EventHandler func(ctx context.Context, event Event) error

// EventService is the in-process pub/sub bus feeding the operator surface
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	Publish(ctx context.Context, event Event) error
}
