// Package bus provides an internal event bus for pipeline components
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies different event types
type EventType string

// Event types for cortexvoice
const (
	// Activation events
	EventTypeStateChanged EventType = "activation.state_changed"
	EventTypeWake         EventType = "activation.wake"
	EventTypeStopPhrase   EventType = "activation.stop_phrase"

	// STT events
	EventTypeSTTResult   EventType = "stt.result"
	EventTypeSTTNoSpeech EventType = "stt.no_speech"
	EventTypeSTTFailed   EventType = "stt.failed"

	// Router events
	EventTypeCommandRouted EventType = "router.command_routed"
	EventTypeHandlerFailed EventType = "router.handler_failed"

	// Scheduler events
	EventTypeTaskScheduled EventType = "scheduler.task_scheduled"
	EventTypeTaskTriggered EventType = "scheduler.task_triggered"
	EventTypeTaskCancelled EventType = "scheduler.task_cancelled"
	EventTypePersistFailed EventType = "scheduler.persist_failed"
)

// AllEventTypes lists every event the pipeline publishes.
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeStateChanged, EventTypeWake, EventTypeStopPhrase,
		EventTypeSTTResult, EventTypeSTTNoSpeech, EventTypeSTTFailed,
		EventTypeCommandRouted, EventTypeHandlerFailed,
		EventTypeTaskScheduled, EventTypeTaskTriggered, EventTypeTaskCancelled, EventTypePersistFailed,
	}
}

// Event represents a bus event
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Data      map[string]any
}

// NewEvent stamps an event with an ID and the current time.
func NewEvent(t EventType, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

// Publish sends an event to all subscribed handlers without waiting.
// A nil bus drops the event.
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.snapshot(event.Type) {
		go handler(event)
	}
}

// Emit is shorthand for Publish(NewEvent(t, data)).
func (b *EventBus) Emit(t EventType, data map[string]any) {
	if b == nil {
		return
	}
	b.Publish(NewEvent(t, data))
}

func (b *EventBus) snapshot(t EventType) []Handler {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, len(b.handlers[t]))
	copy(handlers, b.handlers[t])
	return handlers
}
