package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

const (
	// EventAnswerRecorded fires after an answer row is upserted.
	EventAnswerRecorded EventType = "journey.answer_recorded"

	// EventBadgeUnlocked fires once per newly inserted badge grant.
	EventBadgeUnlocked EventType = "journey.badge_unlocked"

	// EventModuleCompleted fires when an answer completes a module.
	EventModuleCompleted EventType = "journey.module_completed"
)

// Event is the base interface for all domain events.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	// AggregateID is the child id for every journey event.
	AggregateID() string
	Payload() map[string]any
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggregateId }

// NewBaseEvent creates a new base event stamped at the given time.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// AnswerRecordedEvent is emitted after SaveAnswer persisted a selection.
type AnswerRecordedEvent struct {
	BaseEvent
	ChildID          string `json:"child_id"`
	QuestionID       string `json:"question_id"`
	ModuleID         string `json:"module_id"`
	SelectedOptionID string `json:"selected_option_id"`
}

func (e AnswerRecordedEvent) Payload() map[string]any {
	return map[string]any{
		"child_id":           e.ChildID,
		"question_id":        e.QuestionID,
		"module_id":          e.ModuleID,
		"selected_option_id": e.SelectedOptionID,
	}
}

// NewAnswerRecordedEvent creates a new AnswerRecordedEvent.
func NewAnswerRecordedEvent(childID, questionID, moduleID, optionID string, at time.Time) AnswerRecordedEvent {
	return AnswerRecordedEvent{
		BaseEvent:        NewBaseEvent(EventAnswerRecorded, childID, at),
		ChildID:          childID,
		QuestionID:       questionID,
		ModuleID:         moduleID,
		SelectedOptionID: optionID,
	}
}

// BadgeUnlockedEvent is emitted for each grant that was actually inserted.
type BadgeUnlockedEvent struct {
	BaseEvent
	ChildID string `json:"child_id"`
	BadgeID string `json:"badge_id"`
	Title   string `json:"title"`
}

func (e BadgeUnlockedEvent) Payload() map[string]any {
	return map[string]any{
		"child_id": e.ChildID,
		"badge_id": e.BadgeID,
		"title":    e.Title,
	}
}

// NewBadgeUnlockedEvent creates a new BadgeUnlockedEvent.
func NewBadgeUnlockedEvent(childID, badgeID, title string, at time.Time) BadgeUnlockedEvent {
	return BadgeUnlockedEvent{
		BaseEvent: NewBaseEvent(EventBadgeUnlocked, childID, at),
		ChildID:   childID,
		BadgeID:   badgeID,
		Title:     title,
	}
}

// ModuleCompletedEvent is emitted when an answer brings a module to 100%.
type ModuleCompletedEvent struct {
	BaseEvent
	ChildID  string `json:"child_id"`
	ModuleID string `json:"module_id"`
}

func (e ModuleCompletedEvent) Payload() map[string]any {
	return map[string]any{
		"child_id":  e.ChildID,
		"module_id": e.ModuleID,
	}
}

// NewModuleCompletedEvent creates a new ModuleCompletedEvent.
func NewModuleCompletedEvent(childID, moduleID string, at time.Time) ModuleCompletedEvent {
	return ModuleCompletedEvent{
		BaseEvent: NewBaseEvent(EventModuleCompleted, childID, at),
		ChildID:   childID,
		ModuleID:  moduleID,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
