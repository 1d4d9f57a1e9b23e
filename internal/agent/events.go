package agent

import "time"

// EventType identifies a task lifecycle event. These events are the only
// state the engine exposes to presentation layers.
type EventType string

const (
	EventTaskStarted       EventType = "task_started"
	EventPlanningStarted   EventType = "planning_started"
	EventPlanningCompleted EventType = "planning_completed"
	EventStepStarted       EventType = "step_started"
	EventStepCompleted     EventType = "step_completed"
	EventStepFailed        EventType = "step_failed"
	EventValidationFailed  EventType = "validation_failed"
	EventTaskCompleted     EventType = "task_completed"
	EventTaskFailed        EventType = "task_failed"
)

// Event is one lifecycle notification.
type Event struct {
	Type      EventType
	TaskID    string
	StepID    string
	Message   string
	Timestamp time.Time
}

// EventSink consumes lifecycle events. Implementations must not block; the
// engine emits synchronously.
type EventSink interface {
	Emit(event Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(event Event)

// Emit implements EventSink.
func (f EventSinkFunc) Emit(event Event) {
	f(event)
}
