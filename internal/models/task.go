package models

import "errors"

// TaskType categorizes a task for planning: template selection, context
// gating, and rollback strategy all key off the type.
type TaskType string

const (
	TaskCreate   TaskType = "create"
	TaskModify   TaskType = "modify"
	TaskRefactor TaskType = "refactor"
	TaskQuery    TaskType = "query"
	TaskDebug    TaskType = "debug"
	TaskTest     TaskType = "test"
)

// Task is one natural-language request handed to the engine.
type Task struct {
	ID          string
	Description string
	Type        TaskType
	TargetFiles []string // Files the task names explicitly (modify/refactor)
	TargetURL   string   // Page under test, if any
	Constraints []string // Compliance constraints generation must honor
}

// Validate checks that the task has the fields planning requires.
func (t *Task) Validate() error {
	if t.Description == "" {
		return errors.New("task description is required")
	}
	if t.Type == "" {
		return errors.New("task type is required")
	}
	switch t.Type {
	case TaskCreate, TaskModify, TaskRefactor, TaskQuery, TaskDebug, TaskTest:
		return nil
	}
	return errors.New("unknown task type: " + string(t.Type))
}

// WantsRollback reports whether plans for this task type carry an enabled
// rollback strategy.
func (t *Task) WantsRollback() bool {
	switch t.Type {
	case TaskCreate, TaskModify, TaskRefactor:
		return true
	}
	return false
}
