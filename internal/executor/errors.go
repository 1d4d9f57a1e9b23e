package executor

import (
	"fmt"
	"strings"
	"time"
)

// StepError represents an error that occurred while executing a single step.
type StepError struct {
	StepID    string
	Message   string
	Err       error
	Timestamp time.Time
}

// NewStepError creates a StepError with the current timestamp.
func NewStepError(stepID, msg string, err error) *StepError {
	return &StepError{
		StepID:    stepID,
		Message:   msg,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface.
func (e *StepError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("step %s: %s", e.StepID, e.Message))
	if e.Err != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Err))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error wrapping support.
func (e *StepError) Unwrap() error {
	return e.Err
}

// SchedulingError reports that the non-phased execution path stalled: no
// remaining step had all of its dependencies met. This is fatal to the run;
// every remaining step is marked skipped before it is returned.
type SchedulingError struct {
	Remaining []string // step ids that could not be scheduled
}

// Error implements the error interface.
func (e *SchedulingError) Error() string {
	return fmt.Sprintf("unsatisfiable step dependencies (circular or missing): %s",
		strings.Join(e.Remaining, ", "))
}
