package models

import "time"

// StepResult is the outcome of one execution attempt of a step. It is
// written exactly once per attempt; recovery steps get their own result.
type StepResult struct {
	Success    bool
	Output     map[string]any
	Error      string
	Duration   time.Duration
	SnapshotID string
}

// Skipped reports whether the result represents a benign no-op (malformed
// parameters or a skippable tool error).
func (r *StepResult) Skipped() bool {
	if r == nil || r.Output == nil {
		return false
	}
	skipped, _ := r.Output["skipped"].(bool)
	return skipped
}

// Severity levels for validation rule results.
const (
	SeverityBlock = "block"
	SeverityWarn  = "warn"
)

// RuleResult is the outcome of evaluating a single validation rule.
type RuleResult struct {
	Rule     string
	Passed   bool
	Message  string
	Severity string
}

// ValidationResult aggregates rule results produced before or after a step
// executes. BlockedBy carries the messages of failing block-severity rules.
type ValidationResult struct {
	Pass      bool
	Results   []RuleResult
	BlockedBy []string
}

// PassedValidation returns a passing result with no rules evaluated.
func PassedValidation() *ValidationResult {
	return &ValidationResult{Pass: true}
}

// BlockedValidation returns a failing result blocked by a single rule.
func BlockedValidation(rule, message string) *ValidationResult {
	return &ValidationResult{
		Pass: false,
		Results: []RuleResult{
			{Rule: rule, Passed: false, Message: message, Severity: SeverityBlock},
		},
		BlockedBy: []string{message},
	}
}

// TaskResult is the aggregate outcome of executing one task's plan.
// Success is true iff no step ended in the failed state.
type TaskResult struct {
	TaskID      string
	Success     bool
	Error       string
	TotalSteps  int
	Completed   int
	Failed      int
	Skipped     int
	RolledBack  int
	Duration    time.Duration
	FailedSteps []*ExecutionStep
}
