// Package executor schedules and runs execution steps: dependency-ordered
// phased execution, pre/post validation, skippable-vs-fatal error
// classification, and a bounded error-feedback recovery loop per phase.
//
// Execution is single-threaded and cooperative: steps run strictly one at a
// time in dependency- and phase-respecting order. The only suspension points
// are the external calls (tool invocation, code generation, recovery
// analysis), so the fact store and plan mutation need no locking here.
package executor

import (
	"context"
	"fmt"

	"github.com/harrison/foreman/internal/facts"
	"github.com/harrison/foreman/internal/guard"
	"github.com/harrison/foreman/internal/llm"
	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/snapshot"
	"github.com/harrison/foreman/internal/tool"
)

// MaxRecoveryAttempts bounds the recovery loop per phase.
const MaxRecoveryAttempts = 3

// Logger is the minimal logging surface the executor needs. Implementations
// are optional; a nil logger disables logging.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Output is the per-step result of an execution run: the step, its result,
// the validation verdict, and whether the failure makes it eligible for
// rollback. Steps skipped for unmet dependencies carry a nil Result.
type Output struct {
	Step          *models.ExecutionStep
	Result        *models.StepResult
	Validation    *models.ValidationResult
	NeedsRollback bool
}

// PhaseIssue is a structural problem detected at phase completion, such as
// a file created this phase referencing a module that does not exist. It is
// injected as a synthetic failure to drive recovery even though no single
// step failed.
type PhaseIssue struct {
	StepID  string // originating step when attributable, else empty
	Message string
}

// RecoveryRequest is handed to the recovery strategy when a phase ends with
// failures.
type RecoveryRequest struct {
	Phase   string
	Attempt int
	Failed  []llm.FailedStep
}

// RecoveryStrategy proposes corrective steps for a phase's failures.
// Returning no steps stops the retry loop for the phase.
type RecoveryStrategy interface {
	ProposeRecovery(ctx context.Context, req RecoveryRequest) ([]*models.ExecutionStep, error)
}

// PhaseInspector runs whole-phase structural checks after a phase's steps
// finish and after each recovery round.
type PhaseInspector interface {
	InspectPhase(ctx context.Context, phase string, steps []*models.ExecutionStep) []PhaseIssue
}

// StepObserver receives step lifecycle notifications.
type StepObserver interface {
	StepStarted(step *models.ExecutionStep)
	StepFinished(out *Output)
}

// Executor runs plans. All collaborators are explicit fields owned by the
// instance; there are no process-wide registries.
type Executor struct {
	Tools     *tool.Registry
	Gate      guard.Gate
	Facts     *facts.Store
	Snapshots *snapshot.Store
	CodeGen   llm.Capability
	Logger    Logger
	Recovery  RecoveryStrategy
	Inspector PhaseInspector
	Observer  StepObserver

	// Plan, when set, receives appended recovery steps and supplies the
	// rollback strategy consulted before snapshotting.
	Plan *models.ExecutionPlan

	// FileContext accumulates file contents keyed by path: seeded with the
	// contents collected during planning, refreshed by every read and write
	// the executor performs. Generation requests carry it so modifications
	// see the file they are changing.
	FileContext map[string]string

	// Constraints are the task's compliance constraints, passed through to
	// every generation request.
	Constraints []string

	// MaxRecoveryAttempts overrides the default bound when positive.
	MaxRecoveryAttempts int
}

// rememberFileContent records the latest known content of a file.
func (e *Executor) rememberFileContent(path, content string) {
	if path == "" {
		return
	}
	if e.FileContext == nil {
		e.FileContext = make(map[string]string)
	}
	e.FileContext[path] = content
}

func (e *Executor) maxRecoveryAttempts() int {
	if e.MaxRecoveryAttempts > 0 {
		return e.MaxRecoveryAttempts
	}
	return MaxRecoveryAttempts
}

func (e *Executor) debugf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Debugf(format, args...)
	}
}

func (e *Executor) warnf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Warnf(format, args...)
	}
}

func depsMet(step *models.ExecutionStep, completed map[string]bool) bool {
	for _, dep := range step.Dependencies {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// skipStep marks a step skipped for unmet dependencies and records an
// output with no result.
func (e *Executor) skipStep(step *models.ExecutionStep) *Output {
	step.Status = models.StatusSkipped
	e.debugf("step %s skipped: dependencies not completed", step.ID)
	out := &Output{Step: step}
	if e.Observer != nil {
		e.Observer.StepFinished(out)
	}
	return out
}

// ExecuteStepsWithErrorFeedback runs steps grouped into phases, collecting
// each phase's failures and feeding them to the recovery strategy in a
// bounded loop. Phases are independent: a later phase proceeds even when an
// earlier one ended with unresolved failures; a step depending on a failed
// step is skipped, not blocked at the phase level.
func (e *Executor) ExecuteStepsWithErrorFeedback(ctx context.Context, steps []*models.ExecutionStep) ([]*Output, error) {
	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}

	completed := make(map[string]bool)
	var outputs []*Output

	order, groups := GroupByPhase(steps)
	for _, phase := range order {
		phaseSteps := groups[phase]

		var toolFailures []llm.FailedStep
		var failedSteps []*models.ExecutionStep
		for _, step := range phaseSteps {
			if !depsMet(step, completed) {
				outputs = append(outputs, e.skipStep(step))
				continue
			}
			out := e.runStep(ctx, step)
			outputs = append(outputs, out)
			if out.Result.Success {
				completed[step.ID] = true
			} else {
				toolFailures = append(toolFailures, failedStepSummary(step, out.Result.Error))
				failedSteps = append(failedSteps, step)
			}
		}

		issues := e.inspectPhase(ctx, phase, phaseSteps)
		if len(toolFailures)+len(issues) == 0 || e.Recovery == nil {
			continue
		}
		recovered := e.recoverPhase(ctx, phase, toolFailures, issues, failedSteps, completed, &outputs)
		if recovered {
			for _, step := range failedSteps {
				step.Status = models.StatusCompleted
				completed[step.ID] = true
			}
		}
	}

	return outputs, nil
}

// recoverPhase runs the bounded recovery loop for one phase. It returns
// true when a recovery round resolved the phase: every recovery step
// succeeded and the phase inspection reports no remaining issues.
func (e *Executor) recoverPhase(
	ctx context.Context,
	phase string,
	toolFailures []llm.FailedStep,
	issues []PhaseIssue,
	failedSteps []*models.ExecutionStep,
	completed map[string]bool,
	outputs *[]*Output,
) bool {
	for attempt := 1; attempt <= e.maxRecoveryAttempts(); attempt++ {
		failures := append(append([]llm.FailedStep(nil), toolFailures...), issueFailures(issues)...)

		recoverySteps, err := e.Recovery.ProposeRecovery(ctx, RecoveryRequest{
			Phase:   phase,
			Attempt: attempt,
			Failed:  failures,
		})
		if err != nil {
			e.warnf("phase %s: recovery proposal failed: %v", phase, err)
			return false
		}
		if len(recoverySteps) == 0 {
			e.debugf("phase %s: recovery strategy returned no steps, giving up", phase)
			return false
		}

		if e.Plan != nil {
			e.Plan.AppendRecoverySteps(phase, recoverySteps)
		} else {
			for _, step := range recoverySteps {
				step.Phase = phase
			}
		}

		roundSucceeded := true
		for _, step := range recoverySteps {
			if !depsMet(step, completed) {
				*outputs = append(*outputs, e.skipStep(step))
				roundSucceeded = false
				continue
			}
			out := e.runStep(ctx, step)
			*outputs = append(*outputs, out)
			if out.Result.Success {
				completed[step.ID] = true
			} else {
				roundSucceeded = false
			}
		}

		issues = e.inspectPhase(ctx, phase, nil)
		if roundSucceeded && len(issues) == 0 {
			e.debugf("phase %s: failures resolved after %d recovery attempt(s)", phase, attempt)
			return true
		}
	}

	e.warnf("phase %s: failures unresolved after %d recovery attempts", phase, e.maxRecoveryAttempts())
	return false
}

func (e *Executor) inspectPhase(ctx context.Context, phase string, steps []*models.ExecutionStep) []PhaseIssue {
	if e.Inspector == nil {
		return nil
	}
	return e.Inspector.InspectPhase(ctx, phase, steps)
}

func failedStepSummary(step *models.ExecutionStep, errMsg string) llm.FailedStep {
	return llm.FailedStep{
		StepID:      step.ID,
		Description: step.Description,
		Action:      step.Action,
		Params:      step.Params,
		Error:       errMsg,
	}
}

func issueFailures(issues []PhaseIssue) []llm.FailedStep {
	failures := make([]llm.FailedStep, 0, len(issues))
	for _, issue := range issues {
		failures = append(failures, llm.FailedStep{
			StepID:      issue.StepID,
			Description: "phase structural check",
			Error:       issue.Message,
		})
	}
	return failures
}

// ExecuteSteps is the simple, non-phased execution path. It repeatedly runs
// the steps whose dependencies are satisfied, skips steps whose dependencies
// terminally failed, and fails the whole run when the remaining steps are
// unsatisfiable (circular or missing dependencies), marking them skipped.
func (e *Executor) ExecuteSteps(ctx context.Context, steps []*models.ExecutionStep) ([]*Output, error) {
	completed := make(map[string]bool)
	dead := make(map[string]bool) // failed or skipped
	var outputs []*Output

	remaining := append([]*models.ExecutionStep(nil), steps...)
	for len(remaining) > 0 {
		progressed := false
		var next []*models.ExecutionStep

		for _, step := range remaining {
			if hasDeadDependency(step, dead) {
				outputs = append(outputs, e.skipStep(step))
				dead[step.ID] = true
				progressed = true
				continue
			}
			if !depsMet(step, completed) {
				next = append(next, step)
				continue
			}
			out := e.runStep(ctx, step)
			outputs = append(outputs, out)
			if out.Result.Success {
				completed[step.ID] = true
			} else {
				dead[step.ID] = true
			}
			progressed = true
		}

		remaining = next
		if !progressed && len(remaining) > 0 {
			ids := make([]string, 0, len(remaining))
			for _, step := range remaining {
				step.Status = models.StatusSkipped
				outputs = append(outputs, &Output{Step: step})
				ids = append(ids, step.ID)
			}
			return outputs, &SchedulingError{Remaining: ids}
		}
	}

	return outputs, nil
}

func hasDeadDependency(step *models.ExecutionStep, dead map[string]bool) bool {
	for _, dep := range step.Dependencies {
		if dead[dep] {
			return true
		}
	}
	return false
}

// Summarize aggregates outputs into a task-level result. Success is true
// iff no step ended failed; failed-step errors are concatenated into the
// task-level error message.
func Summarize(taskID string, outputs []*Output) *models.TaskResult {
	result := &models.TaskResult{TaskID: taskID, Success: true}
	errMsg := ""
	for _, out := range outputs {
		result.TotalSteps++
		if out.Result != nil {
			result.Duration += out.Result.Duration
		}
		switch out.Step.Status {
		case models.StatusCompleted:
			result.Completed++
		case models.StatusSkipped:
			result.Skipped++
		case models.StatusRolledBack:
			result.RolledBack++
		case models.StatusFailed:
			result.Failed++
			result.FailedSteps = append(result.FailedSteps, out.Step)
			if out.Result != nil && out.Result.Error != "" {
				if errMsg != "" {
					errMsg += "; "
				}
				errMsg += fmt.Sprintf("%s: %s", out.Step.ID, out.Result.Error)
			}
		}
	}
	if result.Failed > 0 {
		result.Success = false
		result.Error = errMsg
	}
	return result
}
