// Package agent wires the planner, executor, fact store, validation gate,
// and snapshot store together per task: it replans when the planner requests
// more context, runs the plan with error-feedback recovery, rolls back on
// failure when the plan's strategy asks for it, and emits lifecycle events.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/foreman/internal/executor"
	"github.com/harrison/foreman/internal/facts"
	"github.com/harrison/foreman/internal/guard"
	"github.com/harrison/foreman/internal/history"
	"github.com/harrison/foreman/internal/llm"
	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/planner"
	"github.com/harrison/foreman/internal/snapshot"
	"github.com/harrison/foreman/internal/tool"
)

// DefaultMaxReplans bounds how many context-request rounds the agent honors
// before treating the planner's demand as unsatisfiable.
const DefaultMaxReplans = 2

// Agent orchestrates one task at a time. All collaborators are injected;
// the agent owns no global state, so multiple agents can run concurrently
// without cross-talk.
type Agent struct {
	Planner    *planner.Planner
	Capability llm.Capability
	Tools      *tool.Registry
	Gate       guard.Gate
	Snapshots  *snapshot.Store
	History    *history.Store
	Events     EventSink
	Logger     executor.Logger

	MaxReplans          int
	MaxRecoveryAttempts int
}

// Context is the per-task state: facts, collected planning context, the
// plan, executed step outputs, and the message history handed back to the
// planner. It is created at task start and discarded at task end.
type Context struct {
	TaskID    string
	Facts     *facts.Store
	Collected map[string]any
	Plan      *models.ExecutionPlan
	Outputs   []*executor.Output
	History   []string
}

func (a *Agent) emit(eventType EventType, taskID, stepID, message string) {
	if a.Events == nil {
		return
	}
	a.Events.Emit(Event{
		Type:      eventType,
		TaskID:    taskID,
		StepID:    stepID,
		Message:   message,
		Timestamp: time.Now(),
	})
}

func (a *Agent) maxReplans() int {
	if a.MaxReplans > 0 {
		return a.MaxReplans
	}
	return DefaultMaxReplans
}

// ExecuteTask plans and runs one task. The returned result reports failure
// through TaskResult.Success; the error return is reserved for planning and
// scheduling faults that prevented execution.
func (a *Agent) ExecuteTask(ctx context.Context, task models.Task) (*models.TaskResult, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	ac := &Context{
		TaskID:    task.ID,
		Facts:     facts.NewStore(),
		Collected: make(map[string]any),
	}

	a.emit(EventTaskStarted, task.ID, "", task.Description)
	start := time.Now()

	plan, err := a.planWithContext(ctx, task, ac)
	if err != nil {
		a.emit(EventTaskFailed, task.ID, "", err.Error())
		return &models.TaskResult{TaskID: task.ID, Error: err.Error()}, nil
	}
	ac.Plan = plan

	exec := &executor.Executor{
		Tools:               a.Tools,
		Gate:                a.Gate,
		Facts:               ac.Facts,
		Snapshots:           a.Snapshots,
		CodeGen:             a.Capability,
		Logger:              a.Logger,
		FileContext:         collectedFileContents(ac.Collected),
		Constraints:         task.Constraints,
		Recovery:            &capabilityRecovery{agent: a, task: task, ac: ac},
		Inspector:           &moduleGraphInspector{facts: ac.Facts},
		Observer:            &eventObserver{agent: a, ac: ac},
		Plan:                plan,
		MaxRecoveryAttempts: a.MaxRecoveryAttempts,
	}

	outputs, execErr := exec.ExecuteStepsWithErrorFeedback(ctx, plan.Steps)
	ac.Outputs = outputs

	result := executor.Summarize(task.ID, outputs)
	result.Duration = time.Since(start)

	if !result.Success && plan.Rollback.Enabled && plan.Rollback.RollbackOnFailure {
		result.RolledBack += a.rollbackFailed(outputs, plan.Rollback.MaxRollbackSteps)
	}

	a.recordHistory(ctx, task.ID, outputs)

	if execErr != nil {
		if result.Error != "" {
			result.Error += "; "
		}
		result.Error += execErr.Error()
		result.Success = false
	}

	if result.Success {
		a.emit(EventTaskCompleted, task.ID, "", fmt.Sprintf("%d/%d steps completed", result.Completed, result.TotalSteps))
	} else {
		a.emit(EventTaskFailed, task.ID, "", result.Error)
	}
	return result, nil
}

// planWithContext drives the plan / fetch-context / replan loop.
func (a *Agent) planWithContext(ctx context.Context, task models.Task, ac *Context) (*models.ExecutionPlan, error) {
	for round := 0; ; round++ {
		a.emit(EventPlanningStarted, task.ID, "", "")
		result, err := a.Planner.Plan(ctx, task, ac.Collected, ac.History)
		if err != nil {
			return nil, fmt.Errorf("planning failed: %w", err)
		}

		if result.NeedsMoreContext {
			if round >= a.maxReplans() {
				return nil, fmt.Errorf("planner still needs context after %d replan rounds", round)
			}
			a.collectContext(ctx, ac, result.ContextRequests)
			continue
		}
		if result.RejectionReason != "" {
			return nil, fmt.Errorf("planner rejected task: %s", result.RejectionReason)
		}

		a.emit(EventPlanningCompleted, task.ID, "", fmt.Sprintf("%d steps", len(result.Plan.Steps)))
		return result.Plan, nil
	}
}

// collectContext answers the planner's context requests through the tool
// registry. A failed fetch still marks the request answered (with the error
// text) so planning does not loop on an unfetchable resource.
func (a *Agent) collectContext(ctx context.Context, ac *Context, requests []planner.ContextRequest) {
	for _, req := range requests {
		switch req.Type {
		case planner.RequestReadFile:
			path, _ := req.Params["path"].(string)
			ac.Collected[planner.FileContextKey(path)] = a.fetchTool(ctx, models.ActionReadFile, req.Params)
			step := &models.ExecutionStep{Action: models.ActionReadFile, Params: req.Params}
			if content, ok := ac.Collected[planner.FileContextKey(path)].(map[string]any); ok {
				ac.Facts.RecordToolResult(step, tool.ResultSuccess(content), tool.ResultError(content), content)
			}

		case planner.RequestPageStructure:
			ac.Collected[planner.PageStructureKey] = a.fetchTool(ctx, models.ActionBrowserGetStructure, req.Params)
		}
	}
}

// collectedFileContents extracts the file contents gathered during context
// collection, keyed by path, so generation requests see the files the
// planner asked to read.
func collectedFileContents(collected map[string]any) map[string]string {
	contents := make(map[string]string)
	for key, value := range collected {
		path, ok := planner.FilePathFromKey(key)
		if !ok {
			continue
		}
		result, ok := value.(map[string]any)
		if !ok {
			continue
		}
		if content, ok := result["content"].(string); ok {
			contents[path] = content
		}
	}
	return contents
}

func (a *Agent) fetchTool(ctx context.Context, action models.Action, params map[string]any) any {
	client, err := a.Tools.Lookup(models.DefaultTool(action))
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}
	result, err := client.CallTool(ctx, string(action), params)
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}
	if result == nil {
		result = map[string]any{"success": true}
	}
	return result
}

// rollbackFailed rolls back the snapshots of rollback-eligible failed steps,
// most recent first, bounded by maxSteps. Returns how many steps were rolled
// back.
func (a *Agent) rollbackFailed(outputs []*executor.Output, maxSteps int) int {
	if a.Snapshots == nil {
		return 0
	}
	rolled := 0
	for i := len(outputs) - 1; i >= 0; i-- {
		if maxSteps > 0 && rolled >= maxSteps {
			break
		}
		out := outputs[i]
		if !out.NeedsRollback || out.Result == nil || out.Result.SnapshotID == "" {
			continue
		}
		res := a.Snapshots.Rollback(out.Result.SnapshotID)
		if res.Success {
			out.Step.Status = models.StatusRolledBack
			rolled++
		} else if a.Logger != nil {
			a.Logger.Warnf("rollback of step %s failed: %s", out.Step.ID, res.Message)
		}
	}
	return rolled
}

func (a *Agent) recordHistory(ctx context.Context, taskID string, outputs []*executor.Output) {
	if a.History == nil {
		return
	}
	for _, out := range outputs {
		rec := history.Record{
			TaskID:      taskID,
			StepID:      out.Step.ID,
			Description: out.Step.Description,
			Action:      string(out.Step.Action),
			Tool:        out.Step.Tool,
		}
		if out.Result != nil {
			rec.Success = out.Result.Success
			rec.Skipped = out.Result.Skipped()
			rec.Error = out.Result.Error
			rec.Duration = out.Result.Duration
		} else {
			rec.Skipped = true
		}
		if err := a.History.RecordStep(ctx, rec); err != nil && a.Logger != nil {
			a.Logger.Warnf("failed to record step history: %v", err)
		}
	}
}

// capabilityRecovery adapts the generation capability's error analysis to
// the executor's recovery strategy contract.
type capabilityRecovery struct {
	agent *Agent
	task  models.Task
	ac    *Context
}

func (r *capabilityRecovery) ProposeRecovery(ctx context.Context, req executor.RecoveryRequest) ([]*models.ExecutionStep, error) {
	if r.agent.Capability == nil {
		return nil, nil
	}
	analysis, err := r.agent.Capability.AnalyzeErrorsAndGenerateRecovery(ctx, llm.RecoveryRequest{
		Task:        r.task,
		Phase:       req.Phase,
		Attempt:     req.Attempt,
		FailedSteps: req.Failed,
		Facts:       r.ac.Facts.Serialize(),
	})
	if err != nil {
		return nil, err
	}
	if analysis == nil || !analysis.CanRecover || len(analysis.RecoverySteps) == 0 {
		return nil, nil
	}

	steps := make([]*models.ExecutionStep, 0, len(analysis.RecoverySteps))
	for _, ps := range analysis.RecoverySteps {
		if !models.KnownAction(ps.Action) {
			continue
		}
		toolName := ps.Tool
		if toolName == "" {
			toolName = models.DefaultTool(ps.Action)
		}
		params := ps.Params
		if params == nil {
			params = map[string]any{}
		}
		steps = append(steps, &models.ExecutionStep{
			ID:          "recovery-" + uuid.NewString()[:8],
			Description: ps.Description,
			Action:      ps.Action,
			Tool:        toolName,
			Params:      params,
			Phase:       req.Phase,
			Status:      models.StatusPending,
		})
	}
	r.ac.History = append(r.ac.History, analysis.Analysis)
	return steps, nil
}

// moduleGraphInspector reports broken module references as phase issues so
// structurally incomplete phases trigger recovery even when every step
// succeeded.
type moduleGraphInspector struct {
	facts *facts.Store
}

func (i *moduleGraphInspector) InspectPhase(ctx context.Context, phase string, steps []*models.ExecutionStep) []executor.PhaseIssue {
	missing := i.facts.ValidateModuleGraph()
	issues := make([]executor.PhaseIssue, 0, len(missing))
	for _, ref := range missing {
		issues = append(issues, executor.PhaseIssue{
			Message: fmt.Sprintf("%s references missing module %s (import %q)", ref.From, ref.Missing, ref.ImportPath),
		})
	}
	return issues
}

// eventObserver relays step outcomes as lifecycle events.
type eventObserver struct {
	agent *Agent
	ac    *Context
}

func (o *eventObserver) StepStarted(step *models.ExecutionStep) {
	o.agent.emit(EventStepStarted, o.ac.TaskID, step.ID, step.Description)
}

func (o *eventObserver) StepFinished(out *executor.Output) {
	switch {
	case out.Result == nil:
		// Skipped for unmet dependencies: terminal, but not a failure.
	case out.Result.Success:
		o.agent.emit(EventStepCompleted, o.ac.TaskID, out.Step.ID, "")
	default:
		if out.Validation != nil && !out.Validation.Pass {
			o.agent.emit(EventValidationFailed, o.ac.TaskID, out.Step.ID, out.Result.Error)
		}
		o.agent.emit(EventStepFailed, o.ac.TaskID, out.Step.ID, out.Result.Error)
	}
}
