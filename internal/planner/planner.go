// Package planner converts a task plus collected context into an execution
// plan. Planning is context-gated: a task that references files not yet read
// (or a page never inspected) yields context requests instead of a plan, and
// the caller fetches the context and plans again.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/harrison/foreman/internal/llm"
	"github.com/harrison/foreman/internal/models"
)

// DefaultMaxSteps caps the number of steps accepted into a generated plan.
const DefaultMaxSteps = 20

// ContextRequest asks the caller to collect a piece of context before
// planning can proceed.
type ContextRequest struct {
	Type   string
	Params map[string]any
}

// Context request types the planner can emit.
const (
	RequestReadFile      = "read_file"
	RequestPageStructure = "page_structure"
)

// FileContextKey is the collected-context key under which the content of a
// read file is stored.
func FileContextKey(path string) string {
	return "file:" + path
}

// FilePathFromKey reports the path a collected-context file key refers to,
// and whether the key is a file key at all.
func FilePathFromKey(key string) (string, bool) {
	return strings.CutPrefix(key, "file:")
}

// PageStructureKey is the collected-context key for the target page's
// structure.
const PageStructureKey = "page_structure"

// Result is the outcome of one planning attempt: either context requests, a
// plan, or a terminal rejection.
type Result struct {
	NeedsMoreContext bool
	ContextRequests  []ContextRequest
	Plan             *models.ExecutionPlan
	RejectionReason  string
}

// Planner produces execution plans, preferring the generation capability and
// falling back to fixed per-task-type templates when it fails.
type Planner struct {
	capability llm.Capability
	maxSteps   int
}

// New creates a planner. The capability may be nil, in which case only the
// template fallback is used. maxSteps <= 0 selects DefaultMaxSteps.
func New(capability llm.Capability, maxSteps int) *Planner {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Planner{capability: capability, maxSteps: maxSteps}
}

// Plan produces a plan for the task, or context requests when required
// context has not been collected yet, or a terminal rejection when no steps
// can be produced.
func (p *Planner) Plan(ctx context.Context, task models.Task, collected map[string]any, history []string) (*Result, error) {
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	if requests := p.missingContext(task, collected); len(requests) > 0 {
		return &Result{NeedsMoreContext: true, ContextRequests: requests}, nil
	}

	summary, steps := p.generateSteps(ctx, task, collected, history)
	if len(steps) == 0 {
		steps = p.templateSteps(task)
	}
	if len(steps) == 0 {
		return &Result{RejectionReason: fmt.Sprintf("no steps could be produced for %s task %q", task.Type, task.Description)}, nil
	}
	if len(steps) > p.maxSteps {
		steps = steps[:p.maxSteps]
	}
	if summary == "" {
		summary = task.Description
	}

	plan := &models.ExecutionPlan{
		TaskID:  task.ID,
		Summary: summary,
		Steps:   p.materialize(steps),
		Rollback: models.RollbackStrategy{
			Enabled:                 task.WantsRollback(),
			SnapshotBeforeExecution: task.WantsRollback(),
			RollbackOnFailure:       task.WantsRollback(),
			MaxRollbackSteps:        p.maxSteps,
		},
	}
	return &Result{Plan: plan}, nil
}

// missingContext returns the context requests the task needs answered before
// a plan can be produced: unread target files for modify/refactor tasks, and
// the page structure for tasks with a target URL.
func (p *Planner) missingContext(task models.Task, collected map[string]any) []ContextRequest {
	var requests []ContextRequest

	if task.Type == models.TaskModify || task.Type == models.TaskRefactor {
		for _, file := range task.TargetFiles {
			if _, ok := collected[FileContextKey(file)]; !ok {
				requests = append(requests, ContextRequest{
					Type:   RequestReadFile,
					Params: map[string]any{"path": file},
				})
			}
		}
	}

	if task.TargetURL != "" {
		if _, ok := collected[PageStructureKey]; !ok {
			requests = append(requests, ContextRequest{
				Type:   RequestPageStructure,
				Params: map[string]any{"url": task.TargetURL},
			})
		}
	}

	return requests
}

// generateSteps asks the capability for a plan. Any failure or empty answer
// falls through to the template path.
func (p *Planner) generateSteps(ctx context.Context, task models.Task, collected map[string]any, history []string) (string, []llm.PlannedStep) {
	if p.capability == nil {
		return "", nil
	}
	generated, err := p.capability.GeneratePlan(ctx, llm.PlanRequest{
		Task:        task,
		Context:     collected,
		Constraints: task.Constraints,
		History:     history,
	})
	if err != nil || generated == nil {
		return "", nil
	}

	steps := make([]llm.PlannedStep, 0, len(generated.Steps))
	for _, step := range generated.Steps {
		if !models.KnownAction(step.Action) {
			continue
		}
		steps = append(steps, step)
	}
	return generated.Summary, steps
}

// templateSteps builds the fixed fallback plan for the task type.
func (p *Planner) templateSteps(task models.Task) []llm.PlannedStep {
	switch task.Type {
	case models.TaskCreate:
		var steps []llm.PlannedStep
		for _, file := range task.TargetFiles {
			steps = append(steps,
				llm.PlannedStep{
					Description: fmt.Sprintf("Check whether %s already exists", file),
					Action:      models.ActionReadFile,
					Params:      map[string]any{"path": file},
				},
				llm.PlannedStep{
					Description: fmt.Sprintf("Create %s", file),
					Action:      models.ActionCreateFile,
					Params:      map[string]any{"path": file},
				},
			)
		}
		return steps

	case models.TaskModify, models.TaskRefactor:
		var steps []llm.PlannedStep
		for _, file := range task.TargetFiles {
			steps = append(steps,
				llm.PlannedStep{
					Description: fmt.Sprintf("Read %s", file),
					Action:      models.ActionReadFile,
					Params:      map[string]any{"path": file},
				},
				llm.PlannedStep{
					Description: fmt.Sprintf("Analyze the structure of %s", file),
					Action:      models.ActionGetAST,
					Params:      map[string]any{"path": file},
				},
				llm.PlannedStep{
					Description: fmt.Sprintf("Apply changes to %s", file),
					Action:      models.ActionApplyPatch,
					Params:      map[string]any{"path": file},
				},
			)
		}
		return steps

	case models.TaskQuery, models.TaskDebug:
		return []llm.PlannedStep{{
			Description: "Search the codebase",
			Action:      models.ActionSearchCode,
			Params:      map[string]any{"query": task.Description},
		}}

	case models.TaskTest:
		if task.TargetURL == "" {
			return nil
		}
		return []llm.PlannedStep{
			{
				Description: fmt.Sprintf("Navigate to %s", task.TargetURL),
				Action:      models.ActionBrowserNavigate,
				Params:      map[string]any{"url": task.TargetURL},
			},
			{
				Description: "Capture the page structure",
				Action:      models.ActionBrowserGetStructure,
				Params:      map[string]any{},
			},
			{
				Description: "Take a screenshot",
				Action:      models.ActionBrowserScreenshot,
				Params:      map[string]any{},
			},
		}
	}
	return nil
}

// materialize assigns ids, tools, and dependencies to planned steps. Wiring
// is strictly linear: each step depends only on its immediate predecessor,
// never on a computed data dependency. The DAG representation is kept so a
// stricter dependency analysis can be substituted later.
func (p *Planner) materialize(planned []llm.PlannedStep) []*models.ExecutionStep {
	steps := make([]*models.ExecutionStep, 0, len(planned))
	for i, ps := range planned {
		tool := ps.Tool
		if tool == "" {
			tool = models.DefaultTool(ps.Action)
		}
		params := ps.Params
		if params == nil {
			params = map[string]any{}
		}
		step := &models.ExecutionStep{
			ID:          fmt.Sprintf("step-%d", i+1),
			Description: ps.Description,
			Action:      ps.Action,
			Tool:        tool,
			Params:      params,
			Phase:       ps.Phase,
			Status:      models.StatusPending,
		}
		if ps.Action.Mutating() {
			step.Validation = []models.ValidationRule{{Rule: "path", Required: true}}
		}
		if i > 0 {
			step.Dependencies = []string{steps[i-1].ID}
		}
		steps = append(steps, step)
	}
	return steps
}
