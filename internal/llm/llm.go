// Package llm declares the opaque generation capability the engine plugs
// plan generation, code generation, and error-recovery analysis into. The
// engine never sees prompts or a vendor protocol, only structured data.
package llm

import (
	"context"
	"encoding/json"

	"github.com/harrison/foreman/internal/models"
)

// PlannedStep is one step proposed by the capability, before the planner
// assigns ids and wires dependencies.
type PlannedStep struct {
	Description string
	Action      models.Action
	Tool        string
	Params      map[string]any
	Phase       string
}

// PlanRequest carries a task, the context collected for it, and the
// analyses accumulated by earlier recovery rounds so a replan sees what
// already went wrong.
type PlanRequest struct {
	Task        models.Task
	Context     map[string]any
	Constraints []string
	History     []string
}

// GeneratedPlan is the capability's plan proposal.
type GeneratedPlan struct {
	Summary string
	Steps   []PlannedStep
}

// CodeRequest asks for file content: a fresh file (GenerateCodeForFile) or a
// modified version of an existing one (GenerateModifiedCode). KnownModules
// lists tracked project modules so the capability does not invent import
// paths.
type CodeRequest struct {
	Path            string
	Language        string
	Description     string
	ExistingContent string
	FileContext     map[string]string
	KnownModules    []string
	Constraints     []string
}

// FailedStep summarizes one failing step for recovery analysis.
type FailedStep struct {
	StepID      string         `json:"stepId"`
	Description string         `json:"description"`
	Action      models.Action  `json:"action"`
	Params      map[string]any `json:"params,omitempty"`
	Error       string         `json:"error"`
}

// RecoveryRequest carries a phase's failures plus a serialized snapshot of
// the current project facts.
type RecoveryRequest struct {
	Task        models.Task
	Phase       string
	Attempt     int
	FailedSteps []FailedStep
	Facts       json.RawMessage
}

// RecoveryAnalysis is the capability's structured response to a phase
// failure. When CanRecover is false or RecoverySteps is empty the executor
// stops retrying the phase.
type RecoveryAnalysis struct {
	Analysis       string
	CanRecover     bool
	Recommendation string
	RecoverySteps  []PlannedStep
}

// Capability is the pluggable generation contract.
type Capability interface {
	GeneratePlan(ctx context.Context, req PlanRequest) (*GeneratedPlan, error)
	GenerateCodeForFile(ctx context.Context, req CodeRequest) (string, error)
	GenerateModifiedCode(ctx context.Context, req CodeRequest) (string, error)
	AnalyzeErrorsAndGenerateRecovery(ctx context.Context, req RecoveryRequest) (*RecoveryAnalysis, error)
}
