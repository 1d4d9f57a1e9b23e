package models

// RollbackStrategy configures snapshot and rollback behavior for a plan.
type RollbackStrategy struct {
	Enabled                 bool
	SnapshotBeforeExecution bool
	RollbackOnFailure       bool
	MaxRollbackSteps        int
}

// ExecutionPlan is an ordered, phase-tagged set of steps for one task.
// A plan is immutable once created except that the executor may append
// recovery steps generated mid-execution.
type ExecutionPlan struct {
	TaskID   string
	Summary  string
	Steps    []*ExecutionStep
	Rollback RollbackStrategy
}

// Step returns the step with the given id, or nil.
func (p *ExecutionPlan) Step(id string) *ExecutionStep {
	for _, step := range p.Steps {
		if step.ID == id {
			return step
		}
	}
	return nil
}

// AppendRecoverySteps appends recovery steps to the plan, tagging each with
// the phase whose failures triggered them.
func (p *ExecutionPlan) AppendRecoverySteps(phase string, steps []*ExecutionStep) {
	for _, step := range steps {
		step.Phase = phase
		p.Steps = append(p.Steps, step)
	}
}

// Phases returns the distinct phase names in the order they first appear.
// Steps without an explicit phase are grouped under UnassignedPhase.
func (p *ExecutionPlan) Phases() []string {
	seen := make(map[string]bool)
	var phases []string
	for _, step := range p.Steps {
		phase := step.Phase
		if phase == "" {
			phase = UnassignedPhase
		}
		if !seen[phase] {
			seen[phase] = true
			phases = append(phases, phase)
		}
	}
	return phases
}

// UnassignedPhase groups steps that carry no explicit phase tag.
const UnassignedPhase = "unassigned"
