package models

// StepStatus represents the lifecycle state of an execution step.
type StepStatus string

const (
	StatusPending    StepStatus = "pending"
	StatusRunning    StepStatus = "running"
	StatusCompleted  StepStatus = "completed"
	StatusFailed     StepStatus = "failed"
	StatusSkipped    StepStatus = "skipped"
	StatusRolledBack StepStatus = "rolled_back"
)

// Terminal reports whether the status is a terminal state.
func (s StepStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped, StatusRolledBack:
		return true
	}
	return false
}

// ValidTransition reports whether a step may move from one status to another.
// Steps move pending -> running -> completed|failed. A step may be skipped
// directly from pending when its dependencies never complete, and any
// completed or failed step may be marked rolled_back after an explicit
// rollback.
func ValidTransition(from, to StepStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusSkipped
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed
	case StatusCompleted, StatusFailed:
		return to == StatusRolledBack
	}
	return false
}

// Action identifies the kind of tool invocation a step performs.
type Action string

const (
	ActionReadFile            Action = "read_file"
	ActionListDirectory       Action = "list_directory"
	ActionCreateFile          Action = "create_file"
	ActionApplyPatch          Action = "apply_patch"
	ActionDeleteFile          Action = "delete_file"
	ActionSearchCode          Action = "search_code"
	ActionGetAST              Action = "get_ast"
	ActionRunCommand          Action = "run_command"
	ActionBrowserNavigate     Action = "browser_navigate"
	ActionBrowserClick        Action = "browser_click"
	ActionBrowserType         Action = "browser_type"
	ActionBrowserScreenshot   Action = "browser_screenshot"
	ActionBrowserGetStructure Action = "browser_get_structure"
)

// Mutating reports whether the action modifies the target filesystem and
// therefore needs a snapshot before execution.
func (a Action) Mutating() bool {
	switch a {
	case ActionCreateFile, ActionApplyPatch, ActionDeleteFile:
		return true
	}
	return false
}

// requiredParams lists the parameter keys that must be present for each
// action. Steps missing a required parameter are treated as no-ops by the
// executor rather than failures.
var requiredParams = map[Action][]string{
	ActionReadFile:            {"path"},
	ActionListDirectory:       {"path"},
	ActionCreateFile:          {"path"},
	ActionApplyPatch:          {"path"},
	ActionDeleteFile:          {"path"},
	ActionSearchCode:          {"query"},
	ActionGetAST:              {"path"},
	ActionRunCommand:          {"command"},
	ActionBrowserNavigate:     {"url"},
	ActionBrowserClick:        {"selector"},
	ActionBrowserType:         {"selector", "text"},
	ActionBrowserScreenshot:   {},
	ActionBrowserGetStructure: {},
}

// KnownAction reports whether the action has a registered parameter schema.
func KnownAction(a Action) bool {
	_, ok := requiredParams[a]
	return ok
}

// DefaultTool returns the logical tool name an action is dispatched to when
// the plan did not name one explicitly.
func DefaultTool(a Action) string {
	switch a {
	case ActionRunCommand:
		return "shell"
	case ActionBrowserNavigate, ActionBrowserClick, ActionBrowserType,
		ActionBrowserScreenshot, ActionBrowserGetStructure:
		return "browser"
	default:
		return "filesystem"
	}
}

// ValidationRule names a validation check the gate should run for a step.
// Required rules make a failing step eligible for rollback.
type ValidationRule struct {
	Rule     string
	Required bool
}

// ExecutionStep is a single tool invocation with declared dependencies and a
// terminal status.
type ExecutionStep struct {
	ID           string
	Description  string
	Action       Action
	Tool         string
	Params       map[string]any
	Dependencies []string
	Validation   []ValidationRule
	Phase        string
	Status       StepStatus
	Result       *StepResult
}

// MissingParams returns the required parameter names absent or empty on the
// step, in schema order.
func (s *ExecutionStep) MissingParams() []string {
	var missing []string
	for _, key := range requiredParams[s.Action] {
		v, ok := s.Params[key]
		if !ok {
			missing = append(missing, key)
			continue
		}
		if str, isStr := v.(string); isStr && str == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// StringParam returns the string value for key, or empty when absent or not
// a string.
func (s *ExecutionStep) StringParam(key string) string {
	if v, ok := s.Params[key]; ok {
		if str, isStr := v.(string); isStr {
			return str
		}
	}
	return ""
}

// HasRequiredRule reports whether any of the step's validation rules is
// marked required.
func (s *ExecutionStep) HasRequiredRule() bool {
	for _, rule := range s.Validation {
		if rule.Required {
			return true
		}
	}
	return false
}
