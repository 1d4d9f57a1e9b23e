package executor

import (
	"strings"

	"github.com/harrison/foreman/internal/models"
)

// criticalCommandPatterns are command substrings whose failure must always
// propagate to phase-level recovery. A failed install or build is never a
// benign no-op.
var criticalCommandPatterns = []string{
	"install",
	"build",
	"tsc",
	"typecheck",
	"lint",
	"dev",
	"start",
}

// CriticalCommand reports whether a shell command matches one of the
// critical patterns.
func CriticalCommand(command string) bool {
	lower := strings.ToLower(command)
	for _, pattern := range criticalCommandPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func notFoundError(msg string) bool {
	return strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, "no such file")
}

// SkippableToolError classifies a tool error string as benign for the given
// action. Skippable errors yield a soft success with a skipped marker
// instead of a step failure.
func SkippableToolError(action models.Action, params map[string]any, errMsg string) bool {
	lower := strings.ToLower(errMsg)

	switch action {
	case models.ActionListDirectory:
		return notFoundError(lower) || strings.Contains(lower, "not a directory")

	case models.ActionReadFile:
		return notFoundError(lower) ||
			strings.Contains(lower, "not a file") ||
			strings.Contains(lower, "is a directory")

	case models.ActionApplyPatch:
		return notFoundError(lower) || strings.Contains(lower, "out of context")

	case models.ActionGetAST:
		return notFoundError(lower) ||
			strings.Contains(lower, "invalid") ||
			strings.Contains(lower, "parse")

	case models.ActionRunCommand:
		command, _ := params["command"].(string)
		if CriticalCommand(command) {
			return false
		}
		return strings.Contains(lower, "already exists")
	}

	return false
}
