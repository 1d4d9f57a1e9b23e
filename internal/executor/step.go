package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrison/foreman/internal/llm"
	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/snapshot"
	"github.com/harrison/foreman/internal/tool"
)

// runStep drives one step through the single-step protocol and moves its
// status to a terminal state.
func (e *Executor) runStep(ctx context.Context, step *models.ExecutionStep) *Output {
	step.Status = models.StatusRunning
	if e.Observer != nil {
		e.Observer.StepStarted(step)
	}

	out := e.executeStep(ctx, step, time.Now())
	step.Result = out.Result

	if out.Result.Success {
		step.Status = models.StatusCompleted
	} else {
		step.Status = models.StatusFailed
		if e.Facts != nil {
			e.Facts.RecordError(step.ID, string(step.Action), out.Result.Error)
		}
	}

	if e.Observer != nil {
		e.Observer.StepFinished(out)
	}
	return out
}

// executeStep implements the single-step protocol: parameter validation,
// facts-first pre-validation, on-demand content generation, tool dispatch,
// skippable-error classification, and post-validation of written content.
func (e *Executor) executeStep(ctx context.Context, step *models.ExecutionStep, start time.Time) *Output {
	// Malformed parameters make the step a no-op, not an error.
	if missing := step.MissingParams(); len(missing) > 0 {
		return e.softSkip(step, start, fmt.Sprintf("missing required parameters: %s", strings.Join(missing, ", ")), models.PassedValidation())
	}

	pre := e.preValidate(ctx, step)
	if !pre.Pass {
		if blockedReclassifiable(step, pre) {
			return e.softSkip(step, start, firstBlocked(pre), pre)
		}
		return e.failStep(step, start, firstBlocked(pre), pre)
	}

	content, err := e.ensureContent(ctx, step)
	if err != nil {
		return e.failStep(step, start, fmt.Sprintf("code generation failed: %v", err), pre)
	}

	client, err := e.Tools.Lookup(step.Tool)
	if err != nil {
		return e.failStep(step, start, err.Error(), pre)
	}

	var snapshotID string
	if step.Action.Mutating() && e.Snapshots != nil && e.snapshotEnabled() {
		snap, snapErr := e.Snapshots.Capture(step.StringParam("path"), snapshotOperation(step.Action))
		if snapErr != nil {
			e.warnf("step %s: snapshot capture failed: %v", step.ID, snapErr)
		} else {
			snapshotID = snap.ID
		}
	}

	result, callErr := client.CallTool(ctx, string(step.Action), step.Params)
	success := callErr == nil && tool.ResultSuccess(result)
	errMsg := tool.ResultError(result)
	if callErr != nil {
		errMsg = callErr.Error()
	}

	if e.Facts != nil {
		e.Facts.RecordToolResult(step, success, errMsg, result)
	}

	if !success {
		if SkippableToolError(step.Action, step.Params, errMsg) {
			out := e.softSkip(step, start, errMsg, pre)
			out.Result.SnapshotID = snapshotID
			return out
		}
		out := e.failStep(step, start, errMsg, pre)
		out.Result.SnapshotID = snapshotID
		return out
	}

	if snapshotID != "" {
		if finErr := e.Snapshots.Finalize(snapshotID); finErr != nil {
			e.warnf("step %s: snapshot finalize failed: %v", step.ID, finErr)
		}
	}

	if step.Action == models.ActionReadFile {
		if read, ok := result["content"].(string); ok {
			e.rememberFileContent(step.StringParam("path"), read)
		}
	}

	writesContent := step.Action == models.ActionCreateFile || step.Action == models.ActionApplyPatch
	if writesContent && content != "" {
		e.rememberFileContent(step.StringParam("path"), content)
		if e.Facts != nil {
			e.Facts.RecordSourceFile(step.StringParam("path"), content)
		}
	}

	if writesContent && content != "" && e.Gate != nil {
		path := step.StringParam("path")
		post := e.Gate.ValidateCode(ctx, content, languageForPath(path), path)
		if post != nil && !post.Pass {
			out := e.failStep(step, start, "written content failed validation: "+firstBlocked(post), post)
			out.Result.SnapshotID = snapshotID
			return out
		}
	}

	output := result
	if output == nil {
		output = map[string]any{}
	}
	return &Output{
		Step: step,
		Result: &models.StepResult{
			Success:    true,
			Output:     output,
			Duration:   time.Since(start),
			SnapshotID: snapshotID,
		},
		Validation: pre,
	}
}

// preValidate consults the facts first, then the validation gate, for the
// existence checks appropriate to the action.
func (e *Executor) preValidate(ctx context.Context, step *models.ExecutionStep) *models.ValidationResult {
	path := step.StringParam("path")

	switch step.Action {
	case models.ActionApplyPatch:
		if e.Facts != nil && e.Facts.PathKnownMissing(path) {
			return models.BlockedValidation("path-exists",
				fmt.Sprintf("%s does not exist; use create_file instead of apply_patch", path))
		}
		return e.gatePath(ctx, path, true)

	case models.ActionReadFile, models.ActionDeleteFile, models.ActionGetAST, models.ActionListDirectory:
		return e.gatePath(ctx, path, true)

	case models.ActionCreateFile:
		return e.gatePath(ctx, path, false)
	}

	return models.PassedValidation()
}

func (e *Executor) gatePath(ctx context.Context, path string, mustExist bool) *models.ValidationResult {
	if e.Gate == nil {
		return models.PassedValidation()
	}
	result := e.Gate.ValidateFilePath(ctx, path, mustExist)
	if result == nil {
		return models.PassedValidation()
	}
	return result
}

// blockedReclassifiable reports whether a pre-validation block is benign:
// the target turned out to be a directory, or a read of a file that does
// not exist.
func blockedReclassifiable(step *models.ExecutionStep, pre *models.ValidationResult) bool {
	for _, msg := range pre.BlockedBy {
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "is a directory") || strings.Contains(lower, "not a file") {
			return true
		}
		if step.Action == models.ActionReadFile && notFoundError(lower) {
			return true
		}
	}
	return false
}

// ensureContent makes sure a create_file/apply_patch step has literal
// content, requesting it from the code-generation capability when absent.
// apply_patch without literal patches is synthesized as a whole-file replace
// patch from the generated content. Returns the full content when known.
func (e *Executor) ensureContent(ctx context.Context, step *models.ExecutionStep) (string, error) {
	switch step.Action {
	case models.ActionCreateFile:
		if content := step.StringParam("content"); content != "" {
			return content, nil
		}
		if e.CodeGen == nil {
			return "", nil
		}
		content, err := e.CodeGen.GenerateCodeForFile(ctx, e.codeRequest(step))
		if err != nil {
			return "", err
		}
		step.Params["content"] = content
		return content, nil

	case models.ActionApplyPatch:
		if patches, ok := step.Params["patches"]; ok && patches != nil {
			return wholeFileContent(patches), nil
		}
		if e.CodeGen == nil {
			return "", nil
		}
		content, err := e.CodeGen.GenerateModifiedCode(ctx, e.codeRequest(step))
		if err != nil {
			return "", err
		}
		step.Params["patches"] = []any{
			map[string]any{"type": "replace", "content": content},
		}
		return content, nil
	}
	return "", nil
}

func (e *Executor) codeRequest(step *models.ExecutionStep) llm.CodeRequest {
	path := step.StringParam("path")
	req := llm.CodeRequest{
		Path:            path,
		Language:        languageForPath(path),
		Description:     step.Description,
		ExistingContent: e.FileContext[path],
		FileContext:     e.FileContext,
		Constraints:     e.Constraints,
	}
	if e.Facts != nil {
		req.KnownModules = e.Facts.ModulePaths()
	}
	return req
}

// wholeFileContent extracts the full replacement content from a patch list
// when it consists of a single replace patch. Partial patch lists yield ""
// since the final content cannot be reconstructed here.
func wholeFileContent(patches any) string {
	list, ok := patches.([]any)
	if !ok || len(list) != 1 {
		return ""
	}
	patch, ok := list[0].(map[string]any)
	if !ok {
		return ""
	}
	if t, _ := patch["type"].(string); t != "replace" {
		return ""
	}
	content, _ := patch["content"].(string)
	return content
}

func (e *Executor) snapshotEnabled() bool {
	if e.Plan == nil {
		return true
	}
	return e.Plan.Rollback.Enabled && e.Plan.Rollback.SnapshotBeforeExecution
}

func snapshotOperation(action models.Action) snapshot.Operation {
	switch action {
	case models.ActionCreateFile:
		return snapshot.OpCreate
	case models.ActionDeleteFile:
		return snapshot.OpDelete
	default:
		return snapshot.OpModify
	}
}

func (e *Executor) failStep(step *models.ExecutionStep, start time.Time, msg string, validation *models.ValidationResult) *Output {
	return &Output{
		Step: step,
		Result: &models.StepResult{
			Success:  false,
			Error:    msg,
			Duration: time.Since(start),
		},
		Validation:    validation,
		NeedsRollback: step.HasRequiredRule(),
	}
}

// softSkip reports a benign no-op as success with a skipped marker and the
// reason, so the outcome stays observable.
func (e *Executor) softSkip(step *models.ExecutionStep, start time.Time, reason string, validation *models.ValidationResult) *Output {
	return &Output{
		Step: step,
		Result: &models.StepResult{
			Success:  true,
			Output:   map[string]any{"skipped": true, "reason": reason},
			Duration: time.Since(start),
		},
		Validation: validation,
	}
}

func firstBlocked(result *models.ValidationResult) string {
	if len(result.BlockedBy) > 0 {
		return result.BlockedBy[0]
	}
	return "validation failed"
}

var languageByExt = map[string]string{
	".ts":     "typescript",
	".tsx":    "typescript",
	".js":     "javascript",
	".jsx":    "javascript",
	".mjs":    "javascript",
	".cjs":    "javascript",
	".vue":    "vue",
	".svelte": "svelte",
	".py":     "python",
	".go":     "go",
	".css":    "css",
	".scss":   "scss",
	".html":   "html",
	".json":   "json",
	".md":     "markdown",
	".yaml":   "yaml",
	".yml":    "yaml",
}

// languageForPath infers the target language from the file extension.
func languageForPath(path string) string {
	if lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "text"
}
