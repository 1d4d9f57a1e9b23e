package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harrison/foreman/internal/config"
	"github.com/harrison/foreman/internal/executor"
	"github.com/harrison/foreman/internal/facts"
	"github.com/harrison/foreman/internal/history"
	"github.com/harrison/foreman/internal/logger"
	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/planfile"
	"github.com/harrison/foreman/internal/snapshot"
	"github.com/harrison/foreman/internal/tool"
)

// NewRunCommand creates and returns the run subcommand
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <plan-file>",
		Short: "Execute a saved plan with local filesystem and shell tools",
		Long: `Load a plan file and execute its steps against the local machine.

Filesystem steps (read_file, create_file, delete_file, list_directory,
apply_patch) and run_command are handled locally; browser and AST actions
need an external tool server and will fail. Steps must carry literal
content since no code generation backend is attached.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			return runPlan(cmd.Context(), cfgPath, args[0], cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}

	return cmd
}

func runPlan(ctx context.Context, cfgPath, planPath string, out io.Writer) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	plan, err := planfile.Load(planPath)
	if err != nil {
		return err
	}
	if err := executor.ValidateSteps(plan.Steps); err != nil {
		return err
	}
	if executor.HasCycle(plan.Steps) {
		return fmt.Errorf("plan %s has a dependency cycle", plan.TaskID)
	}

	log := executor.Logger(logger.NewConsoleLogger(out, cfg.LogLevel))
	fileLog, err := logger.NewFileLoggerWithDirAndLevel(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Warnf("run log unavailable: %v", err)
	} else {
		defer fileLog.Close()
		log = teeLogger{log, fileLog}
	}

	snapshots, err := snapshot.NewStore(cfg.SnapshotDir)
	if err != nil {
		return err
	}

	var hist *history.Store
	if cfg.History.Enabled {
		hist, err = history.NewStore(cfg.History.DBPath)
		if err != nil {
			log.Warnf("history unavailable: %v", err)
		} else {
			defer hist.Close()
			if cfg.History.KeepDays > 0 {
				if pruned, err := hist.Prune(ctx, cfg.History.KeepDays); err != nil {
					log.Warnf("history prune failed: %v", err)
				} else if pruned > 0 {
					log.Debugf("pruned %d history record(s) older than %d days", pruned, cfg.History.KeepDays)
				}
			}
		}
	}

	registry := tool.NewRegistry()
	local := &localTools{}
	registry.Register("filesystem", local)
	registry.Register("shell", local)

	eng := &executor.Executor{
		Tools:               registry,
		Facts:               facts.NewStore(),
		Snapshots:           snapshots,
		Logger:              log,
		Plan:                plan,
		MaxRecoveryAttempts: cfg.MaxRecoveryAttempts,
	}

	outputs, execErr := eng.ExecuteStepsWithErrorFeedback(ctx, plan.Steps)
	result := executor.Summarize(plan.TaskID, outputs)

	if !result.Success && plan.Rollback.Enabled && plan.Rollback.RollbackOnFailure {
		result.RolledBack = rollbackFailedSteps(snapshots, outputs, plan.Rollback.MaxRollbackSteps, log)
	}
	recordRunHistory(ctx, hist, plan.TaskID, outputs, log)

	fmt.Fprintf(out, "plan %s: %d/%d step(s) completed, %d skipped, %d failed\n",
		plan.TaskID, result.Completed, result.TotalSteps, result.Skipped, len(result.FailedSteps))
	if result.RolledBack > 0 {
		fmt.Fprintf(out, "rolled back %d step(s)\n", result.RolledBack)
	}

	if execErr != nil {
		return execErr
	}
	if !result.Success {
		return fmt.Errorf("plan %s failed: %s", plan.TaskID, result.Error)
	}
	return nil
}

// rollbackFailedSteps undoes the snapshots of rollback-eligible failed
// steps, most recent first, bounded by maxSteps.
func rollbackFailedSteps(store *snapshot.Store, outputs []*executor.Output, maxSteps int, log executor.Logger) int {
	rolled := 0
	for i := len(outputs) - 1; i >= 0; i-- {
		if maxSteps > 0 && rolled >= maxSteps {
			break
		}
		out := outputs[i]
		if !out.NeedsRollback || out.Result == nil || out.Result.SnapshotID == "" {
			continue
		}
		res := store.Rollback(out.Result.SnapshotID)
		if res.Success {
			out.Step.Status = models.StatusRolledBack
			rolled++
		} else {
			log.Warnf("rollback of step %s failed: %s", out.Step.ID, res.Message)
		}
	}
	return rolled
}

func recordRunHistory(ctx context.Context, hist *history.Store, taskID string, outputs []*executor.Output, log executor.Logger) {
	if hist == nil {
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
		if err := hist.RecordStep(ctx, rec); err != nil {
			log.Warnf("failed to record step history: %v", err)
		}
	}
}

// teeLogger fans log lines out to the console and run-log loggers.
type teeLogger struct {
	console executor.Logger
	file    executor.Logger
}

func (t teeLogger) Debugf(format string, args ...any) {
	t.console.Debugf(format, args...)
	t.file.Debugf(format, args...)
}

func (t teeLogger) Infof(format string, args ...any) {
	t.console.Infof(format, args...)
	t.file.Infof(format, args...)
}

func (t teeLogger) Warnf(format string, args ...any) {
	t.console.Warnf(format, args...)
	t.file.Warnf(format, args...)
}

func (t teeLogger) Errorf(format string, args ...any) {
	t.console.Errorf(format, args...)
	t.file.Errorf(format, args...)
}

// localTools serves filesystem actions and run_command against the local
// machine. It implements tool.Client for the run subcommand only; real
// deployments attach remote tool servers instead.
type localTools struct{}

func (l *localTools) ListTools(ctx context.Context) ([]tool.Info, error) {
	return []tool.Info{
		{Name: string(models.ActionReadFile), Description: "read a local file"},
		{Name: string(models.ActionCreateFile), Description: "create a local file"},
		{Name: string(models.ActionApplyPatch), Description: "replace a local file's content"},
		{Name: string(models.ActionDeleteFile), Description: "delete a local file"},
		{Name: string(models.ActionListDirectory), Description: "list a local directory"},
		{Name: string(models.ActionRunCommand), Description: "run a shell command"},
	}, nil
}

func (l *localTools) CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	switch models.Action(name) {
	case models.ActionReadFile:
		return l.readFile(stringArg(args, "path"))
	case models.ActionCreateFile:
		return l.writeFile(stringArg(args, "path"), stringArg(args, "content"))
	case models.ActionApplyPatch:
		return l.applyPatch(stringArg(args, "path"), args["patches"])
	case models.ActionDeleteFile:
		return l.deleteFile(stringArg(args, "path"))
	case models.ActionListDirectory:
		return l.listDirectory(stringArg(args, "path"))
	case models.ActionRunCommand:
		return l.runCommand(ctx, stringArg(args, "command"))
	}
	return failure(fmt.Sprintf("action %q not supported by local tools", name)), nil
}

func (l *localTools) readFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return failure(err.Error()), nil
	}
	return map[string]any{"success": true, "content": string(data)}, nil
}

func (l *localTools) writeFile(path, content string) (map[string]any, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return failure(err.Error()), nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return failure(err.Error()), nil
	}
	return map[string]any{"success": true}, nil
}

// applyPatch supports whole-file replace patches only; partial patches need
// an AST-aware tool server.
func (l *localTools) applyPatch(path string, patches any) (map[string]any, error) {
	list, ok := patches.([]any)
	if !ok || len(list) != 1 {
		return failure("local tools only apply a single replace patch"), nil
	}
	patch, ok := list[0].(map[string]any)
	if !ok {
		return failure("malformed patch"), nil
	}
	if t, _ := patch["type"].(string); t != "replace" {
		return failure(fmt.Sprintf("local tools cannot apply %q patches", t)), nil
	}
	if _, err := os.Stat(path); err != nil {
		return failure(err.Error()), nil
	}
	content, _ := patch["content"].(string)
	return l.writeFile(path, content)
}

func (l *localTools) deleteFile(path string) (map[string]any, error) {
	if err := os.Remove(path); err != nil {
		return failure(err.Error()), nil
	}
	return map[string]any{"success": true}, nil
}

func (l *localTools) listDirectory(path string) (map[string]any, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return failure(err.Error()), nil
	}
	names := make([]any, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return map[string]any{"success": true, "entries": names}, nil
}

func (l *localTools) runCommand(ctx context.Context, command string) (map[string]any, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return map[string]any{
			"success": false,
			"error":   err.Error(),
			"output":  string(output),
		}, nil
	}
	return map[string]any{"success": true, "output": string(output)}, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func failure(msg string) map[string]any {
	return map[string]any{"success": false, "error": msg}
}
