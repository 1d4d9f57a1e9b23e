package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/foreman/internal/executor"
	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/planfile"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plan-file>...",
		Short: "Validate one or more plan files",
		Long: `Parse and validate plan files, checking for:
  - Duplicate or empty step IDs
  - Dependencies on steps that do not exist
  - Circular dependencies
  - Unknown actions and missing required params

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validatePlans(args, cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}

	return cmd
}

func validatePlans(paths []string, output io.Writer) error {
	failed := 0
	for _, path := range paths {
		if err := validatePlanFile(path, output); err != nil {
			color.New(color.FgRed).Fprintf(output, "✗ %s: %v\n", path, err)
			failed++
			continue
		}
		color.New(color.FgGreen).Fprintf(output, "✓ %s\n", path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d plan file(s) invalid", failed, len(paths))
	}
	return nil
}

func validatePlanFile(path string, output io.Writer) error {
	plan, err := planfile.Load(path)
	if err != nil {
		return err
	}

	if err := executor.ValidateSteps(plan.Steps); err != nil {
		return err
	}
	if executor.HasCycle(plan.Steps) {
		return fmt.Errorf("plan %s has a dependency cycle", plan.TaskID)
	}

	problems := 0
	for _, step := range plan.Steps {
		if !models.KnownAction(step.Action) {
			fmt.Fprintf(output, "  step %s: unknown action %q\n", step.ID, step.Action)
			problems++
			continue
		}
		if missing := step.MissingParams(); len(missing) > 0 {
			fmt.Fprintf(output, "  step %s: missing params %v\n", step.ID, missing)
			problems++
		}
	}
	if problems > 0 {
		return fmt.Errorf("%d invalid step(s)", problems)
	}

	fmt.Fprintf(output, "  plan %s: %d step(s)", plan.TaskID, len(plan.Steps))
	if order, _ := executor.GroupByPhase(plan.Steps); len(order) > 1 || order[0] != models.UnassignedPhase {
		fmt.Fprintf(output, " in %d phase(s)", len(order))
	}
	fmt.Fprintln(output)
	return nil
}
