package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePlanFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.md")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validPlan = `# Plan: task-1

Task: Read then create.

## Step: step-1

- action: read_file
- phase: setup
- depends: none

` + "```yaml\npath: src/App.tsx\n```" + `

## Step: step-2

- action: create_file
- phase: build
- depends: step-1

` + "```yaml\npath: src/About.tsx\ncontent: placeholder\n```" + `
`

func TestValidatePlansAccepted(t *testing.T) {
	path := writePlanFile(t, validPlan)

	var out bytes.Buffer
	if err := validatePlans([]string{path}, &out); err != nil {
		t.Fatalf("validatePlans() error = %v\noutput:\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "plan task-1: 2 step(s) in 2 phase(s)") {
		t.Errorf("output missing summary line:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "✓") {
		t.Errorf("output missing success marker:\n%s", out.String())
	}
}

func TestValidatePlansCycle(t *testing.T) {
	cyclic := `# Plan: task-2

## Step: a

- action: read_file
- depends: b

` + "```yaml\npath: x.ts\n```" + `

## Step: b

- action: read_file
- depends: a

` + "```yaml\npath: y.ts\n```" + `
`
	path := writePlanFile(t, cyclic)

	var out bytes.Buffer
	err := validatePlans([]string{path}, &out)
	if err == nil {
		t.Fatal("expected an error for a cyclic plan")
	}
	if !strings.Contains(out.String(), "dependency cycle") {
		t.Errorf("output should name the cycle:\n%s", out.String())
	}
}

func TestValidatePlansUnknownAction(t *testing.T) {
	bad := `# Plan: task-3

## Step: step-1

- action: summon_daemon
- depends: none
`
	path := writePlanFile(t, bad)

	var out bytes.Buffer
	if err := validatePlans([]string{path}, &out); err == nil {
		t.Fatal("expected an error for an unknown action")
	}
	if !strings.Contains(out.String(), `unknown action "summon_daemon"`) {
		t.Errorf("output should name the action:\n%s", out.String())
	}
}

func TestValidatePlansMissingParams(t *testing.T) {
	bad := `# Plan: task-4

## Step: step-1

- action: read_file
- depends: none
`
	path := writePlanFile(t, bad)

	var out bytes.Buffer
	if err := validatePlans([]string{path}, &out); err == nil {
		t.Fatal("expected an error for missing params")
	}
	if !strings.Contains(out.String(), "missing params") {
		t.Errorf("output should list missing params:\n%s", out.String())
	}
}

func TestValidatePlansCountsFailures(t *testing.T) {
	good := writePlanFile(t, validPlan)
	missing := filepath.Join(t.TempDir(), "absent.md")

	var out bytes.Buffer
	err := validatePlans([]string{good, missing}, &out)
	if err == nil {
		t.Fatal("expected an aggregate error")
	}
	if !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("error = %v, want failure count 1 of 2", err)
	}
}

func TestRootCommandWiring(t *testing.T) {
	root := NewRootCommand()

	names := make(map[string]bool)
	for _, sub := range root.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"validate", "snapshots"} {
		if !names[want] {
			t.Errorf("root command missing %q subcommand", want)
		}
	}
}
