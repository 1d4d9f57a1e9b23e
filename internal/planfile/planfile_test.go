package planfile

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/foreman/internal/models"
)

const samplePlan = `# Plan: task-42

Task: Add an about page to the site

## Step: step-1

- action: read_file
- description: Check whether the page exists
- depends: none

` + "```yaml" + `
path: src/pages/About.tsx
` + "```" + `

## Step: step-2

- action: create_file
- tool: filesystem
- phase: build
- depends: step-1
- description: Create the about page

` + "```yaml" + `
path: src/pages/About.tsx
content: |
  export default function About() {}
` + "```" + `

## Step: step-3

- action: run_command
- phase: verify
- depends: step-1, step-2

` + "```yaml" + `
command: npm run build
` + "```" + `
`

func TestParsePlan(t *testing.T) {
	plan, err := NewParser().Parse(strings.NewReader(samplePlan))
	require.NoError(t, err)

	assert.Equal(t, "task-42", plan.TaskID)
	assert.Equal(t, "Add an about page to the site", plan.Summary)
	require.Len(t, plan.Steps, 3)

	first := plan.Steps[0]
	assert.Equal(t, "step-1", first.ID)
	assert.Equal(t, models.ActionReadFile, first.Action)
	assert.Equal(t, "filesystem", first.Tool, "tool defaults from the action")
	assert.Empty(t, first.Dependencies)
	assert.Equal(t, "Check whether the page exists", first.Description)
	assert.Equal(t, "src/pages/About.tsx", first.Params["path"])
	assert.Equal(t, models.StatusPending, first.Status)

	second := plan.Steps[1]
	assert.Equal(t, "build", second.Phase)
	assert.Equal(t, []string{"step-1"}, second.Dependencies)
	content, _ := second.Params["content"].(string)
	assert.Contains(t, content, "export default function About()")

	third := plan.Steps[2]
	assert.Equal(t, "shell", third.Tool, "run_command dispatches to shell by default")
	assert.Equal(t, []string{"step-1", "step-2"}, third.Dependencies)
	assert.Equal(t, "npm run build", third.Params["command"])
}

func TestParseRejectsPlanWithoutHeading(t *testing.T) {
	_, err := NewParser().Parse(strings.NewReader("## Step: step-1\n\n- action: read_file\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "# Plan:")
}

func TestParseRejectsPlanWithoutSteps(t *testing.T) {
	_, err := NewParser().Parse(strings.NewReader("# Plan: empty\n\nTask: nothing\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no steps")
}

func TestParseRejectsInvalidParamsBlock(t *testing.T) {
	doc := "# Plan: bad\n\n## Step: step-1\n\n- action: read_file\n\n```yaml\npath: [unclosed\n```\n"
	_, err := NewParser().Parse(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid params block")
}

func TestRoundTrip(t *testing.T) {
	plan := &models.ExecutionPlan{
		TaskID:  "task-7",
		Summary: "Wire up the login form",
		Steps: []*models.ExecutionStep{
			{
				ID:          "step-1",
				Description: "Read the form",
				Action:      models.ActionReadFile,
				Tool:        "filesystem",
				Params:      map[string]any{"path": "src/Login.tsx"},
				Status:      models.StatusPending,
			},
			{
				ID:           "step-2",
				Description:  "Patch the handler",
				Action:       models.ActionApplyPatch,
				Tool:         "filesystem",
				Phase:        "build",
				Dependencies: []string{"step-1"},
				Params:       map[string]any{"path": "src/Login.tsx"},
				Status:       models.StatusPending,
			},
		},
	}

	path := filepath.Join(t.TempDir(), "plan.md")
	require.NoError(t, Save(path, plan))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, plan.TaskID, loaded.TaskID)
	assert.Equal(t, plan.Summary, loaded.Summary)
	require.Len(t, loaded.Steps, len(plan.Steps))
	for i, want := range plan.Steps {
		got := loaded.Steps[i]
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Action, got.Action)
		assert.Equal(t, want.Tool, got.Tool)
		assert.Equal(t, want.Phase, got.Phase)
		assert.Equal(t, want.Description, got.Description)
		assert.Equal(t, want.Dependencies, got.Dependencies)
		assert.Equal(t, want.Params["path"], got.Params["path"])
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.md"))
	require.Error(t, err)
}
