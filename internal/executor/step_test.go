package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harrison/foreman/internal/facts"
	"github.com/harrison/foreman/internal/llm"
	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/snapshot"
)

func TestApplyPatchBlockedByKnownMissingPath(t *testing.T) {
	client := &fakeClient{}
	e := newTestExecutor(client)
	e.Facts.MarkPathMissing("src/ghost.ts")

	step := &models.ExecutionStep{
		ID:     "s1",
		Action: models.ActionApplyPatch,
		Tool:   "filesystem",
		Params: map[string]any{"path": "src/ghost.ts", "patches": []any{}},
		Status: models.StatusPending,
	}

	out := e.runStep(context.Background(), step)

	if out.Result.Success {
		t.Fatal("patching a known-missing file must fail pre-validation")
	}
	if !strings.Contains(out.Result.Error, "use create_file instead of apply_patch") {
		t.Errorf("error = %q, want create_file redirection", out.Result.Error)
	}
	if len(client.calls) != 0 {
		t.Error("the tool must not be called when pre-validation blocks")
	}
}

func TestGateBlockReclassifiedForReadOfMissingFile(t *testing.T) {
	e := newTestExecutor(&fakeClient{})
	e.Gate = &fakeGate{pathResults: map[string]*models.ValidationResult{
		"ghost.ts": models.BlockedValidation("path-exists", "ghost.ts does not exist"),
	}}

	out := e.runStep(context.Background(), readStep("s1", "ghost.ts"))
	if !out.Result.Success || !out.Result.Skipped() {
		t.Errorf("gate-blocked read of missing file should soft-skip, got success=%v", out.Result.Success)
	}
}

func TestGateBlockFailsMutatingStep(t *testing.T) {
	e := newTestExecutor(&fakeClient{})
	e.Gate = &fakeGate{pathResults: map[string]*models.ValidationResult{
		"src/app.ts": models.BlockedValidation("path-exists", "src/app.ts does not exist"),
	}}

	step := &models.ExecutionStep{
		ID:         "s1",
		Action:     models.ActionApplyPatch,
		Tool:       "filesystem",
		Params:     map[string]any{"path": "src/app.ts", "patches": []any{}},
		Validation: []models.ValidationRule{{Rule: "path", Required: true}},
		Status:     models.StatusPending,
	}

	out := e.runStep(context.Background(), step)
	if out.Result.Success {
		t.Fatal("gate-blocked patch must fail")
	}
	if !out.NeedsRollback {
		t.Error("failed step with a required rule should be rollback-eligible")
	}
}

func TestCreateFileGeneratesContentOnDemand(t *testing.T) {
	client := &fakeClient{}
	e := newTestExecutor(client)
	e.CodeGen = &fakeCapability{generateCode: func(req llm.CodeRequest) (string, error) {
		if req.Path != "src/App.tsx" || req.Language != "typescript" {
			t.Errorf("code request = %+v", req)
		}
		return "export default function App() {}", nil
	}}

	step := &models.ExecutionStep{
		ID:     "s1",
		Action: models.ActionCreateFile,
		Tool:   "filesystem",
		Params: map[string]any{"path": "src/App.tsx"},
		Status: models.StatusPending,
	}

	out := e.runStep(context.Background(), step)
	if !out.Result.Success {
		t.Fatalf("step failed: %s", out.Result.Error)
	}
	if got, _ := step.Params["content"].(string); got != "export default function App() {}" {
		t.Errorf("generated content not attached to params, got %q", got)
	}
	// The written module is tracked.
	if e.Facts.Module("src/App.tsx") == nil {
		t.Error("created source file should be recorded as a module")
	}
}

func TestApplyPatchSynthesizesReplacePatch(t *testing.T) {
	e := newTestExecutor(&fakeClient{})
	e.CodeGen = &fakeCapability{generateCode: func(req llm.CodeRequest) (string, error) {
		return "const x = 2", nil
	}}

	step := &models.ExecutionStep{
		ID:     "s1",
		Action: models.ActionApplyPatch,
		Tool:   "filesystem",
		Params: map[string]any{"path": "src/x.ts"},
		Status: models.StatusPending,
	}

	out := e.runStep(context.Background(), step)
	if !out.Result.Success {
		t.Fatalf("step failed: %s", out.Result.Error)
	}

	patches, ok := step.Params["patches"].([]any)
	if !ok || len(patches) != 1 {
		t.Fatalf("patches = %v, want single synthesized patch", step.Params["patches"])
	}
	patch := patches[0].(map[string]any)
	if patch["type"] != "replace" || patch["content"] != "const x = 2" {
		t.Errorf("synthesized patch = %v", patch)
	}
}

func TestModificationRequestCarriesReadContent(t *testing.T) {
	client := &fakeClient{handler: func(name string, args map[string]any) (map[string]any, error) {
		if name == "read_file" {
			return map[string]any{"success": true, "content": "export const A = 1"}, nil
		}
		return map[string]any{"success": true}, nil
	}}

	var captured llm.CodeRequest
	e := newTestExecutor(client)
	e.Constraints = []string{"no default exports"}
	e.CodeGen = &fakeCapability{generateCode: func(req llm.CodeRequest) (string, error) {
		captured = req
		return "export const A = 2", nil
	}}

	steps := []*models.ExecutionStep{
		readStep("s1", "src/a.ts"),
		{
			ID:           "s2",
			Action:       models.ActionApplyPatch,
			Tool:         "filesystem",
			Params:       map[string]any{"path": "src/a.ts"},
			Dependencies: []string{"s1"},
			Status:       models.StatusPending,
		},
	}

	outputs, err := e.ExecuteSteps(context.Background(), steps)
	if err != nil {
		t.Fatalf("ExecuteSteps() error = %v", err)
	}
	for _, out := range outputs {
		if out.Result == nil || !out.Result.Success {
			t.Fatalf("step %s did not succeed", out.Step.ID)
		}
	}

	if captured.ExistingContent != "export const A = 1" {
		t.Errorf("ExistingContent = %q, want the content the read returned", captured.ExistingContent)
	}
	if captured.FileContext["src/a.ts"] != "export const A = 1" {
		t.Errorf("FileContext = %v, want the read file under its path", captured.FileContext)
	}
	if len(captured.Constraints) != 1 || captured.Constraints[0] != "no default exports" {
		t.Errorf("Constraints = %v", captured.Constraints)
	}
}

func TestGeneratedContentRefreshesFileContext(t *testing.T) {
	e := newTestExecutor(&fakeClient{})
	var requests []llm.CodeRequest
	e.CodeGen = &fakeCapability{generateCode: func(req llm.CodeRequest) (string, error) {
		requests = append(requests, req)
		return fmt.Sprintf("const version = %d", len(requests)), nil
	}}

	create := &models.ExecutionStep{
		ID:     "s1",
		Action: models.ActionCreateFile,
		Tool:   "filesystem",
		Params: map[string]any{"path": "src/b.ts"},
		Status: models.StatusPending,
	}
	patch := &models.ExecutionStep{
		ID:     "s2",
		Action: models.ActionApplyPatch,
		Tool:   "filesystem",
		Params: map[string]any{"path": "src/b.ts"},
		Status: models.StatusPending,
	}

	if out := e.runStep(context.Background(), create); !out.Result.Success {
		t.Fatalf("create failed: %s", out.Result.Error)
	}
	if out := e.runStep(context.Background(), patch); !out.Result.Success {
		t.Fatalf("patch failed: %s", out.Result.Error)
	}

	if len(requests) != 2 {
		t.Fatalf("generation requests = %d, want 2", len(requests))
	}
	if requests[0].ExistingContent != "" {
		t.Errorf("first request ExistingContent = %q, want empty for a fresh file", requests[0].ExistingContent)
	}
	if requests[1].ExistingContent != "const version = 1" {
		t.Errorf("second request ExistingContent = %q, want the created content", requests[1].ExistingContent)
	}
}

func TestCodeGenerationFailureFailsStep(t *testing.T) {
	e := newTestExecutor(&fakeClient{})
	e.CodeGen = &fakeCapability{}

	step := &models.ExecutionStep{
		ID:     "s1",
		Action: models.ActionCreateFile,
		Tool:   "filesystem",
		Params: map[string]any{"path": "src/x.ts"},
		Status: models.StatusPending,
	}

	out := e.runStep(context.Background(), step)
	if out.Result.Success {
		t.Fatal("generation failure must fail the step")
	}
	if !strings.Contains(out.Result.Error, "code generation failed") {
		t.Errorf("error = %q", out.Result.Error)
	}
}

func TestPostValidationFailureIsNeverSkippable(t *testing.T) {
	e := newTestExecutor(&fakeClient{})
	e.Gate = &fakeGate{codeResult: models.BlockedValidation("syntax", "unexpected token")}

	step := &models.ExecutionStep{
		ID:     "s1",
		Action: models.ActionCreateFile,
		Tool:   "filesystem",
		Params: map[string]any{"path": "src/x.ts", "content": "const = broken"},
		Status: models.StatusPending,
	}

	out := e.runStep(context.Background(), step)
	if out.Result.Success {
		t.Fatal("post-validation block must fail the step")
	}
	if !strings.Contains(out.Result.Error, "written content failed validation") {
		t.Errorf("error = %q", out.Result.Error)
	}
	if step.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", step.Status)
	}
}

func TestUnregisteredToolFailsStep(t *testing.T) {
	e := newTestExecutor(&fakeClient{})

	step := &models.ExecutionStep{
		ID:     "s1",
		Action: models.ActionReadFile,
		Tool:   "teleporter",
		Params: map[string]any{"path": "a.ts"},
		Status: models.StatusPending,
	}

	out := e.runStep(context.Background(), step)
	if out.Result.Success {
		t.Fatal("calling an unregistered tool must fail")
	}
	if !strings.Contains(out.Result.Error, "teleporter") {
		t.Errorf("error = %q, want the tool name", out.Result.Error)
	}
}

func TestSnapshotCapturedForMutatingStep(t *testing.T) {
	dir := t.TempDir()
	store, err := snapshot.NewStore(filepath.Join(dir, "snapshots"))
	if err != nil {
		t.Fatal(err)
	}

	target := filepath.Join(dir, "app.ts")
	if err := os.WriteFile(target, []byte("before"), 0644); err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{handler: func(name string, args map[string]any) (map[string]any, error) {
		// The tool performs the write.
		if err := os.WriteFile(target, []byte("after"), 0644); err != nil {
			return nil, err
		}
		return map[string]any{"success": true}, nil
	}}
	e := newTestExecutor(client)
	e.Snapshots = store

	step := &models.ExecutionStep{
		ID:     "s1",
		Action: models.ActionApplyPatch,
		Tool:   "filesystem",
		Params: map[string]any{"path": target, "patches": []any{}},
		Status: models.StatusPending,
	}

	out := e.runStep(context.Background(), step)
	if !out.Result.Success {
		t.Fatalf("step failed: %s", out.Result.Error)
	}
	if out.Result.SnapshotID == "" {
		t.Fatal("mutating step should record a snapshot id")
	}

	snap := store.Get(out.Result.SnapshotID)
	if snap == nil || snap.PreviousContent == nil || *snap.PreviousContent != "before" {
		t.Fatalf("snapshot did not capture previous content: %+v", snap)
	}
	if snap.Content != "after" {
		t.Errorf("finalized content = %q, want after", snap.Content)
	}

	result := store.Rollback(out.Result.SnapshotID)
	if !result.Success {
		t.Fatalf("rollback failed: %s", result.Message)
	}
	data, _ := os.ReadFile(target)
	if string(data) != "before" {
		t.Errorf("rolled-back content = %q, want before", data)
	}
}

func TestSnapshotGatedByPlanStrategy(t *testing.T) {
	dir := t.TempDir()
	store, err := snapshot.NewStore(filepath.Join(dir, "snapshots"))
	if err != nil {
		t.Fatal(err)
	}

	e := newTestExecutor(&fakeClient{})
	e.Snapshots = store
	e.Plan = &models.ExecutionPlan{Rollback: models.RollbackStrategy{Enabled: false}}

	step := &models.ExecutionStep{
		ID:     "s1",
		Action: models.ActionCreateFile,
		Tool:   "filesystem",
		Params: map[string]any{"path": filepath.Join(dir, "x.ts"), "content": "x"},
		Status: models.StatusPending,
	}

	out := e.runStep(context.Background(), step)
	if !out.Result.Success {
		t.Fatalf("step failed: %s", out.Result.Error)
	}
	if out.Result.SnapshotID != "" {
		t.Error("disabled rollback strategy must suppress snapshots")
	}
	if len(store.List()) != 0 {
		t.Error("no snapshot documents should be written")
	}
}

func TestReadFileDoesNotSnapshot(t *testing.T) {
	store, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	e := newTestExecutor(&fakeClient{})
	e.Snapshots = store

	out := e.runStep(context.Background(), readStep("s1", "a.ts"))
	if out.Result.SnapshotID != "" {
		t.Error("non-mutating steps must not snapshot")
	}
	if len(store.List()) != 0 {
		t.Error("no snapshot documents should be written")
	}
}

func TestFailedStepRecordedInErrorLog(t *testing.T) {
	client := &fakeClient{handler: func(name string, args map[string]any) (map[string]any, error) {
		return map[string]any{"success": false, "error": "permission denied"}, nil
	}}
	e := newTestExecutor(client)
	e.Facts = facts.NewStore()

	step := &models.ExecutionStep{
		ID:     "s1",
		Action: models.ActionCreateFile,
		Tool:   "filesystem",
		Params: map[string]any{"path": "x.ts", "content": "x"},
		Status: models.StatusPending,
	}

	e.runStep(context.Background(), step)

	errs := e.Facts.Errors()
	if len(errs) != 1 || errs[0].StepID != "s1" || errs[0].Type != "create_file" {
		t.Errorf("error log = %v", errs)
	}
}

func TestLanguageForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"src/App.tsx", "typescript"},
		{"src/main.js", "javascript"},
		{"src/Home.vue", "vue"},
		{"styles/app.scss", "scss"},
		{"README.md", "markdown"},
		{"Makefile", "text"},
	}
	for _, tt := range tests {
		if got := languageForPath(tt.path); got != tt.want {
			t.Errorf("languageForPath(%s) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
