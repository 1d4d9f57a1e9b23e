// Package planfile loads and saves execution plans as markdown documents.
// A plan file has a "# Plan:" title, an optional "Task:" summary paragraph,
// and one "## Step:" section per step. Step fields are a bullet list and
// params are a fenced yaml block.
package planfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/harrison/foreman/internal/models"
)

type Parser struct {
	markdown goldmark.Markdown
}

func NewParser() *Parser {
	return &Parser{
		markdown: goldmark.New(),
	}
}

// Load reads a plan file from disk.
func Load(path string) (*models.ExecutionPlan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan file: %w", err)
	}
	defer f.Close()
	return NewParser().Parse(f)
}

// Parse reads a markdown plan from r.
func (p *Parser) Parse(r io.Reader) (*models.ExecutionPlan, error) {
	source, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}

	doc := p.markdown.Parser().Parse(text.NewReader(source))

	plan := &models.ExecutionPlan{}
	var current *models.ExecutionStep
	inSummary := false

	walkErr := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			inSummary = false
			heading := extractText(node, source)
			switch node.Level {
			case 1:
				if id, ok := strings.CutPrefix(heading, "Plan:"); ok {
					plan.TaskID = strings.TrimSpace(id)
					inSummary = true
				}
			case 2:
				if current != nil {
					plan.Steps = append(plan.Steps, current)
				}
				current = nil
				if id, ok := strings.CutPrefix(heading, "Step:"); ok {
					current = &models.ExecutionStep{
						ID:     strings.TrimSpace(id),
						Status: models.StatusPending,
					}
				}
			}
			return ast.WalkSkipChildren, nil

		case *ast.Paragraph:
			if inSummary && current == nil {
				para := extractText(node, source)
				if rest, ok := strings.CutPrefix(para, "Task:"); ok {
					plan.Summary = strings.TrimSpace(rest)
				}
			}
			if current != nil && node.Parent() != nil {
				if _, isItem := node.Parent().(*ast.ListItem); isItem {
					applyField(current, extractText(node, source))
				}
			}
			return ast.WalkContinue, nil

		case *ast.TextBlock:
			if current != nil && node.Parent() != nil {
				if _, isItem := node.Parent().(*ast.ListItem); isItem {
					applyField(current, extractText(node, source))
				}
			}
			return ast.WalkContinue, nil

		case *ast.FencedCodeBlock:
			if current == nil {
				return ast.WalkContinue, nil
			}
			lang := string(node.Language(source))
			if lang != "yaml" && lang != "yml" {
				return ast.WalkContinue, nil
			}
			var buf bytes.Buffer
			for i := 0; i < node.Lines().Len(); i++ {
				seg := node.Lines().At(i)
				buf.Write(seg.Value(source))
			}
			params := map[string]any{}
			if err := yaml.Unmarshal(buf.Bytes(), &params); err != nil {
				return ast.WalkStop, fmt.Errorf("step %s: invalid params block: %w", current.ID, err)
			}
			current.Params = params
			return ast.WalkSkipChildren, nil
		}

		return ast.WalkContinue, nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	if current != nil {
		plan.Steps = append(plan.Steps, current)
	}
	if plan.TaskID == "" {
		return nil, fmt.Errorf("plan file has no \"# Plan:\" heading")
	}
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("plan %s has no steps", plan.TaskID)
	}
	for _, step := range plan.Steps {
		if step.Tool == "" {
			step.Tool = models.DefaultTool(step.Action)
		}
	}
	return plan, nil
}

var fieldRe = regexp.MustCompile(`^(\w+):\s*(.*)$`)

// applyField parses a "name: value" bullet into the step.
func applyField(step *models.ExecutionStep, line string) {
	matches := fieldRe.FindStringSubmatch(strings.TrimSpace(line))
	if len(matches) != 3 {
		return
	}
	key := strings.ToLower(matches[1])
	value := strings.TrimSpace(matches[2])

	switch key {
	case "action":
		step.Action = models.Action(value)
	case "tool":
		step.Tool = value
	case "phase":
		step.Phase = value
	case "description":
		step.Description = value
	case "depends":
		if strings.EqualFold(value, "none") || value == "" {
			return
		}
		for _, dep := range strings.Split(value, ",") {
			dep = strings.TrimSpace(dep)
			if dep != "" {
				step.Dependencies = append(step.Dependencies, dep)
			}
		}
	}
}

// extractText extracts plain text from an AST node.
func extractText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		} else if c.HasChildren() {
			buf.WriteString(extractText(c, source))
		}
	}
	return buf.String()
}

// Save writes the plan to path in the markdown format Load reads.
func Save(path string, plan *models.ExecutionPlan) error {
	data, err := Render(plan)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write plan file: %w", err)
	}
	return nil
}

// Render serializes the plan as markdown.
func Render(plan *models.ExecutionPlan) ([]byte, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Plan: %s\n\n", plan.TaskID)
	if plan.Summary != "" {
		fmt.Fprintf(&sb, "Task: %s\n\n", plan.Summary)
	}

	for _, step := range plan.Steps {
		fmt.Fprintf(&sb, "## Step: %s\n\n", step.ID)
		fmt.Fprintf(&sb, "- action: %s\n", step.Action)
		if step.Tool != "" {
			fmt.Fprintf(&sb, "- tool: %s\n", step.Tool)
		}
		if step.Phase != "" {
			fmt.Fprintf(&sb, "- phase: %s\n", step.Phase)
		}
		if len(step.Dependencies) > 0 {
			fmt.Fprintf(&sb, "- depends: %s\n", strings.Join(step.Dependencies, ", "))
		} else {
			sb.WriteString("- depends: none\n")
		}
		if step.Description != "" {
			fmt.Fprintf(&sb, "- description: %s\n", step.Description)
		}
		sb.WriteString("\n")

		if len(step.Params) > 0 {
			params, err := marshalParams(step.Params)
			if err != nil {
				return nil, fmt.Errorf("step %s: %w", step.ID, err)
			}
			sb.WriteString("```yaml\n")
			sb.Write(params)
			if !bytes.HasSuffix(params, []byte("\n")) {
				sb.WriteString("\n")
			}
			sb.WriteString("```\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// marshalParams emits params with stable key order.
func marshalParams(params map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		var key, val yaml.Node
		key.SetString(k)
		if err := val.Encode(params[k]); err != nil {
			return nil, fmt.Errorf("invalid param %q: %w", k, err)
		}
		node.Content = append(node.Content, &key, &val)
	}
	return yaml.Marshal(node)
}
