package executor

import (
	"fmt"

	"github.com/harrison/foreman/internal/models"
)

// ValidateSteps checks that step ids are unique and non-empty and that every
// declared dependency names a step in the plan.
func ValidateSteps(steps []*models.ExecutionStep) error {
	ids := make(map[string]bool, len(steps))
	for _, step := range steps {
		if step.ID == "" {
			return fmt.Errorf("step has empty id")
		}
		if ids[step.ID] {
			return fmt.Errorf("step %s: duplicate step id", step.ID)
		}
		ids[step.ID] = true
	}
	for _, step := range steps {
		for _, dep := range step.Dependencies {
			if !ids[dep] {
				return fmt.Errorf("step %s (%s): depends on non-existent step %s", step.ID, step.Description, dep)
			}
		}
	}
	return nil
}

// HasCycle detects a dependency cycle using DFS with color marking.
func HasCycle(steps []*models.ExecutionStep) bool {
	const (
		white = 0 // not visited
		gray  = 1 // visiting
		black = 2 // visited
	)

	// Edges run prerequisite -> dependent.
	edges := make(map[string][]string)
	colors := make(map[string]int, len(steps))
	ids := make(map[string]bool, len(steps))
	for _, step := range steps {
		ids[step.ID] = true
		colors[step.ID] = white
	}
	for _, step := range steps {
		for _, dep := range step.Dependencies {
			if dep == step.ID {
				return true // self-reference is a cycle
			}
			if ids[dep] {
				edges[dep] = append(edges[dep], step.ID)
			}
		}
	}

	var dfs func(string) bool
	dfs = func(node string) bool {
		colors[node] = gray
		for _, neighbor := range edges[node] {
			if colors[neighbor] == gray {
				return true // back edge = cycle
			}
			if colors[neighbor] == white && dfs(neighbor) {
				return true
			}
		}
		colors[node] = black
		return false
	}

	for id := range colors {
		if colors[id] == white && dfs(id) {
			return true
		}
	}
	return false
}

// GroupByPhase buckets steps by their phase tag, preserving the order phases
// are first seen. Steps without a phase form the "unassigned" group.
func GroupByPhase(steps []*models.ExecutionStep) (order []string, groups map[string][]*models.ExecutionStep) {
	groups = make(map[string][]*models.ExecutionStep)
	for _, step := range steps {
		phase := step.Phase
		if phase == "" {
			phase = models.UnassignedPhase
		}
		if _, seen := groups[phase]; !seen {
			order = append(order, phase)
		}
		groups[phase] = append(groups[phase], step)
	}
	return order, groups
}
