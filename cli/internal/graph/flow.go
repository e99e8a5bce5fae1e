// Package graph analyses the control flow between the steps of a workflow.
package graph

import (
	"fmt"
	"strings"

	"github.com/BDNK1/agentflow/runtime"
)

// Graph represents the transitions between the steps of one workflow
type Graph struct {
	// order keeps step ids in definition order so results are stable
	order []string

	kinds map[string]runtime.StepKind

	// ends marks steps after which the run can complete
	ends map[string]bool

	// edges maps a step to the steps it can hand over to
	edges map[string][]string

	// reverseEdges maps a step to the steps that can hand over to it
	reverseEdges map[string][]string
}

// BuildGraph constructs the transition graph of a workflow
func BuildGraph(wf *runtime.Workflow) (*Graph, error) {
	g := &Graph{
		kinds:        make(map[string]runtime.StepKind),
		ends:         make(map[string]bool),
		edges:        make(map[string][]string),
		reverseEdges: make(map[string][]string),
	}

	// First pass: register all nodes
	for _, step := range wf.Steps {
		g.order = append(g.order, step.ID)
		g.kinds[step.ID] = step.Kind
		if step.Kind == runtime.KindCondition {
			g.ends[step.ID] = step.NextIfTrue == "" || step.NextIfFalse == ""
		} else {
			g.ends[step.ID] = step.Next == ""
		}
		g.edges[step.ID] = []string{}
		g.reverseEdges[step.ID] = []string{}
	}

	// Second pass: build edges
	for _, step := range wf.Steps {
		for _, target := range targets(step) {
			if _, exists := g.kinds[target]; !exists {
				return nil, &GraphError{
					Type:    ErrorMissingStep,
					StepID:  step.ID,
					Message: fmt.Sprintf("step '%s' hands over to '%s' which is not defined", step.ID, target),
				}
			}
			g.edges[step.ID] = append(g.edges[step.ID], target)
			g.reverseEdges[target] = append(g.reverseEdges[target], step.ID)
		}
	}

	return g, nil
}

func targets(step runtime.Step) []string {
	var out []string
	for _, t := range []string{step.Next, step.NextIfTrue, step.NextIfFalse} {
		if t != "" && (len(out) == 0 || out[0] != t) {
			out = append(out, t)
		}
	}
	return out
}

// Unreachable returns the steps a run can never get to from the first step
func (g *Graph) Unreachable() []string {
	if len(g.order) == 0 {
		return nil
	}

	seen := map[string]bool{g.order[0]: true}
	queue := []string{g.order[0]}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range g.edges[current] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}

	var out []string
	for _, id := range g.order {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// FindCycle returns a loop in the graph as a closed path (first == last),
// or nil if the workflow always terminates structurally.
func (g *Graph) FindCycle() []string {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	parent := make(map[string]string)

	var dfs func(node string) []string

	dfs = func(node string) []string {
		visited[node] = true
		recStack[node] = true

		for _, next := range g.edges[node] {
			if !visited[next] {
				parent[next] = node
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			} else if recStack[next] {
				// Found cycle: reconstruct it
				cycle := []string{next}
				current := node
				for current != next {
					cycle = append([]string{current}, cycle...)
					current = parent[current]
				}
				return append([]string{next}, cycle...)
			}
		}

		recStack[node] = false
		return nil
	}

	for _, node := range g.order {
		if !visited[node] {
			if cycle := dfs(node); cycle != nil {
				return cycle
			}
		}
	}

	return nil
}

// Terminal returns the steps after which a run can complete
func (g *Graph) Terminal() []string {
	var out []string
	for _, id := range g.order {
		if g.ends[id] {
			out = append(out, id)
		}
	}
	return out
}

// Successors returns the steps a step can hand over to
func (g *Graph) Successors(stepID string) []string {
	return g.edges[stepID]
}

// Predecessors returns the steps that can hand over to a step
func (g *Graph) Predecessors(stepID string) []string {
	return g.reverseEdges[stepID]
}

// Warning is a structural smell that does not make a workflow invalid
type Warning struct {
	StepID  string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("step %s: %s", w.StepID, w.Message)
}

// Lint reports unreachable steps, loops without an exit condition and
// workflows that can never complete.
func (g *Graph) Lint() []Warning {
	var warnings []Warning

	for _, id := range g.Unreachable() {
		warnings = append(warnings, Warning{StepID: id, Message: "unreachable from the first step"})
	}

	if cycle := g.FindCycle(); cycle != nil {
		guarded := false
		for _, id := range cycle {
			if g.kinds[id] == runtime.KindCondition {
				guarded = true
				break
			}
		}
		msg := "loop " + strings.Join(cycle, " → ")
		if !guarded {
			msg += " has no condition step and never ends"
		}
		warnings = append(warnings, Warning{StepID: cycle[0], Message: msg})
	}

	if len(g.order) > 0 && len(g.Terminal()) == 0 {
		warnings = append(warnings, Warning{StepID: g.order[0], Message: "no step lets the run complete"})
	}

	return warnings
}

// GraphError represents errors that occur during graph operations
type GraphError struct {
	Type    ErrorType
	StepID  string
	Message string
}

func (e *GraphError) Error() string {
	return e.Message
}

// ErrorType represents different types of graph errors
type ErrorType int

const (
	ErrorMissingStep ErrorType = iota
)

func (t ErrorType) String() string {
	switch t {
	case ErrorMissingStep:
		return "MissingStep"
	default:
		return "Unknown"
	}
}
