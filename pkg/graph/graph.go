// Package graph implements the Execution Graph (C4): a frozen, ordered
// step sequence resolved from a policy's step list, exposing the
// index_of/next_step/is_terminal queries the loop controller and
// engine runner need. A Graph is immutable after construction.
package graph

import (
	"fmt"
)

// Graph is a linear, ordered sequence of step names.
type Graph struct {
	steps   []string
	indexOf map[string]int
}

// Build constructs a Graph from an ordered, policy-resolved step list.
// It fails if steps is empty or contains a duplicate name -- a policy
// should already guarantee uniqueness (pkg/policy.Register enforces
// it), but Build re-checks because a Graph must never be built from an
// unvalidated source.
func Build(steps []string) (*Graph, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("graph: step list must not be empty")
	}
	indexOf := make(map[string]int, len(steps))
	for i, s := range steps {
		if _, dup := indexOf[s]; dup {
			return nil, fmt.Errorf("graph: duplicate step %q", s)
		}
		indexOf[s] = i
	}
	cp := make([]string, len(steps))
	copy(cp, steps)
	return &Graph{steps: cp, indexOf: indexOf}, nil
}

// Steps returns the full ordered step list.
func (g *Graph) Steps() []string {
	cp := make([]string, len(g.steps))
	copy(cp, g.steps)
	return cp
}

// Len returns the number of steps in the graph.
func (g *Graph) Len() int {
	return len(g.steps)
}

// IndexOf returns the zero-based position of step, or (-1, false) if
// step is not part of this graph.
func (g *Graph) IndexOf(step string) (int, bool) {
	i, ok := g.indexOf[step]
	if !ok {
		return -1, false
	}
	return i, true
}

// StepAt returns the step name at index i.
func (g *Graph) StepAt(i int) (string, bool) {
	if i < 0 || i >= len(g.steps) {
		return "", false
	}
	return g.steps[i], true
}

// NextStep returns the step after the given one, or ("", false) if
// step is the last step or not found.
func (g *Graph) NextStep(step string) (string, bool) {
	i, ok := g.indexOf[step]
	if !ok {
		return "", false
	}
	return g.StepAt(i + 1)
}

// IsTerminal reports whether step is the last step in the graph.
func (g *Graph) IsTerminal(step string) bool {
	i, ok := g.indexOf[step]
	if !ok {
		return false
	}
	return i == len(g.steps)-1
}

// First returns the first step of the graph.
func (g *Graph) First() string {
	return g.steps[0]
}
