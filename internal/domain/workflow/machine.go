package workflow

import "fmt"

// Machine tracks the current step of one request against a workflow graph
type Machine interface {
	// State returns the current step name
	State() string

	// CanFire returns true if the target step is reachable from the current step
	CanFire(target string) bool

	// Fire moves to the target step if the transition is allowed
	Fire(target string) error

	// PermittedTargets returns the step names reachable from the current step
	PermittedTargets() []string
}

type machine struct {
	graph   *Graph
	current string
}

// NewMachine creates a machine positioned at the given step
func NewMachine(g *Graph, current string) Machine {
	return &machine{graph: g, current: current}
}

func (m *machine) State() string {
	return m.current
}

func (m *machine) CanFire(target string) bool {
	return m.graph.IsTransitionAllowed(m.current, target)
}

// Fire moves to the target step if the transition is allowed
func (m *machine) Fire(target string) error {
	if !m.graph.Contains(m.current) {
		return fmt.Errorf("%w: current step %s is not part of workflow %s", ErrInvalidTransition, m.current, m.graph.workflow.Name)
	}
	if !m.graph.Contains(target) {
		return fmt.Errorf("%w: step %s is not part of workflow %s", ErrInvalidTransition, target, m.graph.workflow.Name)
	}
	if !m.CanFire(target) {
		return fmt.Errorf("%w: transition %s -> %s not permitted", ErrInvalidTransition, m.current, target)
	}
	m.current = target
	return nil
}

// PermittedTargets returns the step names reachable from the current step.
// For an open step this is every step of the workflow.
func (m *machine) PermittedTargets() []string {
	if m.graph.IsOpen(m.current) {
		names := make([]string, 0, m.graph.Len())
		for _, n := range m.graph.ordered {
			names = append(names, n.Name())
		}
		return names
	}
	next := m.graph.Next(m.current)
	names := make([]string, 0, len(next))
	for _, n := range next {
		names = append(names, n.Name())
	}
	return names
}
