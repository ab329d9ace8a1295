package workflow

import (
	"fmt"
	"sort"

	"github.com/garyjia/hr-requests/internal/domain/entity"
)

// Node is a step placed in a workflow together with its outgoing edges
type Node struct {
	config entity.WorkflowStepConfig
	next   map[string]struct{}
}

// StepID returns the id of the underlying step
func (n *Node) StepID() string { return n.config.StepID }

// Name returns the step name
func (n *Node) Name() string { return n.config.Step.Name }

// Order returns the position of the step in the workflow
func (n *Node) Order() int { return n.config.Order }

// Role returns the responsible role: the override when set, else the step default
func (n *Node) Role() entity.Role { return n.config.ResponsibleRole() }

// IsOpen returns true when the step declares no allowed next steps and is not final
func (n *Node) IsOpen() bool { return len(n.next) == 0 && !n.config.Final }

// IsFinal returns true when no transition leaves the step
func (n *Node) IsFinal() bool { return n.config.Final }

// Config returns a copy of the workflow step configuration
func (n *Node) Config() *entity.WorkflowStepConfig {
	c := n.config
	c.AllowedNextStepIDs = append([]string{}, n.config.AllowedNextStepIDs...)
	return &c
}

// Graph is the adjacency of one workflow. It is immutable once built
// and safe for concurrent readers.
type Graph struct {
	workflow entity.Workflow
	byID     map[string]*Node
	byName   map[string]*Node
	ordered  []*Node
}

// Workflow returns the workflow the graph was built for
func (g *Graph) Workflow() entity.Workflow { return g.workflow }

// Len returns the number of steps in the workflow
func (g *Graph) Len() int { return len(g.ordered) }

// Nodes returns the steps ordered by their position
func (g *Graph) Nodes() []*Node {
	return append([]*Node{}, g.ordered...)
}

// Initial returns the step at order 1
func (g *Graph) Initial() (*Node, error) {
	if len(g.ordered) == 0 {
		return nil, fmt.Errorf("%w: workflow %s has no steps", ErrConfiguration, g.workflow.Name)
	}
	if g.ordered[0].Order() != 1 {
		return nil, fmt.Errorf("%w: workflow %s has no step at order 1", ErrConfiguration, g.workflow.Name)
	}
	return g.ordered[0], nil
}

// Node looks up a step of the workflow by name
func (g *Graph) Node(stepName string) (*Node, bool) {
	n, ok := g.byName[stepName]
	return n, ok
}

// Contains returns true when the step is part of the workflow
func (g *Graph) Contains(stepName string) bool {
	_, ok := g.byName[stepName]
	return ok
}

// IsOpen returns true when the step exists and accepts any target in the workflow
func (g *Graph) IsOpen(stepName string) bool {
	n, ok := g.byName[stepName]
	return ok && n.IsOpen()
}

// IsTransitionAllowed reports whether to is reachable from from.
// An open step reaches every step of the same workflow, a final step reaches
// none, and a target outside the workflow is never reachable.
func (g *Graph) IsTransitionAllowed(from, to string) bool {
	src, ok := g.byName[from]
	if !ok {
		return false
	}
	dst, ok := g.byName[to]
	if !ok {
		return false
	}
	if src.IsOpen() {
		return true
	}
	_, allowed := src.next[dst.StepID()]
	return allowed
}

// Next returns the allowed next steps of a step in declaration order
func (g *Graph) Next(stepName string) []*Node {
	src, ok := g.byName[stepName]
	if !ok {
		return nil
	}
	nodes := make([]*Node, 0, len(src.config.AllowedNextStepIDs))
	for _, id := range src.config.AllowedNextStepIDs {
		if n, ok := g.byID[id]; ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Order() < nodes[j].Order()
	})
}
