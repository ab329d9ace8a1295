package workflow

import (
	"fmt"

	"github.com/garyjia/hr-requests/internal/domain/entity"
)

// GraphBuilder builds an immutable Graph for one workflow
type GraphBuilder interface {
	// Configure returns the node configuration for the given step, creating it on first use
	Configure(step entity.Step, order int) NodeConfiguration

	// Build validates the configured nodes and returns the graph
	Build() (*Graph, error)
}

// NodeConfiguration configures the outgoing edges of one step
type NodeConfiguration interface {
	// Permit allows a transition to the step with the given id
	Permit(toStepID string) NodeConfiguration

	// RoleOverride replaces the step's default responsible role in this workflow
	RoleOverride(role entity.Role) NodeConfiguration

	// Final closes the step: no transition leaves it
	Final() NodeConfiguration
}

// nodeConfig implements NodeConfiguration
type nodeConfig struct {
	step     entity.Step
	order    int
	override *entity.Role
	next     []string
	final    bool
}

// graphBuilder implements GraphBuilder
type graphBuilder struct {
	workflow entity.Workflow
	nodes    map[string]*nodeConfig
	sequence []string
}

// NewBuilder creates a new graph builder for the workflow
func NewBuilder(wf entity.Workflow) GraphBuilder {
	return &graphBuilder{
		workflow: wf,
		nodes:    make(map[string]*nodeConfig),
	}
}

// Configure returns the node configuration for the given step
func (b *graphBuilder) Configure(step entity.Step, order int) NodeConfiguration {
	cfg, exists := b.nodes[step.ID]
	if !exists {
		cfg = &nodeConfig{step: step, order: order}
		b.nodes[step.ID] = cfg
		b.sequence = append(b.sequence, step.ID)
	}
	return cfg
}

// Final marks the step as having no exit
func (c *nodeConfig) Final() NodeConfiguration {
	c.final = true
	return c
}

// Permit allows a transition to the step with the given id
func (c *nodeConfig) Permit(toStepID string) NodeConfiguration {
	for _, id := range c.next {
		if id == toStepID {
			return c
		}
	}
	c.next = append(c.next, toStepID)
	return c
}

// RoleOverride replaces the step's default role
func (c *nodeConfig) RoleOverride(role entity.Role) NodeConfiguration {
	if role == "" {
		c.override = nil
		return c
	}
	r := role
	c.override = &r
	return c
}

// Build validates orders and edges and returns an immutable graph
func (b *graphBuilder) Build() (*Graph, error) {
	g := &Graph{
		workflow: b.workflow,
		byID:     make(map[string]*Node, len(b.nodes)),
		byName:   make(map[string]*Node, len(b.nodes)),
	}

	orders := make(map[int]string, len(b.nodes))
	for _, id := range b.sequence {
		cfg := b.nodes[id]
		if cfg.order < 1 {
			return nil, fmt.Errorf("%w: step %s has order %d, orders start at 1", ErrConfiguration, cfg.step.Name, cfg.order)
		}
		if other, dup := orders[cfg.order]; dup {
			return nil, fmt.Errorf("%w: steps %s and %s share order %d", ErrConfiguration, other, cfg.step.Name, cfg.order)
		}
		orders[cfg.order] = cfg.step.Name
		if cfg.final && len(cfg.next) > 0 {
			return nil, fmt.Errorf("%w: final step %s cannot allow next steps", ErrConfiguration, cfg.step.Name)
		}

		if _, dup := g.byName[cfg.step.Name]; dup {
			return nil, fmt.Errorf("%w: step name %s appears twice", ErrConfiguration, cfg.step.Name)
		}

		node := &Node{
			config: entity.WorkflowStepConfig{
				WorkflowStep: entity.WorkflowStep{
					WorkflowID:         b.workflow.ID,
					StepID:             cfg.step.ID,
					Order:              cfg.order,
					RoleOverride:       cfg.override,
					AllowedNextStepIDs: append([]string{}, cfg.next...),
					Final:              cfg.final,
				},
				Step: cfg.step,
			},
			next: make(map[string]struct{}, len(cfg.next)),
		}
		for _, to := range cfg.next {
			node.next[to] = struct{}{}
		}
		g.byID[cfg.step.ID] = node
		g.byName[cfg.step.Name] = node
		g.ordered = append(g.ordered, node)
	}

	for _, node := range g.ordered {
		for _, to := range node.config.AllowedNextStepIDs {
			if _, ok := g.byID[to]; !ok {
				return nil, fmt.Errorf("%w: step %s allows unknown next step %s", ErrConfiguration, node.Name(), to)
			}
		}
	}

	sortNodes(g.ordered)
	return g, nil
}
