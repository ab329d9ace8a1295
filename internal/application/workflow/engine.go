// Package workflow holds the workflow definition store: the cached per-workflow
// transition graph, step catalogue administration and bulk step replacement.
package workflow

import (
	"context"

	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	domainwf "github.com/garyjia/hr-requests/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DefinitionStore answers questions about workflow configuration
type DefinitionStore interface {
	// ActiveWorkflow returns the workflow with name, failing with ErrInvalidWorkflow when missing or inactive
	ActiveWorkflow(ctx context.Context, name string) (*entity.Workflow, error)

	// Graph returns the cached transition graph of a workflow
	Graph(ctx context.Context, workflowID string) (*domainwf.Graph, error)

	// GetInitialStep returns the step at order 1
	GetInitialStep(ctx context.Context, workflowID string) (*entity.Step, error)

	// GetWorkflowStep returns the placement of stepName in the workflow
	GetWorkflowStep(ctx context.Context, workflowID, stepName string) (*entity.WorkflowStepConfig, error)

	// IsTransitionAllowed reports whether to is reachable from from
	IsTransitionAllowed(ctx context.Context, workflowID, from, to string) (bool, error)

	// ResolveResponsibleRole returns the role responsible for stepName in the workflow
	ResolveResponsibleRole(ctx context.Context, workflowID, stepName string) (entity.Role, error)

	// ListWorkflows returns every workflow
	ListWorkflows(ctx context.Context) ([]*entity.Workflow, error)

	// GetWorkflow returns a workflow with its ordered steps
	GetWorkflow(ctx context.Context, workflowID string) (*entity.WorkflowDefinition, error)

	// ReplaceSteps atomically replaces the ordered step list of a workflow
	ReplaceSteps(ctx context.Context, workflowID string, steps []entity.WorkflowStep) (*entity.WorkflowDefinition, error)

	// Invalidate drops the cached graph of a workflow
	Invalidate(workflowID string)
}

// StepCatalog administers the workflow-agnostic step catalogue
type StepCatalog interface {
	CreateStep(ctx context.Context, step *entity.Step) (*entity.Step, error)
	GetStep(ctx context.Context, id string) (*entity.Step, error)
	ListSteps(ctx context.Context, filter port.StepFilter) ([]*entity.Step, int, error)
	UpdateStep(ctx context.Context, step *entity.Step) (*entity.Step, error)
	DeleteStep(ctx context.Context, id string) error
}
