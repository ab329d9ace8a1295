package workflow

import (
	"github.com/garyjia/hr-requests/internal/domain/entity"
	domainwf "github.com/garyjia/hr-requests/internal/domain/workflow"
)

// BuildGraph creates the transition graph of a workflow from its stored step configuration
func BuildGraph(wf entity.Workflow, configs []*entity.WorkflowStepConfig) (*domainwf.Graph, error) {
	builder := domainwf.NewBuilder(wf)

	for _, cfg := range configs {
		node := builder.Configure(cfg.Step, cfg.Order)
		if cfg.RoleOverride != nil {
			node.RoleOverride(*cfg.RoleOverride)
		}
		if cfg.Final {
			node.Final()
		}
		for _, next := range cfg.AllowedNextStepIDs {
			node.Permit(next)
		}
	}

	return builder.Build()
}
