package entity

import "time"

// Step is a named status that any workflow can place
type Step struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	DefaultRole Role      `json:"default_role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Workflow is one business process, e.g. ADMISSION or TERMINATION
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WorkflowStep places a step inside a workflow.
// An empty AllowedNextStepIDs means the step is open: any target is accepted,
// unless Final is set, in which case the step has no exit at all.
type WorkflowStep struct {
	WorkflowID         string   `json:"workflow_id"`
	StepID             string   `json:"step_id"`
	Order              int      `json:"order"`
	RoleOverride       *Role    `json:"role_override,omitempty"`
	AllowedNextStepIDs []string `json:"allowed_next_step_ids"`
	Final              bool     `json:"final"`
}

// WorkflowStepConfig is a workflow step joined with its step definition
type WorkflowStepConfig struct {
	WorkflowStep
	Step Step `json:"step"`
}

// ResponsibleRole returns the override when set, else the step's default role
func (c *WorkflowStepConfig) ResponsibleRole() Role {
	if c.RoleOverride != nil && *c.RoleOverride != "" {
		return *c.RoleOverride
	}
	return c.Step.DefaultRole
}

// WorkflowDefinition is a workflow with its ordered steps
type WorkflowDefinition struct {
	Workflow
	Steps []WorkflowStepConfig `json:"steps"`
}
