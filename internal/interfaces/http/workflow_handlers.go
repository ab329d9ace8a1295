package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/domain/entity"
)

// StepBody is the body of POST /api/steps and PUT /api/steps/:id
type StepBody struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	DefaultRole string `json:"default_role" binding:"required"`
}

// WorkflowStepBody places one step in PUT /api/workflows/:id/steps
type WorkflowStepBody struct {
	StepID             string   `json:"step_id" binding:"required"`
	Order              int      `json:"order" binding:"required,min=1"`
	RoleOverride       string   `json:"role_override"`
	AllowedNextStepIDs []string `json:"allowed_next_step_ids"`
	Final              bool     `json:"final"`
}

// ReplaceStepsBody is the body of PUT /api/workflows/:id/steps
type ReplaceStepsBody struct {
	Steps []WorkflowStepBody `json:"steps" binding:"required,dive"`
}

// PermissionsBody is the body of PUT /api/users/:id/permissions
type PermissionsBody struct {
	Permissions []PermissionGrant `json:"permissions"`
}

// PermissionGrant is one grant in PermissionsBody
type PermissionGrant struct {
	PermissionKey string  `json:"permission_key" binding:"required"`
	ScopeType     *string `json:"scope_type"`
	ScopeID       *string `json:"scope_id"`
}

// ListWorkflows handles GET /api/workflows
func (h *Handlers) ListWorkflows(c *gin.Context) {
	workflows, err := h.services.Workflows.ListWorkflows(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if workflows == nil {
		workflows = []*entity.Workflow{}
	}
	respondOK(c, workflows)
}

// GetWorkflow handles GET /api/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	def, err := h.services.Workflows.GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, def)
}

// ReplaceWorkflowSteps handles PUT /api/workflows/:id/steps
func (h *Handlers) ReplaceWorkflowSteps(c *gin.Context) {
	var body ReplaceStepsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	steps := make([]entity.WorkflowStep, 0, len(body.Steps))
	for _, s := range body.Steps {
		ws := entity.WorkflowStep{
			StepID:             s.StepID,
			Order:              s.Order,
			AllowedNextStepIDs: s.AllowedNextStepIDs,
			Final:              s.Final,
		}
		if s.RoleOverride != "" {
			role, err := entity.ParseRole(s.RoleOverride)
			if err != nil {
				badRequest(c, err.Error())
				return
			}
			ws.RoleOverride = &role
		}
		steps = append(steps, ws)
	}

	def, err := h.services.Workflows.ReplaceSteps(c.Request.Context(), c.Param("id"), steps)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("Workflow steps replaced via API", "workflow_id", c.Param("id"), "actor_id", actorFrom(c).UserID)
	respondOK(c, def)
}

// ListSteps handles GET /api/steps
func (h *Handlers) ListSteps(c *gin.Context) {
	filter := port.StepFilter{Name: c.Query("name")}
	if raw := c.Query("role"); raw != "" {
		role, err := entity.ParseRole(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		filter.Role = role
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))

	steps, total, err := h.services.Workflows.ListSteps(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if steps == nil {
		steps = []*entity.Step{}
	}
	respondOK(c, gin.H{"total": total, "steps": steps, "page": filter.Page, "limit": filter.Limit})
}

// CreateStep handles POST /api/steps
func (h *Handlers) CreateStep(c *gin.Context) {
	step, ok := bindStep(c)
	if !ok {
		return
	}

	created, err := h.services.Workflows.CreateStep(c.Request.Context(), step)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: created})
}

// UpdateStep handles PUT /api/steps/:id
func (h *Handlers) UpdateStep(c *gin.Context) {
	step, ok := bindStep(c)
	if !ok {
		return
	}
	step.ID = c.Param("id")

	updated, err := h.services.Workflows.UpdateStep(c.Request.Context(), step)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, updated)
}

// DeleteStep handles DELETE /api/steps/:id
func (h *Handlers) DeleteStep(c *gin.Context) {
	if err := h.services.Workflows.DeleteStep(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, gin.H{"deleted": c.Param("id")})
}

func bindStep(c *gin.Context) (*entity.Step, bool) {
	var body StepBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return nil, false
	}
	role, err := entity.ParseRole(body.DefaultRole)
	if err != nil {
		badRequest(c, err.Error())
		return nil, false
	}
	return &entity.Step{Name: body.Name, Description: body.Description, DefaultRole: role}, true
}

// ListUserPermissions handles GET /api/users/:id/permissions
func (h *Handlers) ListUserPermissions(c *gin.Context) {
	grants, err := h.services.Permissions.ListUserPermissions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if grants == nil {
		grants = []entity.UserPermission{}
	}
	respondOK(c, grants)
}

// SetUserPermissions handles PUT /api/users/:id/permissions
func (h *Handlers) SetUserPermissions(c *gin.Context) {
	var body PermissionsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	userID := c.Param("id")
	grants := make([]entity.UserPermission, 0, len(body.Permissions))
	for _, p := range body.Permissions {
		grant := entity.UserPermission{UserID: userID, PermissionKey: p.PermissionKey, ScopeID: p.ScopeID}
		if p.ScopeType != nil && *p.ScopeType != "" {
			st := entity.ScopeType(*p.ScopeType)
			grant.ScopeType = &st
		}
		grants = append(grants, grant)
	}

	if err := h.services.Permissions.SetUserPermissions(c.Request.Context(), userID, grants); err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("User permissions replaced via API", "user_id", userID, "actor_id", actorFrom(c).UserID, "grants", len(grants))
	respondOK(c, grants)
}
