package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	"github.com/garyjia/hr-requests/internal/infrastructure/persistence/dbtx"
	"github.com/garyjia/hr-requests/pkg/database"
)

const workflowColumns = `id, name, description, is_active, created_at, updated_at`

// WorkflowRepository implements port.WorkflowRepository
type WorkflowRepository struct {
	db     *dbtx.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *dbtx.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a workflow
func (r *WorkflowRepository) Create(ctx context.Context, wf *entity.Workflow) error {
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now

	query := `
		INSERT INTO workflows (id, name, description, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, wf.ID, wf.Name, wf.Description, wf.IsActive, wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: workflow %s already exists", entity.ErrInvalidData, wf.Name)
		}
		r.logger.Error("Failed to create workflow", zap.String("name", wf.Name), zap.Error(err))
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

// Update rewrites description and active flag
func (r *WorkflowRepository) Update(ctx context.Context, wf *entity.Workflow) error {
	wf.UpdatedAt = time.Now().UTC()
	query := `UPDATE workflows SET description = ?, is_active = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, wf.Description, wf.IsActive, wf.UpdatedAt, wf.ID)
	if err != nil {
		r.logger.Error("Failed to update workflow", zap.String("id", wf.ID), zap.Error(err))
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	return expectAffected(result, "workflow", wf.ID)
}

// GetByID retrieves a workflow by ID
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*entity.Workflow, error) {
	return r.getOne(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
}

// GetByName retrieves a workflow by its unique name
func (r *WorkflowRepository) GetByName(ctx context.Context, name string) (*entity.Workflow, error) {
	return r.getOne(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE name = ?`, name)
}

func (r *WorkflowRepository) getOne(ctx context.Context, query, arg string) (*entity.Workflow, error) {
	wf, err := scanWorkflow(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow", zap.String("key", arg), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return wf, nil
}

// List returns every workflow ordered by name
func (r *WorkflowRepository) List(ctx context.Context) ([]*entity.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+workflowColumns+` FROM workflows ORDER BY name`)
	if err != nil {
		r.logger.Error("Failed to list workflows", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*entity.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// GetSteps returns the workflow's steps ordered by position with their allowed next step ids
func (r *WorkflowRepository) GetSteps(ctx context.Context, workflowID string) ([]*entity.WorkflowStepConfig, error) {
	query := `
		SELECT ws.workflow_id, ws.step_id, ws.step_order, ws.role_override, ws.is_final,
			s.id, s.name, s.description, s.default_role, s.created_at, s.updated_at
		FROM workflow_steps ws
		JOIN steps s ON s.id = ws.step_id
		WHERE ws.workflow_id = ?
		ORDER BY ws.step_order
	`
	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		r.logger.Error("Failed to get workflow steps", zap.String("workflow_id", workflowID), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow steps: %w", err)
	}

	var configs []*entity.WorkflowStepConfig
	byStep := make(map[string]*entity.WorkflowStepConfig)
	for rows.Next() {
		var cfg entity.WorkflowStepConfig
		var override sql.NullString
		var role string
		if err := rows.Scan(
			&cfg.WorkflowID, &cfg.StepID, &cfg.Order, &override, &cfg.Final,
			&cfg.Step.ID, &cfg.Step.Name, &cfg.Step.Description, &role, &cfg.Step.CreatedAt, &cfg.Step.UpdatedAt,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan workflow step: %w", err)
		}
		cfg.Step.DefaultRole = entity.Role(role)
		if override.Valid && override.String != "" {
			ro := entity.Role(override.String)
			cfg.RoleOverride = &ro
		}
		cfg.AllowedNextStepIDs = []string{}
		configs = append(configs, &cfg)
		byStep[cfg.StepID] = &cfg
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	edges, err := r.db.QueryContext(ctx, `
		SELECT step_id, next_step_id
		FROM workflow_step_transitions
		WHERE workflow_id = ?
		ORDER BY step_id, position
	`, workflowID)
	if err != nil {
		r.logger.Error("Failed to get workflow transitions", zap.String("workflow_id", workflowID), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow transitions: %w", err)
	}
	defer edges.Close()

	for edges.Next() {
		var from, to string
		if err := edges.Scan(&from, &to); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		if cfg, ok := byStep[from]; ok {
			cfg.AllowedNextStepIDs = append(cfg.AllowedNextStepIDs, to)
		}
	}
	return configs, edges.Err()
}

// ReplaceSteps deletes every placement and transition of the workflow and inserts steps
func (r *WorkflowRepository) ReplaceSteps(ctx context.Context, workflowID string, steps []entity.WorkflowStep) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM workflow_step_transitions WHERE workflow_id = ?`, workflowID); err != nil {
		r.logger.Error("Failed to delete transitions", zap.String("workflow_id", workflowID), zap.Error(err))
		return fmt.Errorf("failed to delete transitions: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM workflow_steps WHERE workflow_id = ?`, workflowID); err != nil {
		r.logger.Error("Failed to delete workflow steps", zap.String("workflow_id", workflowID), zap.Error(err))
		return fmt.Errorf("failed to delete workflow steps: %w", err)
	}

	for _, ws := range steps {
		var override sql.NullString
		if ws.RoleOverride != nil && *ws.RoleOverride != "" {
			override = sql.NullString{String: string(*ws.RoleOverride), Valid: true}
		}
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO workflow_steps (workflow_id, step_id, step_order, role_override, is_final)
			VALUES (?, ?, ?, ?, ?)
		`, workflowID, ws.StepID, ws.Order, override, ws.Final)
		if err != nil {
			r.logger.Error("Failed to insert workflow step",
				zap.String("workflow_id", workflowID), zap.String("step_id", ws.StepID), zap.Error(err))
			return fmt.Errorf("failed to insert workflow step %s: %w", ws.StepID, err)
		}
	}

	// Transitions reference placements, so they go in after every step row exists
	for _, ws := range steps {
		for pos, next := range ws.AllowedNextStepIDs {
			_, err := r.db.ExecContext(ctx, `
				INSERT INTO workflow_step_transitions (workflow_id, step_id, next_step_id, position)
				VALUES (?, ?, ?, ?)
			`, workflowID, ws.StepID, next, pos)
			if err != nil {
				r.logger.Error("Failed to insert transition",
					zap.String("workflow_id", workflowID), zap.String("from", ws.StepID), zap.String("to", next), zap.Error(err))
				return fmt.Errorf("failed to insert transition %s -> %s: %w", ws.StepID, next, err)
			}
		}
	}

	r.logger.Info("Workflow steps replaced", zap.String("workflow_id", workflowID), zap.Int("steps", len(steps)))
	return nil
}

func scanWorkflow(row rowScanner) (*entity.Workflow, error) {
	var wf entity.Workflow
	if err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &wf.IsActive, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return nil, err
	}
	return &wf, nil
}

// Verify interface compliance
var _ port.WorkflowRepository = (*WorkflowRepository)(nil)
