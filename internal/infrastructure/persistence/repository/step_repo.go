package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	"github.com/garyjia/hr-requests/internal/infrastructure/persistence/dbtx"
	"github.com/garyjia/hr-requests/pkg/database"
)

const stepColumns = `id, name, description, default_role, created_at, updated_at`

// StepRepository implements port.StepRepository
type StepRepository struct {
	db     *dbtx.DB
	logger *zap.Logger
}

// NewStepRepository creates a new step repository
func NewStepRepository(db *dbtx.DB, logger *zap.Logger) port.StepRepository {
	return &StepRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a step, assigning an id and timestamps when missing
func (r *StepRepository) Create(ctx context.Context, step *entity.Step) error {
	if step.ID == "" {
		step.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if step.CreatedAt.IsZero() {
		step.CreatedAt = now
	}
	step.UpdatedAt = now

	query := `
		INSERT INTO steps (id, name, description, default_role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		step.ID, step.Name, step.Description, string(step.DefaultRole), step.CreatedAt, step.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: step %s already exists", entity.ErrInvalidData, step.Name)
		}
		r.logger.Error("Failed to create step", zap.String("name", step.Name), zap.Error(err))
		return fmt.Errorf("failed to create step: %w", err)
	}
	return nil
}

// GetByID retrieves a step by ID
func (r *StepRepository) GetByID(ctx context.Context, id string) (*entity.Step, error) {
	return r.getOne(ctx, `SELECT `+stepColumns+` FROM steps WHERE id = ?`, id)
}

// GetByName retrieves a step by its unique name
func (r *StepRepository) GetByName(ctx context.Context, name string) (*entity.Step, error) {
	return r.getOne(ctx, `SELECT `+stepColumns+` FROM steps WHERE name = ?`, name)
}

func (r *StepRepository) getOne(ctx context.Context, query string, arg string) (*entity.Step, error) {
	step, err := scanStep(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get step", zap.String("key", arg), zap.Error(err))
		return nil, fmt.Errorf("failed to get step: %w", err)
	}
	return step, nil
}

// GetByIDs retrieves the steps with the given ids keyed by id. Missing ids are absent from the map.
func (r *StepRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*entity.Step, error) {
	result := make(map[string]*entity.Step, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT ` + stepColumns + ` FROM steps WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := r.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		r.logger.Error("Failed to get steps by ids", zap.Int("count", len(ids)), zap.Error(err))
		return nil, fmt.Errorf("failed to get steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		result[step.ID] = step
	}
	return result, rows.Err()
}

// List returns a page of steps ordered by name and the total count
func (r *StepRepository) List(ctx context.Context, filter port.StepFilter) ([]*entity.Step, int, error) {
	var where []string
	var args []interface{}
	if filter.Name != "" {
		where = append(where, "name "+r.db.Dialect().CaseInsensitiveLike()+" ?")
		args = append(args, "%"+filter.Name+"%")
	}
	if filter.Role != "" {
		where = append(where, "default_role = ?")
		args = append(args, string(filter.Role))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM steps`+clause, args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count steps", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count steps: %w", err)
	}

	_, limit, offset := pageBounds(filter.Page, filter.Limit)
	query := `SELECT ` + stepColumns + ` FROM steps` + clause + ` ORDER BY name LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		r.logger.Error("Failed to list steps", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []*entity.Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, total, rows.Err()
}

// Update rewrites the step's name, description and default role
func (r *StepRepository) Update(ctx context.Context, step *entity.Step) error {
	step.UpdatedAt = time.Now().UTC()
	query := `UPDATE steps SET name = ?, description = ?, default_role = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		step.Name, step.Description, string(step.DefaultRole), step.UpdatedAt, step.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: step %s already exists", entity.ErrInvalidData, step.Name)
		}
		r.logger.Error("Failed to update step", zap.String("id", step.ID), zap.Error(err))
		return fmt.Errorf("failed to update step: %w", err)
	}
	return expectAffected(result, "step", step.ID)
}

// Delete removes a step
func (r *StepRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM steps WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete step", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete step: %w", err)
	}
	return expectAffected(result, "step", id)
}

// IsReferenced returns true when a workflow places the step or allows it as a next step
func (r *StepRepository) IsReferenced(ctx context.Context, id string) (bool, error) {
	query := `
		SELECT (SELECT COUNT(*) FROM workflow_steps WHERE step_id = ?)
		     + (SELECT COUNT(*) FROM workflow_step_transitions WHERE next_step_id = ?)
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, id, id).Scan(&count); err != nil {
		r.logger.Error("Failed to check step references", zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to check step references: %w", err)
	}
	return count > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStep(row rowScanner) (*entity.Step, error) {
	var step entity.Step
	var role string
	if err := row.Scan(&step.ID, &step.Name, &step.Description, &role, &step.CreatedAt, &step.UpdatedAt); err != nil {
		return nil, err
	}
	step.DefaultRole = entity.Role(role)
	return &step, nil
}

func expectAffected(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", entity.ErrNotFound, kind, id)
	}
	return nil
}

// Verify interface compliance
var _ port.StepRepository = (*StepRepository)(nil)
