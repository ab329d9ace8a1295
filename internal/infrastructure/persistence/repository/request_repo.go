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
	"github.com/garyjia/hr-requests/internal/domain/scope"
	"github.com/garyjia/hr-requests/internal/infrastructure/persistence/dbtx"
	"github.com/garyjia/hr-requests/pkg/database"
)

const requestColumns = `
	r.id, r.protocol, r.workflow_id, w.name, r.status, r.company_id, r.contract_id,
	r.work_location_id, r.position_id, r.employee_id, r.solicitant_id,
	r.candidate_name, r.candidate_cpf, r.candidate_phone, r.reason,
	r.version, r.created_at, r.updated_at`

const requestFrom = ` FROM requests r JOIN workflows w ON w.id = r.workflow_id`

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *dbtx.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *dbtx.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a request with version 1
func (r *RequestRepository) Create(ctx context.Context, req *entity.Request) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.CreatedAt = req.CreatedAt.UTC()
	req.UpdatedAt = req.CreatedAt
	req.Version = 1

	query := `
		INSERT INTO requests (
			id, protocol, workflow_id, status, company_id, contract_id,
			work_location_id, position_id, employee_id, solicitant_id,
			candidate_name, candidate_cpf, candidate_phone, reason,
			version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.Protocol, req.WorkflowID, req.Status, req.CompanyID, req.ContractID,
		nullString(req.WorkLocationID), nullString(req.PositionID), nullString(req.EmployeeID), req.SolicitantID,
		req.CandidateName, req.CandidateCPF, req.CandidatePhone, req.Reason,
		req.Version, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", entity.ErrDuplicateProtocol, req.Protocol)
		}
		r.logger.Error("Failed to create request", zap.String("protocol", req.Protocol), zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

// GetByID retrieves a request by ID without scope filtering
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*entity.Request, error) {
	return r.FindByID(ctx, id, scope.NewUnrestricted(""))
}

// FindByID retrieves a request by ID when it lies inside sc
func (r *RequestRepository) FindByID(ctx context.Context, id string, sc scope.Scope) (*entity.Request, error) {
	query := `SELECT ` + requestColumns + requestFrom + ` WHERE r.id = ?`
	args := []interface{}{id}
	if pred, predArgs := scopePredicate(sc, "r."); pred != "" {
		query += " AND " + pred
		args = append(args, predArgs...)
	}

	req, err := scanRequest(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// UpdateStatus sets the status and bumps the version when expectedVersion still matches
func (r *RequestRepository) UpdateStatus(ctx context.Context, id, status string, expectedVersion int64, updatedAt time.Time) error {
	query := `UPDATE requests SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`

	result, err := r.db.ExecContext(ctx, query, status, updatedAt.UTC(), id, expectedVersion)
	if err != nil {
		r.logger.Error("Failed to update request status",
			zap.String("id", id), zap.String("status", status), zap.Error(err))
		return fmt.Errorf("failed to update request status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: request %s changed since version %d", entity.ErrConcurrentModification, id, expectedVersion)
	}
	return nil
}

// CountCreatedBetween counts requests with created_at in [start, end)
func (r *RequestRepository) CountCreatedBetween(ctx context.Context, start, end time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM requests WHERE created_at >= ? AND created_at < ?`,
		start.UTC(), end.UTC(),
	).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count requests", zap.Time("start", start), zap.Error(err))
		return 0, fmt.Errorf("failed to count requests: %w", err)
	}
	return count, nil
}

// List returns requests matching filter inside sc, newest first
func (r *RequestRepository) List(ctx context.Context, filter entity.RequestFilter, sc scope.Scope) ([]*entity.Request, int, error) {
	where, args := r.filterClause(filter)
	if pred, predArgs := scopePredicate(sc, "r."); pred != "" {
		where = append(where, pred)
		args = append(args, predArgs...)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*)`+requestFrom+clause, args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count requests", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count requests: %w", err)
	}

	query := `SELECT ` + requestColumns + requestFrom + clause + ` ORDER BY r.created_at DESC, r.protocol DESC`
	if filter.Limit > 0 {
		_, limit, offset := pageBounds(filter.Page, filter.Limit)
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	requests := []*entity.Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, total, rows.Err()
}

func (r *RequestRepository) filterClause(filter entity.RequestFilter) ([]string, []interface{}) {
	like := r.db.Dialect().CaseInsensitiveLike()
	var where []string
	var args []interface{}

	if filter.Status != "" {
		where = append(where, "r.status = ?")
		args = append(args, filter.Status)
	}
	if filter.WorkflowName != "" {
		where = append(where, "w.name "+like+" ?")
		args = append(args, "%"+filter.WorkflowName+"%")
	}
	if filter.CompanyID != "" {
		where = append(where, "r.company_id = ?")
		args = append(args, filter.CompanyID)
	}
	if filter.ContractID != "" {
		where = append(where, "r.contract_id = ?")
		args = append(args, filter.ContractID)
	}
	if filter.Protocol != "" {
		where = append(where, "r.protocol "+like+" ?")
		args = append(args, "%"+filter.Protocol+"%")
	}
	if filter.StartDate != nil {
		where = append(where, "r.created_at >= ?")
		args = append(args, filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		where = append(where, "r.created_at < ?")
		args = append(args, filter.EndDate.UTC())
	}
	return where, args
}

func scanRequest(row rowScanner) (*entity.Request, error) {
	var req entity.Request
	var workLocationID, positionID, employeeID sql.NullString

	err := row.Scan(
		&req.ID, &req.Protocol, &req.WorkflowID, &req.WorkflowName, &req.Status, &req.CompanyID, &req.ContractID,
		&workLocationID, &positionID, &employeeID, &req.SolicitantID,
		&req.CandidateName, &req.CandidateCPF, &req.CandidatePhone, &req.Reason,
		&req.Version, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.WorkLocationID = stringPtr(workLocationID)
	req.PositionID = stringPtr(positionID)
	req.EmployeeID = stringPtr(employeeID)
	return &req, nil
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
