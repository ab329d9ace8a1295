package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	"github.com/garyjia/hr-requests/internal/infrastructure/persistence/dbtx"
)

// ReferenceRepository implements port.ReferenceRepository over tables owned by the CRUD layer
type ReferenceRepository struct {
	db     *dbtx.DB
	logger *zap.Logger
}

// NewReferenceRepository creates a new reference data repository
func NewReferenceRepository(db *dbtx.DB, logger *zap.Logger) port.ReferenceRepository {
	return &ReferenceRepository{
		db:     db,
		logger: logger,
	}
}

// GetCompany retrieves a company by ID
func (r *ReferenceRepository) GetCompany(ctx context.Context, id string) (*entity.Company, error) {
	var c entity.Company
	err := r.db.QueryRowContext(ctx, `SELECT id, trade_name FROM companies WHERE id = ?`, id).
		Scan(&c.ID, &c.TradeName)
	if found, err := r.found(err, "company", id); !found {
		return nil, err
	}
	return &c, nil
}

// GetContract retrieves a contract by ID
func (r *ReferenceRepository) GetContract(ctx context.Context, id string) (*entity.Contract, error) {
	var c entity.Contract
	err := r.db.QueryRowContext(ctx, `SELECT id, company_id, name FROM contracts WHERE id = ?`, id).
		Scan(&c.ID, &c.CompanyID, &c.Name)
	if found, err := r.found(err, "contract", id); !found {
		return nil, err
	}
	return &c, nil
}

// GetWorkLocation retrieves a work location by ID
func (r *ReferenceRepository) GetWorkLocation(ctx context.Context, id string) (*entity.WorkLocation, error) {
	var w entity.WorkLocation
	err := r.db.QueryRowContext(ctx, `SELECT id, contract_id, name FROM work_locations WHERE id = ?`, id).
		Scan(&w.ID, &w.ContractID, &w.Name)
	if found, err := r.found(err, "work location", id); !found {
		return nil, err
	}
	return &w, nil
}

// GetPosition retrieves a position by ID
func (r *ReferenceRepository) GetPosition(ctx context.Context, id string) (*entity.Position, error) {
	var p entity.Position
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM positions WHERE id = ?`, id).
		Scan(&p.ID, &p.Name)
	if found, err := r.found(err, "position", id); !found {
		return nil, err
	}
	return &p, nil
}

// GetEmployee retrieves an employee by ID
func (r *ReferenceRepository) GetEmployee(ctx context.Context, id string) (*entity.Employee, error) {
	var e entity.Employee
	var workLocationID sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT id, name, contract_id, work_location_id FROM employees WHERE id = ?`, id).
		Scan(&e.ID, &e.Name, &e.ContractID, &workLocationID)
	if found, err := r.found(err, "employee", id); !found {
		return nil, err
	}
	e.WorkLocationID = stringPtr(workLocationID)
	return &e, nil
}

// ContractIDsByCompany returns the contract ids of each given company
func (r *ReferenceRepository) ContractIDsByCompany(ctx context.Context, companyIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(companyIDs))
	if len(companyIDs) == 0 {
		return result, nil
	}

	query := `SELECT company_id, id FROM contracts WHERE company_id IN (` + placeholders(len(companyIDs)) + `) ORDER BY company_id, id`
	rows, err := r.db.QueryContext(ctx, query, stringArgs(companyIDs)...)
	if err != nil {
		r.logger.Error("Failed to list contracts by company", zap.Error(err))
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var companyID, contractID string
		if err := rows.Scan(&companyID, &contractID); err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		result[companyID] = append(result[companyID], contractID)
	}
	return result, rows.Err()
}

// found maps sql.ErrNoRows to (false, nil) like the other repositories' nil, nil
func (r *ReferenceRepository) found(err error, kind, id string) (bool, error) {
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		r.logger.Error("Failed to get reference entity", zap.String("kind", kind), zap.String("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to get %s: %w", kind, err)
	}
	return true, nil
}

// Verify interface compliance
var _ port.ReferenceRepository = (*ReferenceRepository)(nil)
