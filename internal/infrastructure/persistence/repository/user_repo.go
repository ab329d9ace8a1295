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

// UserRepository implements port.UserRepository
type UserRepository struct {
	db     *dbtx.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *dbtx.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	var u entity.User
	var role string
	err := r.db.QueryRowContext(ctx, `SELECT id, name, email, role, is_active FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Email, &role, &u.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Role = entity.Role(role)
	return &u, nil
}

// ListActiveByRole returns active users holding role, optionally only those linked to companyID
func (r *UserRepository) ListActiveByRole(ctx context.Context, role entity.Role, companyID string) ([]*entity.User, error) {
	query := `SELECT u.id, u.name, u.email, u.role, u.is_active FROM users u WHERE u.role = ? AND u.is_active = ?`
	args := []interface{}{string(role), true}
	if companyID != "" {
		query = `
			SELECT u.id, u.name, u.email, u.role, u.is_active
			FROM users u
			JOIN user_companies uc ON uc.user_id = u.id
			WHERE u.role = ? AND u.is_active = ? AND uc.company_id = ?`
		args = append(args, companyID)
	}
	query += ` ORDER BY u.name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list users by role", zap.String("role", role.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		var u entity.User
		var roleStr string
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &roleStr, &u.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Role = entity.Role(roleStr)
		users = append(users, &u)
	}
	return users, rows.Err()
}

// IsLinkedToCompany returns true when the user is associated with the company
func (r *UserRepository) IsLinkedToCompany(ctx context.Context, userID, companyID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_companies WHERE user_id = ? AND company_id = ?`, userID, companyID,
	).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to check company link", zap.String("user_id", userID), zap.Error(err))
		return false, fmt.Errorf("failed to check company link: %w", err)
	}
	return count > 0, nil
}

// Verify interface compliance
var _ port.UserRepository = (*UserRepository)(nil)
