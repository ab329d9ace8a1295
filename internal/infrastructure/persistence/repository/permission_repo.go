package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	"github.com/garyjia/hr-requests/internal/infrastructure/persistence/dbtx"
)

// PermissionRepository implements port.PermissionRepository
type PermissionRepository struct {
	db     *dbtx.DB
	logger *zap.Logger
}

// NewPermissionRepository creates a new permission repository
func NewPermissionRepository(db *dbtx.DB, logger *zap.Logger) port.PermissionRepository {
	return &PermissionRepository{
		db:     db,
		logger: logger,
	}
}

// ListByUserAndKey returns grants whose key equals key or refines it
func (r *PermissionRepository) ListByUserAndKey(ctx context.Context, userID, key string) ([]entity.UserPermission, error) {
	query := `
		SELECT user_id, permission_key, scope_type, scope_id
		FROM user_permissions
		WHERE user_id = ? AND (permission_key = ? OR permission_key LIKE ?)
		ORDER BY permission_key, scope_type, scope_id
	`
	return r.list(ctx, query, userID, key, key+":%")
}

// ListByUser returns every grant of the user
func (r *PermissionRepository) ListByUser(ctx context.Context, userID string) ([]entity.UserPermission, error) {
	query := `
		SELECT user_id, permission_key, scope_type, scope_id
		FROM user_permissions
		WHERE user_id = ?
		ORDER BY permission_key, scope_type, scope_id
	`
	return r.list(ctx, query, userID)
}

func (r *PermissionRepository) list(ctx context.Context, query string, args ...interface{}) ([]entity.UserPermission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list permissions", zap.Error(err))
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	grants := []entity.UserPermission{}
	for rows.Next() {
		var p entity.UserPermission
		var scopeType, scopeID sql.NullString
		if err := rows.Scan(&p.UserID, &p.PermissionKey, &scopeType, &scopeID); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		if scopeType.Valid {
			st := entity.ScopeType(scopeType.String)
			p.ScopeType = &st
		}
		p.ScopeID = stringPtr(scopeID)
		grants = append(grants, p)
	}
	return grants, rows.Err()
}

// ReplaceForUser deletes every grant of the user and inserts grants
func (r *PermissionRepository) ReplaceForUser(ctx context.Context, userID string, grants []entity.UserPermission) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_permissions WHERE user_id = ?`, userID); err != nil {
		r.logger.Error("Failed to delete permissions", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("failed to delete permissions: %w", err)
	}

	for _, g := range grants {
		var scopeType sql.NullString
		if !g.IsGlobal() {
			scopeType = sql.NullString{String: string(*g.ScopeType), Valid: true}
		}
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO user_permissions (id, user_id, permission_key, scope_type, scope_id)
			VALUES (?, ?, ?, ?, ?)
		`, uuid.NewString(), userID, g.PermissionKey, scopeType, nullString(g.ScopeID))
		if err != nil {
			r.logger.Error("Failed to insert permission",
				zap.String("user_id", userID), zap.String("key", g.PermissionKey), zap.Error(err))
			return fmt.Errorf("failed to insert permission %s: %w", g.PermissionKey, err)
		}
	}
	return nil
}

// Verify interface compliance
var _ port.PermissionRepository = (*PermissionRepository)(nil)
