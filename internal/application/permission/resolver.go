// Package permission loads grant rows and turns them into a scope.Scope.
package permission

import (
	"context"
	"fmt"

	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	"github.com/garyjia/hr-requests/internal/domain/scope"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Resolver computes actor scopes and administers grants
type Resolver interface {
	// ResolveScope returns the scope of actor for key. It never returns an error for a missing grant;
	// a user with no grant gets a Denied scope.
	ResolveScope(ctx context.Context, actor entity.Actor, key string) (scope.Scope, error)

	// ListUserPermissions returns every grant of a user
	ListUserPermissions(ctx context.Context, userID string) ([]entity.UserPermission, error)

	// SetUserPermissions replaces every grant of a user in one transaction
	SetUserPermissions(ctx context.Context, userID string, grants []entity.UserPermission) error
}

type resolver struct {
	permissionRepo port.PermissionRepository
	referenceRepo  port.ReferenceRepository
	txManager      port.TransactionManager
	logger         Logger
}

// NewResolver creates a permission resolver
func NewResolver(
	permissionRepo port.PermissionRepository,
	referenceRepo port.ReferenceRepository,
	txManager port.TransactionManager,
	logger Logger,
) Resolver {
	return &resolver{
		permissionRepo: permissionRepo,
		referenceRepo:  referenceRepo,
		txManager:      txManager,
		logger:         logger,
	}
}

func (r *resolver) ResolveScope(ctx context.Context, actor entity.Actor, key string) (scope.Scope, error) {
	if actor.Role.BypassesScope() {
		return scope.NewUnrestricted(actor.UserID), nil
	}

	grants, err := r.permissionRepo.ListByUserAndKey(ctx, actor.UserID, key)
	if err != nil {
		return scope.NewDenied(actor.UserID), fmt.Errorf("failed to load permissions: %w", err)
	}

	var contractsByCompany map[string][]string
	if companyIDs := scope.CompanyScopedGrants(key, grants); len(companyIDs) > 0 {
		contractsByCompany, err = r.referenceRepo.ContractIDsByCompany(ctx, companyIDs)
		if err != nil {
			return scope.NewDenied(actor.UserID), fmt.Errorf("failed to expand company grants: %w", err)
		}
	}

	return scope.Resolve(actor, key, grants, contractsByCompany), nil
}

func (r *resolver) ListUserPermissions(ctx context.Context, userID string) ([]entity.UserPermission, error) {
	grants, err := r.permissionRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	return grants, nil
}

func (r *resolver) SetUserPermissions(ctx context.Context, userID string, grants []entity.UserPermission) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", entity.ErrInvalidData)
	}

	for i := range grants {
		grants[i].UserID = userID
		if err := grants[i].Validate(); err != nil {
			return fmt.Errorf("%w: %v", entity.ErrInvalidData, err)
		}
	}

	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return r.permissionRepo.ReplaceForUser(txCtx, userID, grants)
	})
	if err != nil {
		r.logger.Error("Failed to replace permissions", "user_id", userID, "error", err)
		return fmt.Errorf("failed to replace permissions: %w", err)
	}

	r.logger.Info("Permissions replaced", "user_id", userID, "grants", len(grants))
	return nil
}
