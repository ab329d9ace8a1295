package port

import (
	"context"
	"time"

	"github.com/garyjia/hr-requests/internal/domain/entity"
	"github.com/garyjia/hr-requests/internal/domain/scope"
)

// StepFilter narrows StepRepository.List; zero values are ignored
type StepFilter struct {
	Name  string
	Role  entity.Role
	Page  int
	Limit int
}

// StepRepository defines persistence operations for the step catalogue
type StepRepository interface {
	Create(ctx context.Context, step *entity.Step) error
	GetByID(ctx context.Context, id string) (*entity.Step, error)
	GetByName(ctx context.Context, name string) (*entity.Step, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*entity.Step, error)
	List(ctx context.Context, filter StepFilter) ([]*entity.Step, int, error)
	Update(ctx context.Context, step *entity.Step) error
	Delete(ctx context.Context, id string) error

	// IsReferenced returns true when any workflow places or targets the step
	IsReferenced(ctx context.Context, id string) (bool, error)
}

// WorkflowRepository defines persistence operations for workflows and their step placement
type WorkflowRepository interface {
	Create(ctx context.Context, wf *entity.Workflow) error
	Update(ctx context.Context, wf *entity.Workflow) error
	GetByID(ctx context.Context, id string) (*entity.Workflow, error)
	GetByName(ctx context.Context, name string) (*entity.Workflow, error)
	List(ctx context.Context) ([]*entity.Workflow, error)

	// GetSteps returns the workflow's steps ordered by position, joined with
	// their step definition and allowed next step ids
	GetSteps(ctx context.Context, workflowID string) ([]*entity.WorkflowStepConfig, error)

	// ReplaceSteps deletes every placement of the workflow and inserts steps.
	// Callers run it inside a transaction.
	ReplaceSteps(ctx context.Context, workflowID string, steps []entity.WorkflowStep) error
}

// RequestRepository defines persistence operations for Request
type RequestRepository interface {
	// Create inserts the request. A protocol collision returns entity.ErrDuplicateProtocol.
	Create(ctx context.Context, req *entity.Request) error
	GetByID(ctx context.Context, id string) (*entity.Request, error)

	// FindByID returns the request only when it lies inside sc
	FindByID(ctx context.Context, id string, sc scope.Scope) (*entity.Request, error)

	// UpdateStatus sets the status when the stored version equals expectedVersion.
	// A stale version returns entity.ErrConcurrentModification.
	UpdateStatus(ctx context.Context, id, status string, expectedVersion int64, updatedAt time.Time) error

	// CountCreatedBetween counts requests with created_at in [start, end)
	CountCreatedBetween(ctx context.Context, start, end time.Time) (int, error)

	// List returns the requests matching filter inside sc, newest first, and
	// the total before paging. A filter Limit <= 0 disables paging.
	List(ctx context.Context, filter entity.RequestFilter, sc scope.Scope) ([]*entity.Request, int, error)
}

// StatusLogRepository defines persistence operations for RequestStatusLog
type StatusLogRepository interface {
	// Create appends a log row, assigning the next sequence number for the request
	Create(ctx context.Context, log *entity.RequestStatusLog) error

	// ListByRequestID returns the log rows oldest first
	ListByRequestID(ctx context.Context, requestID string) ([]*entity.RequestStatusLog, error)
}

// PermissionRepository defines persistence operations for UserPermission
type PermissionRepository interface {
	// ListByUserAndKey returns grants whose key equals key or refines it (key:...)
	ListByUserAndKey(ctx context.Context, userID, key string) ([]entity.UserPermission, error)
	ListByUser(ctx context.Context, userID string) ([]entity.UserPermission, error)

	// ReplaceForUser deletes every grant of the user and inserts grants.
	// Callers run it inside a transaction.
	ReplaceForUser(ctx context.Context, userID string, grants []entity.UserPermission) error
}

// ReferenceRepository provides read-only lookups of entities owned by the CRUD layer
type ReferenceRepository interface {
	GetCompany(ctx context.Context, id string) (*entity.Company, error)
	GetContract(ctx context.Context, id string) (*entity.Contract, error)
	GetWorkLocation(ctx context.Context, id string) (*entity.WorkLocation, error)
	GetPosition(ctx context.Context, id string) (*entity.Position, error)
	GetEmployee(ctx context.Context, id string) (*entity.Employee, error)

	// ContractIDsByCompany returns the contract ids of each given company
	ContractIDsByCompany(ctx context.Context, companyIDs []string) (map[string][]string, error)
}

// UserRepository provides read-only user lookups
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)

	// ListActiveByRole returns active users with role. A non-empty companyID
	// restricts the result to users linked to that company.
	ListActiveByRole(ctx context.Context, role entity.Role, companyID string) ([]*entity.User, error)
	IsLinkedToCompany(ctx context.Context, userID, companyID string) (bool, error)
}

// NotificationRepository defines persistence operations for the notification inbox
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	ListByUser(ctx context.Context, userID string, isRead *bool, page, limit int) ([]*entity.Notification, int, error)

	// MarkAsRead returns false when the notification does not belong to userID
	MarkAsRead(ctx context.Context, id, userID string) (bool, error)
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)

	// ListUndelivered returns notifications not yet published with fewer than maxAttempts attempts
	ListUndelivered(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	IncrementAttempts(ctx context.Context, id string) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
