// Package request implements the request state machine: creation, status
// transitions, the two-phase cancellation flow and scoped queries.
package request

import (
	"context"
	"io"

	"github.com/garyjia/hr-requests/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Engine moves requests through their workflow
type Engine interface {
	// Create opens a request in the initial step of the named workflow
	Create(ctx context.Context, actor entity.Actor, workflowName string, payload entity.RequestPayload) (*entity.Request, error)

	// AdvanceStatus moves a request to targetStep after role, transition and scope checks
	AdvanceStatus(ctx context.Context, actor entity.Actor, requestID, targetStep, notes string) (*entity.Request, error)

	// RequestCancellation moves a non-terminal request to CANCELLATION_REQUESTED on behalf of its solicitant
	RequestCancellation(ctx context.Context, actor entity.Actor, requestID, reason string) (*entity.Request, error)

	// ResolveCancellation cancels the request when approved, otherwise returns it to its previous status
	ResolveCancellation(ctx context.Context, actor entity.Actor, requestID string, approved bool, notes string) (*entity.Request, error)

	// GetRequest returns a request in the actor's read scope with its status history
	GetRequest(ctx context.Context, actor entity.Actor, requestID string) (*entity.Request, error)

	// ListRequests returns one page of requests in the actor's read scope
	ListRequests(ctx context.Context, actor entity.Actor, filter entity.RequestFilter) (*entity.RequestPage, error)

	// ExportRequests writes every request matching filter in the actor's export scope to w
	ExportRequests(ctx context.Context, actor entity.Actor, filter entity.RequestFilter, w io.Writer) error
}
