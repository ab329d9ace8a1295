package entity

import "errors"

var (
	// ErrNotFound is returned when a request, workflow or step does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidData is returned when related entities do not belong together
	ErrInvalidData = errors.New("invalid data")

	// ErrPermissionDenied is returned when the actor lacks the role or scope
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRollbackImpossible is returned when a denied cancellation has no prior status to return to
	ErrRollbackImpossible = errors.New("rollback impossible")

	// ErrDuplicateProtocol is returned when a protocol collides with an existing request
	ErrDuplicateProtocol = errors.New("duplicate protocol")

	// ErrConcurrentModification is returned when the request changed between read and write
	ErrConcurrentModification = errors.New("concurrent modification")
)
