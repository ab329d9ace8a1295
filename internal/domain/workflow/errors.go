package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a step is not reachable from the current step
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrUnknownStep is returned when a step name does not exist in the step catalogue
	ErrUnknownStep = errors.New("unknown step")

	// ErrInvalidWorkflow is returned when a workflow is missing or inactive
	ErrInvalidWorkflow = errors.New("invalid workflow")

	// ErrConfiguration is returned when a workflow definition is unusable
	ErrConfiguration = errors.New("workflow configuration error")
)
