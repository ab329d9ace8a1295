package entity

// Step names the engine itself depends on. Every other step name is data.
const (
	StepCancellationRequested = "CANCELLATION_REQUESTED"
	StepCancelled             = "CANCELLED"
)

// Default terminal steps: a request in one of these cannot ask for cancellation.
var DefaultTerminalSteps = []string{
	"ADMITTED",
	"TERMINATION_COMPLETED",
	StepCancelled,
	"REJECTED",
	"NO_SHOW",
}

// Permission keys
const (
	PermRequestsCreate = "requests:create"
	PermRequestsRead   = "requests:read"
	PermRequestsUpdate = "requests:update"
	PermRequestsExport = "requests:export"
	PermWorkflowsRead  = "workflows:read"
	PermWorkflowsWrite = "workflows:write"
	PermStepsRead      = "steps:read"
	PermStepsWrite     = "steps:write"
)

// OwnSuffix marks a permission key that grants access to records the user authored.
const OwnSuffix = ":own"

// Log notes written by the engine
const (
	NoteCreated = "created"
)
