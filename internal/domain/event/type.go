package event

// Type identifies the type of domain event
type Type string

const (
	TypeRequestCreated        Type = "request.created"
	TypeStatusChanged         Type = "request.status_changed"
	TypeCancellationRequested Type = "request.cancellation_requested"
	TypeCancellationResolved  Type = "request.cancellation_resolved"
)

// LifecycleTypes lists every event a request emits during its lifecycle
var LifecycleTypes = []Type{
	TypeRequestCreated,
	TypeStatusChanged,
	TypeCancellationRequested,
	TypeCancellationResolved,
}

// Payload keys shared by publishers and handlers
const (
	PayloadWorkflowID = "workflow_id"
	PayloadFromStatus = "from_status"
	PayloadToStatus   = "to_status"
	PayloadActorID    = "actor_id"
	PayloadActorRole  = "actor_role"
	PayloadNotes      = "notes"
	PayloadApproved   = "approved"
	PayloadProtocol   = "protocol"
	PayloadCompanyID  = "company_id"
	PayloadSolicitant = "solicitant_id"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}
