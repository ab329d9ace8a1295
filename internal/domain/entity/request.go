package entity

import "time"

// Request is a personnel-change request moving through a workflow
type Request struct {
	ID             string    `json:"id"`
	Protocol       string    `json:"protocol"`
	WorkflowID     string    `json:"workflow_id"`
	WorkflowName   string    `json:"workflow_name,omitempty"`
	Status         string    `json:"status"`
	CompanyID      string    `json:"company_id"`
	ContractID     string    `json:"contract_id"`
	WorkLocationID *string   `json:"work_location_id,omitempty"`
	PositionID     *string   `json:"position_id,omitempty"`
	EmployeeID     *string   `json:"employee_id,omitempty"`
	SolicitantID   string    `json:"solicitant_id"`
	CandidateName  string    `json:"candidate_name,omitempty"`
	CandidateCPF   string    `json:"candidate_cpf,omitempty"`
	CandidatePhone string    `json:"candidate_phone,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	StatusHistory []*RequestStatusLog `json:"status_history,omitempty"`

	// NextStatuses lists the steps the request may move to from its current status
	NextStatuses []string `json:"next_statuses,omitempty"`
}

// RequestStatusLog is the append-only audit row written for every transition
type RequestStatusLog struct {
	ID            string    `json:"id"`
	RequestID     string    `json:"request_id"`
	Sequence      int       `json:"sequence"`
	Status        string    `json:"status"`
	ResponsibleID string    `json:"responsible_id"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// RequestPayload carries the caller-supplied fields of a new request
type RequestPayload struct {
	CompanyID      string  `json:"company_id" binding:"required"`
	ContractID     string  `json:"contract_id" binding:"required"`
	WorkLocationID *string `json:"work_location_id,omitempty"`
	PositionID     *string `json:"position_id,omitempty"`
	EmployeeID     *string `json:"employee_id,omitempty"`
	CandidateName  string  `json:"candidate_name,omitempty"`
	CandidateCPF   string  `json:"candidate_cpf,omitempty"`
	CandidatePhone string  `json:"candidate_phone,omitempty"`
	Reason         string  `json:"reason,omitempty"`
}

// RequestFilter narrows listRequests; zero values are ignored
type RequestFilter struct {
	Status       string
	WorkflowName string
	CompanyID    string
	ContractID   string
	Protocol     string
	StartDate    *time.Time
	EndDate      *time.Time
	Page         int
	Limit        int
}

// RequestPage is one page of listRequests
type RequestPage struct {
	Total    int        `json:"total"`
	Requests []*Request `json:"requests"`
	Page     int        `json:"page"`
	Limit    int        `json:"limit"`
}
