package entity

// Company is a client of the HR office
type Company struct {
	ID        string `json:"id"`
	TradeName string `json:"trade_name"`
}

// Contract belongs to a company
type Contract struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
}

// WorkLocation belongs to a contract
type WorkLocation struct {
	ID         string `json:"id"`
	ContractID string `json:"contract_id"`
	Name       string `json:"name"`
}

// Position is a job category
type Position struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Employee is allocated to a contract and optionally a work location
type Employee struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	ContractID     string  `json:"contract_id"`
	WorkLocationID *string `json:"work_location_id,omitempty"`
}

// User is a back-office account
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	IsActive bool   `json:"is_active"`
}
