package model

import "time"

// Change types recorded in policy_history.change_type. Only renewals are
// written by the current code paths; the enum keeps create/update so the
// schema can represent them.
const (
	ChangeCreate  = "create"
	ChangeUpdate  = "update"
	ChangeRenewal = "renewal"
)

// PolicyHistory is an immutable snapshot of a policy's scalar fields taken
// at renewal time. Rows are never mutated. An agent may delete a history
// row independently without affecting the live policy.
type PolicyHistory struct {
	ID           uint64    // policy_history.id
	PolicyID     uint64    // policy_history.policy_id
	Title        string    // policy_history.title
	Description  string    // policy_history.description
	Premium      float64   // policy_history.premium
	StartDate    time.Time // policy_history.start_date
	RenewalDate  time.Time // policy_history.renewal_date
	CustomerID   uint64    // policy_history.customer_id
	AgentID      uint64    // policy_history.agent_id
	PolicyNumber string    // policy_history.policy_number
	MobileNo     string    // policy_history.mobile_no
	SumAssured   float64   // policy_history.sum_assured
	CompanyName  string    // policy_history.company_name
	ChangeType   string    // policy_history.change_type
	ChangedBy    uint64    // policy_history.changed_by (users.id)
	Notes        string    // policy_history.notes
	CreatedAt    time.Time // policy_history.created_at
}
