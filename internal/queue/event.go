// Package queue defines message payloads exchanged over the message broker
// and the background consumer that records renewals.
package queue

// RenewalQueueName is the durable queue carrying renewal events.
const RenewalQueueName = "policy.renewed"

// PolicyRenewedEvent is published after a policy renewal commits. It
// carries enough information for downstream consumers to log or notify
// without querying the primary database.
type PolicyRenewedEvent struct {
	PolicyID       uint64  `json:"policy_id"`
	PolicyNumber   string  `json:"policy_number"`
	Title          string  `json:"title"`
	CompanyName    string  `json:"company_name"`
	CustomerID     uint64  `json:"customer_id"`
	AgentID        uint64  `json:"agent_id"`
	OldRenewalDate string  `json:"old_renewal_date"`
	NewRenewalDate string  `json:"new_renewal_date"`
	Premium        float64 `json:"premium"`
	RenewedBy      uint64  `json:"renewed_by"`
	RenewedAt      string  `json:"renewed_at"`
}
