package model

import "time"

// Agent is the role profile for a user with role "agent". The set of
// customers an agent manages is not stored on this row; it is derived from
// the agent_customers join table so the two directions of the relation can
// never drift apart.
type Agent struct {
	ID        uint64    // agents.id
	UserID    uint64    // agents.user_id (1:1 with users)
	CreatedAt time.Time // agents.created_at
}

// Customer is the role profile for a user with role "customer". Linked
// agents come from agent_customers and owned policies from
// policies.customer_id, both by query.
type Customer struct {
	ID        uint64    // customers.id
	UserID    uint64    // customers.user_id (1:1 with users)
	CreatedAt time.Time // customers.created_at
}

// AgentCustomerLink is one row of the agent_customers join relation. A
// UNIQUE(agent_id, customer_id) constraint makes re-linking a conflict.
type AgentCustomerLink struct {
	AgentID    uint64    // agent_customers.agent_id
	CustomerID uint64    // agent_customers.customer_id
	CreatedAt  time.Time // agent_customers.created_at
}
