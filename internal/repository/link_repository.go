package repository

import (
	"context"
	"database/sql"
	"strings"
)

// LinkRepo manages the agent_customers join relation. The relation is the
// single source of truth for which agents manage which customers; both
// directions of the old mirrored id lists are now derived from it by query,
// so linking and unlinking are single-row operations that cannot leave the
// two sides out of step.
type LinkRepo struct{ DB *sql.DB }

func NewLinkRepo(db *sql.DB) *LinkRepo { return &LinkRepo{DB: db} }

// Link creates the relation between an agent and a customer. The unique
// key on (agent_id, customer_id) turns a repeat attempt into
// ErrAlreadyLinked.
func (r *LinkRepo) Link(ctx context.Context, agentID, customerID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO agent_customers (agent_id, customer_id) VALUES (?,?)", agentID, customerID)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrAlreadyLinked
		}
		return err
	}
	return nil
}

// EnsureTx creates the relation inside an existing transaction if it does
// not exist yet. Policy creation uses this for the self-healing link: an
// unlinked customer gets linked as a side effect rather than rejected.
func (r *LinkRepo) EnsureTx(ctx context.Context, tx *sql.Tx, agentID, customerID uint64) error {
	_, err := tx.ExecContext(ctx,
		"INSERT IGNORE INTO agent_customers (agent_id, customer_id) VALUES (?,?)", agentID, customerID)
	return err
}

// Exists reports whether the agent currently manages the customer.
func (r *LinkRepo) Exists(ctx context.Context, agentID, customerID uint64) (bool, error) {
	var ok bool
	err := r.DB.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM agent_customers WHERE agent_id=? AND customer_id=?)",
		agentID, customerID).Scan(&ok)
	return ok, err
}

// CustomersOfAgent lists the customers linked to an agent, joined with
// their user accounts for the agent dashboard table.
func (r *LinkRepo) CustomersOfAgent(ctx context.Context, agentID uint64) ([]CustomerInfo, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT c.id, u.id, u.username, u.name, u.email, u.phone
		 FROM agent_customers ac
		 JOIN customers c ON c.id = ac.customer_id
		 JOIN users u ON u.id = c.user_id
		 WHERE ac.agent_id = ?
		 ORDER BY u.name`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []CustomerInfo{}
	for rows.Next() {
		var info CustomerInfo
		if err := rows.Scan(&info.CustomerID, &info.UserID, &info.Username, &info.Name, &info.Email, &info.Phone); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// AgentsOfCustomer lists the agents linked to a customer, joined with
// their user accounts for the customer's contact view.
func (r *LinkRepo) AgentsOfCustomer(ctx context.Context, customerID uint64) ([]AgentInfo, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT a.id, u.id, u.username, u.name, u.email, u.phone
		 FROM agent_customers ac
		 JOIN agents a ON a.id = ac.agent_id
		 JOIN users u ON u.id = a.user_id
		 WHERE ac.customer_id = ?
		 ORDER BY u.name`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []AgentInfo{}
	for rows.Next() {
		var info AgentInfo
		if err := rows.Scan(&info.AgentID, &info.UserID, &info.Username, &info.Name, &info.Email, &info.Phone); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}
