package repository

import (
	"context"
	"database/sql"

	"github.com/insuratrack/insuratrack/internal/model"
)

// CustomerRepo provides data access to the customers table, including the
// compound delete used when an agent removes a customer entirely.
type CustomerRepo struct{ DB *sql.DB }

func NewCustomerRepo(db *sql.DB) *CustomerRepo { return &CustomerRepo{DB: db} }

// CustomerInfo is a customer row joined with its user account.
type CustomerInfo struct {
	CustomerID uint64 `json:"id"`
	UserID     uint64 `json:"userId"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

// CreateTx inserts the customer profile row for a user within the provided
// transaction.
func (r *CustomerRepo) CreateTx(ctx context.Context, tx *sql.Tx, userID uint64) (uint64, error) {
	res, err := tx.ExecContext(ctx, "INSERT INTO customers (user_id) VALUES (?)", userID)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByUserID fetches the customer profile owned by a user.
func (r *CustomerRepo) GetByUserID(ctx context.Context, userID uint64) (model.Customer, error) {
	var c model.Customer
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,user_id,created_at FROM customers WHERE user_id=? LIMIT 1", userID).
		Scan(&c.ID, &c.UserID, &c.CreatedAt)
	return c, err
}

// GetByID fetches a customer by primary key.
func (r *CustomerRepo) GetByID(ctx context.Context, id uint64) (model.Customer, error) {
	var c model.Customer
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,user_id,created_at FROM customers WHERE id=? LIMIT 1", id).
		Scan(&c.ID, &c.UserID, &c.CreatedAt)
	return c, err
}

// InfoByID returns the customer joined with its user account.
func (r *CustomerRepo) InfoByID(ctx context.Context, id uint64) (CustomerInfo, error) {
	var info CustomerInfo
	err := r.DB.QueryRowContext(ctx,
		`SELECT c.id, u.id, u.username, u.name, u.email, u.phone
		 FROM customers c JOIN users u ON u.id = c.user_id
		 WHERE c.id=? LIMIT 1`, id).
		Scan(&info.CustomerID, &info.UserID, &info.Username, &info.Name, &info.Email, &info.Phone)
	return info, err
}

// SearchUnlinked finds customers whose name, email or username matches the
// query and who are not yet linked to the searching agent. The caller has
// already validated the minimum query length.
func (r *CustomerRepo) SearchUnlinked(ctx context.Context, agentID uint64, query string) ([]CustomerInfo, error) {
	like := "%" + query + "%"
	rows, err := r.DB.QueryContext(ctx,
		`SELECT c.id, u.id, u.username, u.name, u.email, u.phone
		 FROM customers c
		 JOIN users u ON u.id = c.user_id
		 WHERE u.role = 'customer'
		   AND (u.name LIKE ? OR u.email LIKE ? OR u.username LIKE ?)
		   AND c.id NOT IN (SELECT customer_id FROM agent_customers WHERE agent_id = ?)
		 ORDER BY u.name`,
		like, like, like, agentID)
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

// DeleteWithData removes a customer together with its policies, link rows
// and user account, all inside one transaction. The deleting agent must be
// linked to the customer (ErrForbidden otherwise) and every policy must be
// inactive; when active policies exist the returned count tells the caller
// how many block the deletion and the transaction is rolled back.
func (r *CustomerRepo) DeleteWithData(ctx context.Context, customerID, agentID uint64) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var userID uint64
	err = tx.QueryRowContext(ctx,
		"SELECT user_id FROM customers WHERE id=? LIMIT 1", customerID).Scan(&userID)
	if err != nil {
		return 0, err // sql.ErrNoRows -> customer not found
	}

	var linked bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM agent_customers WHERE agent_id=? AND customer_id=?)",
		agentID, customerID).Scan(&linked)
	if err != nil {
		return 0, err
	}
	if !linked {
		return 0, ErrForbidden
	}

	var active int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM policies WHERE customer_id=? AND is_active=1", customerID).Scan(&active)
	if err != nil {
		return 0, err
	}
	if active > 0 {
		return active, ErrActivePolicies
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM policy_history WHERE customer_id=?", customerID); err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM policies WHERE customer_id=?", customerID); err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM messages WHERE customer_id=?", customerID); err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM agent_customers WHERE customer_id=?", customerID); err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM customers WHERE id=?", customerID); err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM users WHERE id=?", userID); err != nil {
		return 0, err
	}
	return 0, tx.Commit()
}
