package repository

import (
	"context"
	"database/sql"

	"github.com/insuratrack/insuratrack/internal/model"
)

// AgentRepo provides data access to the agents table. The caller's own
// agent profile is always resolved from the authenticated user id, never
// taken from the request, so every ownership check here keys on user_id.
type AgentRepo struct{ DB *sql.DB }

func NewAgentRepo(db *sql.DB) *AgentRepo { return &AgentRepo{DB: db} }

// AgentInfo is an agent row joined with its user account, shaped for
// client lists and profile views.
type AgentInfo struct {
	AgentID  uint64 `json:"id"`
	UserID   uint64 `json:"userId"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

// CreateTx inserts the agent profile row for a user within the provided
// transaction. Registration creates user and profile as one unit.
func (r *AgentRepo) CreateTx(ctx context.Context, tx *sql.Tx, userID uint64) (uint64, error) {
	res, err := tx.ExecContext(ctx, "INSERT INTO agents (user_id) VALUES (?)", userID)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByUserID fetches the agent profile owned by a user.
func (r *AgentRepo) GetByUserID(ctx context.Context, userID uint64) (model.Agent, error) {
	var a model.Agent
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,user_id,created_at FROM agents WHERE user_id=? LIMIT 1", userID).
		Scan(&a.ID, &a.UserID, &a.CreatedAt)
	return a, err
}

// GetByID fetches an agent by primary key.
func (r *AgentRepo) GetByID(ctx context.Context, id uint64) (model.Agent, error) {
	var a model.Agent
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,user_id,created_at FROM agents WHERE id=? LIMIT 1", id).
		Scan(&a.ID, &a.UserID, &a.CreatedAt)
	return a, err
}

// InfoByID returns the agent joined with its user account.
func (r *AgentRepo) InfoByID(ctx context.Context, id uint64) (AgentInfo, error) {
	var info AgentInfo
	err := r.DB.QueryRowContext(ctx,
		`SELECT a.id, u.id, u.username, u.name, u.email, u.phone
		 FROM agents a JOIN users u ON u.id = a.user_id
		 WHERE a.id=? LIMIT 1`, id).
		Scan(&info.AgentID, &info.UserID, &info.Username, &info.Name, &info.Email, &info.Phone)
	return info, err
}
