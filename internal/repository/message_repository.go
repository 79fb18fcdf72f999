package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/insuratrack/insuratrack/internal/model"
)

// MessageRepo stores customer-to-agent messages and agent replies.
// Replies reference their root via reply_to; roots have reply_to NULL.
type MessageRepo struct{ DB *sql.DB }

func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{DB: db} }

const messageCols = `id,customer_id,agent_id,subject,body,is_read,read_at,reply_to,sender_role,created_at,updated_at`

type messageScanner interface{ Scan(dest ...interface{}) error }

func scanMessage(row messageScanner) (model.Message, error) {
	var m model.Message
	err := row.Scan(&m.ID, &m.CustomerID, &m.AgentID, &m.Subject, &m.Body,
		&m.IsRead, &m.ReadAt, &m.ReplyTo, &m.SenderRole, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func collectMessages(rows *sql.Rows) ([]model.Message, error) {
	out := []model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Create inserts a new root message from a customer to one of their agents.
func (r *MessageRepo) Create(ctx context.Context, customerID, agentID uint64, subject, body string) (model.Message, error) {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO messages (customer_id, agent_id, subject, body, is_read, sender_role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
		customerID, agentID, subject, body, model.RoleCustomer, now, now)
	if err != nil {
		return model.Message{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Message{}, err
	}
	return model.Message{
		ID: uint64(id), CustomerID: customerID, AgentID: agentID,
		Subject: subject, Body: body, SenderRole: model.RoleCustomer,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id uint64) (model.Message, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+messageCols+` FROM messages WHERE id=? LIMIT 1`, id)
	return scanMessage(row)
}

// Thread is a root message with its replies, replies oldest first.
type Thread struct {
	model.Message
	Replies []model.Message `json:"replies"`
}

// threadsFrom groups a flat ordered slice into root threads. Roots must
// arrive before being referenced; callers sort replies ASC to guarantee it.
func threadsFrom(roots, replies []model.Message) []Thread {
	byRoot := map[uint64][]model.Message{}
	for _, rep := range replies {
		if rep.ReplyTo != nil {
			byRoot[*rep.ReplyTo] = append(byRoot[*rep.ReplyTo], rep)
		}
	}
	out := make([]Thread, 0, len(roots))
	for _, root := range roots {
		out = append(out, Thread{Message: root, Replies: byRoot[root.ID]})
	}
	return out
}

// RootsByAgent returns the agent's inbox: root messages newest first, each
// carrying its replies oldest first.
func (r *MessageRepo) RootsByAgent(ctx context.Context, agentID uint64) ([]Thread, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE agent_id=? AND reply_to IS NULL
		 ORDER BY created_at DESC`, agentID)
	if err != nil {
		return nil, err
	}
	roots, err := collectMessages(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	reps, err := r.DB.QueryContext(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE agent_id=? AND reply_to IS NOT NULL
		 ORDER BY created_at ASC`, agentID)
	if err != nil {
		return nil, err
	}
	replies, err := collectMessages(reps)
	reps.Close()
	if err != nil {
		return nil, err
	}
	return threadsFrom(roots, replies), nil
}

// Conversation returns every message between a customer and an agent,
// oldest first.
func (r *MessageRepo) Conversation(ctx context.Context, customerID, agentID uint64) ([]model.Message, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE customer_id=? AND agent_id=?
		 ORDER BY created_at ASC`, customerID, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// MarkRead flags a message as read. The read timestamp is stamped only on
// the first call; re-reads keep the original time.
func (r *MessageRepo) MarkRead(ctx context.Context, id uint64) (model.Message, error) {
	now := time.Now().UTC()
	_, err := r.DB.ExecContext(ctx,
		`UPDATE messages
		 SET is_read=1, read_at=IF(read_at IS NULL, ?, read_at), updated_at=?
		 WHERE id=?`, now, now, id)
	if err != nil {
		return model.Message{}, err
	}
	return r.GetByID(ctx, id)
}

// CreateReply inserts an agent's reply to a root message. The subject is
// derived from the root with a single "Re: " prefix.
func (r *MessageRepo) CreateReply(ctx context.Context, root model.Message, body string) (model.Message, error) {
	subject := root.Subject
	if !strings.HasPrefix(subject, "Re: ") {
		subject = "Re: " + subject
	}
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO messages (customer_id, agent_id, subject, body, is_read, reply_to, sender_role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		root.CustomerID, root.AgentID, subject, body, root.ID, model.RoleAgent, now, now)
	if err != nil {
		return model.Message{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Message{}, err
	}
	rootID := root.ID
	return model.Message{
		ID: uint64(id), CustomerID: root.CustomerID, AgentID: root.AgentID,
		Subject: subject, Body: body, ReplyTo: &rootID, SenderRole: model.RoleAgent,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

// Delete removes a message. Deleting a root also removes its replies in
// the same transaction; deleting a reply leaves the thread intact.
func (r *MessageRepo) Delete(ctx context.Context, m model.Message) error {
	if m.ReplyTo != nil {
		_, err := r.DB.ExecContext(ctx, "DELETE FROM messages WHERE id=?", m.ID)
		return err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE reply_to=?", m.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE id=?", m.ID); err != nil {
		return err
	}
	return tx.Commit()
}
