package model

import "time"

// Message is one entry of a customer<->agent thread. Threads are exactly
// two levels deep: a root message (ReplyTo nil) plus its replies, all
// sharing the root's agent and customer. Deleting a root cascades to its
// replies; deleting a reply removes only that reply.
type Message struct {
	ID         uint64     // messages.id
	CustomerID uint64     // messages.customer_id
	AgentID    uint64     // messages.agent_id
	Subject    string     // messages.subject
	Body       string     // messages.body
	IsRead     bool       // messages.is_read
	ReadAt     *time.Time // messages.read_at (nullable, stamped once)
	ReplyTo    *uint64    // messages.reply_to (nullable, references a root)
	SenderRole string     // messages.sender_role ("customer" or "agent")
	CreatedAt  time.Time  // messages.created_at
	UpdatedAt  time.Time  // messages.updated_at
}

// IsRoot reports whether m starts a thread.
func (m *Message) IsRoot() bool { return m.ReplyTo == nil }
