package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/insuratrack/insuratrack/internal/model"
	"github.com/insuratrack/insuratrack/internal/repository"
)

// MessageHandler serves the customer-to-agent messaging endpoints.
type MessageHandler struct {
	Messages  *repository.MessageRepo
	Agents    *repository.AgentRepo
	Customers *repository.CustomerRepo
	Links     *repository.LinkRepo
}

func NewMessageHandler(m *repository.MessageRepo, a *repository.AgentRepo,
	cu *repository.CustomerRepo, l *repository.LinkRepo) *MessageHandler {
	return &MessageHandler{Messages: m, Agents: a, Customers: cu, Links: l}
}

type sendMessageReq struct {
	AgentID uint64 `json:"agentId"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Send creates a root message from the calling customer to one of their
// linked agents.
func (h *MessageHandler) Send(c echo.Context) error {
	var req sendMessageReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Subject = strings.TrimSpace(req.Subject)
	req.Body = strings.TrimSpace(req.Body)
	if req.AgentID == 0 || req.Subject == "" || req.Body == "" {
		return fail(c, http.StatusBadRequest, "agentId, subject and body are required")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	cu, err := h.Customers.GetByUserID(ctx, authUserID(c))
	if errors.Is(err, sql.ErrNoRows) {
		return profileNotFound(c)
	}
	if err != nil {
		return serverError(c)
	}

	linked, err := h.Links.Exists(ctx, req.AgentID, cu.ID)
	if err != nil {
		return serverError(c)
	}
	if !linked {
		return fail(c, http.StatusForbidden, "agent is not linked to you")
	}

	msg, err := h.Messages.Create(ctx, cu.ID, req.AgentID, req.Subject, req.Body)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusCreated, "message sent", viewMessage(msg))
}

// Inbox returns the calling agent's root messages, newest first, each
// with its replies oldest first.
func (h *MessageHandler) Inbox(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	ag, err := h.Agents.GetByUserID(ctx, authUserID(c))
	if errors.Is(err, sql.ErrNoRows) {
		return profileNotFound(c)
	}
	if err != nil {
		return serverError(c)
	}
	threads, err := h.Messages.RootsByAgent(ctx, ag.ID)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "", viewThreads(threads))
}

// MarkRead flags a message addressed to the caller as read. Re-reading
// keeps the original read timestamp.
func (h *MessageHandler) MarkRead(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid message id")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	m, err := h.Messages.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fail(c, http.StatusNotFound, "message not found")
	}
	if err != nil {
		return serverError(c)
	}

	// Only the recipient can mark a message read.
	status, msg := h.recipientCheck(ctx, c, m)
	if status != 0 {
		return fail(c, status, msg)
	}

	updated, err := h.Messages.MarkRead(ctx, id)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "message marked as read", viewMessage(updated))
}

// recipientCheck verifies the caller is the party the message was sent
// to: the agent for customer-sent messages, the customer for replies.
func (h *MessageHandler) recipientCheck(ctx context.Context, c echo.Context, m model.Message) (int, string) {
	role, _ := c.Get("role").(string)
	switch role {
	case model.RoleAgent:
		ag, err := h.Agents.GetByUserID(ctx, authUserID(c))
		if errors.Is(err, sql.ErrNoRows) {
			return http.StatusNotFound, "profile not found"
		}
		if err != nil {
			return http.StatusInternalServerError, "internal server error"
		}
		if m.AgentID != ag.ID || m.SenderRole != model.RoleCustomer {
			return http.StatusForbidden, "access denied"
		}
	case model.RoleCustomer:
		cu, err := h.Customers.GetByUserID(ctx, authUserID(c))
		if errors.Is(err, sql.ErrNoRows) {
			return http.StatusNotFound, "profile not found"
		}
		if err != nil {
			return http.StatusInternalServerError, "internal server error"
		}
		if m.CustomerID != cu.ID || m.SenderRole != model.RoleAgent {
			return http.StatusForbidden, "access denied"
		}
	default:
		return http.StatusForbidden, "access denied"
	}
	return 0, ""
}

type replyReq struct {
	Body string `json:"body"`
}

// Reply lets the owning agent answer a root message. The reply inherits
// the root's subject with a "Re: " prefix.
func (h *MessageHandler) Reply(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid message id")
	}
	var req replyReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" {
		return fail(c, http.StatusBadRequest, "body is required")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	ag, err := h.Agents.GetByUserID(ctx, authUserID(c))
	if errors.Is(err, sql.ErrNoRows) {
		return profileNotFound(c)
	}
	if err != nil {
		return serverError(c)
	}

	root, err := h.Messages.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fail(c, http.StatusNotFound, "message not found")
	}
	if err != nil {
		return serverError(c)
	}
	if root.AgentID != ag.ID {
		return fail(c, http.StatusForbidden, "message is not addressed to you")
	}
	if !root.IsRoot() {
		return fail(c, http.StatusBadRequest, "can only reply to a root message")
	}

	reply, err := h.Messages.CreateReply(ctx, root, req.Body)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusCreated, "reply sent", viewMessage(reply))
}

// Conversation returns every message between the calling customer and
// the given agent, oldest first.
func (h *MessageHandler) Conversation(c echo.Context) error {
	agentID, err := pathID(c, "agentId")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid agent id")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	cu, err := h.Customers.GetByUserID(ctx, authUserID(c))
	if errors.Is(err, sql.ErrNoRows) {
		return profileNotFound(c)
	}
	if err != nil {
		return serverError(c)
	}

	msgs, err := h.Messages.Conversation(ctx, cu.ID, agentID)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "", viewMessages(msgs))
}

// Delete removes a message. Agents may delete any message in their
// threads; customers only messages they sent. Deleting a root removes
// its replies with it.
func (h *MessageHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid message id")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	m, err := h.Messages.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fail(c, http.StatusNotFound, "message not found")
	}
	if err != nil {
		return serverError(c)
	}

	role, _ := c.Get("role").(string)
	switch role {
	case model.RoleAgent:
		ag, err := h.Agents.GetByUserID(ctx, authUserID(c))
		if errors.Is(err, sql.ErrNoRows) {
			return profileNotFound(c)
		}
		if err != nil {
			return serverError(c)
		}
		if m.AgentID != ag.ID {
			return fail(c, http.StatusForbidden, "access denied")
		}
	case model.RoleCustomer:
		cu, err := h.Customers.GetByUserID(ctx, authUserID(c))
		if errors.Is(err, sql.ErrNoRows) {
			return profileNotFound(c)
		}
		if err != nil {
			return serverError(c)
		}
		if m.CustomerID != cu.ID || m.SenderRole != model.RoleCustomer {
			return fail(c, http.StatusForbidden, "access denied")
		}
	default:
		return fail(c, http.StatusForbidden, "access denied")
	}

	if err := h.Messages.Delete(ctx, m); err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "message deleted", nil)
}
