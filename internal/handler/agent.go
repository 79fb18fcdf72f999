package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/insuratrack/insuratrack/internal/model"
	"github.com/insuratrack/insuratrack/internal/repository"
)

// AgentHandler serves the agent-facing endpoints. Every operation first
// resolves the caller's agent profile from the JWT subject; ids supplied
// by the client are never trusted for ownership.
type AgentHandler struct {
	Agents    *repository.AgentRepo
	Customers *repository.CustomerRepo
	Links     *repository.LinkRepo
	Policies  *repository.PolicyRepo
}

func NewAgentHandler(a *repository.AgentRepo, cu *repository.CustomerRepo,
	l *repository.LinkRepo, p *repository.PolicyRepo) *AgentHandler {
	return &AgentHandler{Agents: a, Customers: cu, Links: l, Policies: p}
}

func (h *AgentHandler) profile(ctx context.Context, c echo.Context) (model.Agent, error) {
	return h.Agents.GetByUserID(ctx, authUserID(c))
}

// Me returns the caller's agent profile with account details.
func (h *AgentHandler) Me(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	ag, err := h.profile(ctx, c)
	if errors.Is(err, sql.ErrNoRows) {
		return profileNotFound(c)
	}
	if err != nil {
		return serverError(c)
	}
	info, err := h.Agents.InfoByID(ctx, ag.ID)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "", info)
}

// MyCustomers lists the customers linked to the caller.
func (h *AgentHandler) MyCustomers(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	ag, err := h.profile(ctx, c)
	if errors.Is(err, sql.ErrNoRows) {
		return profileNotFound(c)
	}
	if err != nil {
		return serverError(c)
	}
	customers, err := h.Links.CustomersOfAgent(ctx, ag.ID)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "", customers)
}

// MyPolicies lists every policy the caller manages, with customer details.
func (h *AgentHandler) MyPolicies(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	ag, err := h.profile(ctx, c)
	if errors.Is(err, sql.ErrNoRows) {
		return profileNotFound(c)
	}
	if err != nil {
		return serverError(c)
	}
	policies, err := h.Policies.ListByAgent(ctx, ag.ID)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "", viewPoliciesWithCustomer(policies))
}

// LinkCustomer associates an existing customer with the caller. Linking
// the same pair twice is a conflict.
func (h *AgentHandler) LinkCustomer(c echo.Context) error {
	customerID, err := pathID(c, "customerId")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid customer id")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	ag, err := h.profile(ctx, c)
	if errors.Is(err, sql.ErrNoRows) {
		return profileNotFound(c)
	}
	if err != nil {
		return serverError(c)
	}

	if _, err := h.Customers.GetByID(ctx, customerID); errors.Is(err, sql.ErrNoRows) {
		return fail(c, http.StatusNotFound, "customer not found")
	} else if err != nil {
		return serverError(c)
	}

	switch err := h.Links.Link(ctx, ag.ID, customerID); {
	case errors.Is(err, repository.ErrAlreadyLinked):
		return fail(c, http.StatusConflict, "customer already linked")
	case err != nil:
		return serverError(c)
	}
	return respond(c, http.StatusOK, "customer linked", nil)
}

// DeleteCustomer removes a linked customer together with their policies,
// history, messages, links and user account. Customers with active
// policies are protected.
func (h *AgentHandler) DeleteCustomer(c echo.Context) error {
	customerID, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid customer id")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	ag, err := h.profile(ctx, c)
	if errors.Is(err, sql.ErrNoRows) {
		return profileNotFound(c)
	}
	if err != nil {
		return serverError(c)
	}

	count, err := h.Customers.DeleteWithData(ctx, customerID, ag.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fail(c, http.StatusNotFound, "customer not found")
	case errors.Is(err, repository.ErrForbidden):
		return fail(c, http.StatusForbidden, "customer is not linked to you")
	case errors.Is(err, repository.ErrActivePolicies):
		return fail(c, http.StatusConflict,
			fmt.Sprintf("customer has %d active policies; deactivate or delete them first", count))
	case err != nil:
		return serverError(c)
	}
	return respond(c, http.StatusOK, "customer deleted", nil)
}

// SearchCustomers finds customers not yet linked to the caller by name,
// email or username. Queries shorter than 3 characters are rejected.
func (h *AgentHandler) SearchCustomers(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("query"))
	if len(query) < 3 {
		return fail(c, http.StatusBadRequest, "query must be at least 3 characters")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	ag, err := h.profile(ctx, c)
	if errors.Is(err, sql.ErrNoRows) {
		return profileNotFound(c)
	}
	if err != nil {
		return serverError(c)
	}
	matches, err := h.Customers.SearchUnlinked(ctx, ag.ID, query)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "", matches)
}
