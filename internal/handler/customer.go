package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/insuratrack/insuratrack/internal/config"
	"github.com/insuratrack/insuratrack/internal/model"
	"github.com/insuratrack/insuratrack/internal/repository"
)

// CustomerHandler serves customer profile endpoints. Agents may act on
// customers they are linked to; customers only on themselves.
type CustomerHandler struct {
	Cfg       config.Config
	DB        *sql.DB
	Users     *repository.UserRepo
	Agents    *repository.AgentRepo
	Customers *repository.CustomerRepo
	Links     *repository.LinkRepo
	Policies  *repository.PolicyRepo
}

func NewCustomerHandler(cfg config.Config, db *sql.DB, u *repository.UserRepo, a *repository.AgentRepo,
	cu *repository.CustomerRepo, l *repository.LinkRepo, p *repository.PolicyRepo) *CustomerHandler {
	return &CustomerHandler{Cfg: cfg, DB: db, Users: u, Agents: a, Customers: cu, Links: l, Policies: p}
}

type createCustomerReq struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

// Create lets an agent open a customer account. The user row, customer
// profile and agent link are created in one transaction.
func (h *CustomerHandler) Create(c echo.Context) error {
	var req createCustomerReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Username == "" || req.Email == "" || req.Password == "" || req.Name == "" {
		return fail(c, http.StatusBadRequest, "username, name, email and password are required")
	}
	if len(req.Password) < 6 {
		return fail(c, http.StatusBadRequest, "password must be at least 6 characters")
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

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return serverError(c)
	}
	defer tx.Rollback()

	uid, err := h.Users.CreateTx(ctx, tx, req.Username, req.Name, req.Email, req.Password,
		model.RoleCustomer, req.Phone, h.Cfg.BcryptCost)
	switch {
	case errors.Is(err, repository.ErrUsernameExists):
		return fail(c, http.StatusConflict, "username already exists")
	case errors.Is(err, repository.ErrEmailExists):
		return fail(c, http.StatusConflict, "email already exists")
	case err != nil:
		return serverError(c)
	}

	custID, err := h.Customers.CreateTx(ctx, tx, uid)
	if err != nil {
		return serverError(c)
	}
	if err := h.Links.EnsureTx(ctx, tx, ag.ID, custID); err != nil {
		return serverError(c)
	}
	if err := tx.Commit(); err != nil {
		return serverError(c)
	}

	info, err := h.Customers.InfoByID(ctx, custID)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusCreated, "customer created", info)
}

// Me returns the caller's customer profile.
func (h *CustomerHandler) Me(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	cu, err := h.Customers.GetByUserID(ctx, authUserID(c))
	if errors.Is(err, sql.ErrNoRows) {
		return profileNotFound(c)
	}
	if err != nil {
		return serverError(c)
	}
	info, err := h.Customers.InfoByID(ctx, cu.ID)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "", info)
}

// MyAgents lists the agents linked to the calling customer.
func (h *CustomerHandler) MyAgents(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	cu, err := h.Customers.GetByUserID(ctx, authUserID(c))
	if errors.Is(err, sql.ErrNoRows) {
		return profileNotFound(c)
	}
	if err != nil {
		return serverError(c)
	}
	agents, err := h.Links.AgentsOfCustomer(ctx, cu.ID)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "", agents)
}

// resolve loads the target customer and checks the caller may act on it.
// Agents must be linked; customers must be the target themselves.
func (h *CustomerHandler) resolve(c echo.Context) (model.Customer, int, string) {
	id, err := pathID(c, "id")
	if err != nil {
		return model.Customer{}, http.StatusBadRequest, "invalid customer id"
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	target, err := h.Customers.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Customer{}, http.StatusNotFound, "customer not found"
	}
	if err != nil {
		return model.Customer{}, http.StatusInternalServerError, "internal server error"
	}

	role, _ := c.Get("role").(string)
	if role == model.RoleCustomer {
		if target.UserID != authUserID(c) {
			return model.Customer{}, http.StatusForbidden, "access denied"
		}
		return target, 0, ""
	}

	ag, err := h.Agents.GetByUserID(ctx, authUserID(c))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Customer{}, http.StatusNotFound, "profile not found"
	}
	if err != nil {
		return model.Customer{}, http.StatusInternalServerError, "internal server error"
	}
	linked, err := h.Links.Exists(ctx, ag.ID, target.ID)
	if err != nil {
		return model.Customer{}, http.StatusInternalServerError, "internal server error"
	}
	if !linked {
		return model.Customer{}, http.StatusForbidden, "customer is not linked to you"
	}
	return target, 0, ""
}

// Get returns one customer profile.
func (h *CustomerHandler) Get(c echo.Context) error {
	target, status, msg := h.resolve(c)
	if status != 0 {
		return fail(c, status, msg)
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	info, err := h.Customers.InfoByID(ctx, target.ID)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "", info)
}

// Update merges name/email/phone into the customer's user account.
func (h *CustomerHandler) Update(c echo.Context) error {
	var req updateProfileReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if req.Name == nil && req.Email == nil && req.Phone == nil {
		return fail(c, http.StatusBadRequest, "nothing to update")
	}
	if req.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*req.Email))
		if e == "" {
			return fail(c, http.StatusBadRequest, "email cannot be empty")
		}
		req.Email = &e
	}

	target, status, msg := h.resolve(c)
	if status != 0 {
		return fail(c, status, msg)
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	_, err := h.Users.UpdateProfile(ctx, target.UserID, req.Name, req.Email, req.Phone)
	switch {
	case errors.Is(err, repository.ErrEmailExists):
		return fail(c, http.StatusConflict, "email already in use")
	case err != nil:
		return serverError(c)
	}

	info, err := h.Customers.InfoByID(ctx, target.ID)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "customer updated", info)
}

// CustomerPolicies lists the target customer's policies.
func (h *CustomerHandler) CustomerPolicies(c echo.Context) error {
	target, status, msg := h.resolve(c)
	if status != 0 {
		return fail(c, status, msg)
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	policies, err := h.Policies.ListByCustomer(ctx, target.ID)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "", viewPoliciesWithAgent(policies))
}
