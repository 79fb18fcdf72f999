package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/insuratrack/insuratrack/internal/model"
	"github.com/insuratrack/insuratrack/internal/queue"
	"github.com/insuratrack/insuratrack/internal/repository"
)

// RenewalPublisher emits renewal events to the broker. Failures are
// logged, never surfaced: the renewal has already committed.
type RenewalPublisher interface {
	PolicyRenewed(ctx context.Context, ev queue.PolicyRenewedEvent) error
}

// PolicyHandler serves policy CRUD, renewal, filtering and the document
// endpoints' ownership checks.
type PolicyHandler struct {
	Policies  *repository.PolicyRepo
	Agents    *repository.AgentRepo
	Customers *repository.CustomerRepo
	Histories *repository.HistoryRepo
	Publisher RenewalPublisher
	Log       zerolog.Logger
}

func NewPolicyHandler(p *repository.PolicyRepo, a *repository.AgentRepo, cu *repository.CustomerRepo,
	hi *repository.HistoryRepo, pub RenewalPublisher, log zerolog.Logger) *PolicyHandler {
	return &PolicyHandler{Policies: p, Agents: a, Customers: cu, Histories: hi, Publisher: pub, Log: log}
}

// parseDate accepts a bare date or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	return t.UTC(), err
}

// agentPolicy loads a policy and verifies the caller is its managing
// agent. status is 0 on success.
func (h *PolicyHandler) agentPolicy(ctx context.Context, c echo.Context) (model.Policy, model.Agent, int, string) {
	id, err := pathID(c, "id")
	if err != nil {
		return model.Policy{}, model.Agent{}, http.StatusBadRequest, "invalid policy id"
	}
	ag, err := h.Agents.GetByUserID(ctx, authUserID(c))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Policy{}, model.Agent{}, http.StatusNotFound, "profile not found"
	}
	if err != nil {
		return model.Policy{}, model.Agent{}, http.StatusInternalServerError, "internal server error"
	}
	p, err := h.Policies.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Policy{}, model.Agent{}, http.StatusNotFound, "policy not found"
	}
	if err != nil {
		return model.Policy{}, model.Agent{}, http.StatusInternalServerError, "internal server error"
	}
	if p.AgentID != ag.ID {
		return model.Policy{}, model.Agent{}, http.StatusForbidden, "policy is not managed by you"
	}
	return p, ag, 0, ""
}

// viewerPolicy loads a policy for either role: the managing agent or the
// owning customer.
func (h *PolicyHandler) viewerPolicy(ctx context.Context, c echo.Context) (model.Policy, int, string) {
	id, err := pathID(c, "id")
	if err != nil {
		return model.Policy{}, http.StatusBadRequest, "invalid policy id"
	}
	p, err := h.Policies.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Policy{}, http.StatusNotFound, "policy not found"
	}
	if err != nil {
		return model.Policy{}, http.StatusInternalServerError, "internal server error"
	}

	role, _ := c.Get("role").(string)
	if role == model.RoleCustomer {
		cu, err := h.Customers.GetByUserID(ctx, authUserID(c))
		if errors.Is(err, sql.ErrNoRows) {
			return model.Policy{}, http.StatusNotFound, "profile not found"
		}
		if err != nil {
			return model.Policy{}, http.StatusInternalServerError, "internal server error"
		}
		if p.CustomerID != cu.ID {
			return model.Policy{}, http.StatusForbidden, "access denied"
		}
		return p, 0, ""
	}

	ag, err := h.Agents.GetByUserID(ctx, authUserID(c))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Policy{}, http.StatusNotFound, "profile not found"
	}
	if err != nil {
		return model.Policy{}, http.StatusInternalServerError, "internal server error"
	}
	if p.AgentID != ag.ID {
		return model.Policy{}, http.StatusForbidden, "policy is not managed by you"
	}
	return p, 0, ""
}

type createPolicyReq struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	PolicyNumber string   `json:"policyNumber"`
	MobileNo     string   `json:"mobileNo"`
	SumAssured   float64  `json:"sumAssured"`
	CompanyName  string   `json:"companyName"`
	Premium      float64  `json:"premium"`
	StartDate    string   `json:"startDate"`
	RenewalDate  string   `json:"renewalDate"`
	CustomerID   uint64   `json:"customerId"`
}

// Create opens a new active policy for a customer. If the caller is not
// yet linked to that customer, the link is established inside the same
// transaction.
func (h *PolicyHandler) Create(c echo.Context) error {
	var req createPolicyReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Title = strings.TrimSpace(req.Title)
	req.PolicyNumber = strings.TrimSpace(req.PolicyNumber)
	if req.Title == "" || req.PolicyNumber == "" || req.CustomerID == 0 {
		return fail(c, http.StatusBadRequest, "title, policyNumber and customerId are required")
	}
	if req.Premium < 0 || req.SumAssured < 0 {
		return fail(c, http.StatusBadRequest, "premium and sumAssured must not be negative")
	}
	company := strings.ToUpper(strings.TrimSpace(req.CompanyName))
	if company == "" {
		company = "OTHER"
	}
	if !model.ValidCompany(company) {
		return fail(c, http.StatusBadRequest, "unknown company name")
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid startDate")
	}
	renewal, err := parseDate(req.RenewalDate)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid renewalDate")
	}
	if !renewal.After(start) {
		return fail(c, http.StatusBadRequest, "renewalDate must be after startDate")
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

	p := model.Policy{
		Title: req.Title, Description: req.Description,
		PolicyNumber: req.PolicyNumber, MobileNo: req.MobileNo,
		SumAssured: req.SumAssured, CompanyName: company, Premium: req.Premium,
		StartDate: start, RenewalDate: renewal,
		CustomerID: req.CustomerID, AgentID: ag.ID,
	}
	switch err := h.Policies.CreateWithLink(ctx, &p); {
	case errors.Is(err, repository.ErrPolicyNumberExists):
		return fail(c, http.StatusConflict, "policy number already exists")
	case errors.Is(err, sql.ErrNoRows):
		return fail(c, http.StatusNotFound, "customer not found")
	case err != nil:
		return serverError(c)
	}

	created, err := h.Policies.GetByID(ctx, p.ID)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusCreated, "policy created", viewPolicy(created))
}

// Get returns one policy, visible to its agent or owning customer.
func (h *PolicyHandler) Get(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	p, status, msg := h.viewerPolicy(ctx, c)
	if status != 0 {
		return fail(c, status, msg)
	}
	return respond(c, http.StatusOK, "", viewPolicy(p))
}

type updatePolicyReq struct {
	Title        *string  `json:"title"`
	Description  *string  `json:"description"`
	PolicyNumber *string  `json:"policyNumber"`
	MobileNo     *string  `json:"mobileNo"`
	SumAssured   *float64 `json:"sumAssured"`
	CompanyName  *string  `json:"companyName"`
	Premium      *float64 `json:"premium"`
	StartDate    *string  `json:"startDate"`
	RenewalDate  *string  `json:"renewalDate"`
	IsActive     *bool    `json:"isActive"`
}

// Update merges the provided fields into the policy. No history row is
// written; only renewals snapshot the previous state.
func (h *PolicyHandler) Update(c echo.Context) error {
	var req updatePolicyReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}

	upd := repository.PolicyUpdate{
		Title: req.Title, Description: req.Description,
		PolicyNumber: req.PolicyNumber, MobileNo: req.MobileNo,
		SumAssured: req.SumAssured, Premium: req.Premium, IsActive: req.IsActive,
	}
	if req.CompanyName != nil {
		company := strings.ToUpper(strings.TrimSpace(*req.CompanyName))
		if !model.ValidCompany(company) {
			return fail(c, http.StatusBadRequest, "unknown company name")
		}
		upd.CompanyName = &company
	}
	if req.StartDate != nil {
		t, err := parseDate(*req.StartDate)
		if err != nil {
			return fail(c, http.StatusBadRequest, "invalid startDate")
		}
		upd.StartDate = &t
	}
	if req.RenewalDate != nil {
		t, err := parseDate(*req.RenewalDate)
		if err != nil {
			return fail(c, http.StatusBadRequest, "invalid renewalDate")
		}
		upd.RenewalDate = &t
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	p, _, status, msg := h.agentPolicy(ctx, c)
	if status != 0 {
		return fail(c, status, msg)
	}

	updated, err := h.Policies.Update(ctx, p.ID, upd)
	switch {
	case errors.Is(err, repository.ErrPolicyNumberExists):
		return fail(c, http.StatusConflict, "policy number already exists")
	case err != nil:
		return serverError(c)
	}
	return respond(c, http.StatusOK, "policy updated", viewPolicy(updated))
}

// Delete removes a policy together with its history snapshots.
func (h *PolicyHandler) Delete(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	p, _, status, msg := h.agentPolicy(ctx, c)
	if status != 0 {
		return fail(c, status, msg)
	}
	if err := h.Policies.Delete(ctx, p.ID); err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "policy deleted", nil)
}

// ToggleStatus flips a policy between active and inactive.
func (h *PolicyHandler) ToggleStatus(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	p, _, status, msg := h.agentPolicy(ctx, c)
	if status != 0 {
		return fail(c, status, msg)
	}
	toggled, err := h.Policies.ToggleStatus(ctx, p.ID)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "policy status updated", viewPolicy(toggled))
}

type renewPolicyReq struct {
	RenewalDate string   `json:"renewalDate"`
	Premium     *float64 `json:"premium"`
	Notes       string   `json:"notes"`
}

// Renew snapshots the current policy state into history and advances the
// policy: the old renewal date becomes the new start date, the policy is
// reactivated, and an event is published for downstream consumers.
func (h *PolicyHandler) Renew(c echo.Context) error {
	var req renewPolicyReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	newRenewal, err := parseDate(req.RenewalDate)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid renewalDate")
	}
	if !newRenewal.After(time.Now().UTC()) {
		return fail(c, http.StatusBadRequest, "renewalDate must be in the future")
	}
	if req.Premium != nil && *req.Premium < 0 {
		return fail(c, http.StatusBadRequest, "premium must not be negative")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	p, _, status, msg := h.agentPolicy(ctx, c)
	if status != 0 {
		return fail(c, status, msg)
	}
	if !newRenewal.After(p.RenewalDate) {
		return fail(c, http.StatusBadRequest, "renewalDate must be after the current renewal date")
	}

	renewed, snapshot, err := h.Policies.Renew(ctx, p.ID, authUserID(c), newRenewal, req.Premium, strings.TrimSpace(req.Notes))
	if err != nil {
		return serverError(c)
	}

	if h.Publisher != nil {
		ev := queue.PolicyRenewedEvent{
			PolicyID:       renewed.ID,
			PolicyNumber:   renewed.PolicyNumber,
			Title:          renewed.Title,
			CompanyName:    renewed.CompanyName,
			CustomerID:     renewed.CustomerID,
			AgentID:        renewed.AgentID,
			OldRenewalDate: snapshot.RenewalDate.Format("2006-01-02"),
			NewRenewalDate: renewed.RenewalDate.Format("2006-01-02"),
			Premium:        renewed.Premium,
			RenewedBy:      authUserID(c),
			RenewedAt:      time.Now().UTC().Format(time.RFC3339),
		}
		if err := h.Publisher.PolicyRenewed(ctx, ev); err != nil {
			h.Log.Warn().Err(err).Uint64("policy_id", renewed.ID).Msg("renewal event not published")
		}
	}
	return respond(c, http.StatusOK, "policy renewed", viewPolicy(renewed))
}

// Filter searches the caller's policies with optional criteria, sorting
// and pagination.
func (h *PolicyHandler) Filter(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	ag, err := h.Agents.GetByUserID(ctx, authUserID(c))
	if errors.Is(err, sql.ErrNoRows) {
		return profileNotFound(c)
	}
	if err != nil {
		return serverError(c)
	}

	f, ferr := policyFilterFromQuery(c)
	if ferr != "" {
		return fail(c, http.StatusBadRequest, ferr)
	}
	f.AgentID = ag.ID

	policies, total, err := h.Policies.Filter(ctx, f)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "", echo.Map{
		"policies": viewPoliciesWithCustomer(policies),
		"total":    total,
		"page":     f.Page,
		"limit":    f.Limit,
	})
}

// policyFilterFromQuery parses filter query parameters. It returns a
// non-empty message on validation failure.
func policyFilterFromQuery(c echo.Context) (repository.PolicyFilter, string) {
	f := repository.PolicyFilter{
		CompanyName:  strings.TrimSpace(c.QueryParam("companyName")),
		PolicyNumber: strings.TrimSpace(c.QueryParam("policyNumber")),
		SortBy:       c.QueryParam("sortBy"),
		SortOrder:    c.QueryParam("sortOrder"),
	}
	if v := c.QueryParam("isActive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, "invalid isActive"
		}
		f.IsActive = &b
	}
	for _, d := range []struct {
		name string
		dst  **time.Time
	}{
		{"startFrom", &f.StartFrom}, {"startTo", &f.StartTo},
		{"renewalFrom", &f.RenewalFrom}, {"renewalTo", &f.RenewalTo},
	} {
		if v := c.QueryParam(d.name); v != "" {
			t, err := parseDate(v)
			if err != nil {
				return f, "invalid " + d.name
			}
			*d.dst = &t
		}
	}
	for _, n := range []struct {
		name string
		dst  **float64
	}{
		{"minPremium", &f.MinPremium}, {"maxPremium", &f.MaxPremium},
		{"minSumAssured", &f.MinSumAssured}, {"maxSumAssured", &f.MaxSumAssured},
	} {
		if v := c.QueryParam(n.name); v != "" {
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return f, "invalid " + n.name
			}
			*n.dst = &x
		}
	}
	if v := c.QueryParam("renewalMonth"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return f, "renewalMonth must be 1-12"
		}
		f.RenewalMonth = m
	}
	if v := c.QueryParam("renewalYear"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1900 {
			return f, "invalid renewalYear"
		}
		f.RenewalYear = y
	}
	if v := c.QueryParam("page"); v != "" {
		f.Page, _ = strconv.Atoi(v)
	}
	if v := c.QueryParam("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	return f, ""
}

// CheckNumber reports whether a policy number is already taken.
func (h *PolicyHandler) CheckNumber(c echo.Context) error {
	number := strings.TrimSpace(c.Param("number"))
	if number == "" {
		return fail(c, http.StatusBadRequest, "policy number is required")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	exists, err := h.Policies.NumberExists(ctx, number, 0)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "", echo.Map{"exists": exists})
}

// RenewalMonth lists the caller's policies whose renewal falls in the
// given month of this or next year.
func (h *PolicyHandler) RenewalMonth(c echo.Context) error {
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil || month < 1 || month > 12 {
		return fail(c, http.StatusBadRequest, "month must be 1-12")
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
	policies, err := h.Policies.RenewingInMonth(ctx, ag.ID, month)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "", viewPoliciesWithCustomer(policies))
}
