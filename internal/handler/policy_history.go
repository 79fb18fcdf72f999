package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/insuratrack/insuratrack/internal/repository"
)

// History returns a policy's renewal snapshots, newest first.
func (h *PolicyHandler) History(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	p, status, msg := h.viewerPolicy(ctx, c)
	if status != 0 {
		return fail(c, status, msg)
	}
	entries, err := h.Histories.ListByPolicy(ctx, p.ID)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "", viewHistories(entries))
}

// Historical searches the caller's history snapshots across all their
// policies.
func (h *PolicyHandler) Historical(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	ag, err := h.Agents.GetByUserID(ctx, authUserID(c))
	if errors.Is(err, sql.ErrNoRows) {
		return profileNotFound(c)
	}
	if err != nil {
		return serverError(c)
	}

	f, ferr := historyFilterFromQuery(c)
	if ferr != "" {
		return fail(c, http.StatusBadRequest, ferr)
	}
	f.AgentID = ag.ID

	entries, err := h.Histories.Search(ctx, f)
	if err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "", viewHistories(entries))
}

func historyFilterFromQuery(c echo.Context) (repository.HistoryFilter, string) {
	f := repository.HistoryFilter{
		ChangeType:   strings.TrimSpace(c.QueryParam("changeType")),
		CompanyName:  strings.TrimSpace(c.QueryParam("companyName")),
		Search:       strings.TrimSpace(c.QueryParam("search")),
		PolicyNumber: strings.TrimSpace(c.QueryParam("policyNumber")),
		SortBy:       c.QueryParam("sortBy"),
		SortOrder:    c.QueryParam("sortOrder"),
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
	return f, ""
}

// DeleteHistorical removes one snapshot owned by the caller. The live
// policy is untouched.
func (h *PolicyHandler) DeleteHistorical(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid history id")
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

	entry, err := h.Histories.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fail(c, http.StatusNotFound, "history record not found")
	}
	if err != nil {
		return serverError(c)
	}
	if entry.AgentID != ag.ID {
		return fail(c, http.StatusForbidden, "history record is not yours")
	}

	if err := h.Histories.Delete(ctx, id); err != nil {
		return serverError(c)
	}
	return respond(c, http.StatusOK, "history record deleted", nil)
}
