package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/insuratrack/insuratrack/internal/model"
	"github.com/insuratrack/insuratrack/internal/repository"
)

// dbTimeout bounds every handler-initiated database call.
const dbTimeout = 5 * time.Second

func dbCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// Every JSON response uses the same envelope: success plus an optional
// message and data payload.

func respond(c echo.Context, status int, message string, data interface{}) error {
	body := echo.Map{"success": status < 400}
	if message != "" {
		body["message"] = message
	}
	if data != nil {
		body["data"] = data
	}
	return c.JSON(status, body)
}

func fail(c echo.Context, status int, message string) error {
	return respond(c, status, message, nil)
}

func serverError(c echo.Context) error {
	return fail(c, http.StatusInternalServerError, "internal server error")
}

func profileNotFound(c echo.Context) error {
	return fail(c, http.StatusNotFound, "profile not found")
}

// authUserID returns the user id stored by the JWT middleware.
func authUserID(c echo.Context) uint64 {
	id, _ := c.Get("user_id").(uint64)
	return id
}

func pathID(c echo.Context, name string) (uint64, error) {
	return strconv.ParseUint(c.Param(name), 10, 64)
}

// ----- view DTOs -----
//
// Models carry no JSON tags; the wire shapes are defined here so the
// storage layer can change without changing the API.

type userView struct {
	ID        uint64    `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func viewUser(u model.User) userView {
	return userView{
		ID: u.ID, Username: u.Username, Name: u.Name, Email: u.Email,
		Role: u.Role, Phone: u.Phone, CreatedAt: u.CreatedAt,
	}
}

type policyView struct {
	ID               uint64     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	PolicyNumber     string     `json:"policyNumber"`
	MobileNo         string     `json:"mobileNo,omitempty"`
	SumAssured       float64    `json:"sumAssured"`
	CompanyName      string     `json:"companyName"`
	Premium          float64    `json:"premium"`
	StartDate        time.Time  `json:"startDate"`
	RenewalDate      time.Time  `json:"renewalDate"`
	CustomerID       uint64     `json:"customerId"`
	AgentID          uint64     `json:"agentId"`
	IsActive         bool       `json:"isActive"`
	LastRenewalDate  *time.Time `json:"lastRenewalDate,omitempty"`
	HasDocument      bool       `json:"hasDocument"`
	DocumentName     *string    `json:"documentName,omitempty"`
	DocumentUploaded *time.Time `json:"documentUploadedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func viewPolicy(p model.Policy) policyView {
	return policyView{
		ID: p.ID, Title: p.Title, Description: p.Description,
		PolicyNumber: p.PolicyNumber, MobileNo: p.MobileNo,
		SumAssured: p.SumAssured, CompanyName: p.CompanyName,
		Premium: p.Premium, StartDate: p.StartDate, RenewalDate: p.RenewalDate,
		CustomerID: p.CustomerID, AgentID: p.AgentID, IsActive: p.IsActive,
		LastRenewalDate: p.LastRenewalDate, HasDocument: p.HasDocument(),
		DocumentName: p.DocumentName, DocumentUploaded: p.DocumentUploaded,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

type policyCustomerView struct {
	policyView
	CustomerName     string `json:"customerName"`
	CustomerEmail    string `json:"customerEmail"`
	CustomerUsername string `json:"customerUsername"`
}

func viewPolicyWithCustomer(p repository.PolicyWithCustomer) policyCustomerView {
	return policyCustomerView{
		policyView:       viewPolicy(p.Policy),
		CustomerName:     p.CustomerName,
		CustomerEmail:    p.CustomerEmail,
		CustomerUsername: p.CustomerUsername,
	}
}

func viewPoliciesWithCustomer(ps []repository.PolicyWithCustomer) []policyCustomerView {
	out := make([]policyCustomerView, 0, len(ps))
	for _, p := range ps {
		out = append(out, viewPolicyWithCustomer(p))
	}
	return out
}

type policyAgentView struct {
	policyView
	AgentName string `json:"agentName"`
}

func viewPoliciesWithAgent(ps []repository.PolicyWithAgent) []policyAgentView {
	out := make([]policyAgentView, 0, len(ps))
	for _, p := range ps {
		out = append(out, policyAgentView{policyView: viewPolicy(p.Policy), AgentName: p.AgentName})
	}
	return out
}

type changedByView struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type historyView struct {
	ID           uint64        `json:"id"`
	PolicyID     uint64        `json:"policyId"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	Premium      float64       `json:"premium"`
	StartDate    time.Time     `json:"startDate"`
	RenewalDate  time.Time     `json:"renewalDate"`
	CustomerID   uint64        `json:"customerId"`
	AgentID      uint64        `json:"agentId"`
	PolicyNumber string        `json:"policyNumber"`
	MobileNo     string        `json:"mobileNo,omitempty"`
	SumAssured   float64       `json:"sumAssured"`
	CompanyName  string        `json:"companyName"`
	ChangeType   string        `json:"changeType"`
	ChangedBy    changedByView `json:"changedBy"`
	Notes        string        `json:"notes,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

func viewHistory(e repository.HistoryEntry) historyView {
	return historyView{
		ID: e.ID, PolicyID: e.PolicyID, Title: e.Title, Description: e.Description,
		Premium: e.Premium, StartDate: e.StartDate, RenewalDate: e.RenewalDate,
		CustomerID: e.CustomerID, AgentID: e.AgentID, PolicyNumber: e.PolicyNumber,
		MobileNo: e.MobileNo, SumAssured: e.SumAssured, CompanyName: e.CompanyName,
		ChangeType: e.ChangeType,
		ChangedBy:  changedByView{Name: e.ChangedByName, Role: e.ChangedByRole},
		Notes:      e.Notes, CreatedAt: e.CreatedAt,
	}
}

func viewHistories(es []repository.HistoryEntry) []historyView {
	out := make([]historyView, 0, len(es))
	for _, e := range es {
		out = append(out, viewHistory(e))
	}
	return out
}

type messageView struct {
	ID         uint64     `json:"id"`
	CustomerID uint64     `json:"customerId"`
	AgentID    uint64     `json:"agentId"`
	Subject    string     `json:"subject"`
	Body       string     `json:"body"`
	IsRead     bool       `json:"isRead"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	ReplyTo    *uint64    `json:"replyTo,omitempty"`
	SenderRole string     `json:"senderRole"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func viewMessage(m model.Message) messageView {
	return messageView{
		ID: m.ID, CustomerID: m.CustomerID, AgentID: m.AgentID,
		Subject: m.Subject, Body: m.Body, IsRead: m.IsRead, ReadAt: m.ReadAt,
		ReplyTo: m.ReplyTo, SenderRole: m.SenderRole, CreatedAt: m.CreatedAt,
	}
}

func viewMessages(ms []model.Message) []messageView {
	out := make([]messageView, 0, len(ms))
	for _, m := range ms {
		out = append(out, viewMessage(m))
	}
	return out
}

type threadView struct {
	messageView
	Replies []messageView `json:"replies"`
}

func viewThreads(ts []repository.Thread) []threadView {
	out := make([]threadView, 0, len(ts))
	for _, t := range ts {
		out = append(out, threadView{
			messageView: viewMessage(t.Message),
			Replies:     viewMessages(t.Replies),
		})
	}
	return out
}
