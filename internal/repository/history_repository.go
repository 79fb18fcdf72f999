package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/insuratrack/insuratrack/internal/model"
)

// HistoryRepo provides read/delete access to policy_history. Rows are
// append-only: they are written by PolicyRepo.Renew and never updated.
type HistoryRepo struct{ DB *sql.DB }

func NewHistoryRepo(db *sql.DB) *HistoryRepo { return &HistoryRepo{DB: db} }

const historyCols = `h.id,h.policy_id,h.title,h.description,h.premium,h.start_date,h.renewal_date,
	h.customer_id,h.agent_id,h.policy_number,h.mobile_no,h.sum_assured,h.company_name,
	h.change_type,h.changed_by,h.notes,h.created_at`

// HistoryEntry augments a snapshot with the display name and role of the
// user who made the change.
type HistoryEntry struct {
	model.PolicyHistory
	ChangedByName string
	ChangedByRole string
}

func collectHistory(rows *sql.Rows) ([]HistoryEntry, error) {
	out := []HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		err := rows.Scan(&e.ID, &e.PolicyID, &e.Title, &e.Description, &e.Premium,
			&e.StartDate, &e.RenewalDate, &e.CustomerID, &e.AgentID, &e.PolicyNumber,
			&e.MobileNo, &e.SumAssured, &e.CompanyName, &e.ChangeType, &e.ChangedBy,
			&e.Notes, &e.CreatedAt, &e.ChangedByName, &e.ChangedByRole)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListByPolicy returns a policy's snapshots, newest first.
func (r *HistoryRepo) ListByPolicy(ctx context.Context, policyID uint64) ([]HistoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+historyCols+`, u.name, u.role
		 FROM policy_history h
		 JOIN users u ON u.id = h.changed_by
		 WHERE h.policy_id = ?
		 ORDER BY h.created_at DESC`, policyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHistory(rows)
}

// GetByID fetches a single snapshot.
func (r *HistoryRepo) GetByID(ctx context.Context, id uint64) (model.PolicyHistory, error) {
	var e model.PolicyHistory
	err := r.DB.QueryRowContext(ctx,
		`SELECT id,policy_id,title,description,premium,start_date,renewal_date,
		 customer_id,agent_id,policy_number,mobile_no,sum_assured,company_name,
		 change_type,changed_by,notes,created_at
		 FROM policy_history WHERE id=? LIMIT 1`, id).
		Scan(&e.ID, &e.PolicyID, &e.Title, &e.Description, &e.Premium,
			&e.StartDate, &e.RenewalDate, &e.CustomerID, &e.AgentID, &e.PolicyNumber,
			&e.MobileNo, &e.SumAssured, &e.CompanyName, &e.ChangeType, &e.ChangedBy,
			&e.Notes, &e.CreatedAt)
	return e, err
}

// Delete removes one snapshot. The live policy is unaffected.
func (r *HistoryRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM policy_history WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// HistoryFilter carries the optional criteria of GET /api/policies/historical.
type HistoryFilter struct {
	AgentID      uint64
	ChangeType   string
	CompanyName  string
	Search       string // matches policy number, title or company name
	PolicyNumber string
	RenewalMonth int
	RenewalYear  int
	StartFrom    *time.Time
	StartTo      *time.Time
	RenewalFrom  *time.Time
	RenewalTo    *time.Time
	MinPremium   *float64
	MaxPremium   *float64
	SortBy       string
	SortOrder    string
}

var historySortCols = map[string]string{
	"policyNumber": "h.policy_number",
	"companyName":  "h.company_name",
	"premium":      "h.premium",
	"startDate":    "h.start_date",
	"renewalDate":  "h.renewal_date",
	"changeType":   "h.change_type",
	"createdAt":    "h.created_at",
}

func (f HistoryFilter) whereClause() (string, []interface{}) {
	conds := []string{}
	args := []interface{}{}
	add := func(cond string, vs ...interface{}) {
		conds = append(conds, cond)
		args = append(args, vs...)
	}

	if f.AgentID != 0 {
		add("h.agent_id = ?", f.AgentID)
	}
	if f.ChangeType != "" {
		add("h.change_type = ?", f.ChangeType)
	}
	if f.CompanyName != "" {
		add("h.company_name = ?", f.CompanyName)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		add("(h.policy_number LIKE ? OR h.title LIKE ? OR h.company_name LIKE ?)", like, like, like)
	} else if f.PolicyNumber != "" {
		add("h.policy_number LIKE ?", "%"+f.PolicyNumber+"%")
	}
	if f.RenewalMonth >= 1 && f.RenewalMonth <= 12 {
		add("MONTH(h.renewal_date) = ?", f.RenewalMonth)
	}
	if f.RenewalYear >= 1900 {
		add("YEAR(h.renewal_date) = ?", f.RenewalYear)
	}
	if f.StartFrom != nil {
		add("h.start_date >= ?", f.StartFrom.UTC())
	}
	if f.StartTo != nil {
		add("h.start_date <= ?", f.StartTo.UTC())
	}
	if f.RenewalFrom != nil {
		add("h.renewal_date >= ?", f.RenewalFrom.UTC())
	}
	if f.RenewalTo != nil {
		add("h.renewal_date <= ?", f.RenewalTo.UTC())
	}
	if f.MinPremium != nil {
		add("h.premium >= ?", *f.MinPremium)
	}
	if f.MaxPremium != nil {
		add("h.premium <= ?", *f.MaxPremium)
	}
	if len(conds) == 0 {
		return "1=1", args
	}
	return strings.Join(conds, " AND "), args
}

func (f HistoryFilter) orderClause() string {
	col, ok := historySortCols[f.SortBy]
	if !ok {
		return "h.created_at DESC"
	}
	dir := "ASC"
	if strings.EqualFold(f.SortOrder, "desc") {
		dir = "DESC"
	}
	return col + " " + dir
}

// Search returns snapshots matching the filter, scoped to the caller's
// agent when AgentID is set.
func (r *HistoryRepo) Search(ctx context.Context, f HistoryFilter) ([]HistoryEntry, error) {
	where, args := f.whereClause()
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+historyCols+`, u.name, u.role
		 FROM policy_history h
		 JOIN users u ON u.id = h.changed_by
		 WHERE `+where+`
		 ORDER BY `+f.orderClause(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHistory(rows)
}
