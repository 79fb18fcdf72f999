package repository

import (
	"strings"
	"time"
)

// PolicyFilter carries the optional criteria of GET /api/policies/filter.
// Zero values mean "not filtered". AgentID is always set by the handler
// from the caller's own profile, never from the request.
type PolicyFilter struct {
	AgentID       uint64
	CompanyName   string
	PolicyNumber  string // substring match
	IsActive      *bool
	StartFrom     *time.Time
	StartTo       *time.Time
	RenewalFrom   *time.Time
	RenewalTo     *time.Time
	RenewalMonth  int // 1..12, 0 = unset
	RenewalYear   int // >= 1900, 0 = unset
	MinPremium    *float64
	MaxPremium    *float64
	MinSumAssured *float64
	MaxSumAssured *float64
	SortBy        string
	SortOrder     string // "asc" or "desc"
	Page          int
	Limit         int
}

// policySortCols whitelists sortable columns so user input never reaches
// the ORDER BY clause directly.
var policySortCols = map[string]string{
	"title":        "title",
	"policyNumber": "policy_number",
	"companyName":  "company_name",
	"premium":      "premium",
	"sumAssured":   "sum_assured",
	"startDate":    "start_date",
	"renewalDate":  "renewal_date",
	"createdAt":    "created_at",
}

// whereClause renders the filter into a WHERE fragment (without the
// leading keyword) and its arguments. prefix qualifies column names when
// the query joins other tables (e.g. "p."). An empty filter yields "1=1"
// so the caller can always append the fragment.
func (f PolicyFilter) whereClause(prefix string) (string, []interface{}) {
	conds := []string{}
	args := []interface{}{}
	add := func(cond string, v interface{}) {
		conds = append(conds, cond)
		args = append(args, v)
	}

	if f.AgentID != 0 {
		add(prefix+"agent_id = ?", f.AgentID)
	}
	if f.CompanyName != "" {
		add(prefix+"company_name = ?", f.CompanyName)
	}
	if f.PolicyNumber != "" {
		add(prefix+"policy_number LIKE ?", "%"+f.PolicyNumber+"%")
	}
	if f.IsActive != nil {
		add(prefix+"is_active = ?", *f.IsActive)
	}
	if f.StartFrom != nil {
		add(prefix+"start_date >= ?", f.StartFrom.UTC())
	}
	if f.StartTo != nil {
		add(prefix+"start_date <= ?", f.StartTo.UTC())
	}
	if f.RenewalFrom != nil {
		add(prefix+"renewal_date >= ?", f.RenewalFrom.UTC())
	}
	if f.RenewalTo != nil {
		add(prefix+"renewal_date <= ?", f.RenewalTo.UTC())
	}
	if f.RenewalMonth >= 1 && f.RenewalMonth <= 12 {
		add("MONTH("+prefix+"renewal_date) = ?", f.RenewalMonth)
	}
	if f.RenewalYear >= 1900 {
		add("YEAR("+prefix+"renewal_date) = ?", f.RenewalYear)
	}
	if f.MinPremium != nil {
		add(prefix+"premium >= ?", *f.MinPremium)
	}
	if f.MaxPremium != nil {
		add(prefix+"premium <= ?", *f.MaxPremium)
	}
	if f.MinSumAssured != nil {
		add(prefix+"sum_assured >= ?", *f.MinSumAssured)
	}
	if f.MaxSumAssured != nil {
		add(prefix+"sum_assured <= ?", *f.MaxSumAssured)
	}
	if len(conds) == 0 {
		return "1=1", args
	}
	return strings.Join(conds, " AND "), args
}

// orderClause renders the ORDER BY column and direction. Unknown sort keys
// fall back to newest-first creation order.
func (f PolicyFilter) orderClause() string {
	col, ok := policySortCols[f.SortBy]
	if !ok {
		return "created_at DESC"
	}
	dir := "ASC"
	if strings.EqualFold(f.SortOrder, "desc") {
		dir = "DESC"
	}
	return col + " " + dir
}

// limitOffset normalizes pagination; page and limit default to 1 and 10.
func (f PolicyFilter) limitOffset() (limit, offset int) {
	limit = f.Limit
	if limit <= 0 {
		limit = 10
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}
