package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyFilter_WhereClause_Empty(t *testing.T) {
	where, args := PolicyFilter{}.whereClause("")
	assert.Equal(t, "1=1", where)
	assert.Empty(t, args)
}

func TestPolicyFilter_WhereClause_AllCriteria(t *testing.T) {
	active := true
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	minP, maxP := 100.0, 500.0
	minS, maxS := 10000.0, 50000.0

	f := PolicyFilter{
		AgentID:       7,
		CompanyName:   "LIC",
		PolicyNumber:  "POL-1",
		IsActive:      &active,
		StartFrom:     &from,
		StartTo:       &to,
		RenewalFrom:   &from,
		RenewalTo:     &to,
		RenewalMonth:  6,
		RenewalYear:   2025,
		MinPremium:    &minP,
		MaxPremium:    &maxP,
		MinSumAssured: &minS,
		MaxSumAssured: &maxS,
	}
	where, args := f.whereClause("")

	assert.Contains(t, where, "agent_id = ?")
	assert.Contains(t, where, "company_name = ?")
	assert.Contains(t, where, "policy_number LIKE ?")
	assert.Contains(t, where, "is_active = ?")
	assert.Contains(t, where, "MONTH(renewal_date) = ?")
	assert.Contains(t, where, "YEAR(renewal_date) = ?")
	assert.Contains(t, where, "sum_assured >= ?")
	assert.Len(t, args, 14)
	assert.Equal(t, uint64(7), args[0])
	assert.Equal(t, "%POL-1%", args[2])
}

func TestPolicyFilter_WhereClause_Prefix(t *testing.T) {
	f := PolicyFilter{AgentID: 3, RenewalMonth: 2}
	where, _ := f.whereClause("p.")

	assert.Contains(t, where, "p.agent_id = ?")
	assert.Contains(t, where, "MONTH(p.renewal_date) = ?")
}

func TestPolicyFilter_OrderClause(t *testing.T) {
	assert.Equal(t, "created_at DESC", PolicyFilter{}.orderClause())
	assert.Equal(t, "created_at DESC", PolicyFilter{SortBy: "evil; DROP TABLE"}.orderClause())
	assert.Equal(t, "premium ASC", PolicyFilter{SortBy: "premium"}.orderClause())
	assert.Equal(t, "renewal_date DESC", PolicyFilter{SortBy: "renewalDate", SortOrder: "DESC"}.orderClause())
	assert.Equal(t, "policy_number ASC", PolicyFilter{SortBy: "policyNumber", SortOrder: "sideways"}.orderClause())
}

func TestPolicyFilter_LimitOffset(t *testing.T) {
	limit, offset := PolicyFilter{}.limitOffset()
	assert.Equal(t, 10, limit)
	assert.Equal(t, 0, offset)

	limit, offset = PolicyFilter{Page: 3, Limit: 20}.limitOffset()
	assert.Equal(t, 20, limit)
	assert.Equal(t, 40, offset)

	limit, offset = PolicyFilter{Page: -1, Limit: -5}.limitOffset()
	assert.Equal(t, 10, limit)
	assert.Equal(t, 0, offset)
}

func TestHistoryFilter_WhereClause(t *testing.T) {
	where, args := HistoryFilter{}.whereClause()
	assert.Equal(t, "1=1", where)
	assert.Empty(t, args)

	f := HistoryFilter{AgentID: 5, ChangeType: "renewal", Search: "STAR"}
	where, args = f.whereClause()
	assert.Contains(t, where, "h.agent_id = ?")
	assert.Contains(t, where, "h.change_type = ?")
	assert.Contains(t, where, "h.policy_number LIKE ? OR h.title LIKE ? OR h.company_name LIKE ?")
	assert.Len(t, args, 5)
}

func TestHistoryFilter_SearchOverridesPolicyNumber(t *testing.T) {
	f := HistoryFilter{Search: "abc", PolicyNumber: "POL"}
	where, args := f.whereClause()
	assert.Contains(t, where, "(h.policy_number LIKE ? OR h.title LIKE ? OR h.company_name LIKE ?)")
	assert.Equal(t, []interface{}{"%abc%", "%abc%", "%abc%"}, args)

	f = HistoryFilter{PolicyNumber: "POL"}
	where, args = f.whereClause()
	assert.Equal(t, "h.policy_number LIKE ?", where)
	assert.Equal(t, []interface{}{"%POL%"}, args)
}

func TestHistoryFilter_OrderClause(t *testing.T) {
	assert.Equal(t, "h.created_at DESC", HistoryFilter{}.orderClause())
	assert.Equal(t, "h.premium DESC", HistoryFilter{SortBy: "premium", SortOrder: "desc"}.orderClause())
}
