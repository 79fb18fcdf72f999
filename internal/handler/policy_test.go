package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insuratrack/insuratrack/internal/queue"
	"github.com/insuratrack/insuratrack/internal/repository"
)

var policyTestCols = []string{
	"id", "title", "description", "policy_number", "mobile_no", "sum_assured",
	"company_name", "premium", "start_date", "renewal_date", "customer_id",
	"agent_id", "is_active", "last_renewal_date", "document_name",
	"document_type", "document_uploaded_at", "created_at", "updated_at",
}

func policyRow(id, customerID, agentID uint64, renewal time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(policyTestCols).AddRow(
		id, "Term Life", "", "POL-9", "5550001", 100000.0,
		"LIC", 1200.0, renewal.AddDate(-1, 0, 0), renewal, customerID,
		agentID, true, nil, nil, nil, nil, testTime(), testTime())
}

func agentProfileRow(id, userID uint64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "created_at"}).AddRow(id, userID, testTime())
}

func newPolicyHandler(t *testing.T) (*PolicyHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPolicyHandler(repository.NewPolicyRepo(db), repository.NewAgentRepo(db),
		repository.NewCustomerRepo(db), repository.NewHistoryRepo(db), nil, zerolog.Nop()), mock
}

func TestCreatePolicy_Validation(t *testing.T) {
	h, _ := newPolicyHandler(t)
	e := echo.New()

	cases := []struct {
		name string
		body string
	}{
		{"missing required", `{"title":"only a title"}`},
		{"bad company", `{"title":"t","policyNumber":"P1","customerId":3,"companyName":"ACME","startDate":"2026-01-01","renewalDate":"2027-01-01"}`},
		{"bad dates", `{"title":"t","policyNumber":"P1","customerId":3,"startDate":"not-a-date","renewalDate":"2027-01-01"}`},
		{"renewal before start", `{"title":"t","policyNumber":"P1","customerId":3,"startDate":"2027-01-01","renewalDate":"2026-01-01"}`},
		{"negative premium", `{"title":"t","policyNumber":"P1","customerId":3,"premium":-5,"startDate":"2026-01-01","renewalDate":"2027-01-01"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, rec := jsonRequest(http.MethodPost, "/api/policies", tc.body)
			c := e.NewContext(req, rec)
			c.Set("user_id", uint64(77))
			c.Set("role", "agent")
			require.NoError(t, h.Create(c))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRenewPolicy_RejectsPastDate(t *testing.T) {
	h, _ := newPolicyHandler(t)
	e := echo.New()

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	req, rec := jsonRequest(http.MethodPost, "/api/policies/9/renew",
		`{"renewalDate":"`+yesterday+`"}`)
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(77))
	c.Set("role", "agent")
	c.SetParamNames("id")
	c.SetParamValues("9")

	require.NoError(t, h.Renew(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRenewPolicy_RejectsNegativePremium(t *testing.T) {
	h, _ := newPolicyHandler(t)
	e := echo.New()

	next := time.Now().UTC().AddDate(1, 0, 0).Format("2006-01-02")
	req, rec := jsonRequest(http.MethodPost, "/api/policies/9/renew",
		`{"renewalDate":"`+next+`","premium":-10}`)
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(77))
	c.Set("role", "agent")
	c.SetParamNames("id")
	c.SetParamValues("9")

	require.NoError(t, h.Renew(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckNumber(t *testing.T) {
	h, mock := newPolicyHandler(t)
	e := echo.New()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("POL-7", uint64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(true))

	req, rec := jsonRequest(http.MethodGet, "/api/policies/check-policy-number/POL-7", "")
	c := e.NewContext(req, rec)
	c.SetParamNames("number")
	c.SetParamValues("POL-7")

	require.NoError(t, h.CheckNumber(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	data := envelope(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, true, data["exists"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRenewalMonth_RejectsBadMonth(t *testing.T) {
	h, _ := newPolicyHandler(t)
	e := echo.New()

	for _, month := range []string{"0", "13", "abc"} {
		req, rec := jsonRequest(http.MethodGet, "/api/policies/renewal-month/"+month, "")
		c := e.NewContext(req, rec)
		c.Set("user_id", uint64(77))
		c.Set("role", "agent")
		c.SetParamNames("month")
		c.SetParamValues(month)

		require.NoError(t, h.RenewalMonth(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestPolicyGet_NotFound(t *testing.T) {
	h, mock := newPolicyHandler(t)
	e := echo.New()

	mock.ExpectQuery("FROM policies WHERE id=\\?").
		WithArgs(uint64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	req, rec := jsonRequest(http.MethodGet, "/api/policies/404", "")
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(77))
	c.Set("role", "agent")
	c.SetParamNames("id")
	c.SetParamValues("404")

	require.NoError(t, h.Get(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPolicyGet_ForeignAgentDenied(t *testing.T) {
	h, mock := newPolicyHandler(t)
	e := echo.New()

	renewal := testTime().AddDate(1, 0, 0)
	mock.ExpectQuery("FROM policies WHERE id=\\?").
		WithArgs(uint64(9)).
		WillReturnRows(policyRow(9, 3, 5, renewal))
	mock.ExpectQuery("FROM agents WHERE user_id=\\?").
		WithArgs(uint64(77)).
		WillReturnRows(agentProfileRow(2, 77))

	req, rec := jsonRequest(http.MethodGet, "/api/policies/9", "")
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(77))
	c.Set("role", "agent")
	c.SetParamNames("id")
	c.SetParamValues("9")

	require.NoError(t, h.Get(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "policy is not managed by you", envelope(t, rec)["message"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadDocument_RejectsNonPDF(t *testing.T) {
	h, mock := newPolicyHandler(t)
	e := echo.New()

	mock.ExpectQuery("FROM agents WHERE user_id=\\?").
		WithArgs(uint64(77)).
		WillReturnRows(agentProfileRow(2, 77))
	mock.ExpectQuery("FROM policies WHERE id=\\?").
		WithArgs(uint64(9)).
		WillReturnRows(policyRow(9, 3, 2, testTime().AddDate(1, 0, 0)))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("document", "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("not a pdf"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/policies/9/document", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(77))
	c.Set("role", "agent")
	c.SetParamNames("id")
	c.SetParamValues("9")

	require.NoError(t, h.UploadDocument(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "only PDF documents are accepted", envelope(t, rec)["message"])
	// No further SQL was expected: nothing may be written for a rejected file.
	assert.NoError(t, mock.ExpectationsWereMet())
}

type renewalRecorder struct {
	events []queue.PolicyRenewedEvent
}

func (r *renewalRecorder) PolicyRenewed(_ context.Context, ev queue.PolicyRenewedEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func TestRenewPolicy_PublishesOneEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pub := &renewalRecorder{}
	h := NewPolicyHandler(repository.NewPolicyRepo(db), repository.NewAgentRepo(db),
		repository.NewCustomerRepo(db), repository.NewHistoryRepo(db), pub, zerolog.Nop())
	e := echo.New()

	oldRenewal := time.Now().UTC().AddDate(0, 1, 0).Truncate(24 * time.Hour)
	newRenewal := oldRenewal.AddDate(1, 0, 0).Format("2006-01-02")

	mock.ExpectQuery("FROM agents WHERE user_id=\\?").
		WithArgs(uint64(77)).
		WillReturnRows(agentProfileRow(2, 77))
	mock.ExpectQuery("FROM policies WHERE id=\\? LIMIT 1").
		WithArgs(uint64(9)).
		WillReturnRows(policyRow(9, 3, 2, oldRenewal))
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(uint64(9)).
		WillReturnRows(policyRow(9, 3, 2, oldRenewal))
	mock.ExpectExec("INSERT INTO policy_history").
		WillReturnResult(sqlmock.NewResult(12, 1))
	mock.ExpectExec("UPDATE policies SET start_date=\\?, renewal_date=\\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	req, rec := jsonRequest(http.MethodPost, "/api/policies/9/renew",
		`{"renewalDate":"`+newRenewal+`"}`)
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(77))
	c.Set("role", "agent")
	c.SetParamNames("id")
	c.SetParamValues("9")

	require.NoError(t, h.Renew(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, uint64(9), ev.PolicyID)
	assert.Equal(t, "POL-9", ev.PolicyNumber)
	assert.Equal(t, oldRenewal.Format("2006-01-02"), ev.OldRenewalDate)
	assert.Equal(t, newRenewal, ev.NewRenewalDate)
	assert.Equal(t, uint64(77), ev.RenewedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyHistory_ListsSnapshots(t *testing.T) {
	h, mock := newPolicyHandler(t)
	e := echo.New()

	renewal := testTime().AddDate(1, 0, 0)
	mock.ExpectQuery("FROM policies WHERE id=\\?").
		WithArgs(uint64(9)).
		WillReturnRows(policyRow(9, 3, 2, renewal))
	mock.ExpectQuery("FROM agents WHERE user_id=\\?").
		WithArgs(uint64(77)).
		WillReturnRows(agentProfileRow(2, 77))

	histCols := []string{"id", "policy_id", "title", "description", "premium",
		"start_date", "renewal_date", "customer_id", "agent_id", "policy_number",
		"mobile_no", "sum_assured", "company_name", "change_type", "changed_by",
		"notes", "created_at", "name", "role"}
	mock.ExpectQuery("FROM policy_history h").
		WithArgs(uint64(9)).
		WillReturnRows(sqlmock.NewRows(histCols).
			AddRow(21, 9, "Term Life", "", 1200.0, testTime(), renewal, 3, 2,
				"POL-9", "5550001", 100000.0, "LIC", "renewal", 77,
				"Policy renewed on 2026-01-15", testTime(), "Avery Agent", "agent").
			AddRow(14, 9, "Term Life", "", 1100.0, testTime().AddDate(-1, 0, 0), testTime(), 3, 2,
				"POL-9", "5550001", 100000.0, "LIC", "renewal", 77,
				"Policy renewed on 2025-01-15", testTime().AddDate(-1, 0, 0), "Avery Agent", "agent"))

	req, rec := jsonRequest(http.MethodGet, "/api/policies/9/history", "")
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(77))
	c.Set("role", "agent")
	c.SetParamNames("id")
	c.SetParamValues("9")

	require.NoError(t, h.History(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	data := envelope(t, rec)["data"].([]interface{})
	require.Len(t, data, 2)
	first := data[0].(map[string]interface{})
	assert.Equal(t, "renewal", first["changeType"])
	changedBy := first["changedBy"].(map[string]interface{})
	assert.Equal(t, "Avery Agent", changedBy["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
