package handler

import (
	"net/http"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insuratrack/insuratrack/internal/repository"
)

func newCustomerHandler(t *testing.T) (*CustomerHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewCustomerHandler(testConfig(), db, repository.NewUserRepo(db),
		repository.NewAgentRepo(db), repository.NewCustomerRepo(db),
		repository.NewLinkRepo(db), repository.NewPolicyRepo(db)), mock
}

func TestCreateCustomer_Validation(t *testing.T) {
	h, _ := newCustomerHandler(t)
	e := echo.New()

	cases := []string{
		`{}`,
		`{"username":"rita","name":"Rita","email":"r@x.com"}`,
		`{"username":"rita","name":"Rita","email":"r@x.com","password":"short"}`,
	}
	for _, body := range cases {
		req, rec := jsonRequest(http.MethodPost, "/api/customers", body)
		c := e.NewContext(req, rec)
		c.Set("user_id", uint64(5))
		c.Set("role", "agent")

		require.NoError(t, h.Create(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestCreateCustomer_LinksInSameTransaction(t *testing.T) {
	h, mock := newCustomerHandler(t)
	e := echo.New()

	mock.ExpectQuery("FROM agents WHERE user_id=\\?").
		WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at"}).
			AddRow(uint64(2), uint64(5), testTime()))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM users WHERE username=\\?\\)").
		WithArgs("rita").
		WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(false))
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM users WHERE email=\\?\\)").
		WithArgs("rita@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(false))
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(30, 1))
	mock.ExpectExec("INSERT INTO customers \\(user_id\\)").
		WithArgs(uint64(30)).
		WillReturnResult(sqlmock.NewResult(8, 1))
	mock.ExpectExec("INSERT IGNORE INTO agent_customers").
		WithArgs(uint64(2), uint64(8)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("FROM customers c JOIN users u").
		WithArgs(uint64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "username", "name", "email", "phone"}).
			AddRow(uint64(8), uint64(30), "rita", "Rita", "rita@example.com", ""))

	req, rec := jsonRequest(http.MethodPost, "/api/customers",
		`{"username":"Rita","name":"Rita","email":"RITA@example.com","password":"hunter22"}`)
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(5))
	c.Set("role", "agent")

	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerGet_OtherCustomerDenied(t *testing.T) {
	h, mock := newCustomerHandler(t)
	e := echo.New()

	mock.ExpectQuery("FROM customers WHERE id=\\?").
		WithArgs(uint64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at"}).
			AddRow(uint64(8), uint64(30), testTime()))

	req, rec := jsonRequest(http.MethodGet, "/api/customers/8", "")
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(99))
	c.Set("role", "customer")
	c.SetParamNames("id")
	c.SetParamValues("8")

	require.NoError(t, h.Get(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerGet_UnlinkedAgentDenied(t *testing.T) {
	h, mock := newCustomerHandler(t)
	e := echo.New()

	mock.ExpectQuery("FROM customers WHERE id=\\?").
		WithArgs(uint64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at"}).
			AddRow(uint64(8), uint64(30), testTime()))
	mock.ExpectQuery("FROM agents WHERE user_id=\\?").
		WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at"}).
			AddRow(uint64(2), uint64(5), testTime()))
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM agent_customers").
		WithArgs(uint64(2), uint64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(false))

	req, rec := jsonRequest(http.MethodGet, "/api/customers/8", "")
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(5))
	c.Set("role", "agent")
	c.SetParamNames("id")
	c.SetParamValues("8")

	require.NoError(t, h.Get(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
