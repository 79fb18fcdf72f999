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

func newMessageHandler(t *testing.T) (*MessageHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewMessageHandler(repository.NewMessageRepo(db), repository.NewAgentRepo(db),
		repository.NewCustomerRepo(db), repository.NewLinkRepo(db)), mock
}

func TestSendMessage_UnlinkedAgentRejected(t *testing.T) {
	h, mock := newMessageHandler(t)
	e := echo.New()

	mock.ExpectQuery("FROM customers WHERE user_id=\\?").
		WithArgs(uint64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at"}).
			AddRow(uint64(3), uint64(12), testTime()))
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM agent_customers").
		WithArgs(uint64(9), uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"e"}).AddRow(false))

	req, rec := jsonRequest(http.MethodPost, "/api/messages",
		`{"agentId":9,"subject":"hello","body":"are you my agent?"}`)
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(12))
	c.Set("role", "customer")

	require.NoError(t, h.Send(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendMessage_Validation(t *testing.T) {
	h, _ := newMessageHandler(t)
	e := echo.New()

	for _, body := range []string{
		`{}`,
		`{"agentId":9,"subject":"","body":"x"}`,
		`{"agentId":9,"subject":"s","body":"   "}`,
	} {
		req, rec := jsonRequest(http.MethodPost, "/api/messages", body)
		c := e.NewContext(req, rec)
		c.Set("user_id", uint64(12))
		c.Set("role", "customer")

		require.NoError(t, h.Send(c))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestReply_ToReplyRejected(t *testing.T) {
	h, mock := newMessageHandler(t)
	e := echo.New()

	mock.ExpectQuery("FROM agents WHERE user_id=\\?").
		WithArgs(uint64(77)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at"}).
			AddRow(uint64(2), uint64(77), testTime()))
	mock.ExpectQuery("SELECT id,customer_id,agent_id").
		WithArgs(uint64(11)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "customer_id", "agent_id", "subject", "body", "is_read",
			"read_at", "reply_to", "sender_role", "created_at", "updated_at",
		}).AddRow(uint64(11), uint64(3), uint64(2), "Re: hello", "prev reply", false,
			nil, uint64(7), "agent", testTime(), testTime()))

	req, rec := jsonRequest(http.MethodPost, "/api/messages/reply/11", `{"body":"again"}`)
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(77))
	c.Set("role", "agent")
	c.SetParamNames("id")
	c.SetParamValues("11")

	require.NoError(t, h.Reply(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRead_WrongRecipient(t *testing.T) {
	h, mock := newMessageHandler(t)
	e := echo.New()

	mock.ExpectQuery("SELECT id,customer_id,agent_id").
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "customer_id", "agent_id", "subject", "body", "is_read",
			"read_at", "reply_to", "sender_role", "created_at", "updated_at",
		}).AddRow(uint64(7), uint64(3), uint64(2), "hello", "hi", false,
			nil, nil, "customer", testTime(), testTime()))
	mock.ExpectQuery("FROM agents WHERE user_id=\\?").
		WithArgs(uint64(500)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at"}).
			AddRow(uint64(40), uint64(500), testTime()))

	req, rec := jsonRequest(http.MethodPut, "/api/messages/7/read", "")
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(500))
	c.Set("role", "agent")
	c.SetParamNames("id")
	c.SetParamValues("7")

	require.NoError(t, h.MarkRead(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
