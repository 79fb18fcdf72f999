package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insuratrack/insuratrack/internal/utils"
)

func runJWT(t *testing.T, secret, header string) (*httptest.ResponseRecorder, echo.Context, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	next := func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	}
	require.NoError(t, JWTAuth(secret)(next)(c))
	return rec, c, called
}

func TestJWTAuth_ValidToken(t *testing.T) {
	tok, err := utils.NewAccessToken("secret", 42, "agent", 1)
	require.NoError(t, err)

	rec, c, called := runJWT(t, "secret", "Bearer "+tok.Token)
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(42), c.Get("user_id"))
	assert.Equal(t, "agent", c.Get("role"))
}

func TestJWTAuth_MissingHeader(t *testing.T) {
	rec, _, called := runJWT(t, "secret", "")
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTAuth_WrongSecret(t *testing.T) {
	tok, err := utils.NewAccessToken("other-secret", 42, "agent", 1)
	require.NoError(t, err)

	rec, _, called := runJWT(t, "secret", "Bearer "+tok.Token)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTAuth_Garbage(t *testing.T) {
	rec, _, called := runJWT(t, "secret", "Bearer not.a.jwt")
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
