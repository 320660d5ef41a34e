package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncbridge/syncbridge/pkg/errcodes"
)

func newAuthContext(t *testing.T, authorization string) echo.Context {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/synchronizations", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func okHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func TestAuthenticateAcceptsValidBearerToken(t *testing.T) {
	t.Parallel()

	svc := NewService("test-secret")
	m := NewMiddleware(svc)

	token, err := svc.GenerateToken("scheduler")
	require.NoError(t, err)

	c := newAuthContext(t, "Bearer "+token)
	require.NoError(t, m.Authenticate(okHandler)(c))

	service, ok := ServiceFromContext(c)
	require.True(t, ok)
	assert.Equal(t, "scheduler", service)
}

func TestAuthenticateRejectsMissingHeader(t *testing.T) {
	t.Parallel()

	m := NewMiddleware(NewService("test-secret"))

	err := m.Authenticate(okHandler)(newAuthContext(t, ""))
	assert.ErrorIs(t, err, errcodes.Unauthorized("Authentication required"))
}

func TestAuthenticateRejectsNonBearerScheme(t *testing.T) {
	t.Parallel()

	m := NewMiddleware(NewService("test-secret"))

	err := m.Authenticate(okHandler)(newAuthContext(t, "Basic dXNlcjpwYXNz"))
	assert.ErrorIs(t, err, errcodes.Unauthorized("Authentication required"))
}

func TestAuthenticateRejectsTokenSignedWithWrongSecret(t *testing.T) {
	t.Parallel()

	other := NewService("other-secret")
	token, err := other.GenerateToken("scheduler")
	require.NoError(t, err)

	m := NewMiddleware(NewService("test-secret"))

	authErr := m.Authenticate(okHandler)(newAuthContext(t, "Bearer "+token))
	assert.ErrorIs(t, authErr, errcodes.Unauthorized("Invalid or expired token"))
}

func TestValidateTokenRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	svc := NewService("test-secret")

	now := time.Now().Add(-2 * TokenExpiry)
	claims := Claims{
		Service: "scheduler",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "scheduler",
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestGenerateAndValidateRoundTrip(t *testing.T) {
	t.Parallel()

	svc := NewService("test-secret")
	token, err := svc.GenerateToken("webhook-gateway")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "webhook-gateway", claims.Service)
	assert.Equal(t, "webhook-gateway", claims.Subject)
}
