package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/syncbridge/syncbridge/pkg/errcodes"
)

// ContextKeyService is the echo context key holding the authenticated
// caller's service name.
const ContextKeyService = "service"

// Middleware provides bearer-token authentication.
type Middleware struct {
	authService *Service
}

func NewMiddleware(authService *Service) *Middleware {
	return &Middleware{
		authService: authService,
	}
}

// Authenticate validates the Authorization bearer token and stores the
// calling service's name on the context. Missing or invalid tokens get 401.
func (m *Middleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		if header == "" {
			return errcodes.Unauthorized("Authentication required")
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return errcodes.Unauthorized("Authentication required")
		}

		claims, err := m.authService.ValidateToken(token)
		if err != nil {
			return errcodes.Unauthorized("Invalid or expired token")
		}

		c.Set(ContextKeyService, claims.Service)

		return next(c)
	}
}

// ServiceFromContext retrieves the authenticated service name.
func ServiceFromContext(c echo.Context) (string, bool) {
	service, ok := c.Get(ContextKeyService).(string)
	return service, ok
}
