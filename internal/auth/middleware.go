package auth

import (
	"errors"

	apperrors "studio-store/pkg/errors"

	"github.com/labstack/echo/v4"
)

type Middleware struct {
	gate *Gate
}

func NewMiddleware(gate *Gate) *Middleware {
	return &Middleware{gate: gate}
}

// Resolve attaches the request principal to the echo context. It never rejects
// anonymous requests; handlers and RequireUser/RequireAdmin decide that. An
// expired identity continues as anonymous so public reads and logout still work;
// RequireUser reports the expiry.
func (m *Middleware) Resolve() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sessionID := ""
			if cookie, err := c.Cookie(CookieSession); err == nil {
				sessionID = cookie.Value
			}

			principal, err := m.gate.Resolve(c.Request().Context(), c.Request().Header.Get(HeaderAdminPass), sessionID)
			switch {
			case errors.Is(err, apperrors.ErrIdentityExpired):
				c.Set(ContextKeyIdentityError, err)
				principal = Anonymous()
			case err != nil:
				return err
			}

			c.Set(ContextKeyPrincipal, principal)
			return next(c)
		}
	}
}

func (m *Middleware) RequireUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if GetPrincipal(c).IsAnonymous() {
				if err, ok := c.Get(ContextKeyIdentityError).(error); ok {
					return err
				}
				return apperrors.Unauthorized(msgUserNotAuthenticated)
			}
			return next(c)
		}
	}
}

func (m *Middleware) RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !GetPrincipal(c).IsAdmin() {
				return apperrors.Unauthorized(msgAdminRequired)
			}
			return next(c)
		}
	}
}

// GetPrincipal returns the principal stored by Resolve, or the anonymous
// principal when none was stored.
func GetPrincipal(c echo.Context) Principal {
	principal, ok := c.Get(ContextKeyPrincipal).(Principal)
	if !ok {
		return Anonymous()
	}
	return principal
}

// NotOwner is the error returned when a principal may not touch a resource.
func NotOwner() error {
	return apperrors.Unauthorized(msgNotOwner)
}
