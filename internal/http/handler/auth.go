package handler

import (
	"net/http"
	"time"

	"studio-store/internal/auth"
	"studio-store/internal/domain/user"

	"github.com/labstack/echo/v4"
)

type AuthHandler struct {
	sessions     SessionManager
	cookieSecure bool
}

func NewAuthHandler(sessions SessionManager, cookieSecure bool) *AuthHandler {
	return &AuthHandler{sessions: sessions, cookieSecure: cookieSecure}
}

// CreateSessionRequest is the verified identity handed over by the login
// broker once the external provider has accepted the user.
type CreateSessionRequest struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type MeResponse struct {
	Kind    string        `json:"kind"`
	UserID  string        `json:"userId,omitempty"`
	IsAdmin bool          `json:"isAdmin"`
	User    *user.Profile `json:"user,omitempty"`
}

// CreateSession records the login and sets the session cookie. The route is
// restricted to administrators, which is how the login broker authenticates.
func (h *AuthHandler) CreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := bindStrictJSON(c, &req); err != nil {
		return err
	}

	profile, sess, err := h.sessions.Authenticate(c.Request().Context(), user.Identity{
		ID:      req.ID,
		Email:   req.Email,
		Name:    req.Name,
		Picture: req.Picture,
	})
	if err != nil {
		return err
	}

	c.SetCookie(h.sessionCookie(sess.ID, sess.ExpiresAt))
	return c.JSON(http.StatusOK, profile)
}

func (h *AuthHandler) Me(c echo.Context) error {
	principal := auth.GetPrincipal(c)
	return c.JSON(http.StatusOK, MeResponse{
		Kind:    principal.Kind.String(),
		UserID:  principal.UserID,
		IsAdmin: principal.IsAdmin(),
		User:    principal.Profile,
	})
}

func (h *AuthHandler) Logout(c echo.Context) error {
	if cookie, err := c.Cookie(auth.CookieSession); err == nil && cookie.Value != "" {
		if err := h.sessions.DestroySession(c.Request().Context(), cookie.Value); err != nil {
			return err
		}
	}

	c.SetCookie(h.sessionCookie("", time.Unix(0, 0)))
	return respondSuccess(c)
}

func (h *AuthHandler) sessionCookie(value string, expires time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     auth.CookieSession,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		cookie.MaxAge = -1
	}
	return cookie
}
