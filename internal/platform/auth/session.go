package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// SessionCookieName is the cookie carrying the signed session token. The
// value keeps the historical "Bearer " prefix so existing cookies stay valid.
const SessionCookieName = "access_token"

const bearerPrefix = "Bearer "

// Principal is the authenticated user attached to the request context. It
// carries what layouts and guards need; handlers load the full user row when
// they need more.
type Principal struct {
	ID           int64
	Username     string
	Role         string
	FName        string
	LName        string
	Email        string
	ProfileImage string
	Active       bool
}

// FullName returns the principal's display name.
func (p *Principal) FullName() string {
	return strings.TrimSpace(p.FName + " " + p.LName)
}

// LoadPrincipalFunc resolves a username from a verified session token into
// the current account state.
type LoadPrincipalFunc func(ctx context.Context, username string) (*Principal, error)

const principalKey = "session_user"

// SetSessionCookie writes the session cookie after a successful login.
func SetSessionCookie(c echo.Context, token string, ttl time.Duration) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    bearerPrefix + token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie removes the session cookie on logout.
func ClearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Session returns middleware that resolves the session cookie into a
// Principal. Requests without a valid session continue unauthenticated;
// route groups decide whether that is acceptable via RequireRole. A cookie
// that fails to verify, or whose user no longer exists, is cleared.
func Session(key []byte, load LoadPrincipalFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				return next(c)
			}

			token := strings.TrimPrefix(cookie.Value, bearerPrefix)
			claims, err := ParseSession(key, token)
			if err != nil {
				ClearSessionCookie(c)
				return next(c)
			}

			principal, err := load(c.Request().Context(), claims.Subject)
			if err != nil || principal == nil {
				ClearSessionCookie(c)
				return next(c)
			}

			c.Set(principalKey, principal)
			c.Set("session_username", principal.Username)
			return next(c)
		}
	}
}

// CurrentUser returns the authenticated principal, or nil on anonymous
// requests.
func CurrentUser(c echo.Context) *Principal {
	p, _ := c.Get(principalKey).(*Principal)
	return p
}

// RequireRole returns middleware that restricts a route group to the listed
// roles. The list is literal: admin passes only where "admin" is named, which
// keeps patient-only actions (such as account self-deletion) off the admin
// session.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := CurrentUser(c)
			if p == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
			}
			for _, role := range roles {
				if p.Role == role {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				"Access forbidden. Required roles: "+strings.Join(roles, ", "))
		}
	}
}

// RequireActive returns middleware that sends deactivated accounts to the
// deactivation notice page instead of the requested resource.
func RequireActive() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := CurrentUser(c)
			if p != nil && !p.Active {
				return c.Redirect(http.StatusSeeOther, "/account-deactivated")
			}
			return next(c)
		}
	}
}
