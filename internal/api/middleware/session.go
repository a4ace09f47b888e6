package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/session"
)

// Gate decides whether the current session may enter a protected route.
type Gate interface {
	Authorize(roles ...domain.Role) session.Decision
}

// RequireSession only lets authenticated sessions through. Anonymous
// requests are sent to the login page; while the first derivation is still
// running the route answers 503 instead of flashing a redirect.
func RequireSession(gate Gate) echo.MiddlewareFunc {
	return RequireRole(gate)
}

// RequireRole is RequireSession plus a role check. A signed-in user with the
// wrong role lands on their own dashboard, not on the login page.
func RequireRole(gate Gate, roles ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d := gate.Authorize(roles...)
			switch {
			case d.Allowed:
				return next(c)
			case d.Pending:
				c.Response().Header().Set("Retry-After", "1")
				return echo.NewHTTPError(http.StatusServiceUnavailable, "session is loading")
			default:
				return c.Redirect(http.StatusSeeOther, d.Redirect)
			}
		}
	}
}
