package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/forenvision/case-console/internal/core/domain"
)

// errorResponse is the canonical error envelope. Redirect is set when the
// session is gone and the caller should show the login page.
type errorResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps session and API errors to their HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message)}
	}

	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Detail
		if msg == "" {
			msg = http.StatusText(apiErr.Status)
		}
		return apiErr.Status, errorResponse{Error: msg}
	}

	switch {
	case errors.Is(err, domain.ErrAuthorizationFailed):
		return http.StatusForbidden, errorResponse{Error: "session is no longer valid", Redirect: domain.LoginPath}
	case errors.Is(err, domain.ErrAuthenticationFailed):
		return http.StatusUnauthorized, errorResponse{Error: "session expired", Redirect: domain.LoginPath}
	case errors.Is(err, domain.ErrNoSession):
		return http.StatusUnauthorized, errorResponse{Error: "not signed in", Redirect: domain.LoginPath}
	case errors.Is(err, domain.ErrMalformedCredential):
		return http.StatusUnprocessableEntity, errorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrAbsolutePath):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	case domain.IsNetworkFailure(err):
		log.Warn().Err(err).Str("path", c.Path()).Msg("api unreachable")
		return http.StatusBadGateway, errorResponse{Error: "api unreachable"}
	}

	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
}
