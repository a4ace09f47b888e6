package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
	"github.com/forenvision/case-console/internal/core/service"
	"github.com/forenvision/case-console/internal/infrastructure/ui"
)

const defaultHistoryLimit = 20

// StatusSource exposes the derived session status.
type StatusSource interface {
	Status() domain.SessionStatus
}

// TokenReader reads the current bearer token.
type TokenReader interface {
	ReadToken(ctx context.Context) (string, bool)
}

// NoticeSource hands out pending notices once.
type NoticeSource interface {
	Drain() []domain.Notice
}

// LocationSource reports where the console was last sent.
type LocationSource interface {
	Last() ui.Location
}

type SessionHandler struct {
	auth     ports.AuthService
	status   StatusSource
	tokens   TokenReader
	notices  NoticeSource
	location LocationSource
	history  ports.AuditHistory
}

// NewSessionHandler wires the session routes. history may be nil when the
// audit trail is disabled.
func NewSessionHandler(
	auth ports.AuthService,
	status StatusSource,
	tokens TokenReader,
	notices NoticeSource,
	location LocationSource,
	history ports.AuditHistory,
) *SessionHandler {
	return &SessionHandler{
		auth:     auth,
		status:   status,
		tokens:   tokens,
		notices:  notices,
		location: location,
		history:  history,
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type availabilityRequest struct {
	IsAvailable *bool `json:"is_available" validate:"required"`
}

type sessionResponse struct {
	State          domain.SessionState `json:"state"`
	Identity       *domain.Identity    `json:"identity,omitempty"`
	TokenExpiresAt *time.Time          `json:"token_expires_at,omitempty"`
	Location       *ui.Location        `json:"location,omitempty"`
}

type identityResponse struct {
	Identity *domain.Identity `json:"identity"`
}

// Login exchanges credentials for a session.
//
// @Summary      Login
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  identityResponse
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /session/login [post]
func (h *SessionHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ident, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, identityResponse{Identity: ident})
}

// Signup registers a new account; investigators wait for approval.
//
// @Summary      Signup
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        body  body      ports.SignupRequest  true  "Account details"
// @Success      201   {object}  ports.SignupResult
// @Failure      400   {object}  errorResponse
// @Router       /session/signup [post]
func (h *SessionHandler) Signup(c echo.Context) error {
	var req ports.SignupRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.auth.Signup(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

// Logout ends the session on purpose.
//
// @Summary      Logout
// @Tags         session
// @Success      204
// @Router       /session/logout [post]
func (h *SessionHandler) Logout(c echo.Context) error {
	if err := h.auth.Logout(c.Request().Context()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Status reports the derived session status.
//
// @Summary      Current session
// @Tags         session
// @Produce      json
// @Success      200  {object}  sessionResponse
// @Router       /session [get]
func (h *SessionHandler) Status(c echo.Context) error {
	st := h.status.Status()
	resp := sessionResponse{State: st.State, Identity: st.Identity}

	if st.Authenticated() {
		if token, ok := h.tokens.ReadToken(c.Request().Context()); ok {
			if exp, ok := service.TokenExpiry(token); ok {
				resp.TokenExpiresAt = &exp
			}
		}
	}
	if loc := h.location.Last(); loc.Target != "" {
		resp.Location = &loc
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh re-reads the identity from the API.
//
// @Summary      Refresh identity
// @Tags         session
// @Produce      json
// @Success      200  {object}  identityResponse
// @Failure      401  {object}  errorResponse
// @Router       /session/refresh [post]
func (h *SessionHandler) Refresh(c echo.Context) error {
	ident, err := h.auth.Refresh(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, identityResponse{Identity: ident})
}

// UpdateProfile saves profile fields and merges them into the identity.
//
// @Summary      Update profile
// @Tags         session
// @Accept       json
// @Produce      json
// @Success      200  {object}  identityResponse
// @Failure      401  {object}  errorResponse
// @Router       /session/profile [put]
func (h *SessionHandler) UpdateProfile(c echo.Context) error {
	fields := map[string]any{}
	if err := c.Bind(&fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if len(fields) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no fields to update")
	}

	ident, err := h.auth.UpdateProfile(c.Request().Context(), fields)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, identityResponse{Identity: ident})
}

// SetAvailability toggles the investigator availability flag.
//
// @Summary      Set availability
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        body  body      availabilityRequest  true  "Availability"
// @Success      200   {object}  identityResponse
// @Router       /session/availability [put]
func (h *SessionHandler) SetAvailability(c echo.Context) error {
	var req availabilityRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	ident, err := h.auth.SetAvailability(c.Request().Context(), *req.IsAvailable)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, identityResponse{Identity: ident})
}

// Notices drains pending session notices.
//
// @Summary      Pending notices
// @Tags         session
// @Produce      json
// @Success      200  {array}  domain.Notice
// @Router       /session/notices [get]
func (h *SessionHandler) Notices(c echo.Context) error {
	return c.JSON(http.StatusOK, h.notices.Drain())
}

// History lists the audit trail of the signed-in user.
//
// @Summary      Session history
// @Tags         session
// @Produce      json
// @Param        limit  query  int  false  "Max entries"
// @Success      200  {array}  domain.SessionTransition
// @Failure      404  {object}  errorResponse
// @Router       /session/history [get]
func (h *SessionHandler) History(c echo.Context) error {
	if h.history == nil {
		return echo.NewHTTPError(http.StatusNotFound, "audit trail disabled")
	}
	st := h.status.Status()
	if !st.Authenticated() {
		return domain.ErrNoSession
	}

	limit := int64(defaultHistoryLimit)
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	items, err := h.history.ListByIdentity(c.Request().Context(), st.Identity.ID, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
