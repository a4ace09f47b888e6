package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/forenvision/case-console/internal/api/handler"
	"github.com/forenvision/case-console/internal/api/middleware"
	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
)

// Gate is what the router needs from the session machine.
type Gate interface {
	middleware.Gate
	handler.StatusSource
}

// Deps are the collaborators the console routes are built from. History may
// be nil; Registerer defaults to the Prometheus default registry.
type Deps struct {
	Auth       ports.AuthService
	Gateway    ports.Gateway
	Gate       Gate
	Tokens     handler.TokenReader
	Notices    handler.NoticeSource
	Location   handler.LocationSource
	History    ports.AuditHistory
	Checks     map[string]handler.Check
	Registerer prometheus.Registerer
	Log        zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	registerer := deps.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "console",
		Registerer: registerer,
	}))

	// --- Health probes and metrics (no session required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.Checks)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())

	// --- Session ---
	sessionHandler := handler.NewSessionHandler(deps.Auth, deps.Gate, deps.Tokens, deps.Notices, deps.Location, deps.History)
	requireSession := middleware.RequireSession(deps.Gate)

	s := e.Group("/session")
	s.GET("", sessionHandler.Status)
	s.POST("/login", sessionHandler.Login)
	s.POST("/signup", sessionHandler.Signup)
	s.POST("/logout", sessionHandler.Logout)
	s.GET("/notices", sessionHandler.Notices)
	s.POST("/refresh", sessionHandler.Refresh, requireSession)
	s.PUT("/profile", sessionHandler.UpdateProfile, requireSession)
	s.PUT("/availability", sessionHandler.SetAvailability, middleware.RequireRole(deps.Gate, domain.RoleInvestigator))
	s.GET("/history", sessionHandler.History, requireSession)

	// --- Protected views ---
	viewHandler := handler.NewViewHandler(deps.Gateway, deps.Gate)

	admin := e.Group("/admin", middleware.RequireRole(deps.Gate, domain.RoleAdmin))
	admin.GET("/dashboard", viewHandler.AdminDashboard)

	investigator := e.Group("/investigator", middleware.RequireRole(deps.Gate, domain.RoleInvestigator))
	investigator.GET("/dashboard", viewHandler.InvestigatorDashboard)

	cases := e.Group("/cases", middleware.RequireRole(deps.Gate, domain.RoleAdmin, domain.RoleInvestigator))
	cases.GET("/:id", viewHandler.CaseDetail)

	// --- Pass-through ---
	proxyHandler := handler.NewProxyHandler(deps.Gateway)
	e.Any("/api/v1/*", proxyHandler.Relay)
	e.POST("/upload/*", proxyHandler.Upload)

	return e
}
