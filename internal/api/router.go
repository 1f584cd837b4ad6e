package api

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/memberhub/memberdash/docs"
	"github.com/memberhub/memberdash/internal/api/handler"
	"github.com/memberhub/memberdash/internal/api/middleware"
	"github.com/memberhub/memberdash/internal/core/ports"
	"github.com/memberhub/memberdash/internal/infrastructure/http/handlers"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Sessions     ports.SessionService
	Profiles     ports.ProfileService
	Notices      handler.NoticeSource
	HealthChecks map[string]handlers.Check
	JWTSecret    string
	Log          zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))

	// --- Dependencies ---
	authHandler := handler.NewAuthHandler(d.Sessions)
	profileHandler := handler.NewProfileHandler(d.Profiles, d.Log)
	noticeHandler := handler.NewNoticeHandler(d.Notices)
	sessionMiddleware := middleware.Session(d.Sessions, d.JWTSecret)

	// --- Auth routes ---
	v1 := e.Group("/v1")
	v1.POST("/auth/login", authHandler.Login)
	v1.POST("/auth/logout", authHandler.Logout)
	v1.GET("/session", authHandler.Session)
	v1.GET("/notices", noticeHandler.List)

	// --- Member routes ---
	v1.GET("/profile", profileHandler.Get, sessionMiddleware, middleware.RBAC(middleware.DefaultRole))

	// --- Health probes (no auth required) ---
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(d.HealthChecks)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?

	// --- Operations ---
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// requestLogger writes one zerolog entry per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
