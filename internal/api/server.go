// Package api is the HTTP surface over the workflow service.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/logging"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/workflows"
)

// UserHeader carries the caller identity. It is opaque to the server;
// authentication happens in front of it.
const UserHeader = "X-User-ID"

const userKey = "user_id"

// Server holds the dependencies for the API server.
type Server struct {
	svc    *workflows.Service
	logger *slog.Logger
	echo   *echo.Echo
}

// NewServer creates a Server and registers its routes.
func NewServer(svc *workflows.Service, logger *slog.Logger) *Server {
	s := &Server{svc: svc, logger: logging.OrDefault(logger)}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(s.requestLogger())

	e.GET("/healthz", s.Health)

	v1 := e.Group("/api/v1", requireUser)
	v1.GET("/workflows", s.ListWorkflows)
	v1.POST("/workflows", s.CreateWorkflow)
	v1.GET("/workflows/:id", s.GetWorkflow)
	v1.PUT("/workflows/:id", s.UpdateWorkflow)
	v1.DELETE("/workflows/:id", s.DeleteWorkflow)
	v1.POST("/workflows/:id/clone", s.CloneWorkflow)
	v1.POST("/workflows/:id/execute", s.ExecuteWorkflow)
	v1.GET("/workflows/:id/executions", s.ListExecutions)
	v1.GET("/executions/:id", s.GetExecution)

	s.echo = e
	return s
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server starting", slog.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requireUser rejects requests without a caller identity and stores the
// identity on both the echo and request contexts.
func requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := strings.TrimSpace(c.Request().Header.Get(UserHeader))
		if userID == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing "+UserHeader+" header")
		}
		c.Set(userKey, userID)
		req := c.Request()
		c.SetRequest(req.WithContext(logging.WithUserID(req.Context(), userID)))
		return next(c)
	}
}

func userID(c echo.Context) string {
	id, _ := c.Get(userKey).(string)
	return id
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			level := slog.LevelInfo
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				if v.Status >= http.StatusInternalServerError {
					level = slog.LevelError
				}
			}
			s.logger.LogAttrs(c.Request().Context(), level, "http request", attrs...)
			return nil
		},
	})
}
